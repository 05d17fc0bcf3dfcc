package extractor

// PlayerContainerSelector matches the element a page shows once its player
// has mounted.
const PlayerContainerSelector = "video, .video-wrapper, #player"

// PlayerSelectors are play controls tried in order; the first match is clicked.
var PlayerSelectors = []string{
	".mgp_playButton",
	`button[aria-label="Play"]`,
	".play-icon",
	"button.play",
	".vjs-big-play-button",
}

// HarvestScript collects media URLs exposed by the page's player
// configuration globals (flashvars and flashvars_<n>) and by
// "quality_<n>p": "<url>" pairs inside inline scripts. It returns a string
// array; filtering happens on the Go side.
const HarvestScript = `(() => {
	const urls = new Set();
	const add = (u) => { if (typeof u === 'string' && u) urls.add(u); };

	const configs = Object.keys(window)
		.filter((k) => k === 'flashvars' || k.startsWith('flashvars_'))
		.map((k) => window[k]);
	if (typeof flashvars !== 'undefined') configs.push(flashvars);

	for (const fv of configs) {
		if (!fv || typeof fv !== 'object') continue;
		if (Array.isArray(fv.mediaDefinitions)) {
			fv.mediaDefinitions.forEach((def) => add(def && def.videoUrl));
		}
		Object.keys(fv).forEach((k) => {
			if (k.startsWith('quality_')) add(fv[k]);
		});
	}

	const re = /"quality_(\d+)p"\s*:\s*"([^"]+)"/g;
	document.querySelectorAll('script').forEach((s) => {
		const text = s.textContent || '';
		let m;
		while ((m = re.exec(text)) !== null) add(m[2]);
	});

	return Array.from(urls);
})()`

// MetadataScript reads the page title and thumbnail. Empty strings mean the
// page exposed nothing usable.
const MetadataScript = `(() => {
	const text = (el) => (el && el.textContent ? el.textContent.trim() : '');
	const attr = (sel, name) => {
		const el = document.querySelector(sel);
		return el ? (el.getAttribute(name) || '').trim() : '';
	};

	const title = text(document.querySelector('h1.title, .video-title')) ||
		attr('meta[property="og:title"]', 'content') ||
		(document.title || '').trim();
	const thumbnail = attr('meta[property="og:image"]', 'content') ||
		attr('video', 'poster');

	return { title, thumbnail };
})()`

// metadata is the decoded result of MetadataScript.
type metadata struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}
