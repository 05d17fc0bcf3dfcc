package classify

import "regexp"

// DefaultNoiseDomains are ad, tracking and pop-under markers. A URL whose host
// or path contains one of them is never a candidate.
var DefaultNoiseDomains = []string{
	"trafficjunky",
	"adtng",
	"doubleclick",
	"googlesyndication",
	"adserver",
	"ads.",
	"adcdn",
	"exoclick",
	"juicyads",
	"adnium",
	"contentabc",
	"propellerads",
	"popads",
	"vcmdiawe.com",
	"galleryn",
}

// DefaultMediaDomains are markers of the video CDNs the extractor targets.
var DefaultMediaDomains = []string{
	"phncdn.com",
	"pornhub.com",
	"phcdn",
	"cv.phncdn.com",
	"di.phncdn.com",
	"ev.phncdn.com",
}

// Media extensions.
const (
	ExtMP4  = "mp4"
	ExtHLS  = "m3u8"
	ExtDASH = "m4s"
)

// MediaExtensionPattern matches a media extension at the end of the path,
// optionally followed by a query string.
const MediaExtensionPattern = `(?i)\.(` + ExtMP4 + `|` + ExtHLS + `|` + ExtDASH + `)(?:\?|#|$)`

// StreamManifestPattern matches adaptive-streaming manifests.
const StreamManifestPattern = `(?i)\.` + ExtHLS + `(?:\?|#|$)`

// BodyURLPattern finds absolute URLs in script or JSON text, including
// JSON-escaped separators such as https:\/\/host\/path.
const BodyURLPattern = `https?:(?:\\?/){2}[^\s"'<>]+`

var (
	mediaExtensionRe = regexp.MustCompile(MediaExtensionPattern)
	streamManifestRe = regexp.MustCompile(StreamManifestPattern)
	bodyURLRe        = regexp.MustCompile(BodyURLPattern)
)
