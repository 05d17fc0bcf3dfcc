// Package classify decides whether an observed URL is a media candidate or
// ad/tracking noise. Classification is pure: the same input always yields the
// same verdict.
package classify

import (
	"net/url"
	"strings"
)

// Verdict is the per-URL classification outcome.
type Verdict struct {
	Noise            bool
	KnownMediaDomain bool
	MediaExtension   bool
}

// Accepted reports whether a network response URL is a candidate: any
// non-noise URL whose path ends in a media extension, whatever its host.
func (v Verdict) Accepted() bool {
	return !v.Noise && v.MediaExtension
}

// UnknownCDN reports an accepted URL served from an unrecognized host.
func (v Verdict) UnknownCDN() bool {
	return v.Accepted() && !v.KnownMediaDomain
}

// Classifier holds the domain marker lists. It is safe for concurrent use.
type Classifier struct {
	noise []string
	media []string
}

// New builds a classifier. Empty lists select the package defaults.
func New(noiseDomains, mediaDomains []string) *Classifier {
	if len(noiseDomains) == 0 {
		noiseDomains = DefaultNoiseDomains
	}
	if len(mediaDomains) == 0 {
		mediaDomains = DefaultMediaDomains
	}
	return &Classifier{
		noise: lowerAll(noiseDomains),
		media: lowerAll(mediaDomains),
	}
}

// Default returns a classifier using the built-in marker lists.
func Default() *Classifier {
	return New(nil, nil)
}

// Classify computes the verdict for a network response URL.
func (c *Classifier) Classify(rawURL string) Verdict {
	host, path := splitURL(rawURL)
	return Verdict{
		Noise:            containsAny(host, c.noise) || containsAny(path, c.noise),
		KnownMediaDomain: containsAny(host, c.media),
		MediaExtension:   mediaExtensionRe.MatchString(path),
	}
}

// AcceptHarvested applies the rule for URLs read out of page configuration
// objects: not noise, and either on a known media domain or a media file.
func (c *Classifier) AcceptHarvested(rawURL string) bool {
	v := c.Classify(rawURL)
	return !v.Noise && (v.KnownMediaDomain || v.MediaExtension)
}

// ScanBody extracts media URLs embedded in API response or script text.
// Escaped separators are unescaped. Body text is noisy, so a URL must both
// end in a media extension and sit on a known media domain. Results keep
// first-seen order without duplicates.
func (c *Classifier) ScanBody(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range bodyURLRe.FindAllString(text, -1) {
		u := Unescape(m)
		v := c.Classify(u)
		if !v.Accepted() || !v.KnownMediaDomain {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// IsStream reports whether the URL is an adaptive-streaming manifest.
func IsStream(rawURL string) bool {
	_, path := splitURL(rawURL)
	return streamManifestRe.MatchString(path)
}

// Unescape undoes JSON string escaping that commonly wraps URLs in script
// bodies and drops a dangling escape left by the match boundary.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\u002F`, "/")
	return strings.TrimRight(s, `\,;)`)
}

// splitURL returns the lowercased host and the path of rawURL. Unparseable
// input is treated as a bare path so substring rules still apply.
func splitURL(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		s := strings.ToLower(rawURL)
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			return s, s[:i]
		}
		return s, s
	}
	return strings.ToLower(u.Host), strings.ToLower(u.EscapedPath())
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
