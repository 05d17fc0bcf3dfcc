package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTitle is used when a page exposes no usable title.
const DefaultTitle = "Video"

// UnknownQuality labels candidates whose URL carries no resolution marker.
const UnknownQuality = "Unknown"

// qualityPattern matches the first 3-4 digit resolution followed by "p".
var qualityPattern = regexp.MustCompile(`(\d{3,4})[pP]`)

// ExtractionID identifies a stored extraction. It is derived from the page URL.
type ExtractionID string

// String returns the string representation of the ExtractionID.
func (id ExtractionID) String() string {
	return string(id)
}

// NewExtractionID derives a stable identifier from a page URL: the first
// 16 bytes of its SHA-256, hex encoded.
func NewExtractionID(pageURL string) ExtractionID {
	sum := sha256.Sum256([]byte(strings.TrimSpace(pageURL)))
	return ExtractionID(hex.EncodeToString(sum[:16]))
}

// Quality is one validated, sized media candidate.
type Quality struct {
	URL       string `json:"url"`
	Label     string `json:"quality"`
	IsStream  bool   `json:"is_hls"`
	SizeBytes int64  `json:"size"`
	IsValid   bool   `json:"is_valid"`
}

// Rank returns the numeric resolution used for ordering; Unknown ranks 0.
func (q Quality) Rank() int {
	return QualityRank(q.Label)
}

// SizeLabel renders the size for display: "Stream" for manifests,
// otherwise megabytes with one decimal.
func (q Quality) SizeLabel() string {
	if q.IsStream {
		return "Stream"
	}
	return fmt.Sprintf("%.1f MB", float64(q.SizeBytes)/(1024*1024))
}

// Type returns "HLS" for adaptive streams and "MP4" otherwise.
func (q Quality) Type() string {
	if q.IsStream {
		return "HLS"
	}
	return "MP4"
}

// Filename is the attachment name used when the quality is downloaded.
func (q Quality) Filename() string {
	return "video_" + q.Label + ".mp4"
}

// ParseQuality extracts the quality label from a media URL, e.g. "720p".
func ParseQuality(rawURL string) string {
	m := qualityPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return UnknownQuality
	}
	return m[1] + "p"
}

// QualityRank returns the first number found in a quality label, or 0.
func QualityRank(label string) int {
	start := strings.IndexAny(label, "0123456789")
	if start < 0 {
		return 0
	}
	end := start
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(label[start:end])
	if err != nil {
		return 0
	}
	return n
}

// Extraction is the stored, ranked outcome of one pipeline run for a page.
type Extraction struct {
	ID        ExtractionID
	SourceURL string
	Title     string
	Thumbnail string
	// Referer is sent with downloads so media hosts accept the request.
	Referer   string
	Qualities []Quality
	CreatedAt time.Time
}

// QualityAt returns the quality at index or ErrBadIndex.
func (e *Extraction) QualityAt(index int) (Quality, error) {
	if index < 0 || index >= len(e.Qualities) {
		return Quality{}, ErrBadIndex
	}
	return e.Qualities[index], nil
}
