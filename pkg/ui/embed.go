// Package ui provides the embedded single-page web UI.
package ui

import (
	_ "embed"
)

// IndexHTML is the downloader page: a URL form, the ranked quality list and
// download links.
//
//go:embed index.html
var IndexHTML []byte
