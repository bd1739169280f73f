// Package naming derives output file names from page URLs.
package naming

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

var nonWord = regexp.MustCompile(`\W+`)

// timestampLayout matches YYYYMMDD_HHMMSS.
const timestampLayout = "20060102_150405"

// OutputName builds a file name of the form host_base_timestamp.pdf. The
// base is the last path segment with its extension dropped and every run
// of non-word characters collapsed to an underscore; a URL without a path
// uses "index".
func OutputName(u *url.URL, now time.Time) string {
	base := "index"
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			base = part
		}
	}

	ext := path.Ext(base)
	if ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	base = nonWord.ReplaceAllString(base, "_")

	return u.Host + "_" + base + "_" + now.Format(timestampLayout) + ".pdf"
}
