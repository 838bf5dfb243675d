// Package storage maps downloaded URLs onto the per-site directory layout
// shared by every blob backend.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Per-site subdirectories.
const (
	ContentDir  = "Content"
	MetadataDir = "Metadata"
	LogsDir     = "Logs"
	ReportsDir  = "Reports"
)

const (
	maxNameLength = 200
	digestLength  = 12
)

// ErrInvalidURL is returned when a URL has no host to derive a name from.
var ErrInvalidURL = errors.New("storage: url has no host")

var nameReplacer = strings.NewReplacer(
	"/", "_", ".", "_", "?", "_", "&", "_", "=", "_", " ", "_", "%", "_", ":", "_",
)

// PageName flattens host, path and query into a filesystem-safe stem and
// appends a digest of the full URL. Flattening alone is lossy ("a/b", "a.b"
// and "a_b" all become "a_b"), so the digest keeps names unique per URL.
// Long readable parts are truncated.
func PageName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}
	name := nameReplacer.Replace(u.Host + strings.TrimSuffix(u.Path, "/"))
	if u.RawQuery != "" {
		name += "_" + nameReplacer.Replace(u.RawQuery)
	}
	if len(name) > maxNameLength {
		name = name[:100]
	}
	sum := sha256.Sum256([]byte(rawURL))
	return "page_" + name + "_" + hex.EncodeToString(sum[:])[:digestLength], nil
}

// Layout names the keys for one site under an optional prefix. Keys always
// use forward slashes so they work for both local and object stores.
type Layout struct {
	Prefix string
	Site   string
}

// ContentKey returns the key for the raw page body.
func (l Layout) ContentKey(rawURL string) (string, error) {
	name, err := PageName(rawURL)
	if err != nil {
		return "", err
	}
	return l.key(ContentDir, name+".html"), nil
}

// MetadataKey returns the key for the page's metadata document.
func (l Layout) MetadataKey(rawURL string) (string, error) {
	name, err := PageName(rawURL)
	if err != nil {
		return "", err
	}
	return l.key(MetadataDir, name+"_meta.json"), nil
}

func (l Layout) key(dir, name string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(l.Prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if s := strings.Trim(l.Site, "/"); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, dir, name)
	return path.Join(parts...)
}

// SiteDir returns the local directory holding a site's output.
func SiteDir(outputDir, site string) string {
	return filepath.Join(outputDir, site)
}

// SiteLogsDir returns the local directory for attempt logs and URL lists.
func SiteLogsDir(outputDir, site string) string {
	return filepath.Join(outputDir, site, LogsDir)
}

// SiteReportsDir returns the local directory for status reports.
func SiteReportsDir(outputDir, site string) string {
	return filepath.Join(outputDir, site, ReportsDir)
}
