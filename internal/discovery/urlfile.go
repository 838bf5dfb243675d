package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ErrNoURLs is returned when an input yields no usable URLs.
var ErrNoURLs = errors.New("discovery: no urls")

// ReadURLs parses one URL per line. Blank lines and lines starting with '#'
// are skipped; duplicates keep their first position.
func ReadURLs(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var raw []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return Dedupe(raw)
}

// LoadURLFile reads a URL list from disk.
func LoadURLFile(path string) ([]string, error) {
	// #nosec G304 -- the path is an operator-provided input file.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	urls, err := ReadURLs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return urls, nil
}

// Dedupe validates and normalizes urls, preserving first-seen order.
func Dedupe(urls []string) ([]string, error) {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !isHTTP(u) {
			return nil, fmt.Errorf("invalid url %q", raw)
		}
		normalized, err := NormalizeURL(u.String())
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}
