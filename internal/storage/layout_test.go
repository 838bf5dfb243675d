package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digest(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:digestLength]
}

func TestPageName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		stem string
	}{
		{"root", "https://example.com/", "page_example_com"},
		{"nested path", "https://example.com/docs/intro.html", "page_example_com_docs_intro_html"},
		{"query", "https://example.com/search?q=go&page=2", "page_example_com_search_q_go_page_2"},
		{"port", "http://localhost:8080/a", "page_localhost_8080_a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PageName(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.stem+"_"+digest(tc.url), got)
		})
	}
}

func TestPageNameDistinguishesFlattenedCollisions(t *testing.T) {
	groups := [][]string{
		{"https://example.com/docs/a_b", "https://example.com/docs/a/b", "https://example.com/docs/a.b"},
		{"https://example.com/search?q=a&b=c", "https://example.com/search?q=a_b=c", "https://example.com/search/q_a_b_c"},
		{"https://example.com/x%20y", "https://example.com/x y", "https://example.com/x:y"},
	}
	for _, urls := range groups {
		seen := map[string]string{}
		for _, u := range urls {
			name, err := PageName(u)
			require.NoError(t, err)
			prev, dup := seen[name]
			assert.False(t, dup, "%s and %s share %s", prev, u, name)
			seen[name] = u
		}
	}

	layout := Layout{Site: "docs"}
	a, err := layout.ContentKey("https://example.com/docs/a_b")
	require.NoError(t, err)
	b, err := layout.ContentKey("https://example.com/docs/a/b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPageNameTruncatesLongURLs(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 300)
	other := "https://example.com/" + strings.Repeat("a", 299) + "b"

	a, err := PageName(long)
	require.NoError(t, err)
	b, err := PageName(other)
	require.NoError(t, err)

	assert.Len(t, a, len("page_")+100+1+digestLength)
	assert.NotEqual(t, a, b)
}

func TestPageNameRejectsRelative(t *testing.T) {
	_, err := PageName("/just/a/path")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestLayoutKeys(t *testing.T) {
	layout := Layout{Prefix: "/crawls/", Site: "docs"}

	content, err := layout.ContentKey("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "crawls/docs/Content/page_example_com_a_"+digest("https://example.com/a")+".html", content)

	meta, err := layout.MetadataKey("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "crawls/docs/Metadata/page_example_com_a_"+digest("https://example.com/a")+"_meta.json", meta)

	bare := Layout{}
	content, err = bare.ContentKey("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Content/page_example_com_a_"+digest("https://example.com/a")+".html", content)
}

func TestSiteDirs(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "docs", "Logs"), SiteLogsDir("out", "docs"))
	assert.Equal(t, filepath.Join("out", "docs", "Reports"), SiteReportsDir("out", "docs"))
	assert.Equal(t, filepath.Join("out", "docs"), SiteDir("out", "docs"))
}
