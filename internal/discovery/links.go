package discovery

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-downloader/internal/download"
)

// LinkExtractor collects anchors from HTML using goquery.
type LinkExtractor struct{}

// ExtractLinks returns the unique http(s) anchors of body resolved against
// pageURL, in document order. Unparseable bodies yield no links.
func (LinkExtractor) ExtractLinks(body []byte, pageURL string) []download.Link {
	base, err := url.Parse(pageURL)
	if err != nil || len(body) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var links []download.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil || !isHTTP(abs) {
			return
		}
		normalized, err := NormalizeURL(abs.String())
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, download.Link{
			URL:      normalized,
			Text:     strings.Join(strings.Fields(sel.Text()), " "),
			Internal: SameHost(normalized, pageURL),
		})
	})
	return links
}
