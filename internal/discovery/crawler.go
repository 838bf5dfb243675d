// Package discovery builds the ordered URL list for a download run, either
// from an input file or by crawling a site's internal links.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config bounds a discovery crawl.
type Config struct {
	UserAgent     string
	MaxPages      int
	MaxDepth      int
	RespectRobots bool
	Delay         time.Duration
	Timeout       time.Duration
	// Exclude drops URLs containing any of these substrings.
	Exclude []string
}

// Crawler follows same-host links from a seed.
type Crawler struct {
	cfg    Config
	logger *zap.Logger
}

// NewCrawler constructs a Crawler.
func NewCrawler(cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Crawler{cfg: cfg, logger: logger}
}

// Discover returns the HTML pages reachable from seed on the same host, in
// the order they were fetched. The seed itself is always first when it
// responds with HTML. Cancellation stops the crawl and returns what was
// found so far along with the context error.
func (c *Crawler) Discover(ctx context.Context, seed string) ([]string, error) {
	seedURL, err := url.Parse(seed)
	if err != nil || !isHTTP(seedURL) {
		return nil, fmt.Errorf("invalid seed url %q", seed)
	}
	seed, err = NormalizeURL(seedURL.String())
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found []string
		seen  = map[string]struct{}{}
	)
	collector := c.initCollector(seedURL.Hostname())

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(found) >= c.cfg.MaxPages {
			r.Abort()
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 || !strings.Contains(strings.ToLower(r.Headers.Get("Content-Type")), "html") {
			return
		}
		normalized, err := NormalizeURL(r.Request.URL.String())
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, dup := seen[normalized]; dup || len(found) >= c.cfg.MaxPages {
			return
		}
		seen[normalized] = struct{}{}
		found = append(found, normalized)
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		abs := e.Request.AbsoluteURL(e.Attr("href"))
		if abs == "" || !SameHost(abs, seed) || c.excluded(abs) {
			return
		}
		normalized, err := NormalizeURL(abs)
		if err != nil {
			return
		}
		if err := e.Request.Visit(normalized); err != nil {
			c.logger.Debug("skip link", zap.String("url", normalized), zap.Error(err))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("discovery request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	if err := collector.Visit(seed); err != nil {
		return nil, fmt.Errorf("visit seed: %w", err)
	}
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	c.logger.Info("discovery finished", zap.String("seed", seed), zap.Int("pages", len(found)))
	if err := ctx.Err(); err != nil {
		return found, fmt.Errorf("discovery interrupted: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrNoURLs
	}
	return found, nil
}

func (c *Crawler) initCollector(host string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowedDomains(host, "www."+strings.TrimPrefix(host, "www."), strings.TrimPrefix(host, "www.")),
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.MaxDepth > 0 {
		opts = append(opts, colly.MaxDepth(c.cfg.MaxDepth))
	}
	collector := colly.NewCollector(opts...)
	collector.AllowURLRevisit = false
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: c.cfg.Delay}); err != nil {
			c.logger.Warn("failed to set discovery limits", zap.Error(err))
		}
	}
	return collector
}

func (c *Crawler) excluded(rawURL string) bool {
	for _, pattern := range c.cfg.Exclude {
		if pattern != "" && strings.Contains(rawURL, pattern) {
			return true
		}
	}
	return false
}
