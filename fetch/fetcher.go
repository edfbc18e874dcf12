// Package fetch retrieves PMC article pages as raw HTML, either over plain
// HTTP or through a headless browser when the HTTP path is blocked.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/lumeris/pubmark"
)

// DefaultBaseURL is the canonical PMC article URL prefix.
const DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/"

var pmcidPattern = regexp.MustCompile(`^PMC\d+$`)

// ArticleURL returns the canonical page URL for a PMCID.
func ArticleURL(baseURL, pmcid string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return baseURL + pmcid + "/"
}

// ValidPMCID reports whether s looks like a PMC identifier.
func ValidPMCID(s string) bool {
	return pmcidPattern.MatchString(s)
}

// Result contains the outcome of a fetch.
type Result struct {
	Body       []byte
	StatusCode int
	Hash       string // SHA-256 of body
}

// Config configures the HTTP fetcher.
type Config struct {
	// BaseURL of the article pages. Default: DefaultBaseURL.
	BaseURL string
	// Timeout per request. Default: 60s.
	Timeout time.Duration
	// MaxBytes caps the response body. Default: 20MB.
	MaxBytes int64
	// UserAgent sent with requests. PMC rejects obviously robotic agents,
	// so the default mimics a desktop browser.
	UserAgent string
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}
}

// Fetcher retrieves article pages over HTTP.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves the article page for a PMCID.
//
// Transport errors are transient; non-2xx statuses are terminal for the
// PMCID and returned as *pubmark.FetchError. A 403 usually means the
// anti-bot interstitial fired; callers may fall back to the browser path.
func (f *Fetcher) Fetch(ctx context.Context, pmcid string) (*Result, error) {
	if !ValidPMCID(pmcid) {
		return nil, fmt.Errorf("fetch: not a PMCID: %q", pmcid)
	}

	pageURL := ArticleURL(f.config.BaseURL, pmcid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pubmark.Transient(fmt.Errorf("fetch %s: %w", pmcid, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode},
			&pubmark.FetchError{PMCID: pmcid, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, pubmark.Transient(fmt.Errorf("fetch %s: read body: %w", pmcid, err))
	}

	h := sha256.Sum256(body)
	return &Result{
		Body:       body,
		StatusCode: resp.StatusCode,
		Hash:       fmt.Sprintf("%x", h),
	}, nil
}
