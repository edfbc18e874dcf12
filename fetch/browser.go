package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/lumeris/pubmark"
)

// BrowserConfig configures the headless-Chrome fetch path.
type BrowserConfig struct {
	// BaseURL of the article pages. Default: DefaultBaseURL.
	BaseURL string
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string
	// NavTimeout bounds navigation plus page load. Default: 45s.
	NavTimeout time.Duration
	Logger     *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserFetcher retrieves pages through headless Chrome with stealth
// applied, for pages whose anti-bot protection rejects plain HTTP.
// Chrome is launched lazily on first use and reused across fetches.
type BrowserFetcher struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates a BrowserFetcher. Chrome is not started until the
// first Fetch call.
func NewBrowser(cfg BrowserConfig) *BrowserFetcher {
	cfg.defaults()
	return &BrowserFetcher{cfg: cfg}
}

func (b *BrowserFetcher) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	var wsURL string
	if b.cfg.RemoteURL != "" {
		wsURL = b.cfg.RemoteURL
		b.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true)
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.cfg.Logger.Info("browser: launched local chrome")
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return br, nil
}

// Fetch navigates a stealth page to the article URL, waits for the page to
// load, and serialises the rendered DOM.
func (b *BrowserFetcher) Fetch(ctx context.Context, pmcid string) (*Result, error) {
	if !ValidPMCID(pmcid) {
		return nil, fmt.Errorf("browser: not a PMCID: %q", pmcid)
	}

	br, err := b.connect()
	if err != nil {
		return nil, pubmark.Transient(err)
	}

	page, err := stealth.Page(br)
	if err != nil {
		return nil, pubmark.Transient(fmt.Errorf("browser: create page: %w", err))
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	pageURL := ArticleURL(b.cfg.BaseURL, pmcid)
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, &pubmark.FetchError{PMCID: pmcid, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		// Rendering timeout is terminal: the page never reached a state
		// where its content can be trusted.
		return nil, &pubmark.FetchError{PMCID: pmcid, Err: fmt.Errorf("wait load: %w", err)}
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, &pubmark.FetchError{PMCID: pmcid, Err: fmt.Errorf("read DOM: %w", err)}
	}

	body := []byte(res.Value.Str())
	h := sha256.Sum256(body)
	return &Result{
		Body:       body,
		StatusCode: 200,
		Hash:       fmt.Sprintf("%x", h),
	}, nil
}

// Close shuts down Chrome if it was launched.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}
