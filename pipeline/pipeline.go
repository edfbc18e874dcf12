// Package pipeline drives PMIDs through resolve → fetch → transform →
// write, updating the processing record as it goes.
//
// One article's failure never aborts the batch: terminal errors at a
// stage are downgraded to a recorded failed-at-<stage> status and the
// pipeline moves on. Only record-store I/O and configuration problems
// are fatal to a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumeris/pubmark"
	"github.com/lumeris/pubmark/convert"
	"github.com/lumeris/pubmark/fetch"
	"github.com/lumeris/pubmark/records"
)

// Resolver maps a PMID to its PMCID.
type Resolver interface {
	Resolve(ctx context.Context, pmid string) (string, error)
}

// PageFetcher retrieves the article page for a PMCID.
type PageFetcher interface {
	Fetch(ctx context.Context, pmcid string) (*fetch.Result, error)
}

// Config configures a pipeline run.
type Config struct {
	Resolver Resolver
	Fetcher  PageFetcher
	// Browser is the fallback fetch path for pages whose anti-bot
	// protection rejects plain HTTP. Optional.
	Browser PageFetcher

	Converter *convert.Converter
	Records   *records.Store

	// OutDir receives markdown/ and html/ subdirectories.
	OutDir string
	// Overwrite reprocesses PMIDs already marked success.
	Overwrite bool
	// SaveHTML keeps the raw page under html/ for later local reruns.
	SaveHTML bool

	// Workers bounds fetch concurrency. Default: 1 (sequential).
	Workers int
	// MaxRetries bounds retry attempts for transient failures. Default: 2.
	MaxRetries int
	// RetryBackoff is the initial backoff, doubled per attempt. Default: 500ms.
	RetryBackoff time.Duration
	// RequestsPerSecond limits all outbound calls across workers,
	// independent of worker count. Default: 2.
	RequestsPerSecond float64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.Resolver == nil {
		return fmt.Errorf("pipeline: Resolver is required")
	}
	if c.Fetcher == nil {
		return fmt.Errorf("pipeline: Fetcher is required")
	}
	if c.Converter == nil {
		return fmt.Errorf("pipeline: Converter is required")
	}
	if c.Records == nil {
		return fmt.Errorf("pipeline: Records is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("pipeline: OutDir is required")
	}
	return nil
}

// Failure describes one PMID that did not complete.
type Failure struct {
	PMID  string
	Stage string
	Err   error
}

// Summary reports the outcome of a batch run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []Failure
}

// Pipeline processes batches of PMIDs.
type Pipeline struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	summary Summary
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Run processes pmids and returns the batch summary. A record-store
// flush failure aborts the run; everything else is per-PMID.
func (p *Pipeline) Run(ctx context.Context, pmids []string) (Summary, error) {
	if err := os.MkdirAll(p.markdownDir(), 0o755); err != nil {
		return Summary{}, &pubmark.WriteError{Path: p.markdownDir(), Err: err}
	}
	if p.cfg.SaveHTML {
		if err := os.MkdirAll(p.htmlDir(), 0o755); err != nil {
			return Summary{}, &pubmark.WriteError{Path: p.htmlDir(), Err: err}
		}
	}

	jobs := make(chan string)
	errc := make(chan error, p.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pmid := range jobs {
				if err := p.processOne(ctx, pmid); err != nil {
					// Record-store failure: fatal to the batch.
					select {
					case errc <- err:
					default:
					}
					return
				}
			}
		}()
	}

feed:
	for _, pmid := range pmids {
		select {
		case <-ctx.Done():
			break feed
		case err := <-errc:
			close(jobs)
			wg.Wait()
			return p.snapshot(), err
		case jobs <- pmid:
		}
	}
	close(jobs)
	wg.Wait()

	select {
	case err := <-errc:
		return p.snapshot(), err
	default:
	}

	summary := p.snapshot()
	p.cfg.Logger.Info("batch finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, nil
}

func (p *Pipeline) markdownDir() string { return filepath.Join(p.cfg.OutDir, "markdown") }
func (p *Pipeline) htmlDir() string     { return filepath.Join(p.cfg.OutDir, "html") }

func (p *Pipeline) snapshot() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// processOne runs a single PMID through all stages. The returned error is
// non-nil only for record-store failures, which abort the batch.
func (p *Pipeline) processOne(ctx context.Context, pmid string) error {
	log := p.cfg.Logger.With("pmid", pmid)

	if rec, ok := p.cfg.Records.Get(pmid); ok &&
		rec.Status == records.StatusSuccess && !p.cfg.Overwrite {
		log.Debug("already processed, skipping")
		p.recordSkip()
		return nil
	}

	// Resolve.
	pmcid, err := withRetry(ctx, p.cfg, func() (string, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return p.cfg.Resolver.Resolve(ctx, pmid)
	})
	if err != nil {
		log.Warn("resolve failed", "error", err)
		return p.recordFailure(pmid, "", records.StatusFailedResolving, err)
	}
	log = log.With("pmcid", pmcid)

	// Fetch, with browser fallback when HTTP is blocked.
	result, err := p.fetchPage(ctx, pmcid, log)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		return p.recordFailure(pmid, pmcid, records.StatusFailedFetching, err)
	}

	if p.cfg.SaveHTML {
		htmlPath := filepath.Join(p.htmlDir(), pmcid+".html")
		if err := os.WriteFile(htmlPath, result.Body, 0o644); err != nil {
			log.Warn("save html failed", "error", err)
		}
	}

	// Transform.
	markdown, err := p.cfg.Converter.Convert(result.Body)
	if err != nil {
		log.Warn("transform failed", "error", err)
		return p.recordFailure(pmid, pmcid, records.StatusFailedTransforming, err)
	}

	// Write. Temp file + rename so a cancelled run never leaves a
	// partial markdown file behind.
	outPath := filepath.Join(p.markdownDir(), pmcid+".md")
	if err := writeAtomic(outPath, []byte(markdown)); err != nil {
		log.Warn("write failed", "error", err)
		return p.recordFailure(pmid, pmcid, records.StatusFailedWriting, err)
	}

	log.Info("converted", "path", outPath, "bytes", len(markdown))
	return p.recordSuccess(pmid, pmcid)
}

func (p *Pipeline) fetchPage(ctx context.Context, pmcid string, log *slog.Logger) (*fetch.Result, error) {
	result, err := withRetry(ctx, p.cfg, func() (*fetch.Result, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.cfg.Fetcher.Fetch(ctx, pmcid)
	})
	if err == nil {
		return result, nil
	}

	var fe *pubmark.FetchError
	if p.cfg.Browser != nil && errors.As(err, &fe) && fe.StatusCode == 403 {
		log.Info("http fetch blocked, retrying via browser")
		return withRetry(ctx, p.cfg, func() (*fetch.Result, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return p.cfg.Browser.Fetch(ctx, pmcid)
		})
	}
	return nil, err
}

// withRetry retries fn on transient errors with exponential backoff.
// Terminal errors return immediately.
func withRetry[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := cfg.RetryBackoff
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !pubmark.IsTransient(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func (p *Pipeline) recordSkip() {
	p.mu.Lock()
	p.summary.Skipped++
	p.mu.Unlock()
}

func (p *Pipeline) recordSuccess(pmid, pmcid string) error {
	p.cfg.Records.Upsert(records.Record{
		PMID:      pmid,
		PMCID:     pmcid,
		Status:    records.StatusSuccess,
		Timestamp: time.Now().UTC(),
	}, p.cfg.Overwrite)

	p.mu.Lock()
	p.summary.Succeeded++
	p.mu.Unlock()

	return p.cfg.Records.Flush()
}

func (p *Pipeline) recordFailure(pmid, pmcid, status string, cause error) error {
	p.cfg.Records.Upsert(records.Record{
		PMID:      pmid,
		PMCID:     pmcid,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}, p.cfg.Overwrite)

	p.mu.Lock()
	p.summary.Failed++
	p.summary.Failures = append(p.summary.Failures, Failure{PMID: pmid, Stage: status, Err: cause})
	p.mu.Unlock()

	return p.cfg.Records.Flush()
}

// writeAtomic writes data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &pubmark.WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &pubmark.WriteError{Path: path, Err: err}
	}
	return nil
}
