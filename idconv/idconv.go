// Package idconv resolves PMIDs to PMCIDs via the NCBI ID Converter API.
//
// Articles without an open-access full-text entry have no PMCID; that is a
// terminal outcome for the PMID, not an error in the service.
package idconv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumeris/pubmark"
)

// DefaultBaseURL is the NCBI ID Converter endpoint.
const DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"

// Config configures the resolver.
type Config struct {
	// BaseURL of the ID converter service. Default: DefaultBaseURL.
	BaseURL string
	// Email identifies the caller to NCBI. Required for polite access.
	Email string
	// Tool is the NCBI tool name sent with each request.
	Tool string
	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration
	// BatchSize is the max PMIDs per request. NCBI caps at 200. Default: 100.
	BatchSize int
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Tool == "" {
		c.Tool = "pubmark"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BatchSize <= 0 || c.BatchSize > 200 {
		c.BatchSize = 100
	}
}

// Resolver queries the ID converter service.
type Resolver struct {
	client *http.Client
	config Config
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// record is one entry in the converter's JSON response.
type record struct {
	PMID   string `json:"pmid"`
	PMCID  string `json:"pmcid"`
	Status string `json:"status"`
}

type response struct {
	Records []record `json:"records"`
}

// ValidPMID reports whether s is a non-empty string of digits.
func ValidPMID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolve looks up a single PMID and returns its PMCID.
// Returns pubmark.ErrNotFound when the article has no open-access entry.
func (r *Resolver) Resolve(ctx context.Context, pmid string) (string, error) {
	m, err := r.ResolveBatch(ctx, []string{pmid})
	if err != nil {
		return "", err
	}
	pmcid, ok := m[pmid]
	if !ok || pmcid == "" {
		return "", fmt.Errorf("pmid %s: %w", pmid, pubmark.ErrNotFound)
	}
	return pmcid, nil
}

// ResolveBatch looks up many PMIDs in BatchSize chunks. The result maps each
// input PMID to its PMCID; PMIDs without one are absent from the map.
func (r *Resolver) ResolveBatch(ctx context.Context, pmids []string) (map[string]string, error) {
	for _, pmid := range pmids {
		if !ValidPMID(pmid) {
			return nil, fmt.Errorf("%w: %q", pubmark.ErrInvalidPMID, pmid)
		}
	}

	results := make(map[string]string, len(pmids))
	for i := 0; i < len(pmids); i += r.config.BatchSize {
		end := i + r.config.BatchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		if err := r.resolveChunk(ctx, pmids[i:end], results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *Resolver) resolveChunk(ctx context.Context, pmids []string, results map[string]string) error {
	q := url.Values{}
	q.Set("tool", r.config.Tool)
	q.Set("email", r.config.Email)
	q.Set("ids", strings.Join(pmids, ","))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("idconv: new request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return pubmark.Transient(fmt.Errorf("idconv: http get: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return pubmark.Transient(fmt.Errorf("idconv: http %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("idconv: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return pubmark.Transient(fmt.Errorf("idconv: read body: %w", err))
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("idconv: decode response: %w", err)
	}

	for _, rec := range parsed.Records {
		if rec.PMID != "" && rec.PMCID != "" {
			results[rec.PMID] = rec.PMCID
		}
	}
	return nil
}
