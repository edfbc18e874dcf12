package idconv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumeris/pubmark"
)

func TestResolve_Success(t *testing.T) {
	// WHAT: A PMID with an open-access entry resolves to its PMCID.
	// WHY: Core resolver functionality.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format param: got %q", got)
		}
		if got := r.URL.Query().Get("email"); got != "dev@example.org" {
			t.Errorf("email param: got %q", got)
		}
		w.Write([]byte(`{"records":[{"pmid":"12895196","pmcid":"PMC1884285"}]}`))
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL, Email: "dev@example.org"})
	pmcid, err := r.Resolve(context.Background(), "12895196")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pmcid != "PMC1884285" {
		t.Errorf("pmcid: got %q", pmcid)
	}
}

func TestResolve_NoPMCID(t *testing.T) {
	// WHAT: A record without a pmcid field yields ErrNotFound.
	// WHY: Articles without open-access full text are a terminal outcome,
	// not a retryable failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"pmid":"99999999","status":"error"}]}`))
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL})
	_, err := r.Resolve(context.Background(), "99999999")
	if !errors.Is(err, pubmark.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if pubmark.IsTransient(err) {
		t.Error("not-found must not be transient")
	}
}

func TestResolve_InvalidPMID(t *testing.T) {
	// WHAT: Non-numeric PMIDs are rejected before any network call.
	// WHY: Malformed input is terminal; hitting the API with it wastes quota.
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL})
	_, err := r.Resolve(context.Background(), "12a95")
	if !errors.Is(err, pubmark.ErrInvalidPMID) {
		t.Fatalf("want ErrInvalidPMID, got %v", err)
	}
	if called {
		t.Error("server should not be contacted for invalid input")
	}
}

func TestResolve_ServerErrorIsTransient(t *testing.T) {
	// WHAT: A 5xx from the converter is classified transient.
	// WHY: The orchestrator retries transient failures with backoff.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL})
	_, err := r.Resolve(context.Background(), "12895196")
	if err == nil {
		t.Fatal("want error")
	}
	if !pubmark.IsTransient(err) {
		t.Errorf("5xx should be transient, got %v", err)
	}
}

func TestResolveBatch_Chunking(t *testing.T) {
	// WHAT: Batches larger than BatchSize are split across requests.
	// WHY: NCBI caps ids per request; the split must be invisible to callers.
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"records":[{"pmid":"1","pmcid":"PMC1"},{"pmid":"2","pmcid":"PMC2"}]}`))
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL, BatchSize: 2})
	m, err := r.ResolveBatch(context.Background(), []string{"1", "2", "3", "4", "5"})
	if err != nil {
		t.Fatalf("resolve batch: %v", err)
	}
	if requests != 3 {
		t.Errorf("requests: got %d, want 3", requests)
	}
	if m["1"] != "PMC1" {
		t.Errorf("pmcid for 1: got %q", m["1"])
	}
}
