package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumeris/pubmark"
)

func TestFetch_Success(t *testing.T) {
	// WHAT: Basic article GET returns body and hash.
	// WHY: Core fetcher functionality.
	body := "<html><body>article</body></html>"
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL + "/"})
	result, err := f.Fetch(context.Background(), "PMC1884285")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/PMC1884285/" {
		t.Errorf("path: got %q", gotPath)
	}
	if string(result.Body) != body {
		t.Errorf("body: got %q", string(result.Body))
	}
	h := sha256.Sum256([]byte(body))
	if result.Hash != fmt.Sprintf("%x", h) {
		t.Errorf("hash: got %q", result.Hash)
	}
}

func TestFetch_HTTPErrorIsTerminal(t *testing.T) {
	// WHAT: Non-2xx returns *pubmark.FetchError, not a transient error.
	// WHY: A 404/403 for a PMCID will not heal on retry; the orchestrator
	// must record it and move on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL + "/"})
	_, err := f.Fetch(context.Background(), "PMC123")
	var fe *pubmark.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if fe.StatusCode != 404 {
		t.Errorf("status: got %d", fe.StatusCode)
	}
	if pubmark.IsTransient(err) {
		t.Error("http status failure must not be transient")
	}
}

func TestFetch_ConnectionErrorIsTransient(t *testing.T) {
	// WHAT: A refused connection is classified transient.
	// WHY: Network blips are the one failure class worth retrying.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately: connection refused

	f := New(Config{BaseURL: srv.URL + "/"})
	_, err := f.Fetch(context.Background(), "PMC123")
	if err == nil {
		t.Fatal("want error")
	}
	if !pubmark.IsTransient(err) {
		t.Errorf("connection failure should be transient, got %v", err)
	}
}

func TestFetch_RejectsBadPMCID(t *testing.T) {
	// WHAT: Identifiers not matching PMC\d+ are rejected locally.
	// WHY: Guards against path injection into the article URL.
	f := New(Config{})
	for _, bad := range []string{"", "1884285", "PMC", "PMC12/../../etc"} {
		if _, err := f.Fetch(context.Background(), bad); err == nil {
			t.Errorf("pmcid %q: want error", bad)
		}
	}
}

func TestArticleURL(t *testing.T) {
	// WHAT: Canonical URL construction.
	got := ArticleURL("", "PMC1884285")
	want := "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1884285/"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
