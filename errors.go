// Package pubmark defines the shared error taxonomy for the PMID→markdown
// pipeline. Stage packages wrap these so the orchestrator can classify a
// failure without knowing which component produced it.
package pubmark

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a PMID has no open-access PMCID.
var ErrNotFound = errors.New("pubmark: no PMCID for this PMID")

// ErrTransient marks failures worth retrying (network, 5xx, timeouts).
var ErrTransient = errors.New("pubmark: transient failure")

// ErrInvalidPMID is returned for identifiers that are not all digits.
var ErrInvalidPMID = errors.New("pubmark: PMID must be a string of digits")

// FetchError is a terminal page-retrieval failure (HTTP status, browser
// rendering timeout). The PMCID is kept for logging.
type FetchError struct {
	PMCID      string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.PMCID, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.PMCID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a terminal HTML parse/structure failure. No partial output
// is written for a document that fails to parse.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse html: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError is a filesystem failure while writing an output artifact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
