// Package records tracks which PMIDs have been processed in a flat CSV
// file, so batch runs are idempotent and resumable.
//
// The record file is the run's audit trail: write failures on it are
// surfaced as fatal rather than swallowed, since continuing without it
// risks silent re-processing or silent omission.
package records

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumeris/pubmark"
)

// Status values for a processing record.
const (
	StatusSuccess            = "success"
	StatusSkipped            = "skipped"
	StatusFailedResolving    = "failed-at-resolving"
	StatusFailedFetching     = "failed-at-fetching"
	StatusFailedTransforming = "failed-at-transforming"
	StatusFailedWriting      = "failed-at-writing"
)

var header = []string{"pmid", "pmcid", "status", "timestamp"}

// Record is one row of the processing record.
type Record struct {
	PMID      string
	PMCID     string // empty when resolution failed
	Status    string
	Timestamp time.Time
}

// Store is a CSV-backed record store. Writes are serialized so concurrent
// pipeline workers never lose updates.
type Store struct {
	path string

	mu    sync.Mutex
	rows  map[string]Record // keyed by PMID
	order []string          // PMIDs in first-seen order, for stable output
}

// Open loads the record file at path, creating an empty store when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		rows: make(map[string]Record),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	lines, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("records: read %s: %w", path, err)
	}

	for i, line := range lines {
		if i == 0 && line[0] == header[0] {
			continue // header row
		}
		ts, err := time.Parse(time.RFC3339, line[3])
		if err != nil {
			// The record file is the audit trail; a mangled timestamp is
			// worth a warning, but the row itself is still usable.
			slog.Warn("records: unparseable timestamp, keeping row",
				"path", path, "pmid", line[0], "timestamp", line[3])
		}
		rec := Record{PMID: line[0], PMCID: line[1], Status: line[2], Timestamp: ts}
		if _, seen := s.rows[rec.PMID]; !seen {
			s.order = append(s.order, rec.PMID)
		}
		s.rows[rec.PMID] = rec
	}
	return s, nil
}

// Get returns the record for a PMID, if any.
func (s *Store) Get(pmid string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[pmid]
	return rec, ok
}

// Upsert inserts or updates the row for rec.PMID. A PMID already marked
// success is left untouched unless overwrite is set.
func (s *Store) Upsert(rec Record, overwrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[rec.PMID]; ok {
		if existing.Status == StatusSuccess && !overwrite {
			return
		}
	} else {
		s.order = append(s.order, rec.PMID)
	}
	s.rows[rec.PMID] = rec
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Flush writes the record file atomically (temp file + rename).
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &pubmark.WriteError{Path: s.path, Err: err}
	}

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		f.Close()
		return &pubmark.WriteError{Path: s.path, Err: err}
	}
	for _, pmid := range s.order {
		rec := s.rows[pmid]
		row := []string{rec.PMID, rec.PMCID, rec.Status, rec.Timestamp.UTC().Format(time.RFC3339)}
		if err := w.Write(row); err != nil {
			f.Close()
			return &pubmark.WriteError{Path: s.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return &pubmark.WriteError{Path: s.path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return &pubmark.WriteError{Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &pubmark.WriteError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &pubmark.WriteError{Path: s.path, Err: err}
	}
	return nil
}

var (
	mdPMIDRe  = regexp.MustCompile(`\*\*PMID:\*\*\s*(\d+)`)
	mdPMCIDRe = regexp.MustCompile(`\*\*PMCID:\*\*\s*(PMC\d+)`)
)

// Rescan rebuilds records from the markdown files in dir, reading the
// PMID/PMCID metadata lines each document carries. Existing rows are
// reconciled: a markdown file on disk marks its PMID success.
func (s *Store) Rescan(dir string, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("records: rescan %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	found := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return found, fmt.Errorf("records: rescan read %s: %w", name, err)
		}
		pmid := submatch(mdPMIDRe, data)
		pmcid := submatch(mdPMCIDRe, data)
		if pmid == "" {
			continue
		}
		s.Upsert(Record{
			PMID:      pmid,
			PMCID:     pmcid,
			Status:    StatusSuccess,
			Timestamp: now,
		}, true)
		found++
	}
	return found, nil
}

func submatch(re *regexp.Regexp, data []byte) string {
	m := re.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return string(m[1])
}
