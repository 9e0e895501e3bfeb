// Package djournal keeps the rename journal: one immutable JSON record per
// commit, stored next to the images so an undo works after a restart.
package djournal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/peterbourgon/diskv/v3"
)

// TimeLayout renders journal timestamps. Colons are replaced so the
// value is a legal filename everywhere, and the fixed-width fraction keeps
// lexicographic order chronological.
const TimeLayout = "2006-01-02T15-04-05.000000Z"

const ext = ".json"

// ErrNoJournal is returned when the directory holds no journal.
var ErrNoJournal = errors.New("no journal found")

// ErrInvalidName is returned for journal names that are not a bare file
// name.
var ErrInvalidName = errors.New("invalid journal name")

// JournalReadError reports a journal that cannot be read or parsed.
type JournalReadError struct {
	Name string
	Err  error
}

func (e *JournalReadError) Error() string {
	return fmt.Sprintf("read journal %s: %v", e.Name, e.Err)
}

func (e *JournalReadError) Unwrap() error { return e.Err }

// JournalWriteError reports a record that could not be persisted. The
// renames it describes have already happened.
type JournalWriteError struct {
	Name string
	Err  error
}

func (e *JournalWriteError) Error() string {
	return fmt.Sprintf("write journal %s: %v", e.Name, e.Err)
}

func (e *JournalWriteError) Unwrap() error { return e.Err }

// FileRecord is what happened to one file. Final is empty when the file
// was staged but never reached its final name.
type FileRecord struct {
	Original  string `json:"original"`
	Temporary string `json:"temporary"`
	Final     string `json:"final,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

// Record is one commit.
type Record struct {
	Timestamp string            `json:"timestamp"`
	Prefix    string            `json:"prefix"`
	Hash      dfs.HashAlgorithm `json:"hash,omitempty"`
	Files     []FileRecord      `json:"files"`
}

// Journal reads and appends records in one directory.
type Journal struct {
	dir   string
	tag   string
	store *diskv.Diskv
	now   func() time.Time
	last  time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open returns the journal kept in dir. Journal files are named
// tag + timestamp + ".json".
func Open(dir, tag string, opts ...Option) (*Journal, error) {
	if tag == "" {
		tag = config.DefaultJournalTag
	}
	if strings.ContainsAny(tag, `/\`) {
		return nil, fmt.Errorf("invalid journal tag %q", tag)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	j := &Journal{
		dir: dir,
		tag: tag,
		store: diskv.New(diskv.Options{
			BasePath:     dir,
			FilePerm:     0o644,
			CacheSizeMax: 256 * 1024,
		}),
		now: time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Dir returns the directory holding the journal.
func (j *Journal) Dir() string { return j.dir }

// Append stamps rec and writes it under a new name. Names only ever grow:
// when the timestamp is not after the previous one, or a file of that
// name already exists, it is pushed forward one microsecond. Existing
// files are never overwritten.
func (j *Journal) Append(rec *Record) (string, error) {
	t := j.now().UTC().Truncate(time.Microsecond)
	if !j.last.IsZero() && !t.After(j.last) {
		t = j.last.Add(time.Microsecond)
	}

	name := j.nameFor(t)
	for j.store.Has(name) {
		t = t.Add(time.Microsecond)
		name = j.nameFor(t)
	}

	rec.Timestamp = t.Format(TimeLayout)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return name, &JournalWriteError{Name: name, Err: err}
	}
	if err := j.store.Write(name, data); err != nil {
		return name, &JournalWriteError{Name: name, Err: err}
	}
	j.last = t

	dsklog.Dlogger.Infof("Journal %s written (%d files)", name, len(rec.Files))
	return name, nil
}

func (j *Journal) nameFor(t time.Time) string {
	return j.tag + t.Format(TimeLayout) + ext
}

// List returns the journal names in chronological order.
func (j *Journal) List() ([]string, error) {
	// KeysPrefix walks below the directory too; subdirectory keys carry a
	// separator and are dropped.
	done := make(chan struct{})
	defer close(done)

	var names []string
	for key := range j.store.KeysPrefix(j.tag, done) {
		if strings.ContainsAny(key, `/\`) || !strings.HasSuffix(key, ext) {
			continue
		}
		names = append(names, key)
	}
	slices.Sort(names)
	return names, nil
}

// Latest returns the newest record and its name.
func (j *Journal) Latest() (*Record, string, error) {
	names, err := j.List()
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", ErrNoJournal
	}
	name := names[len(names)-1]
	rec, err := j.Read(name)
	return rec, name, err
}

// Read parses the journal called name.
func (j *Journal) Read(name string) (*Record, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, &JournalReadError{Name: name, Err: ErrInvalidName}
	}
	if !j.store.Has(name) {
		return nil, &JournalReadError{Name: name, Err: os.ErrNotExist}
	}
	data, err := j.store.Read(name)
	if err != nil {
		return nil, &JournalReadError{Name: name, Err: err}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &JournalReadError{Name: name, Err: err}
	}
	if err := rec.validate(); err != nil {
		return nil, &JournalReadError{Name: name, Err: err}
	}
	return &rec, nil
}

// validate rejects entries that would make restore rename outside the
// directory.
func (r *Record) validate() error {
	for i, f := range r.Files {
		if f.Original == "" || f.Temporary == "" {
			return fmt.Errorf("file %d: original and temporary are required", i)
		}
		for _, p := range []string{f.Original, f.Temporary, f.Final} {
			if p != "" && !filepath.IsLocal(p) {
				return fmt.Errorf("file %d: %q leaves the directory", i, p)
			}
		}
		if filepath.Base(f.Original) != f.Original {
			return fmt.Errorf("file %d: original %q is not a bare name", i, f.Original)
		}
	}
	return nil
}

// Summary describes a journal for listings.
type Summary struct {
	Name      string
	Timestamp string
	Prefix    string
	Files     int
	Finalized int
	Err       error
}

// Summaries reads every journal, newest first. Unreadable journals are
// included with Err set.
func (j *Journal) Summaries(ctx context.Context) ([]Summary, error) {
	names, err := j.List()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(names))
	for _, name := range slices.Backward(names) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s := Summary{Name: name}
		rec, err := j.Read(name)
		if err != nil {
			s.Err = err
			out = append(out, s)
			continue
		}
		s.Timestamp, s.Prefix, s.Files = rec.Timestamp, rec.Prefix, len(rec.Files)
		for _, f := range rec.Files {
			if f.Final != "" {
				s.Finalized++
			}
		}
		out = append(out, s)
	}
	return out, nil
}
