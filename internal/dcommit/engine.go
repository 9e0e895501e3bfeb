// Package dcommit applies rename plans to disk and undoes them.
//
// Both directions are two-phase: files first move into a private staging
// directory inside the target directory, then out to their destination
// names. No file is ever renamed onto a name another batch file still
// holds, so any permutation is safe. Every rename is checked on disk
// before it is reported as done.
package dcommit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/djournal"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/internal/dwalk"
)

// Phase names the step that hit a conflict.
type Phase string

const (
	PhaseFinalize Phase = "finalize"
	PhaseRestore  Phase = "restore"
)

// Conflict is a destination name already held by a file outside the
// batch. Names are relative to the target directory.
type Conflict struct {
	Phase  Phase
	Source string
	Target string
}

// Decider answers whether Target may be overwritten. It may block, for
// example on a user prompt.
type Decider func(ctx context.Context, c Conflict) bool

// AlwaysOverwrite approves every conflict.
func AlwaysOverwrite(context.Context, Conflict) bool { return true }

// NeverOverwrite declines every conflict.
func NeverOverwrite(context.Context, Conflict) bool { return false }

// Engine commits plans and restores journals for one directory. It is not
// safe for concurrent use.
type Engine struct {
	dir         string
	journal     *djournal.Journal
	decide      Decider
	hash        dfs.HashAlgorithm
	verify      bool
	foldCase    bool
	stagePrefix string

	// rename is os.Rename outside of tests.
	rename func(oldpath, newpath string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecider sets the overwrite decision point. The default declines.
func WithDecider(d Decider) Option {
	return func(e *Engine) {
		if d != nil {
			e.decide = d
		}
	}
}

// WithHash sets the digest recorded for every staged file.
func WithHash(algo dfs.HashAlgorithm) Option {
	return func(e *Engine) { e.hash = algo }
}

// WithVerify controls whether restore checks recorded digests.
func WithVerify(verify bool) Option {
	return func(e *Engine) { e.verify = verify }
}

// WithCaseFold overrides filesystem case sensitivity detection.
func WithCaseFold(fold bool) Option {
	return func(e *Engine) { e.foldCase = fold }
}

// New returns an Engine for dir that writes to journal.
func New(dir string, journal *djournal.Journal, opts ...Option) *Engine {
	e := &Engine{
		dir:         dir,
		journal:     journal,
		decide:      NeverOverwrite,
		hash:        dfs.HashSHA256,
		verify:      true,
		foldCase:    dfs.CaseInsensitive(dir),
		stagePrefix: dwalk.StagePrefix,
		rename:      os.Rename,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Dir returns the directory the engine works in.
func (e *Engine) Dir() string { return e.dir }

// Journal returns the journal the engine writes to.
func (e *Engine) Journal() *djournal.Journal { return e.journal }

// path maps a journal-relative name onto the filesystem.
func (e *Engine) path(name string) string {
	return filepath.Join(e.dir, filepath.FromSlash(name))
}

// makeStage creates a fresh staging directory and returns its name.
func (e *Engine) makeStage() (string, error) {
	name := e.stagePrefix + uuid.NewString()
	if err := os.Mkdir(filepath.Join(e.dir, name), 0o700); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return name, nil
}

// dropStage removes the staging directory when it is empty. A non-empty
// one still holds files a restore needs and is left in place.
func (e *Engine) dropStage(name string) bool {
	if err := os.Remove(filepath.Join(e.dir, name)); err != nil {
		dsklog.Dlogger.Warnf("Staging directory %s left in place: %v", name, err)
		return false
	}
	return true
}

// move renames src to dst and confirms dst exists afterwards.
func (e *Engine) move(src, dst string) error {
	if err := e.rename(src, dst); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err != nil {
		return fmt.Errorf("rename not visible: %w", err)
	}
	return nil
}

// occupied reports whether name exists and is not the same file as src.
func occupied(name, src string) bool {
	info, err := os.Lstat(name)
	if err != nil {
		return false
	}
	if srcInfo, err := os.Lstat(src); err == nil && os.SameFile(info, srcInfo) {
		return false
	}
	return true
}

// Failure is one entry that did not make it.
type Failure struct {
	Name string
	Err  error
}

func joinFailures(fs []Failure) error {
	errs := make([]error, len(fs))
	for i, f := range fs {
		errs[i] = f.Err
	}
	return errors.Join(errs...)
}
