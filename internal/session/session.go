// Package session owns one directory being arranged. All mutations of the
// entry set and of the files on disk go through a Session, one at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dcommit"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/djournal"
	"github.com/jdefrancesco/dskOrder/internal/dplan"
	"github.com/jdefrancesco/dskOrder/internal/dset"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/internal/dwalk"
)

var (
	// ErrBusy is returned when a commit or restore is already running.
	ErrBusy = errors.New("a commit or restore is in progress")
	// ErrScanning is returned by commit and restore while entries are
	// still being merged in.
	ErrScanning = errors.New("directory scan in progress")
)

// Session is the single writer for one directory.
type Session struct {
	mu      sync.Mutex
	cfg     config.Config
	scheme  dplan.Scheme
	set     *dset.EntrySet
	journal *djournal.Journal
	engine  *dcommit.Engine

	busy     atomic.Bool
	scanning atomic.Bool
	loaded   atomic.Int64
	total    atomic.Int64

	decider  dcommit.Decider
	progress func(loaded, total int)
}

// Option configures a Session.
type Option func(*Session)

// WithDecider sets who answers overwrite conflicts.
func WithDecider(d dcommit.Decider) Option {
	return func(s *Session) { s.decider = d }
}

// WithProgress is called as scanned files are merged.
func WithProgress(fn func(loaded, total int)) Option {
	return func(s *Session) { s.progress = fn }
}

func newSession(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:    cfg,
		scheme: dplan.SchemeFromConfig(cfg),
		set:    dset.New(cfg.Dir),
	}
	for _, o := range opts {
		o(s)
	}
	if s.decider == nil {
		s.decider = deciderFor(cfg.Overwrite)
	}

	j, err := djournal.Open(cfg.Dir, cfg.JournalTag)
	if err != nil {
		return nil, &dwalk.ScanError{Dir: cfg.Dir, Err: err}
	}
	s.journal = j
	s.engine = dcommit.New(cfg.Dir, j,
		dcommit.WithDecider(s.decider),
		dcommit.WithHash(cfg.HashAlgorithm),
		dcommit.WithVerify(cfg.Verify),
	)
	return s, nil
}

// deciderFor maps a non-interactive policy onto a decider. Ask has no
// one to ask here and declines.
func deciderFor(p config.OverwritePolicy) dcommit.Decider {
	if p == config.OverwriteAlways {
		return dcommit.AlwaysOverwrite
	}
	return dcommit.NeverOverwrite
}

// Open scans cfg.Dir and returns a ready session.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	s, err := newSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.rescan(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start returns a session whose entries arrive in the background. The
// channel yields the scan result once and is then closed. Entries can be
// arranged as soon as they are merged.
func Start(ctx context.Context, cfg config.Config, opts ...Option) (*Session, <-chan error, error) {
	s, err := newSession(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan error, 1)
	dFiles := make(chan *dfs.Dfile)
	walker := dwalk.NewDWalker(cfg.Dir, dFiles, cfg)
	walker.OnProgress(func(loaded, total int) {
		s.loaded.Store(int64(loaded))
		s.total.Store(int64(total))
		if s.progress != nil {
			s.progress(loaded, total)
		}
	})

	s.scanning.Store(true)
	if err := walker.Run(ctx); err != nil {
		s.scanning.Store(false)
		done <- err
		close(done)
		return s, done, nil
	}

	go func() {
		defer close(done)
		var names []string
		for f := range dFiles {
			s.mu.Lock()
			s.set.Add(f)
			s.mu.Unlock()
			names = append(names, f.BaseName())
		}

		s.mu.Lock()
		s.set.SetClean(names)
		s.mu.Unlock()
		s.scanning.Store(false)

		dsklog.Dlogger.Infof("Merged %d entries from %s", len(names), cfg.Dir)
		done <- ctx.Err()
	}()
	return s, done, nil
}

// rescan replaces the set with a fresh scan.
func (s *Session) rescan(ctx context.Context) error {
	set, err := dset.Scan(ctx, s.cfg.Dir, s.cfg)
	if err != nil {
		return err
	}
	s.set = set
	s.loaded.Store(int64(set.Len()))
	s.total.Store(int64(set.Len()))
	return nil
}

// Rescan reads the directory again. Unsaved reordering is lost.
func (s *Session) Rescan(ctx context.Context) error {
	if s.scanning.Load() {
		return ErrScanning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rescan(ctx)
}

// Dir returns the directory being arranged.
func (s *Session) Dir() string { return s.cfg.Dir }

// Journal returns the directory's journal.
func (s *Session) Journal() *djournal.Journal { return s.journal }

// Scanning reports whether a background scan is still merging entries.
func (s *Session) Scanning() bool { return s.scanning.Load() }

// Progress returns how many scanned files were loaded so far.
func (s *Session) Progress() (loaded, total int) {
	return int(s.loaded.Load()), int(s.total.Load())
}

// Entries returns the entries in their current order.
func (s *Session) Entries() []dset.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Entries()
}

// Dirty reports whether the order differs from what is on disk.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Dirty()
}

// Stranded returns the entries a commit left in a staging directory.
func (s *Session) Stranded() []dset.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Stranded()
}

// Move relocates the selected block before the entry before.
func (s *Session) Move(selected dset.Selection, before dset.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Move(selected, before)
}

// Arrange puts ids first, in order.
func (s *Session) Arrange(ids []dset.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Arrange(ids)
}

// ArrangeNames is Arrange by current file name.
func (s *Session) ArrangeNames(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]dset.ID, len(names))
	for i, n := range names {
		e, ok := s.set.ByName(n)
		if !ok {
			return fmt.Errorf("%w: %s", dset.ErrUnknownEntry, n)
		}
		ids[i] = e.ID
	}
	return s.set.Arrange(ids)
}

// Remove drops entries from the session without touching disk.
func (s *Session) Remove(ids dset.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Remove(ids)
}

// Delete removes the files from disk, then from the set. Entries whose
// file could not be removed stay.
func (s *Session) Delete(ids dset.Selection) error {
	if s.busy.Load() {
		return ErrBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range ids {
		if _, ok := s.set.Get(id); !ok {
			return fmt.Errorf("%w: %s", dset.ErrUnknownEntry, id)
		}
	}

	var errs []error
	removed := dset.Selection{}
	for id := range ids {
		e, _ := s.set.Get(id)
		path := filepath.Join(s.cfg.Dir, filepath.FromSlash(e.CurrentName))
		if err := os.Remove(path); err != nil {
			dsklog.Dlogger.Errorf("Failed to delete file %s: %v", path, err)
			errs = append(errs, err)
			continue
		}
		dsklog.Dlogger.Infof("Successfully deleted file: %s", path)
		removed[id] = struct{}{}
	}
	if err := s.set.Remove(removed); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Scheme returns the naming scheme used for plans.
func (s *Session) Scheme() dplan.Scheme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheme
}

// SetPrefix changes the prefix of future plans.
func (s *Session) SetPrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.scheme
	next.Prefix = prefix
	if _, err := next.Normalize(); err != nil {
		return err
	}
	s.scheme = next
	return nil
}

// Plan previews the renames for the current order.
func (s *Session) Plan() (*dplan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dplan.Build(s.set, s.scheme)
}

// guard admits one commit or restore at a time, and none during a scan.
func (s *Session) guard() (func(), error) {
	if s.scanning.Load() {
		return nil, ErrScanning
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// Commit renames the files to match the current order.
func (s *Session) Commit(ctx context.Context) (*dcommit.Report, error) {
	release, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	plan, err := dplan.Build(s.set, s.scheme)
	if err != nil {
		return nil, err
	}
	return s.engine.Commit(ctx, s.set, plan)
}

// CommitPlan commits a plan previewed earlier. It fails with
// dcommit.ErrStalePlan if the order changed since.
func (s *Session) CommitPlan(ctx context.Context, plan *dplan.Plan) (*dcommit.Report, error) {
	release, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Commit(ctx, s.set, plan)
}

// Restore undoes the newest journal and rescans the directory.
func (s *Session) Restore(ctx context.Context) (*dcommit.RestoreReport, error) {
	return s.restore(ctx, func(ctx context.Context) (*dcommit.RestoreReport, error) {
		return s.engine.RestoreLatest(ctx)
	})
}

// RestoreJournal undoes the journal called name and rescans.
func (s *Session) RestoreJournal(ctx context.Context, name string) (*dcommit.RestoreReport, error) {
	return s.restore(ctx, func(ctx context.Context) (*dcommit.RestoreReport, error) {
		return s.engine.RestoreJournal(ctx, name)
	})
}

func (s *Session) restore(ctx context.Context, run func(context.Context) (*dcommit.RestoreReport, error)) (*dcommit.RestoreReport, error) {
	release, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	report, err := run(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.rescan(context.WithoutCancel(ctx)); err != nil {
		return report, err
	}
	return report, nil
}
