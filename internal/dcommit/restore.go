package dcommit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/djournal"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/pkg/utils"
)

// RestoreReport is the outcome of a restore.
type RestoreReport struct {
	Journal        string
	Total          int
	Restored       int
	AlreadyInPlace int
	Failures       []Failure
}

// OK reports whether every entry is back under its original name.
func (r *RestoreReport) OK() bool { return len(r.Failures) == 0 }

// Err joins the per-entry failures, nil when there were none.
func (r *RestoreReport) Err() error { return joinFailures(r.Failures) }

// Summary is a one line description for the user.
func (r *RestoreReport) Summary() string {
	msg := fmt.Sprintf("Restored %d of %d files from %s", r.Restored, r.Total, r.Journal)
	if r.AlreadyInPlace > 0 {
		msg += fmt.Sprintf(", %d already in place", r.AlreadyInPlace)
	}
	if n := len(r.Failures); n > 0 {
		msg += fmt.Sprintf(", %d skipped", n)
	}
	return msg
}

// RestoreLatest undoes the newest journal. Journal lookup errors are
// returned as is and nothing is renamed.
func (e *Engine) RestoreLatest(ctx context.Context) (*RestoreReport, error) {
	rec, name, err := e.journal.Latest()
	if err != nil {
		return nil, err
	}
	return e.restore(ctx, rec, name)
}

// RestoreJournal undoes the journal called name.
func (e *Engine) RestoreJournal(ctx context.Context, name string) (*RestoreReport, error) {
	rec, err := e.journal.Read(name)
	if err != nil {
		return nil, err
	}
	return e.restore(ctx, rec, name)
}

// Restore puts the files of rec back under their original names.
func (e *Engine) Restore(ctx context.Context, rec *djournal.Record) (*RestoreReport, error) {
	return e.restore(ctx, rec, rec.Timestamp)
}

type restoreEntry struct {
	file   djournal.FileRecord
	source string
	temp   string
}

// restore is best effort per entry and never edits the journal. Sources
// first move into a staging directory so originals that overlap the
// finals of other entries are free when the second phase runs.
func (e *Engine) restore(ctx context.Context, rec *djournal.Record, name string) (*RestoreReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	report := &RestoreReport{Journal: name, Total: len(rec.Files)}
	if len(rec.Files) == 0 {
		return report, nil
	}

	algo := dfs.HashNone
	if e.verify && rec.Hash != "" {
		if a, err := dfs.ParseHashAlgorithm(string(rec.Hash)); err == nil {
			algo = a
		} else {
			dsklog.Dlogger.Warnf("Journal %s uses unknown hash %q; contents not verified", name, rec.Hash)
		}
	}

	stage, err := e.makeStage()
	if err != nil {
		return nil, err
	}
	dsklog.Dlogger.Infof("Restoring %d entries from %s using %s", len(rec.Files), name, stage)

	width := utils.Digits(len(rec.Files))
	pending := make([]restoreEntry, 0, len(rec.Files))
	// Batch files that stay where they are. Their names are never
	// overwritten by another entry.
	var stuck []string
	for i, f := range rec.Files {
		source := f.Final
		if source == "" {
			source = f.Temporary
		}
		fail := func(err error) {
			report.Failures = append(report.Failures, Failure{
				Name: f.Original,
				Err:  &RestoreRenameError{Source: source, Target: f.Original, Err: err},
			})
		}

		srcPath := e.path(source)
		if _, err := os.Lstat(srcPath); err != nil {
			dsklog.Dlogger.Infof("Skipping %s: %s is missing", f.Original, source)
			fail(fmt.Errorf("%w: %v", ErrSourceMissing, err))
			continue
		}
		if algo != dfs.HashNone && f.Digest != "" {
			sum, err := dfs.HashFile(srcPath, algo)
			if err != nil {
				stuck = append(stuck, source)
				fail(err)
				continue
			}
			if sum != f.Digest {
				dsklog.Dlogger.Infof("Skipping %s: %s has different content", f.Original, source)
				stuck = append(stuck, source)
				fail(ErrDigestMismatch)
				continue
			}
		}
		if source == f.Original {
			report.AlreadyInPlace++
			continue
		}

		temp := path.Join(stage, utils.PadSeq(i+1, width)+dfs.Ext(f.Original))
		if err := e.move(srcPath, e.path(temp)); err != nil {
			dsklog.Dlogger.Errorf("Restore stage %s failed: %v", source, err)
			stuck = append(stuck, source)
			fail(err)
			continue
		}
		pending = append(pending, restoreEntry{file: f, source: source, temp: temp})
	}

	for _, p := range pending {
		tempPath, target := e.path(p.temp), e.path(p.file.Original)

		var err error
		if occupied(target, tempPath) {
			switch {
			case e.heldByStuck(p.file.Original, stuck):
				dsklog.Dlogger.Errorf("Refusing to overwrite %s: it is a batch file that was not restored", p.file.Original)
				err = ErrOccupied
			case !e.decide(ctx, Conflict{Phase: PhaseRestore, Source: p.source, Target: p.file.Original}):
				dsklog.Dlogger.Infof("Overwrite of %s declined", p.file.Original)
				err = &OverwriteDeclined{Phase: PhaseRestore, Source: p.source, Target: p.file.Original}
			default:
				dsklog.Dlogger.Warnf("Overwriting %s during restore", p.file.Original)
			}
		}
		if err == nil {
			if err = e.move(tempPath, target); err == nil {
				dsklog.Dlogger.Debugf("Restored %s → %s", p.source, p.file.Original)
				report.Restored++
				continue
			}
			dsklog.Dlogger.Errorf("Restore %s failed: %v", p.source, err)
		}

		// Put the file back where the journal says it is so a later
		// restore can find it.
		if backErr := e.move(tempPath, e.path(p.source)); backErr != nil {
			dsklog.Dlogger.Errorf("Could not return %s to %s: %v; it remains in %s", p.temp, p.source, backErr, stage)
		} else {
			stuck = append(stuck, p.source)
		}
		if _, ok := err.(*OverwriteDeclined); ok {
			report.Failures = append(report.Failures, Failure{Name: p.file.Original, Err: err})
		} else {
			report.Failures = append(report.Failures, Failure{
				Name: p.file.Original,
				Err:  &RestoreRenameError{Source: p.source, Target: p.file.Original, Err: err},
			})
		}
	}

	e.dropStage(stage)
	e.dropCommitStages(rec)
	dsklog.Dlogger.Info(report.Summary())
	return report, nil
}

// dropCommitStages removes staging directories of the undone commit that
// restore emptied.
func (e *Engine) dropCommitStages(rec *djournal.Record) {
	names := make([]string, len(rec.Files))
	for i, f := range rec.Files {
		names[i] = f.Temporary
	}
	e.dropEmptiedStages(names)
}

// dropEmptiedStages removes the staging directories holding names once
// they are empty.
func (e *Engine) dropEmptiedStages(names []string) {
	seen := make(map[string]bool)
	for _, name := range names {
		dir := path.Dir(filepath.ToSlash(name))
		if dir == "." || seen[dir] || !strings.HasPrefix(dir, e.stagePrefix) {
			continue
		}
		seen[dir] = true
		if err := os.Remove(e.path(dir)); err == nil {
			dsklog.Dlogger.Debugf("Removed empty staging directory %s", dir)
		}
	}
}
