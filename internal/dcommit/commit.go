package dcommit

import (
	"context"
	"fmt"
	"path"

	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/djournal"
	"github.com/jdefrancesco/dskOrder/internal/dplan"
	"github.com/jdefrancesco/dskOrder/internal/dset"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/pkg/utils"
)

// Report is the outcome of a commit.
type Report struct {
	// Journal is the name of the record written, empty if none was.
	Journal string
	// StageDir is set when the staging directory had to be left behind.
	StageDir  string
	Total     int
	Unchanged int
	Staged    int
	Finalized int
	Failures  []Failure
}

// OK reports whether every entry reached its final name.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Err joins the per-entry failures, nil when there were none.
func (r *Report) Err() error { return joinFailures(r.Failures) }

// Summary is a one line description for the user.
func (r *Report) Summary() string {
	if r.OK() {
		return fmt.Sprintf("File renames complete: %d renamed, %d already in place", r.Finalized, r.Unchanged)
	}
	return fmt.Sprintf("File renames finished with %d failures: %d of %d staged, %d renamed",
		len(r.Failures), r.Staged, r.Total-r.Unchanged, r.Finalized)
}

type stagedEntry struct {
	item dplan.Item
	// original is the bare name journaled for the entry. It differs from
	// item.Current when an earlier commit left the file in a staging
	// directory.
	original string
	temp     string
	digest   string
	final    bool
}

// Commit renames every entry of set to its planned name.
//
// ctx is checked once before anything is renamed. After that the batch
// runs to completion; ctx is only passed on to the decider. Per-entry
// failures are collected in the report. The journal describes every entry
// that was staged, whether or not it reached its final name. When the
// journal cannot be written the report is returned together with a
// *djournal.JournalWriteError.
func (e *Engine) Commit(ctx context.Context, set *dset.EntrySet, plan *dplan.Plan) (*Report, error) {
	if !plan.Matches(set) {
		return nil, ErrStalePlan
	}
	if !plan.Differs() {
		return nil, ErrNoChanges
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	stage, err := e.makeStage()
	if err != nil {
		return nil, err
	}
	dsklog.Dlogger.Infof("Commit of %d entries in %s using %s", plan.Len(), e.dir, stage)

	report := &Report{Total: plan.Len()}
	staged := e.stageAll(set, plan, stage, report)
	e.finalizeAll(ctx, set, staged, report)

	if !e.dropStage(stage) {
		report.StageDir = stage
	}
	// Files picked up from an earlier commit's staging directory may have
	// emptied it.
	var earlier []string
	for _, s := range staged {
		earlier = append(earlier, s.item.Current)
	}
	e.dropEmptiedStages(earlier)
	set.MarkClean()

	if len(staged) == 0 {
		// Nothing moved. A record would hide the previous commit from
		// restore.
		dsklog.Dlogger.Warn("No entry could be staged; journal not written")
		return report, nil
	}

	rec := &djournal.Record{Prefix: plan.Prefix, Files: make([]djournal.FileRecord, len(staged))}
	if e.hash != dfs.HashNone {
		rec.Hash = e.hash
	}
	for i, s := range staged {
		rec.Files[i] = djournal.FileRecord{Original: s.original, Temporary: s.temp, Digest: s.digest}
		if s.final {
			rec.Files[i].Final = s.item.Final
		}
	}
	name, err := e.journal.Append(rec)
	if err != nil {
		dsklog.Dlogger.Errorf("Journal write failed: %v", err)
		return report, err
	}
	report.Journal = name
	dsklog.Dlogger.Info(report.Summary())
	return report, nil
}

// stageAll moves every changing entry into the staging directory in plan
// order.
func (e *Engine) stageAll(set *dset.EntrySet, plan *dplan.Plan, stage string, report *Report) []stagedEntry {
	staged := make([]stagedEntry, 0, plan.Len())
	for _, it := range plan.Items {
		if !it.Changed() {
			report.Unchanged++
			continue
		}

		// Journal names always use forward slashes.
		temp := path.Join(stage, utils.PadSeq(it.Seq, plan.Width)+it.Ext)
		src := e.path(it.Current)

		original := it.Current
		if entry, ok := set.Get(it.ID); ok && entry.Origin != "" {
			original = entry.Origin
		}

		digest, err := dfs.HashFile(src, e.hash)
		if err != nil {
			dsklog.Dlogger.Warnf("Could not fingerprint %s: %v", it.Current, err)
			digest = ""
		}

		if err := e.move(src, e.path(temp)); err != nil {
			dsklog.Dlogger.Errorf("Stage %s failed: %v", it.Current, err)
			report.Failures = append(report.Failures, Failure{
				Name: it.Current,
				Err:  &StageRenameError{Name: it.Current, Temp: temp, Err: err},
			})
			continue
		}
		dsklog.Dlogger.Debugf("Staged %s → %s", it.Current, temp)

		if err := set.SetCurrentName(it.ID, temp); err != nil {
			dsklog.Dlogger.Errorf("Staged entry vanished from set: %v", err)
		}
		staged = append(staged, stagedEntry{item: it, original: original, temp: temp, digest: digest})
		report.Staged++
	}
	return staged
}

// finalizeAll moves staged entries to their final names in plan order.
func (e *Engine) finalizeAll(ctx context.Context, set *dset.EntrySet, staged []stagedEntry, report *Report) {
	// Entries that failed staging still hold their old names.
	var stuck []string
	for _, f := range report.Failures {
		stuck = append(stuck, f.Name)
	}

	for i := range staged {
		s := &staged[i]
		tempPath, finalPath := e.path(s.temp), e.path(s.item.Final)

		if occupied(finalPath, tempPath) {
			if e.heldByStuck(s.item.Final, stuck) {
				dsklog.Dlogger.Errorf("Refusing to overwrite %s: it is an unstaged batch file", s.item.Final)
				report.Failures = append(report.Failures, Failure{
					Name: s.item.Current,
					Err:  &FinalizeRenameError{Temp: s.temp, Final: s.item.Final, Err: ErrOccupied},
				})
				continue
			}

			c := Conflict{Phase: PhaseFinalize, Source: s.temp, Target: s.item.Final}
			if !e.decide(ctx, c) {
				dsklog.Dlogger.Infof("Overwrite of %s declined; %s stays at %s", s.item.Final, s.item.Current, s.temp)
				report.Failures = append(report.Failures, Failure{
					Name: s.item.Current,
					Err:  &OverwriteDeclined{Phase: PhaseFinalize, Source: s.temp, Target: s.item.Final},
				})
				continue
			}
			dsklog.Dlogger.Warnf("Overwriting %s with %s", s.item.Final, s.item.Current)
		}

		if err := e.move(tempPath, finalPath); err != nil {
			dsklog.Dlogger.Errorf("Finalize %s failed: %v", s.temp, err)
			report.Failures = append(report.Failures, Failure{
				Name: s.item.Current,
				Err:  &FinalizeRenameError{Temp: s.temp, Final: s.item.Final, Err: err},
			})
			continue
		}
		dsklog.Dlogger.Debugf("Renamed %s → %s", s.temp, s.item.Final)

		if err := set.SetCurrentName(s.item.ID, s.item.Final); err != nil {
			dsklog.Dlogger.Errorf("Finalized entry vanished from set: %v", err)
		}
		s.final = true
		report.Finalized++
	}
}

func (e *Engine) heldByStuck(final string, stuck []string) bool {
	for _, name := range stuck {
		if dfs.SamePath(name, final, e.foldCase) {
			return true
		}
	}
	return false
}
