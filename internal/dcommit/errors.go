package dcommit

import (
	"errors"
	"fmt"
)

var (
	// ErrStalePlan means the plan was built from a different order or
	// different names than the set now holds.
	ErrStalePlan = errors.New("plan does not match the current order")
	// ErrNoChanges means committing would not rename anything.
	ErrNoChanges = errors.New("nothing to rename")
	// ErrDeclined is matched by every OverwriteDeclined.
	ErrDeclined = errors.New("overwrite declined")
	// ErrOccupied means a final name is held by a batch file that could
	// not be staged. Overwriting it would destroy that file.
	ErrOccupied = errors.New("target held by an unstaged file")
	// ErrSourceMissing means the journal names a file that is gone.
	ErrSourceMissing = errors.New("source file missing")
	// ErrDigestMismatch means the file at the source no longer has the
	// content the journal recorded.
	ErrDigestMismatch = errors.New("content does not match journal")
)

// StageRenameError is a failed current → temporary rename. The file kept
// its name.
type StageRenameError struct {
	Name string
	Temp string
	Err  error
}

func (e *StageRenameError) Error() string {
	return fmt.Sprintf("stage %s → %s: %v", e.Name, e.Temp, e.Err)
}

func (e *StageRenameError) Unwrap() error { return e.Err }

// FinalizeRenameError is a failed temporary → final rename. The file sits
// under its temporary name.
type FinalizeRenameError struct {
	Temp  string
	Final string
	Err   error
}

func (e *FinalizeRenameError) Error() string {
	return fmt.Sprintf("finalize %s → %s: %v", e.Temp, e.Final, e.Err)
}

func (e *FinalizeRenameError) Unwrap() error { return e.Err }

// OverwriteDeclined records a conflict the decider refused.
type OverwriteDeclined struct {
	Phase  Phase
	Source string
	Target string
}

func (e *OverwriteDeclined) Error() string {
	return fmt.Sprintf("%s %s: %s exists, not overwritten", e.Phase, e.Source, e.Target)
}

func (e *OverwriteDeclined) Is(target error) bool { return target == ErrDeclined }

// RestoreRenameError is a journal entry restore could not put back.
type RestoreRenameError struct {
	Source string
	Target string
	Err    error
}

func (e *RestoreRenameError) Error() string {
	return fmt.Sprintf("restore %s → %s: %v", e.Source, e.Target, e.Err)
}

func (e *RestoreRenameError) Unwrap() error { return e.Err }
