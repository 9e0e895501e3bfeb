// Package dset holds the ordered set of image entries the user arranges.
//
// An EntrySet owns the mapping from stable entry ids to the names the
// files currently carry on disk. It never touches the filesystem after
// the initial scan; the commit and restore engines report every rename
// back through SetCurrentName so the set mirrors ground truth.
package dset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/dwalk"
)

// ErrUnknownEntry is returned when an operation names an id the set does
// not hold.
var ErrUnknownEntry = errors.New("unknown entry")

// ID identifies an entry for the lifetime of the set. Ids are never reused.
type ID string

// NewID returns a fresh id.
func NewID() ID { return ID(uuid.NewString()) }

// Entry is one image file in the user's chosen order.
type Entry struct {
	ID          ID
	CurrentName string
	// Ext is the original extension, lower-cased, dot included.
	Ext      string
	Position int
	Size     int64
	Digest   string
	// Origin is the bare name the entry had before a commit left it in a
	// staging directory. Empty while CurrentName is a bare name.
	Origin string
}

// Staged reports whether the entry's file sits in a staging directory.
func (e Entry) Staged() bool { return isStaged(e.CurrentName) }

func isStaged(name string) bool { return strings.ContainsAny(name, `/\`) }

// Selection is a set of ids.
type Selection map[ID]struct{}

// Select builds a Selection from ids.
func Select(ids ...ID) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is selected.
func (s Selection) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// EntrySet is the ordered collection. It is not safe for concurrent use;
// the session serializes access.
type EntrySet struct {
	dir     string
	entries []*Entry
	byID    map[ID]*Entry
	clean   []string
}

// New returns an empty set for dir.
func New(dir string) *EntrySet {
	return &EntrySet{
		dir:  dir,
		byID: make(map[ID]*Entry),
	}
}

// Scan lists the image files of dir sorted by filename and assigns fresh
// ids in that order. The result is clean.
func Scan(ctx context.Context, dir string, cfg config.Config) (*EntrySet, error) {
	files, err := dwalk.Collect(ctx, dir, cfg)
	if err != nil {
		return nil, err
	}

	set := New(dir)
	for _, f := range files {
		set.Add(f)
	}
	set.MarkClean()
	return set, nil
}

// Dir returns the directory the set describes.
func (s *EntrySet) Dir() string { return s.dir }

// Add appends a scanned file to the end of the set.
func (s *EntrySet) Add(f *dfs.Dfile) Entry {
	e := &Entry{
		ID:          NewID(),
		CurrentName: f.BaseName(),
		Ext:         f.Ext(),
		Position:    len(s.entries),
		Size:        f.FileSize(),
		Digest:      f.Digest(),
	}
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e
	return *e
}

// Len returns the number of entries.
func (s *EntrySet) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in order.
func (s *EntrySet) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// IDs returns the ids in order.
func (s *EntrySet) IDs() []ID {
	out := make([]ID, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ID
	}
	return out
}

// Get returns the entry for id.
func (s *EntrySet) Get(id ID) (Entry, bool) {
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IndexOf returns the position of id or -1.
func (s *EntrySet) IndexOf(id ID) int {
	if e, ok := s.byID[id]; ok {
		return e.Position
	}
	return -1
}

// ByName finds the entry currently called name.
func (s *EntrySet) ByName(name string) (Entry, bool) {
	for _, e := range s.entries {
		if e.CurrentName == name {
			return *e, true
		}
	}
	return Entry{}, false
}

// SetCurrentName records that the file for id now lives under name.
func (s *EntrySet) SetCurrentName(id ID, name string) error {
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	switch {
	case !isStaged(name):
		e.Origin = ""
	case e.Origin == "" && !isStaged(e.CurrentName):
		e.Origin = e.CurrentName
	}
	e.CurrentName = name
	return nil
}

// Stranded returns the entries whose files sit in a staging directory.
func (s *EntrySet) Stranded() []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Staged() {
			out = append(out, *e)
		}
	}
	return out
}

func (s *EntrySet) check(ids Selection) error {
	for id := range ids {
		if _, ok := s.byID[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
		}
	}
	return nil
}

// Move takes the selected entries out of the set, keeping their relative
// order, and puts the block back immediately before the entry before.
// The block goes to the end when before is empty or selected itself.
func (s *EntrySet) Move(selected Selection, before ID) error {
	if err := s.check(selected); err != nil {
		return err
	}
	if before != "" {
		if _, ok := s.byID[before]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, before)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	block := make([]*Entry, 0, len(selected))
	rest := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if selected.Has(e.ID) {
			block = append(block, e)
		} else {
			rest = append(rest, e)
		}
	}

	at := len(rest)
	if before != "" && !selected.Has(before) {
		at = slices.IndexFunc(rest, func(e *Entry) bool { return e.ID == before })
	}

	s.entries = slices.Concat(rest[:at], block, rest[at:])
	s.reindex()
	return nil
}

// Arrange puts ids first in the given order and leaves everything else
// after them in its current order.
func (s *EntrySet) Arrange(ids []ID) error {
	seen := make(Selection, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
		}
		if seen.Has(id) {
			return fmt.Errorf("entry %s listed twice", id)
		}
		seen[id] = struct{}{}
	}

	// Moving each listed id to the end, then the rest, yields the
	// requested order.
	for _, id := range ids {
		if err := s.Move(Select(id), ""); err != nil {
			return err
		}
	}
	var others []ID
	for _, e := range s.entries {
		if !seen.Has(e.ID) {
			others = append(others, e.ID)
		}
	}
	return s.Move(Select(others...), "")
}

// Remove drops entries from the set. Files on disk are left alone. The
// removed names also leave the clean snapshot, so removing alone does not
// make the set dirty.
func (s *EntrySet) Remove(ids Selection) error {
	if err := s.check(ids); err != nil {
		return err
	}
	gone := make(map[string]struct{}, len(ids))
	for id := range ids {
		gone[s.byID[id].CurrentName] = struct{}{}
	}
	s.clean = slices.DeleteFunc(s.clean, func(n string) bool {
		_, ok := gone[n]
		return ok
	})
	s.entries = slices.DeleteFunc(s.entries, func(e *Entry) bool { return ids.Has(e.ID) })
	for id := range ids {
		delete(s.byID, id)
	}
	s.reindex()
	return nil
}

// SnapshotCurrentNames returns the current names in order.
func (s *EntrySet) SnapshotCurrentNames() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.CurrentName
	}
	return out
}

// MarkClean records the current layout as the one on disk.
func (s *EntrySet) MarkClean() {
	s.clean = s.SnapshotCurrentNames()
}

// SetClean records names as the layout on disk. Used when entries were
// merged while the user was already arranging them.
func (s *EntrySet) SetClean(names []string) {
	s.clean = slices.Clone(names)
}

// Dirty reports whether the order was changed since the last MarkClean
// or whether any file is stranded in a staging directory.
func (s *EntrySet) Dirty() bool {
	return !slices.Equal(s.clean, s.SnapshotCurrentNames()) || len(s.Stranded()) > 0
}

func (s *EntrySet) reindex() {
	for i, e := range s.entries {
		e.Position = i
	}
}
