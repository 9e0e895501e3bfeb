// Package dplan computes the rename plan for an entry set: which final
// name every entry gets for its position. Building a plan never touches
// the filesystem, so it is safe to repeat for previews.
package dplan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dset"
	"github.com/jdefrancesco/dskOrder/pkg/utils"
)

// Scheme describes how final names are formed:
// Prefix + Separator + zero padded sequence + original extension.
type Scheme struct {
	Prefix    string
	Width     int
	Separator string
}

// DefaultScheme numbers with three digits and no prefix.
func DefaultScheme() Scheme {
	return Scheme{Width: config.DefaultWidth, Separator: config.DefaultSeparator}
}

// SchemeFromConfig pulls the naming settings out of cfg.
func SchemeFromConfig(cfg config.Config) Scheme {
	return Scheme{Prefix: cfg.Prefix, Width: cfg.Width, Separator: cfg.Separator}
}

// PrefixError reports a prefix that cannot be part of a filename.
type PrefixError struct {
	Prefix string
	Reason string
}

func (e *PrefixError) Error() string {
	return fmt.Sprintf("invalid prefix %q: %s", e.Prefix, e.Reason)
}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func invalidPrefixReason(prefix string) string {
	if strings.ContainsAny(prefix, `<>:"/\|?*`) {
		return "invalid characters"
	}
	for _, r := range prefix {
		if r < 0x20 || r == 0x7f {
			return "control characters"
		}
	}
	// Hidden names would drop out of the next scan.
	if strings.HasPrefix(prefix, ".") {
		return "leading dot"
	}
	base := strings.TrimSuffix(prefix, filepath.Ext(prefix))
	if reservedNames[strings.ToUpper(base)] {
		return "reserved filename"
	}
	return ""
}

// Normalize trims the prefix, appends the separator when it is missing and
// fills in defaults. The result is what Build uses.
func (s Scheme) Normalize() (Scheme, error) {
	if s.Width < 1 {
		s.Width = config.DefaultWidth
	}
	if s.Separator == "" {
		s.Separator = config.DefaultSeparator
	}
	if strings.ContainsAny(s.Separator, `<>:"/\|?*`) {
		return s, &PrefixError{Prefix: s.Separator, Reason: "invalid separator"}
	}

	s.Prefix = strings.TrimSpace(s.Prefix)
	if s.Prefix == "" {
		return s, nil
	}
	if reason := invalidPrefixReason(s.Prefix); reason != "" {
		return s, &PrefixError{Prefix: s.Prefix, Reason: reason}
	}
	if !strings.HasSuffix(s.Prefix, s.Separator) {
		s.Prefix += s.Separator
	}
	return s, nil
}

// Item is the plan for one entry.
type Item struct {
	ID       dset.ID
	Seq      int
	Position int
	Current  string
	Final    string
	Ext      string
	Size     int64
}

// Changed reports whether the entry gets a new name.
func (it Item) Changed() bool { return it.Current != it.Final }

// Plan is the full rename plan for a set, in set order.
type Plan struct {
	// Prefix is the normalized prefix, separator included.
	Prefix string
	// Width is the padding actually used, possibly wider than requested.
	Width int
	Items []Item
}

// Build computes the final name of every entry. Numbering is 1-based.
// When the set holds more entries than Width digits can count, the width
// grows so names stay unique and sort numerically.
func Build(set *dset.EntrySet, scheme Scheme) (*Plan, error) {
	scheme, err := scheme.Normalize()
	if err != nil {
		return nil, err
	}

	entries := set.Entries()
	width := max(scheme.Width, utils.Digits(len(entries)))

	p := &Plan{
		Prefix: scheme.Prefix,
		Width:  width,
		Items:  make([]Item, len(entries)),
	}
	for i, e := range entries {
		seq := i + 1
		p.Items[i] = Item{
			ID:       e.ID,
			Seq:      seq,
			Position: i,
			Current:  e.CurrentName,
			Final:    scheme.Prefix + utils.PadSeq(seq, width) + e.Ext,
			Ext:      e.Ext,
			Size:     e.Size,
		}
	}
	return p, nil
}

// Len returns the number of items.
func (p *Plan) Len() int { return len(p.Items) }

// Differs reports whether committing would rename anything.
func (p *Plan) Differs() bool {
	for _, it := range p.Items {
		if it.Changed() {
			return true
		}
	}
	return false
}

// Changes counts the entries that get a new name.
func (p *Plan) Changes() int {
	n := 0
	for _, it := range p.Items {
		if it.Changed() {
			n++
		}
	}
	return n
}

// Item returns the plan for id.
func (p *Plan) Item(id dset.ID) (Item, bool) {
	for _, it := range p.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Lines renders the preview, one "old → new" line per entry.
func (p *Plan) Lines() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Current + " → " + it.Final
	}
	return out
}

// Matches reports whether the plan was built from the set as it is now:
// same entries, same order, same current names.
func (p *Plan) Matches(set *dset.EntrySet) bool {
	entries := set.Entries()
	if len(entries) != len(p.Items) {
		return false
	}
	for i, e := range entries {
		if p.Items[i].ID != e.ID || p.Items[i].Current != e.CurrentName {
			return false
		}
	}
	return true
}
