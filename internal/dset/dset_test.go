package dset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/internal/dwalk"
)

func TestMain(m *testing.M) {
	dsklog.InitializeDlogger("/dev/null")
	os.Exit(m.Run())
}

// newSet builds a set of entries named after letters without touching disk.
func newSet(t testing.TB, names ...string) (*EntrySet, map[string]ID) {
	t.Helper()
	s := New("/photos")
	ids := make(map[string]ID)
	for _, n := range names {
		f, err := dfs.NewDfile("/photos", n, 1, dfs.HashNone)
		if err != nil {
			t.Fatal(err)
		}
		ids[n] = s.Add(f).ID
	}
	s.MarkClean()
	return s, ids
}

func checkPositions(t testing.TB, s *EntrySet) {
	t.Helper()
	seen := make(map[ID]bool)
	for i, e := range s.Entries() {
		if e.Position != i {
			t.Fatalf("entry %s at %d has Position %d", e.CurrentName, i, e.Position)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		before   string
		want     []string
	}{
		{"single before first", []string{"c"}, "a", []string{"c", "a", "b", "d", "e"}},
		{"block keeps relative order", []string{"d", "b"}, "a", []string{"b", "d", "a", "c", "e"}},
		{"to end", []string{"a", "c"}, "", []string{"b", "d", "e", "a", "c"}},
		{"before selected member goes to end", []string{"a", "b"}, "b", []string{"c", "d", "e", "a", "b"}},
		{"before next neighbour is identity", []string{"b"}, "c", []string{"a", "b", "c", "d", "e"}},
		{"empty selection", nil, "a", []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ids := newSet(t, "a", "b", "c", "d", "e")
			sel := Selection{}
			for _, n := range tt.selected {
				sel[ids[n]] = struct{}{}
			}
			if err := s.Move(sel, ids[tt.before]); err != nil {
				t.Fatalf("Move: %v", err)
			}
			if got := s.SnapshotCurrentNames(); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			checkPositions(t, s)
		})
	}
}

func TestMoveUnknown(t *testing.T) {
	s, ids := newSet(t, "a", "b")
	if err := s.Move(Select("nope"), ids["a"]); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("unknown selection: %v", err)
	}
	if err := s.Move(Select(ids["a"]), "nope"); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("unknown before: %v", err)
	}
	if got := s.SnapshotCurrentNames(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("set changed after failed move: %v", got)
	}
}

func TestArrange(t *testing.T) {
	s, ids := newSet(t, "a", "b", "c", "d")
	if err := s.Arrange([]ID{ids["c"], ids["a"]}); err != nil {
		t.Fatal(err)
	}
	if got := s.SnapshotCurrentNames(); !slices.Equal(got, []string{"c", "a", "b", "d"}) {
		t.Errorf("got %v", got)
	}
	checkPositions(t, s)

	if err := s.Arrange([]ID{ids["a"], ids["a"]}); err == nil {
		t.Error("duplicate ids must be rejected")
	}
	if err := s.Arrange([]ID{"zzz"}); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("unknown id: %v", err)
	}
}

func TestRemoveAndDirty(t *testing.T) {
	s, ids := newSet(t, "a", "b", "c")
	if s.Dirty() {
		t.Fatal("fresh set is dirty")
	}

	if err := s.Move(Select(ids["c"]), ids["a"]); err != nil {
		t.Fatal(err)
	}
	if !s.Dirty() {
		t.Fatal("reordered set is clean")
	}
	if err := s.Move(Select(ids["c"]), ""); err != nil {
		t.Fatal(err)
	}
	if s.Dirty() {
		t.Fatal("restoring the order should make the set clean again")
	}

	if err := s.Remove(Select(ids["b"])); err != nil {
		t.Fatal(err)
	}
	if s.Dirty() {
		t.Error("remove alone must not make the set dirty")
	}
	if _, ok := s.Get(ids["b"]); ok || s.IndexOf(ids["b"]) != -1 {
		t.Error("removed entry still present")
	}
	if s.IndexOf(ids["c"]) != 1 {
		t.Errorf("IndexOf(c) = %d", s.IndexOf(ids["c"]))
	}
	if err := s.Remove(Select(ids["b"])); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("second remove: %v", err)
	}
}

func TestSetCurrentName(t *testing.T) {
	s, ids := newSet(t, "a.jpg")
	if err := s.SetCurrentName(ids["a.jpg"], "trip_001.jpg"); err != nil {
		t.Fatal(err)
	}
	e, ok := s.ByName("trip_001.jpg")
	if !ok || e.ID != ids["a.jpg"] || e.Ext != ".jpg" {
		t.Errorf("ByName = %+v, %v", e, ok)
	}
	if err := s.SetCurrentName("x", "y"); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("unknown id: %v", err)
	}
}

func TestStrandedEntriesKeepOrigin(t *testing.T) {
	s, ids := newSet(t, "a.jpg", "b.jpg")
	id := ids["b.jpg"]
	stage := dwalk.StagePrefix + "1"

	steps := []struct {
		name     string
		origin   string
		stranded int
	}{
		{stage + "/002.jpg", "b.jpg", 1},
		{dwalk.StagePrefix + "2/002.jpg", "b.jpg", 1},
		{"trip_002.jpg", "", 0},
	}
	for _, st := range steps {
		if err := s.SetCurrentName(id, st.name); err != nil {
			t.Fatal(err)
		}
		s.MarkClean()
		e, _ := s.Get(id)
		if e.Origin != st.origin || e.Staged() != (st.stranded > 0) {
			t.Errorf("%s: origin %q staged %v", st.name, e.Origin, e.Staged())
		}
		if got := len(s.Stranded()); got != st.stranded {
			t.Errorf("%s: %d stranded, want %d", st.name, got, st.stranded)
		}
		if s.Dirty() != (st.stranded > 0) {
			t.Errorf("%s: Dirty = %v right after MarkClean", st.name, s.Dirty())
		}
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.jpg", "a.png", "c.jpg", "read.me"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := Scan(context.Background(), dir, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SnapshotCurrentNames(); !slices.Equal(got, []string{"a.png", "b.jpg", "c.jpg"}) {
		t.Errorf("got %v", got)
	}
	if s.Dirty() || s.Dir() != dir {
		t.Error("scanned set should be clean and know its dir")
	}

	_, err = Scan(context.Background(), filepath.Join(dir, "missing"), config.Default())
	var scanErr *dwalk.ScanError
	if !errors.As(err, &scanErr) {
		t.Errorf("want ScanError, got %v", err)
	}
}

func FuzzMove(f *testing.F) {
	f.Add(uint8(0b00101), uint8(3))
	f.Add(uint8(0), uint8(0))
	f.Add(uint8(0xff), uint8(7))
	f.Fuzz(func(t *testing.T, mask, before uint8) {
		names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		s, ids := newSet(t, names...)

		sel := Selection{}
		for i, n := range names {
			if mask&(1<<i) != 0 {
				sel[ids[n]] = struct{}{}
			}
		}
		target := ids[names[int(before)%len(names)]]
		if err := s.Move(sel, target); err != nil {
			t.Fatal(err)
		}

		got := s.SnapshotCurrentNames()
		if len(got) != len(names) {
			t.Fatalf("lost entries: %v", got)
		}
		sorted := slices.Clone(got)
		slices.Sort(sorted)
		if !slices.Equal(sorted, names) {
			t.Fatalf("not a permutation: %v", got)
		}
		checkPositions(t, s)

		// Selected entries form one contiguous block in original order.
		var block []string
		first := -1
		for i, n := range got {
			if sel.Has(ids[n]) {
				if first == -1 {
					first = i
				}
				block = append(block, n)
			}
		}
		if len(block) > 0 {
			if !slices.Equal(got[first:first+len(block)], block) || !slices.IsSorted(block) {
				t.Fatalf("selection not contiguous: %v", got)
			}
		}
	})
}
