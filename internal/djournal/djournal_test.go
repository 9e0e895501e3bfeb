package djournal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdefrancesco/dskOrder/internal/dsklog"
)

func TestMain(m *testing.M) {
	dsklog.InitializeDlogger("/dev/null")
	os.Exit(m.Run())
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleRecord() *Record {
	return &Record{
		Prefix: "trip_",
		Hash:   "sha256",
		Files: []FileRecord{
			{Original: "b.jpg", Temporary: ".dskorder-stage-x/001.jpg", Final: "trip_001.jpg", Digest: "ab"},
			{Original: "a.png", Temporary: ".dskorder-stage-x/002.png"},
		},
	}
}

func TestAppendAndLatest(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 5, 1, 12, 30, 45, 123456789, time.UTC)
	j, err := Open(dir, "", WithClock(fixedClock(when)))
	if err != nil {
		t.Fatal(err)
	}

	name, err := j.Append(sampleRecord())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if name != "rename_log_2024-05-01T12-30-45.123456Z.json" {
		t.Errorf("name = %s", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"timestamp\": \"2024-05-01T12-30-45.123456Z\"") {
		t.Errorf("record not indented as expected:\n%s", data)
	}
	if strings.Contains(string(data), `"final": ""`) {
		t.Error("missing final must be omitted")
	}

	rec, latest, err := j.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != name || rec.Prefix != "trip_" || len(rec.Files) != 2 || rec.Files[1].Final != "" {
		t.Errorf("Latest = %s %+v", latest, rec)
	}
}

func TestNamesStrictlyIncrease(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j, err := Open(dir, "", WithClock(fixedClock(when)))
	if err != nil {
		t.Fatal(err)
	}

	first, err := j.Append(sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	second, err := j.Append(sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Fatalf("%s should sort after %s", second, first)
	}

	// A fresh Journal with the same clock must not clobber either file.
	j2, err := Open(dir, "", WithClock(fixedClock(when)))
	if err != nil {
		t.Fatal(err)
	}
	third, err := j2.Append(sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	if third == first || third == second {
		t.Fatalf("existing journal overwritten: %s", third)
	}

	names, err := j.List()
	if err != nil || len(names) != 3 {
		t.Fatalf("List = %v, %v", names, err)
	}
	if _, latest, _ := j.Latest(); latest != third {
		t.Errorf("latest = %s, want %s", latest, third)
	}
}

func TestNoJournal(t *testing.T) {
	dir := t.TempDir()
	// Files in staging subdirectories and unrelated files are not journals.
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"sub/rename_log_x.json", "rename_log_notes.txt", "a.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	j, err := Open(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := j.Latest(); !errors.Is(err, ErrNoJournal) {
		t.Errorf("want ErrNoJournal, got %v", err)
	}
}

func TestMalformedJournal(t *testing.T) {
	tests := map[string]string{
		"rename_log_1.json": "{not json",
		"rename_log_2.json": `{"files":[{"original":"../x.jpg","temporary":"t.jpg"}]}`,
		"rename_log_3.json": `{"files":[{"original":"a.jpg"}]}`,
	}
	for name, body := range tests {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		j, err := Open(dir, "")
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = j.Latest()
		var readErr *JournalReadError
		if !errors.As(err, &readErr) || readErr.Name != name {
			t.Errorf("%s: want JournalReadError, got %v", name, err)
		}
	}
}

func TestReadRejectsPaths(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "photos")
	other := filepath.Join(root, "other")
	for _, d := range []string{dir, other} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	body := `{"files":[{"original":"a.jpg","temporary":"t/001.jpg"}]}`
	if err := os.WriteFile(filepath.Join(other, "rename_log_x.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := Open(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"../other/rename_log_x.json", `..\other\rename_log_x.json`, "..", ""} {
		_, err := j.Read(name)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Read(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestReadsLegacyRecord(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "timestamp": "2024-05-01T12-30-45",
  "prefix": "trip_",
  "files": [
    {"original": "b.jpg", "temporary": "_temp_001.jpg", "final": "trip_001.jpg"}
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "rename_log_2024-05-01T12-30-45.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	j, err := Open(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	rec, _, err := j.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Files[0].Temporary != "_temp_001.jpg" || rec.Hash != "" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestSummaries(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Append(sampleRecord()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rename_log_9999.json"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	sums, err := j.Summaries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries", len(sums))
	}
	if sums[0].Err == nil {
		t.Error("newest journal is junk and should carry an error")
	}
	if sums[1].Files != 2 || sums[1].Finalized != 1 {
		t.Errorf("summary = %+v", sums[1])
	}
}

func TestOpenRejects(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("missing dir should fail")
	}
	if _, err := Open(t.TempDir(), "a/b"); err == nil {
		t.Error("tag with separator should fail")
	}
}
