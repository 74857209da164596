package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
	"github.com/google/go-cmp/cmp"
)

func sample(name string, created time.Time) model.Scenario {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Scenario{
		Name:        name,
		Enabled:     true,
		CurrentTime: &at,
		ScaleFactor: 2,
		CreatedAt:   created,
		Description: "month end",
		MutationRules: []model.MutationRule{
			model.NewRule("r1", "orders", model.IntervalTrigger{DurationSeconds: 60}, model.UpdateStatusOperation{Status: "late"}),
		},
	}
}

func TestSaveLoadByName(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "scenarios"))
	want := sample("month-end", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	path, err := d.Save(want)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "month-end.json" {
		t.Fatalf("path: got %s", path)
	}

	got, err := d.Load("month-end")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scenario mismatch (-want +got):\n%s", diff)
	}

	byPath, err := d.Load(path)
	if err != nil {
		t.Fatalf("Load(path): %v", err)
	}
	if byPath.Name != "month-end" {
		t.Fatalf("Load(path): got %q", byPath.Name)
	}
}

func TestLoadMissing(t *testing.T) {
	d := NewDir(t.TempDir())
	if _, err := d.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestInvalidNames(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := d.Save(sample(name, time.Now())); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Save(%q): got %v, want ErrInvalidName", name, err)
		}
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"b", "a", "c"} {
		if _, err := d.Save(sample(name, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, s := range list {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, names); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestListMissingDir(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "absent"))
	list, err := d.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("List: got %v, %v", list, err)
	}
}
