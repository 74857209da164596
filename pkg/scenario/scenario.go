// Package scenario stores time-travel scenarios as JSON files, one per
// scenario, named <name>.json inside a directory.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/daviddao/timewarp/pkg/model"
)

var (
	ErrNotFound    = errors.New("scenario not found")
	ErrInvalidName = errors.New("invalid scenario name")
)

const ext = ".json"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

type Dir struct {
	path string
}

func NewDir(path string) *Dir {
	return &Dir{path: path}
}

func (d *Dir) Path() string { return d.path }

// PathFor returns the file a scenario called name is stored in.
func (d *Dir) PathFor(name string) (string, error) {
	if !nameRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.path, name+ext), nil
}

// Save writes s to <dir>/<s.Name>.json, creating the directory if needed,
// and returns the file path.
func (d *Dir) Save(s model.Scenario) (string, error) {
	path, err := d.PathFor(s.Name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return "", fmt.Errorf("create scenarios directory: %w", err)
	}
	return path, WriteFile(path, s)
}

// Load reads a scenario given either a file path or a scenario name.
func (d *Dir) Load(nameOrPath string) (model.Scenario, error) {
	if fi, err := os.Stat(nameOrPath); err == nil && !fi.IsDir() {
		return ReadFile(nameOrPath)
	}
	path, err := d.PathFor(nameOrPath)
	if err != nil {
		return model.Scenario{}, err
	}
	return ReadFile(path)
}

// List returns the scenarios in the directory, oldest first. Unreadable
// files are skipped.
func (d *Dir) List() ([]model.Scenario, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []model.Scenario
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		s, err := ReadFile(filepath.Join(d.path, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// WriteFile writes s as indented JSON through a temporary file.
func WriteFile(path string, s model.Scenario) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}

func ReadFile(path string) (model.Scenario, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Scenario{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return model.Scenario{}, err
	}
	var s model.Scenario
	if err := json.Unmarshal(b, &s); err != nil {
		return model.Scenario{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	return s, nil
}
