package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lazywh/lazywh/internal/config"
)

const (
	fileName = "state.yml"

	// MaxFilterLen matches the filter input's character limit
	MaxFilterLen = 100
)

// State is what the dashboard remembers between runs
type State struct {
	SelectedWarehouse string `yaml:"selected_warehouse,omitempty"`
	ActiveTab         int    `yaml:"active_tab"`
	FocusedPane       int    `yaml:"focused_pane"` // 0 warehouses, 1 details
	ScanFilter        string `yaml:"scan_filter,omitempty"`
	ScanFollow        bool   `yaml:"scan_follow"`
}

// DefaultState returns the state of a first run
func DefaultState() *State {
	return &State{ScanFollow: true}
}

// Clamp pulls out-of-range values back to defaults so a hand-edited or
// older file never points at a tab or pane that does not exist
func (s *State) Clamp(tabs int) {
	if s.ActiveTab < 0 || s.ActiveTab >= tabs {
		s.ActiveTab = 0
	}
	if s.FocusedPane != 1 {
		s.FocusedPane = 0
	}
	s.SelectedWarehouse = strings.TrimSpace(s.SelectedWarehouse)
	if r := []rune(s.ScanFilter); len(r) > MaxFilterLen {
		s.ScanFilter = string(r[:MaxFilterLen])
	}
}

// Path returns the state file location next to the config file
func Path() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the state from the default path
func Load() (*State, error) {
	path, err := Path()
	if err != nil {
		return DefaultState(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads the state from path. A missing file is a first run, not an
// error; an unreadable one still yields usable defaults alongside the error.
func LoadFrom(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), err
	}

	st := DefaultState()
	if err := yaml.Unmarshal(data, st); err != nil {
		return DefaultState(), fmt.Errorf("parse %s: %w", path, err)
	}
	return st, nil
}

// Save writes the state to the default path
func Save(st *State) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, st)
}

// SaveTo writes the state to path through a temp file in the same directory
func SaveTo(path string, st *State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
