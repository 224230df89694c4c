package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// UserPrefs holds per-user settings remembered across runs.
type UserPrefs struct {
	// LastModel is the model chosen on the previous run.
	LastModel string `json:"last_model,omitempty"`
}

// DefaultUserPrefsPath returns ~/.lens/prefs.json.
func DefaultUserPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lens", "prefs.json")
	}
	return filepath.Join(home, ".lens", "prefs.json")
}

// LoadUserPrefs loads preferences. A missing or unreadable file yields empty prefs.
func LoadUserPrefs(path string) *UserPrefs {
	prefs := &UserPrefs{}
	data, err := os.ReadFile(path)
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(data, prefs); err != nil {
		return &UserPrefs{}
	}
	return prefs
}

// Save writes preferences to path.
func (p *UserPrefs) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	return nil
}

// PreferredModel returns the remembered model when it is still available,
// otherwise the first available model, otherwise fallback.
func (p *UserPrefs) PreferredModel(available []string, fallback string) string {
	if p.LastModel != "" && (len(available) == 0 || slices.Contains(available, p.LastModel)) {
		return p.LastModel
	}
	if len(available) > 0 {
		return available[0]
	}
	return fallback
}
