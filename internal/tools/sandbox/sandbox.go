// Package sandbox confines directive file I/O to a single output directory.
package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"laserlens/internal/logging"
)

var disallowed = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// Options configures a Sandbox.
type Options struct {
	// AllowedExtensions are kept by Sanitize; anything else becomes DefaultExtension.
	AllowedExtensions []string
	// MaxStemLength caps the filename stem in characters.
	MaxStemLength int
	// Now stamps fallback filenames. Default: time.Now
	Now func() time.Time
}

// DefaultExtension replaces extensions that are not allowed.
const DefaultExtension = ".txt"

// Sandbox is the only directory file and shell handlers may touch.
type Sandbox struct {
	dir  string
	opts Options
}

// New creates the output directory if needed.
func New(dir string, opts Options) (*Sandbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("sandbox directory not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{".md", ".txt", ".log", ".tmp"}
	}
	if opts.MaxStemLength <= 0 {
		opts.MaxStemLength = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logging.ToolsDebug("sandbox ready at %s", abs)
	return &Sandbox{dir: abs, opts: opts}, nil
}

// Dir returns the absolute sandbox directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Sanitize reduces name to a safe bare filename: directories are stripped,
// spaces become underscores, characters outside [A-Za-z0-9_.-] are removed,
// unknown extensions become .txt and the stem is capped.
func (s *Sandbox) Sanitize(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = disallowed.ReplaceAllString(name, "")

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !s.allowed(ext) {
		ext = DefaultExtension
	}
	if len(stem) > s.opts.MaxStemLength {
		stem = stem[:s.opts.MaxStemLength]
	}
	if stem == "" {
		stem = "output"
	}
	return stem + ext
}

func (s *Sandbox) allowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, a := range s.opts.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// Path returns the absolute path for name after sanitization.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.dir, s.Sanitize(name))
}

// Exists reports whether the sanitized name is a regular file in the sandbox.
func (s *Sandbox) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// SaveOutput writes content under the sanitized name and returns the full
// path. If the OS rejects the write, it retries once under a timestamped
// fallback name before giving up.
func (s *Sandbox) SaveOutput(filename, content string) (string, error) {
	path := s.Path(filename)
	err := os.WriteFile(path, []byte(content), 0644)
	if err == nil {
		logging.ToolsDebug("saved %d bytes to %s", len(content), path)
		return path, nil
	}

	fallback := filepath.Join(s.dir, "output_"+s.opts.Now().Format("20060102_150405")+DefaultExtension)
	logging.Get(logging.CategoryTools).Warn("failed to save %s (%v), retrying as %s", path, err, filepath.Base(fallback))
	if ferr := os.WriteFile(fallback, []byte(content), 0644); ferr != nil {
		return "", fmt.Errorf("failed to save output to %s: %w", path, err)
	}
	return fallback, nil
}

// SaveMetadata writes v as indented JSON under name.
func (s *Sandbox) SaveMetadata(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.SaveAs(name, ".json", string(data))
}

// SaveAs writes content under the sanitized stem of name with extension
// ext, which need not be an allowed extension. Only the host uses it;
// directives cannot create such files.
func (s *Sandbox) SaveAs(name, ext, content string) (string, error) {
	stem := strings.TrimSuffix(s.Sanitize(strings.TrimSuffix(name, ext)+DefaultExtension), DefaultExtension)
	path := filepath.Join(s.dir, stem+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", stem+ext, err)
	}
	return path, nil
}

// List returns the sorted names of entries in the sandbox.
func (s *Sandbox) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
