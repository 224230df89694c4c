// Package contextmgr merges uploaded and resumed auxiliary text into the
// bounded preamble that precedes every prompt.
package contextmgr

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"laserlens/internal/logging"

	"golang.org/x/text/encoding/charmap"
)

// =============================================================================
// SECTION 1: Types
// =============================================================================

// Buffer is one labeled unit of context.
type Buffer struct {
	Label string
	Text  string
}

// Spiller keeps the untruncated original of a buffer that had to be cut.
// The sandbox implements it.
type Spiller interface {
	SaveOutput(filename, content string) (string, error)
}

// Options configures an Aggregator.
type Options struct {
	// MaxChars bounds len(Render()) in characters.
	MaxChars int
	// Delim frames buffer headers and splits partial-stream uploads.
	Delim string
	// TextExtensions are stored verbatim. Default: .md .txt .log
	TextExtensions []string
	// StreamExtensions are parsed as partial streams first. Default: .tmp
	StreamExtensions []string
	// Spiller, when set, receives the full text of truncated buffers.
	Spiller Spiller
	// Now stamps inline labels. Default: time.Now
	Now func() time.Time
}

const truncationMarker = "\n...[truncated]...\n"

// Aggregator owns the ordered buffer set. Not safe for concurrent use.
type Aggregator struct {
	opts    Options
	buffers []Buffer
}

// New creates an aggregator, filling defaults for unset options.
func New(opts Options) *Aggregator {
	if opts.Delim == "" {
		opts.Delim = "###"
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 8000
	}
	if len(opts.TextExtensions) == 0 {
		opts.TextExtensions = []string{".md", ".txt", ".log"}
	}
	if len(opts.StreamExtensions) == 0 {
		opts.StreamExtensions = []string{".tmp"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{opts: opts}
}

// =============================================================================
// SECTION 2: Mutations
// =============================================================================

// Upload decodes raw and stores it under label. Partial-stream files keep
// only their completed segments. Unsupported extensions are ignored and
// Upload reports false.
func (a *Aggregator) Upload(label string, raw []byte) bool {
	text := decode(raw)
	ext := strings.ToLower(filepath.Ext(label))
	logging.ContextDebug("upload %s (%d bytes, ext=%q)", label, len(raw), ext)

	switch {
	case hasExt(a.opts.StreamExtensions, ext):
		completed, _ := ParsePartialStream(text, a.opts.Delim)
		if len(completed) == 0 {
			logging.ContextDebug("stream file %s has no completed segments", label)
			return false
		}
		logging.ContextDebug("parsed stream file %s: %d completed segments", label, len(completed))
		a.buffers = append(a.buffers, Buffer{Label: label, Text: strings.Join(completed, "\n")})
	case hasExt(a.opts.TextExtensions, ext):
		a.buffers = append(a.buffers, Buffer{Label: label, Text: text})
	default:
		logging.ContextDebug("ignored unsupported file %s", label)
		return false
	}

	a.enforceBudget()
	return true
}

// AddInline stores text under a label derived from the current time.
func (a *Aggregator) AddInline(text string) {
	label := "inline_" + a.opts.Now().Format("20060102_150405")
	a.buffers = append(a.buffers, Buffer{Label: label, Text: text})
	a.enforceBudget()
}

// Clear drops all buffers.
func (a *Aggregator) Clear() {
	a.buffers = nil
	logging.ContextDebug("context cleared")
}

// =============================================================================
// SECTION 3: Views
// =============================================================================

// Render concatenates buffers in insertion order, each preceded by its
// header, separated by blank lines. Empty when there are no buffers.
func (a *Aggregator) Render() string {
	return render(a.buffers, a.opts.Delim)
}

// Buffers returns a copy of the buffer set.
func (a *Aggregator) Buffers() []Buffer {
	return append([]Buffer(nil), a.buffers...)
}

// Len returns the number of buffers.
func (a *Aggregator) Len() int {
	return len(a.buffers)
}

// Size returns the rendered size in characters.
func (a *Aggregator) Size() int {
	return utf8.RuneCountInString(a.Render())
}

func render(buffers []Buffer, delim string) string {
	if len(buffers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(buffers)*2)
	for _, b := range buffers {
		parts = append(parts, header(b.Label, delim), b.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func header(label, delim string) string {
	return fmt.Sprintf("%s Context from: %s %s", delim, label, delim)
}

// =============================================================================
// SECTION 4: Budget enforcement
// =============================================================================

// enforceBudget evicts oldest buffers until the render fits, then truncates
// the survivor from its middle if it alone is still too large.
func (a *Aggregator) enforceBudget() {
	for len(a.buffers) > 1 && a.Size() > a.opts.MaxChars {
		dropped := a.buffers[0]
		a.buffers = a.buffers[1:]
		logging.Context("dropped %s to enforce context size", dropped.Label)
	}
	if len(a.buffers) == 1 && a.Size() > a.opts.MaxChars {
		a.truncateSole()
	}
	logging.ContextDebug("context now has %d buffer(s), %d chars", len(a.buffers), a.Size())
}

func (a *Aggregator) truncateSole() {
	b := a.buffers[0]
	note := ""
	if a.opts.Spiller != nil {
		path, err := a.opts.Spiller.SaveOutput("context_full_"+b.Label, b.Text)
		if err != nil {
			logging.Get(logging.CategoryContext).Warn("could not preserve full text of %s: %v", b.Label, err)
		} else {
			note = fmt.Sprintf("\n(full text saved to %s)", filepath.Base(path))
		}
	}

	overhead := utf8.RuneCountInString(render([]Buffer{{Label: b.Label}}, a.opts.Delim)) + len("\n\n")
	available := a.opts.MaxChars - overhead - utf8.RuneCountInString(truncationMarker) - utf8.RuneCountInString(note)
	keep := max(available/2, 0)

	runes := []rune(b.Text)
	if keep*2 >= len(runes) {
		return
	}
	b.Text = string(runes[:keep]) + truncationMarker + string(runes[len(runes)-keep:]) + note
	a.buffers[0] = b
	logging.Context("truncated %s from %d to %d chars", b.Label, len(runes), utf8.RuneCountInString(b.Text))
}

// =============================================================================
// SECTION 5: Helpers
// =============================================================================

// decode reads raw as UTF-8, falling back to ISO-8859-1 which maps every byte.
func decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	return string(out)
}

func hasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
