// Package transcript turns a session history into the exported artifact:
// Markdown, an HTML page, or terminal-rendered text.
package transcript

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"laserlens/internal/state"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Format selects an export representation.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatTerminal Format = "term"
)

// ParseFormat accepts md, markdown, html and term.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "term", "terminal":
		return FormatTerminal, nil
	}
	return "", fmt.Errorf("unknown export format %q (want md, html or term)", s)
}

// Markdown renders the history as a transcript. Turns are numbered by the
// loop they ran at; turns saved without one follow their predecessor.
func Markdown(topic string, history []state.Turn) string {
	lines := []string{fmt.Sprintf("# Recursive Analysis of %s\n", topic)}
	loop := 0
	for _, t := range history {
		if t.Loop > 0 {
			loop = t.Loop
		} else {
			loop++
		}
		lines = append(lines,
			fmt.Sprintf("## Loop %d (%s)\n", loop, t.Timestamp),
			fmt.Sprintf("**Prompt:**\n```\n%s\n```\n", fence(t.Prompt)),
			fmt.Sprintf("**Response:**\n```\n%s\n```\n", fence(t.Response)),
		)
	}
	return strings.Join(lines, "\n")
}

// fence keeps embedded code fences from closing the transcript's block.
func fence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts Markdown to a standalone page.
func HTML(title, markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; line-height: 1.5; max-width: 60em; margin: auto;">
%s
</body></html>
`, htmlEscape(title), buf.String()), nil
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// Terminal renders Markdown for a terminal of the given width. Style
// follows the terminal background; non-terminals get plain output.
func Terminal(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create terminal renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return out, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts "My Topic Title!" to "my_topic_title". Accents are folded
// to ASCII; other non-alphanumerics collapse to single underscores.
func Slug(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	s := nonSlug.ReplaceAllString(strings.ToLower(folded), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "analysis"
	}
	return s
}

// Filename is slug_YYYYmmdd_HHMMSS.md.
func Filename(topic string, at time.Time) string {
	return fmt.Sprintf("%s_%s.md", Slug(topic), at.Format("20060102_150405"))
}
