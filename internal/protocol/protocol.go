// Package protocol extracts [[COMMAND: NAME key="value"]] directives embedded
// in generated text.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidArgument is returned when a directive body holds text that is not
// a quoted key=value pair.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	directivePattern = regexp.MustCompile(`(?s)\[\[COMMAND:\s*(\w+)(.*?)\]\]`)
	argPattern       = regexp.MustCompile(`(?s)(\w+)\s*=\s*("[^"]*"|'[^']*')`)
	newlines         = regexp.MustCompile(`\s*\n\s*`)
)

// Directive is one parsed occurrence in model output.
type Directive struct {
	Name    string            // upper-cased
	Args    map[string]string // nil when Err is set
	RawArgs string
	Err     error // argument parse failure; the directive must not run
}

// ParseArgs decodes key="value" and key='value' pairs. Any text left after
// the pairs are removed fails with ErrInvalidArgument naming the leftover.
func ParseArgs(raw string) (map[string]string, error) {
	args := make(map[string]string)
	for _, m := range argPattern.FindAllStringSubmatch(raw, -1) {
		args[m[1]] = m[2][1 : len(m[2])-1]
	}

	leftover := argPattern.ReplaceAllString(raw, " ")
	leftover = strings.TrimSpace(newlines.ReplaceAllString(leftover, " "))
	if leftover != "" {
		token := strings.Fields(leftover)[0]
		return nil, fmt.Errorf("%w: unexpected token %q in %q", ErrInvalidArgument, token, strings.TrimSpace(raw))
	}
	return args, nil
}

// Scan returns every directive in text in order of appearance.
func Scan(text string) []Directive {
	matches := directivePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Directive, 0, len(matches))
	for _, m := range matches {
		d := Directive{Name: strings.ToUpper(m[1]), RawArgs: m[2]}
		d.Args, d.Err = ParseArgs(m[2])
		out = append(out, d)
	}
	return out
}
