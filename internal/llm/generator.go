// Package llm is the generation capability: streaming text for a prompt,
// with failures classified for the retry policy.
package llm

import (
	"context"
	"iter"
)

// Request is one generation call.
type Request struct {
	Prompt      string
	Temperature float64
	Seed        *int
}

// Generator streams text fragments for a request. The sequence ends after
// the last fragment or after yielding a non-nil error.
type Generator interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}
