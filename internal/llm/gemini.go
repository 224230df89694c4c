package llm

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"time"

	"laserlens/internal/logging"

	"google.golang.org/genai"
)

// Gemini streams from the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates the client once; it is reused for every call.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Stream implements Generator. Blank fragments are dropped. Errors are
// tagged with ErrQuotaExhausted or ErrOverloaded where they apply.
func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		cfg := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(req.Temperature)),
		}
		if req.Seed != nil {
			cfg.Seed = genai.Ptr(int32(*req.Seed))
		}

		start := time.Now()
		logging.APIDebug("[Gemini] stream: model=%s prompt_len=%d", g.model, len(req.Prompt))

		fragments := 0
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(req.Prompt), cfg) {
			if err != nil {
				logging.Get(logging.CategoryAPI).Warn("[Gemini] stream failed after %v: %v", time.Since(start), err)
				yield("", Tag(err))
				return
			}
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			fragments++
			if !yield(text, nil) {
				return
			}
		}
		logging.API("[Gemini] stream completed in %v (%d fragments)", time.Since(start), fragments)
	}
}

// ListModels returns generation-capable model names without the "models/"
// prefix, sorted.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", Tag(err))
		}
		if len(m.SupportedActions) > 0 && !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	sort.Strings(names)
	return names, nil
}
