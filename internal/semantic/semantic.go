// Package semantic is the single boundary to the language-model service.
// Analyzers depend on the Client interface; the OpenAI implementation,
// retry policy and embedding cache all live behind it.
package semantic

import (
	"context"
	"time"
)

// Client is what analyzers program against. Single-item calls return an
// error for that item; batched calls return one fallible slot per input,
// index-aligned, and never abort the whole batch.
type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	CompleteBatch(ctx context.Context, prompts []Prompt) []CompletionResult
	EmbedBatch(ctx context.Context, texts []string) []EmbeddingResult
}

// Prompt is one chat-completion request. System carries the instruction
// block, User carries the payload.
type Prompt struct {
	System string
	User   string
}

// CompletionResult is one slot of a CompleteBatch response.
type CompletionResult struct {
	Content string
	Err     error
}

// EmbeddingResult is one slot of an EmbedBatch response.
type EmbeddingResult struct {
	Vector []float64
	Err    error
}

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbedModel     = "text-embedding-3-small"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 512
	DefaultRequestTimeout = 30 * time.Second
	DefaultWorkers        = 24

	// EmbedChunkSize bounds how many texts ride one embeddings request.
	EmbedChunkSize = 100
)

// Config is threaded explicitly from the orchestrator into every call
// path. There is no package-level provider state.
type Config struct {
	Model          string
	EmbedModel     string
	Temperature    float64
	MaxTokens      int64
	RetryAttempts  int
	RequestTimeout time.Duration
	Workers        int
}

// WithDefaults returns a copy with zero-value knobs replaced by defaults.
func (c Config) WithDefaults() Config {
	out := c
	if out.Model == "" {
		out.Model = DefaultModel
	}
	if out.EmbedModel == "" {
		out.EmbedModel = DefaultEmbedModel
	}
	if out.Temperature == 0 {
		out.Temperature = DefaultTemperature
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if out.RetryAttempts == 0 {
		out.RetryAttempts = DefaultMaxAttempts
	}
	if out.RequestTimeout == 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.Workers == 0 {
		out.Workers = DefaultWorkers
	}
	return out
}
