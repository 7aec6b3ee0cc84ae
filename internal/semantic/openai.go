package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/insightflow/internal/utils"
)

// OpenAI implements Client on the OpenAI API. All retry and caching
// behavior lives here so analyzers stay oblivious to it.
type OpenAI struct {
	client *openai.Client
	cfg    Config
	policy Policy
	cache  *EmbeddingCache
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI wires a raw SDK client to the retry policy and embedding
// cache. cache may be nil for an in-run cache only.
func NewOpenAI(client *openai.Client, cfg Config, cache *EmbeddingCache) *OpenAI {
	cfg = cfg.WithDefaults()

	policy := DefaultPolicy()
	policy.MaxAttempts = cfg.RetryAttempts

	if cache == nil {
		cache = NewEmbeddingCache(nil)
	}

	return &OpenAI{
		client: client,
		cfg:    cfg,
		policy: policy,
		cache:  cache,
	}
}

// Complete runs one chat completion and returns the cleaned content.
// Empty responses count as transient failures and are retried.
func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var content string

	err := o.policy.Do(ctx, "complete", func() error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()

		completion, err := o.client.Chat.Completions.New(cctx, openai.ChatCompletionNewParams{
			Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(prompt.System),
				openai.UserMessage(prompt.User),
			}),
			Model:       openai.F(openai.ChatModel(o.cfg.Model)),
			Temperature: openai.Float(o.cfg.Temperature),
			MaxTokens:   openai.Int(o.cfg.MaxTokens),
		})
		if err != nil {
			return Classify("complete", err)
		}

		if len(completion.Choices) == 0 {
			return &ServiceError{Kind: KindTransient, Op: "complete", Err: errors.New("no choices in response")}
		}

		cleaned := CleanResponse(completion.Choices[0].Message.Content)
		if cleaned == "" {
			return &ServiceError{Kind: KindTransient, Op: "complete", Err: errors.New("empty completion")}
		}

		content = cleaned
		return nil
	})

	return content, err
}

// Embed returns the vector for one text, from cache when possible.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := o.cache.Get(ctx, text); ok {
		return vec, nil
	}

	vecs, err := o.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	o.cache.Put(ctx, text, vecs[0])
	return vecs[0], nil
}

// CompleteBatch fans prompts across the worker pool. Output is
// index-aligned with the input; a failed prompt fails only its slot.
func (o *OpenAI) CompleteBatch(ctx context.Context, prompts []Prompt) []CompletionResult {
	results := make([]CompletionResult, len(prompts))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)

	for i, p := range prompts {
		g.Go(func() error {
			content, err := o.Complete(ctx, p)
			results[i] = CompletionResult{Content: content, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

// EmbedBatch resolves texts against the cache, then fetches the distinct
// misses in chunks. Duplicate inputs cost one request and every slot gets
// its vector.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) []EmbeddingResult {
	results := make([]EmbeddingResult, len(texts))

	positions := make(map[string][]int, len(texts))
	for i, t := range texts {
		positions[t] = append(positions[t], i)
	}

	var misses []string
	for t, idxs := range positions {
		if vec, ok := o.cache.Get(ctx, t); ok {
			for _, i := range idxs {
				results[i] = EmbeddingResult{Vector: vec}
			}
			continue
		}
		misses = append(misses, t)
	}
	sort.Strings(misses)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)

	for _, chunk := range utils.Chunk(misses, EmbedChunkSize) {
		g.Go(func() error {
			vecs, err := o.embedChunk(ctx, chunk)
			if err != nil {
				for _, t := range chunk {
					for _, i := range positions[t] {
						results[i] = EmbeddingResult{Err: err}
					}
				}
				return nil
			}
			for j, t := range chunk {
				o.cache.Put(ctx, t, vecs[j])
				for _, i := range positions[t] {
					results[i] = EmbeddingResult{Vector: vecs[j]}
				}
			}
			return nil
		})
	}
	g.Wait()

	return results
}

func (o *OpenAI) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	var out [][]float64

	err := o.policy.Do(ctx, "embed", func() error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()

		resp, err := o.client.Embeddings.New(cctx, openai.EmbeddingNewParams{
			Input: openai.F[openai.EmbeddingNewParamsInputUnion](
				openai.EmbeddingNewParamsInputArrayOfStrings(texts)),
			Model: openai.F(openai.EmbeddingModel(o.cfg.EmbedModel)),
		})
		if err != nil {
			return Classify("embed", err)
		}

		if len(resp.Data) != len(texts) {
			return &ServiceError{
				Kind: KindTransient,
				Op:   "embed",
				Err:  fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
			}
		}

		out = make([][]float64, len(texts))
		for _, d := range resp.Data {
			out[d.Index] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CleanResponse strips markdown fences and normalizes quotes so strict
// JSON parsing survives decorated model output.
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)

	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")

	response = strings.ReplaceAll(response, "“", `"`) // Left curly quote
	response = strings.ReplaceAll(response, "”", `"`) // Right curly quote

	return strings.TrimSpace(response)
}
