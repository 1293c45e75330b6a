package hybrid

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Reformulator rewrites query between reflection iterations, when the
// round that just completed fell short of adequacy. iteration is the
// 0-based reflection round that just ran. Orchestrator.Search falls back
// to the deterministic type-hint reformulation whenever no Reformulator
// is configured, or when one is configured but returns an error.
type Reformulator interface {
	Reformulate(ctx context.Context, query string, iteration int) (string, error)
}

// reflectionHints describes, per reflection iteration, what the prior
// round's results were likely missing — mirrors the type hints the
// deterministic reformulate fallback injects directly into the query.
var reflectionHints = []string{
	"the results are likely missing a specific person's identity",
	"the results are likely missing a specific location",
	"the results are likely missing a specific point in time",
}

// LLMReformulator asks a chat-completion model to rewrite the query for
// the next reflection round, via github.com/mozilla-ai/any-llm-go's unified
// multi-provider interface (OpenAI, Anthropic, Gemini, Ollama, DeepSeek,
// Mistral, Groq, llama.cpp, llamafile). It issues a single non-streaming
// completion per iteration.
type LLMReformulator struct {
	backend anyllmlib.Provider
	model   string
}

// NewLLMReformulator constructs an LLMReformulator backed by any-llm-go's
// provider for providerName (one of: "openai", "anthropic", "gemini",
// "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"), using
// model for completions. opts are any-llm-go configuration options (e.g.
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL); absent an API key option,
// the provider falls back to its usual environment variable.
func NewLLMReformulator(providerName, model string, opts ...anyllmlib.Option) (*LLMReformulator, error) {
	backend, err := createReformulationBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("hybrid: reformulator: create %q backend: %w", providerName, err)
	}
	return &LLMReformulator{backend: backend, model: model}, nil
}

func createReformulationBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", providerName)
	}
}

// Reformulate asks the configured model to rewrite query for the gap
// named by iteration's hint. Any failure — network, empty response,
// unknown iteration — falls back to the deterministic type-hint
// reformulation so a reflecting search never stalls on an LLM outage.
func (r *LLMReformulator) Reformulate(ctx context.Context, query string, iteration int) (string, error) {
	if iteration >= len(reflectionHints) {
		return reformulate(query, iteration), nil
	}

	prompt := fmt.Sprintf(
		"Rewrite this knowledge-graph search query so it surfaces more relevant results: %s. "+
			"Reply with only the rewritten query text, no commentary.\n\nQuery: %s",
		reflectionHints[iteration], query,
	)
	resp, err := r.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: []anyllmlib.Message{{Role: anyllmlib.RoleUser, Content: prompt}},
	})
	if err != nil || len(resp.Choices) == 0 {
		return reformulate(query, iteration), nil
	}
	rewritten := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if rewritten == "" {
		return reformulate(query, iteration), nil
	}
	return rewritten, nil
}
