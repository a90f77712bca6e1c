package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/prompt"
)

// CacheLoader returns the current context cache.
type CacheLoader func() (*cache.ContextCache, error)

// Invoker builds requests for chat turns and transcript summaries.
// It holds no per-call state, so Chat and Summarize may run concurrently.
type Invoker struct {
	completer    Completer
	loadCache    CacheLoader
	defaultModel string
}

// NewInvoker creates an Invoker. defaultModel applies when a chat names no
// allowed model.
func NewInvoker(completer Completer, loadCache CacheLoader, defaultModel string) *Invoker {
	return &Invoker{completer: completer, loadCache: loadCache, defaultModel: ResolveModel(defaultModel, DefaultModel)}
}

// ChatInput is one chat turn.
type ChatInput struct {
	History []Message
	Model   string
	Dynamic prompt.DynamicInput
}

// Chat sends the history with the static block (cacheable) and, when
// non-empty, the dynamic block. A missing cache is a CONFIG_ERROR.
func (iv *Invoker) Chat(ctx context.Context, in ChatInput) (string, error) {
	if len(in.History) == 0 {
		return "", apperrors.NewInvalidRequest("`messages` array is required")
	}
	for i, m := range in.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return "", apperrors.NewInvalidField(fmt.Sprintf("messages[%d].role", i), "must be user or assistant")
		}
	}

	c, err := iv.loadCache()
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConfig) {
			return "", apperrors.NewConfig("Context cache is empty. Run `roots refresh` first to fetch your team context.")
		}
		return "", err
	}

	system := []SystemSegment{{Text: prompt.BuildStatic(c), Cacheable: true}}
	if dynamic := prompt.BuildDynamic(in.Dynamic); dynamic != "" {
		system = append(system, SystemSegment{Text: dynamic})
	}

	return iv.complete(ctx, Request{
		Model:     ResolveModel(in.Model, iv.defaultModel),
		MaxTokens: ChatMaxTokens,
		System:    system,
		Messages:  in.History,
	})
}

// Summarize extracts planning signal from a raw transcript in one shot.
func (iv *Invoker) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", apperrors.NewInvalidRequest("`transcript` is required")
	}

	return iv.complete(ctx, Request{
		Model:     SummarizeModel,
		MaxTokens: SummarizeMaxTokens,
		System:    []SystemSegment{{Text: prompt.TranscriptSystemPrompt}},
		Messages:  []Message{{Role: RoleUser, Content: prompt.TranscriptExtraction(transcript)}},
	})
}

func (iv *Invoker) complete(ctx context.Context, req Request) (string, error) {
	reply, err := iv.completer.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil && !apperrors.Is(err, apperrors.ErrInterrupted) {
			return "", apperrors.NewInterrupted()
		}
		return "", err
	}
	return reply, nil
}
