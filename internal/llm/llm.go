// Package llm sends chat turns and transcript summaries to the completion
// service. The Completer interface is the only boundary; AnthropicCompleter is
// the production implementation.
package llm

import (
	"context"
	"slices"
)

// Models.
const (
	ModelOpus   = "claude-opus-4-6"
	ModelSonnet = "claude-sonnet-4-6"
	ModelHaiku  = "claude-haiku-4-5-20251001"

	DefaultModel   = ModelOpus
	SummarizeModel = ModelHaiku

	ChatMaxTokens      = 8192
	SummarizeMaxTokens = 1024
)

// AllowedModels is the model allow-list, default first.
var AllowedModels = []string{ModelOpus, ModelSonnet, ModelHaiku}

// ResolveModel returns model when allowed, else fallback when allowed, else DefaultModel.
func ResolveModel(model, fallback string) string {
	if slices.Contains(AllowedModels, model) {
		return model
	}
	if slices.Contains(AllowedModels, fallback) {
		return fallback
	}
	return DefaultModel
}

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemSegment is one system instruction block. Cacheable marks the block
// eligible for upstream prompt caching; correctness never depends on it.
type SystemSegment struct {
	Text      string
	Cacheable bool
}

// Request is a single completion call.
type Request struct {
	Model     string
	MaxTokens int
	System    []SystemSegment
	Messages  []Message
}

// Completer performs one completion and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
