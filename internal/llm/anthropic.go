package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
)

// APIKeyEnv names the environment variable holding the API key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	apiKey string
	opts   []option.RequestOption
}

// NewAnthropicCompleter creates a completer. Extra request options (base URL,
// HTTP client) are passed through to the SDK.
func NewAnthropicCompleter(apiKey string, opts ...option.RequestOption) *AnthropicCompleter {
	return &AnthropicCompleter{apiKey: strings.TrimSpace(apiKey), opts: opts}
}

// NewAnthropicCompleterFromEnv creates a completer using ANTHROPIC_API_KEY.
func NewAnthropicCompleterFromEnv(opts ...option.RequestOption) *AnthropicCompleter {
	return NewAnthropicCompleter(os.Getenv(APIKeyEnv), opts...)
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if a.apiKey == "" {
		return "", apperrors.NewConfig(APIKeyEnv + " is not set")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(a.apiKey)}, a.opts...)...)

	system := make([]anthropic.TextBlockParam, 0, len(req.System))
	for _, seg := range req.System {
		block := anthropic.TextBlockParam{Text: seg.Text}
		if seg.Cacheable {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		system = append(system, block)
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.NewInterrupted()
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", apperrors.NewUpstream("Anthropic", "POST", "/v1/messages", apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}
