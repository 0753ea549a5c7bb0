// Package azureopenai wraps the openai-go SDK for chat completions against an
// Azure OpenAI resource, where the model name doubles as the deployment name.
package azureopenai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rotisserie/eris"
)

// DefaultAPIVersion is the Azure OpenAI API version used when none is configured.
const DefaultAPIVersion = "2024-12-01-preview"

// Token parameter names accepted by the chat completions endpoint.
const (
	ParamMaxTokens           = "max_tokens"
	ParamMaxCompletionTokens = "max_completion_tokens"
	ParamReasoningEffort     = "reasoning_effort"
)

// Client performs chat completions against Azure OpenAI.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn chat request.
type ChatRequest struct {
	Deployment string
	System     string
	Prompt     string
	// TokenParam selects which token limit field MaxTokens is sent as.
	// Empty means no limit is sent.
	TokenParam      string
	MaxTokens       int64
	ReasoningEffort string
}

// ChatResponse carries the first choice and token usage.
type ChatResponse struct {
	ID               string
	Content          string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// UnsupportedParamError reports that the deployment rejected a request
// parameter. Callers may retry without it.
type UnsupportedParamError struct {
	Param string
	Err   error
}

func (e *UnsupportedParamError) Error() string {
	return fmt.Sprintf("azureopenai: unsupported parameter %q: %v", e.Param, e.Err)
}

func (e *UnsupportedParamError) Unwrap() error { return e.Err }

type sdkClient struct {
	client openai.Client
}

// NewClient creates an Azure OpenAI client for the given resource endpoint.
func NewClient(endpoint, apiVersion, apiKey string, opts ...option.RequestOption) Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	base := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	return &sdkClient{client: openai.NewClient(append(base, opts...)...)}
}

func (c *sdkClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Deployment),
		Messages: buildMessages(req),
	}

	if req.MaxTokens > 0 {
		switch req.TokenParam {
		case ParamMaxCompletionTokens:
			params.MaxCompletionTokens = openai.Int(req.MaxTokens)
		case ParamMaxTokens:
			params.MaxTokens = openai.Int(req.MaxTokens)
		}
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if p := rejectedParam(err); p != "" {
			return nil, &UnsupportedParamError{Param: p, Err: err}
		}
		return nil, eris.Wrap(err, "azureopenai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("azureopenai: no completion choices returned")
	}

	return &ChatResponse{
		ID:               resp.ID,
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func buildMessages(req ChatRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}

// rejectedParam returns the name of the parameter a 400 response complains
// about, or "" when the error is something else.
func rejectedParam(err error) string {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return ""
	}
	if isKnownParam(apiErr.Param) {
		return apiErr.Param
	}
	return ParamFromMessage(apiErr.Message + " " + err.Error())
}

func isKnownParam(p string) bool {
	switch p {
	case ParamReasoningEffort, ParamMaxTokens, ParamMaxCompletionTokens:
		return true
	}
	return false
}

// ParamFromMessage extracts a known parameter name from an API error message
// that says the parameter is unsupported or unrecognized.
func ParamFromMessage(msg string) string {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "unsupported") && !strings.Contains(lower, "unrecognized") &&
		!strings.Contains(lower, "not supported") {
		return ""
	}
	// The rejected name comes first; suggestions follow it.
	best, bestAt := "", -1
	for _, p := range []string{ParamMaxCompletionTokens, ParamReasoningEffort, ParamMaxTokens} {
		if i := strings.Index(lower, p); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = p, i
		}
	}
	return best
}
