package completion

import (
	"context"
	"errors"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/azureopenai"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// AzureBackend serves OpenAI models deployed on Azure.
type AzureBackend struct {
	Client azureopenai.Client
}

func (b *AzureBackend) Complete(ctx context.Context, call Call) (*Result, error) {
	resp, err := b.Client.ChatCompletion(ctx, azureopenai.ChatRequest{
		Deployment:      call.Model,
		System:          call.System,
		Prompt:          call.Prompt,
		TokenParam:      call.TokenParam,
		MaxTokens:       call.MaxTokens,
		ReasoningEffort: call.Effort,
	})
	if err != nil {
		var up *azureopenai.UnsupportedParamError
		if errors.As(err, &up) {
			return nil, &UnsupportedParamError{Param: up.Param, Err: err}
		}
		return nil, err
	}
	return &Result{
		Text: resp.Content,
		Usage: model.TokenUsage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
		},
	}, nil
}

// SearchParams are the sampling settings sent with every search query.
type SearchParams struct {
	Temperature      float64
	TopP             float64
	TopK             int
	FrequencyPenalty float64
	PresencePenalty  float64
}

// PerplexityBackend serves the sonar search models. Reasoning effort has no
// equivalent there and is dropped.
type PerplexityBackend struct {
	Client perplexity.Client
	Params SearchParams
}

func (b *PerplexityBackend) Complete(ctx context.Context, call Call) (*Result, error) {
	p := b.Params
	req := perplexity.ChatCompletionRequest{
		Model:            call.Model,
		Temperature:      &p.Temperature,
		TopP:             &p.TopP,
		TopK:             &p.TopK,
		FrequencyPenalty: &p.FrequencyPenalty,
		PresencePenalty:  &p.PresencePenalty,
	}
	if call.System != "" {
		req.Messages = append(req.Messages, perplexity.Message{Role: "system", Content: call.System})
	}
	req.Messages = append(req.Messages, perplexity.Message{Role: "user", Content: call.Prompt})
	if call.TokenParam != "" && call.MaxTokens > 0 {
		n := int(call.MaxTokens)
		req.MaxTokens = &n
	}

	resp, err := b.Client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("perplexity: no choices returned")
	}
	return &Result{
		Text:      perplexity.StripThinking(resp.Content()),
		Citations: resp.Citations,
		Usage: model.TokenUsage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(resp.Usage.TotalTokens),
			Searches:         int64(resp.Usage.NumSearchQueries),
		},
	}, nil
}

// AnthropicBackend serves Claude models. The Messages API requires a token
// limit, so calls without one get DefaultMaxTokens.
type AnthropicBackend struct {
	Client           anthropic.Client
	DefaultMaxTokens int64
}

func (b *AnthropicBackend) Complete(ctx context.Context, call Call) (*Result, error) {
	maxTokens := call.MaxTokens
	if call.TokenParam == "" || maxTokens <= 0 {
		maxTokens = b.DefaultMaxTokens
		if maxTokens <= 0 {
			maxTokens = 4000
		}
	}
	resp, err := b.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     call.Model,
		MaxTokens: maxTokens,
		System:    call.System,
		Messages:  []anthropic.Message{{Role: "user", Content: call.Prompt}},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Text: resp.Text(),
		Usage: model.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
