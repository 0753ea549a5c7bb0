package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/azureopenai"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

type fakeAzure struct {
	got  azureopenai.ChatRequest
	resp *azureopenai.ChatResponse
	err  error
}

func (f *fakeAzure) ChatCompletion(_ context.Context, req azureopenai.ChatRequest) (*azureopenai.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakePerplexity struct {
	got  perplexity.ChatCompletionRequest
	resp *perplexity.ChatCompletionResponse
	err  error
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeAnthropic struct {
	got  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestAzureBackend(t *testing.T) {
	t.Parallel()

	fake := &fakeAzure{resp: &azureopenai.ChatResponse{
		Content: "Hi there", PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42,
	}}
	b := &AzureBackend{Client: fake}

	res, err := b.Complete(context.Background(), Call{
		Model: "o1", System: "sys", Prompt: "write", MaxTokens: 10000,
		TokenParam: TokenParamMaxCompletionTokens, Effort: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)
	assert.Equal(t, int64(42), res.Usage.TotalTokens)
	assert.Equal(t, azureopenai.ChatRequest{
		Deployment: "o1", System: "sys", Prompt: "write",
		TokenParam: TokenParamMaxCompletionTokens, MaxTokens: 10000, ReasoningEffort: "high",
	}, fake.got)
}

func TestAzureBackend_MapsUnsupportedParam(t *testing.T) {
	t.Parallel()

	fake := &fakeAzure{err: &azureopenai.UnsupportedParamError{Param: ParamReasoningEffort, Err: errors.New("400")}}
	_, err := (&AzureBackend{Client: fake}).Complete(context.Background(), Call{Model: "gpt-4o"})

	var up *UnsupportedParamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, ParamReasoningEffort, up.Param)
}

func TestPerplexityBackend(t *testing.T) {
	t.Parallel()

	fake := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: "<think>hmm</think>\nAcme builds rockets [1]."}}},
		Citations: []string{"https://acme.example"},
		Usage:     perplexity.Usage{PromptTokens: 20, CompletionTokens: 80, TotalTokens: 100, NumSearchQueries: 2},
	}}
	b := &PerplexityBackend{Client: fake, Params: SearchParams{Temperature: 0.2, TopP: 0.9, FrequencyPenalty: 1}}

	res, err := b.Complete(context.Background(), Call{Model: "sonar-reasoning-pro", Prompt: "research Acme", Effort: "medium"})
	require.NoError(t, err)
	assert.Equal(t, "Acme builds rockets [1].", res.Text)
	assert.Equal(t, []string{"https://acme.example"}, res.Citations)
	assert.Equal(t, int64(2), res.Usage.Searches)
	assert.Equal(t, int64(100), res.Usage.TotalTokens)

	require.Len(t, fake.got.Messages, 1)
	assert.Equal(t, "user", fake.got.Messages[0].Role)
	assert.Nil(t, fake.got.MaxTokens)
	require.NotNil(t, fake.got.Temperature)
	assert.InDelta(t, 0.2, *fake.got.Temperature, 1e-9)
	require.NotNil(t, fake.got.FrequencyPenalty)
	assert.InDelta(t, 1.0, *fake.got.FrequencyPenalty, 1e-9)
}

func TestPerplexityBackend_SystemAndMaxTokens(t *testing.T) {
	t.Parallel()

	fake := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "ok"}}},
	}}
	b := &PerplexityBackend{Client: fake}

	_, err := b.Complete(context.Background(), Call{
		Model: "sonar-pro", System: "be brief", Prompt: "q",
		TokenParam: TokenParamMaxTokens, MaxTokens: 500,
	})
	require.NoError(t, err)
	require.Len(t, fake.got.Messages, 2)
	assert.Equal(t, "system", fake.got.Messages[0].Role)
	require.NotNil(t, fake.got.MaxTokens)
	assert.Equal(t, 500, *fake.got.MaxTokens)
}

func TestPerplexityBackend_NoChoices(t *testing.T) {
	t.Parallel()

	b := &PerplexityBackend{Client: &fakePerplexity{resp: &perplexity.ChatCompletionResponse{}}}
	_, err := b.Complete(context.Background(), Call{Model: "sonar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestAnthropicBackend(t *testing.T) {
	t.Parallel()

	fake := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Dear Ana,"}},
		Usage:   anthropic.TokenUsage{InputTokens: 9, OutputTokens: 3},
	}}
	b := &AnthropicBackend{Client: fake}

	res, err := b.Complete(context.Background(), Call{Model: "claude-haiku-4-5", System: "sys", Prompt: "draft"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Ana,", res.Text)
	assert.Equal(t, int64(9), res.Usage.PromptTokens)
	assert.Equal(t, int64(4000), fake.got.MaxTokens)
	assert.Equal(t, "sys", fake.got.System)

	_, err = b.Complete(context.Background(), Call{Model: "claude-haiku-4-5", Prompt: "draft", TokenParam: TokenParamMaxTokens, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, int64(256), fake.got.MaxTokens)
}

func TestPacerInterval(t *testing.T) {
	t.Parallel()

	factor, gpt4oRPM := 3.0, 2700.0
	p := NewPacer(factor, map[string]int{"o1": 500, "gpt-4o": int(gpt4oRPM), "o3-mini": 500})
	assert.Equal(t, 360*time.Millisecond, p.Interval("o1"))
	assert.Equal(t, 360*time.Millisecond, p.Interval("o3-mini"))
	assert.Equal(t, time.Duration(factor*float64(time.Minute)/gpt4oRPM), p.Interval("gpt-4o-2024-08-06"))
	assert.Zero(t, p.Interval("sonar-pro"))

	assert.Zero(t, NewPacer(0, map[string]int{"o1": 500}).Interval("o1"))

	var nilPacer *Pacer
	assert.Zero(t, nilPacer.Interval("o1"))
	assert.NoError(t, nilPacer.Wait(context.Background(), "o1"))
}

func TestPacerWait(t *testing.T) {
	t.Parallel()

	p := NewPacer(1, map[string]int{"gpt-4o": 1200})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "gpt-4o"))
	require.NoError(t, p.Wait(ctx, "gpt-4o"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	require.NoError(t, p.Wait(ctx, "sonar"))
}

func TestPacerWait_ContextCancelled(t *testing.T) {
	t.Parallel()

	p := NewPacer(1, map[string]int{"o1": 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx, "o1"))
	cancel()
	assert.Error(t, p.Wait(ctx, "o1"))
}
