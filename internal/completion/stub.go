package completion

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/outreach-cli/internal/model"
)

// StubBackend answers every call locally with the prompt reversed. Token
// counts are the prompt's word count for both input and output. It backs
// offline runs and tests.
type StubBackend struct {
	mu    sync.Mutex
	calls []Call
}

// Complete implements Backend.
func (s *StubBackend) Complete(_ context.Context, call Call) (*Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	words := int64(len(strings.Fields(call.Prompt)))
	return &Result{
		Text: Reverse(call.Prompt),
		Usage: model.TokenUsage{
			PromptTokens:     words,
			CompletionTokens: words,
			TotalTokens:      2 * words,
		},
	}, nil
}

// Calls returns the calls received so far.
func (s *StubBackend) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Reverse returns s with its runes in reverse order.
func Reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// NewStubClient returns a Client whose every provider is one StubBackend.
func NewStubClient(opts ...Option) (*Client, *StubBackend) {
	stub := &StubBackend{}
	base := []Option{
		WithBackend(ProviderAzure, stub),
		WithBackend(ProviderPerplexity, stub),
		WithBackend(ProviderAnthropic, stub),
	}
	return NewClient(append(base, opts...)...), stub
}
