package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func testRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"o1":        {Input: 5.00, Output: 20.00},
			"gpt-4o":    {Input: 2.50, Output: 10.00},
			"sonar":     {Input: 1.00, Output: 1.00, Search: 5.00, DefaultSearches: 1},
			"sonar-pro": {Input: 3.00, Output: 15.00, Search: 5.00, DefaultSearches: 3},
		},
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{name: "o1 one million each", model: "o1", input: 1_000_000, output: 1_000_000, want: 25.00},
		{name: "gpt-4o small", model: "gpt-4o", input: 1000, output: 500, want: 0.0025 + 0.005},
		{name: "dated snapshot uses base price", model: "gpt-4o-2024-08-06", input: 1_000_000, output: 0, want: 2.50},
		{name: "unknown model", model: "mystery", input: 1_000_000, output: 1_000_000, want: 0},
		{name: "zero tokens", model: "o1", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Tokens(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestUsage_SearchFee(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	// Reported searches are billed at $5 per 1000.
	got := calc.Usage("sonar-pro", model.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, Searches: 2})
	assert.InDelta(t, 0.003+0.015+0.010, got, 1e-9)

	// Missing search count falls back to the model default.
	got = calc.Usage("sonar-pro", model.TokenUsage{})
	assert.InDelta(t, 0.015, got, 1e-9)

	// Longest prefix wins: sonar-pro is not priced as sonar.
	got = calc.Usage("sonar", model.TokenUsage{})
	assert.InDelta(t, 0.005, got, 1e-9)

	// Non-search models pay no fee.
	assert.InDelta(t, 0, calc.Usage("gpt-4o", model.TokenUsage{}), 1e-12)
}

func TestRecord_OrderIndependent(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	rec := model.Record{model.KeyEmail: "a@x.com"}
	rec.SetUsage("company_background", model.TokenUsage{PromptTokens: 2000, CompletionTokens: 800, TotalTokens: 2800})
	rec.SetUsage("email_output_final", model.TokenUsage{PromptTokens: 5000, CompletionTokens: 3000, TotalTokens: 8000})
	rec.SetUsage("background", model.TokenUsage{PromptTokens: 300, CompletionTokens: 900, TotalTokens: 1200, Searches: 3})

	fields := []Field{
		{Key: "company_background", Model: "gpt-4o"},
		{Key: "email_output_final", Model: "o1"},
		{Key: "background", Model: "sonar-pro"},
		{Key: "never_ran", Model: "o1"},
	}
	reversed := []Field{fields[3], fields[2], fields[1], fields[0]}

	want := calc.Tokens("gpt-4o", 2000, 800) +
		calc.Tokens("o1", 5000, 3000) +
		calc.Usage("sonar-pro", model.TokenUsage{PromptTokens: 300, CompletionTokens: 900, Searches: 3})

	assert.InDelta(t, want, calc.Record(rec, fields), 1e-12)
	assert.InDelta(t, calc.Record(rec, fields), calc.Record(rec, reversed), 1e-12)
}

func TestRecord_UnknownModelContributesZero(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	rec := model.Record{}
	rec.SetUsage("x", model.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.InDelta(t, 0, calc.Record(rec, []Field{{Key: "x", Model: "mystery"}}), 1e-12)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	merged := DefaultRates().Merge(Rates{Models: map[string]ModelRate{
		"gpt-4o":     {Input: 1, Output: 2},
		"custom-llm": {Input: 3, Output: 4},
	}})
	assert.InDelta(t, 1.0, merged.Models["gpt-4o"].Input, 1e-9)
	assert.InDelta(t, 3.0, merged.Models["custom-llm"].Input, 1e-9)
	assert.InDelta(t, 5.0, merged.Models["o1"].Input, 1e-9)

	// Receiver is not mutated.
	assert.InDelta(t, 2.50, DefaultRates().Models["gpt-4o"].Input, 1e-9)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	r := DefaultRates()

	for _, name := range []string{"o1", "o3-mini", "gpt-4o", "sonar", "sonar-pro", "sonar-reasoning", "sonar-reasoning-pro"} {
		_, ok := r.Models[name]
		assert.True(t, ok, "missing rate for %s", name)
	}
	assert.Equal(t, 3, r.Models["sonar-reasoning-pro"].DefaultSearches)
	assert.Equal(t, 1, r.Models["sonar"].DefaultSearches)
}
