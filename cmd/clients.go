package main

import (
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/completion"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/azureopenai"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// anthropicMaxTokens is sent when a stage sets no token limit; the Messages
// API requires one.
const anthropicMaxTokens = 4096

// initCompleter builds the completion client for every provider. Offline
// mode answers every call locally.
func initCompleter(c *config.Config, offline bool) completion.Completer {
	opts := []completion.Option{
		completion.WithPacer(completion.NewPacer(c.Completion.PaceFactor, c.Completion.RPM)),
		completion.WithRetry(resilience.RetryConfig{
			MaxAttempts:    max(c.Completion.RetryAttempts, 1),
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
		}),
	}

	if offline || c.Completion.Offline {
		zap.L().Info("completion: offline mode, answering locally")
		client, _ := completion.NewStubClient(opts...)
		return client
	}

	var anthropicOpts []anthropicopt.RequestOption
	if c.Anthropic.BaseURL != "" {
		anthropicOpts = append(anthropicOpts, anthropicopt.WithBaseURL(c.Anthropic.BaseURL))
	}

	var pplxOpts []perplexity.Option
	if c.Perplexity.BaseURL != "" {
		pplxOpts = append(pplxOpts, perplexity.WithBaseURL(c.Perplexity.BaseURL))
	}

	opts = append(opts,
		completion.WithBackend(completion.ProviderAzure, &completion.AzureBackend{
			Client: azureopenai.NewClient(c.Azure.Endpoint, c.Azure.APIVersion, c.Azure.Key),
		}),
		completion.WithBackend(completion.ProviderPerplexity, &completion.PerplexityBackend{
			Client: perplexity.NewClient(c.Perplexity.Key, pplxOpts...),
			Params: completion.SearchParams{
				Temperature:      c.Perplexity.Temperature,
				TopP:             c.Perplexity.TopP,
				TopK:             c.Perplexity.TopK,
				FrequencyPenalty: c.Perplexity.FrequencyPenalty,
				PresencePenalty:  c.Perplexity.PresencePenalty,
			},
		}),
		completion.WithBackend(completion.ProviderAnthropic, &completion.AnthropicBackend{
			Client:           anthropic.NewClient(c.Anthropic.Key, anthropicOpts...),
			DefaultMaxTokens: anthropicMaxTokens,
		}),
	)
	return completion.NewClient(opts...)
}

// pricing returns the built-in price table with the configured overrides.
func pricing(c *config.Config) cost.Rates {
	overrides := cost.Rates{Models: make(map[string]cost.ModelRate, len(c.Pricing.Models))}
	for name, p := range c.Pricing.Models {
		overrides.Models[name] = cost.ModelRate{
			Input:           p.Input,
			Output:          p.Output,
			Search:          p.Search,
			DefaultSearches: p.DefaultSearches,
		}
	}
	return cost.DefaultRates().Merge(overrides)
}
