package completion

import (
	"strings"
	"time"
)

// Family groups models that share request parameter policy.
type Family int

const (
	FamilyUnknown Family = iota
	// FamilyHeavy is the slowest reasoning tier (o1, Claude Opus).
	FamilyHeavy
	// FamilyLight is the lightweight reasoning tier (o3/o4-mini, sonar-reasoning, Claude Sonnet).
	FamilyLight
	// FamilyFast is the non-reasoning tier (gpt-4o, gpt-4.1, sonar, Claude Haiku).
	FamilyFast
)

func (f Family) String() string {
	switch f {
	case FamilyHeavy:
		return "heavy"
	case FamilyLight:
		return "light"
	case FamilyFast:
		return "fast"
	default:
		return "unknown"
	}
}

// Token limit parameter names.
const (
	TokenParamMaxTokens           = "max_tokens"
	TokenParamMaxCompletionTokens = "max_completion_tokens"
	ParamReasoningEffort          = "reasoning_effort"
)

// Policy is the per-family request shape.
type Policy struct {
	Family     Family
	Effort     string
	Timeout    time.Duration
	TokenParam string
}

var policies = map[Family]Policy{
	FamilyHeavy: {
		Family:     FamilyHeavy,
		Effort:     "high",
		Timeout:    10 * time.Minute,
		TokenParam: TokenParamMaxCompletionTokens,
	},
	FamilyLight: {
		Family:     FamilyLight,
		Effort:     "medium",
		Timeout:    100 * time.Minute,
		TokenParam: TokenParamMaxCompletionTokens,
	},
	FamilyFast: {
		Family:     FamilyFast,
		Timeout:    5 * time.Minute,
		TokenParam: TokenParamMaxTokens,
	},
	FamilyUnknown: {
		Family:  FamilyUnknown,
		Timeout: 60 * time.Second,
	},
}

// familyPrefixes maps model name prefixes to families. The longest matching
// prefix wins, so sonar-reasoning is not classified as sonar.
var familyPrefixes = map[string]Family{
	"o1":              FamilyHeavy,
	"claude-opus":     FamilyHeavy,
	"o3":              FamilyLight,
	"o4-mini":         FamilyLight,
	"sonar-reasoning": FamilyLight,
	"claude-sonnet":   FamilyLight,
	"gpt-4o":          FamilyFast,
	"gpt-4.1":         FamilyFast,
	"sonar":           FamilyFast,
	"claude-haiku":    FamilyFast,
}

// FamilyOf classifies a model identifier.
func FamilyOf(model string) Family {
	best, fam := "", FamilyUnknown
	for prefix, f := range familyPrefixes {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, fam = prefix, f
		}
	}
	return fam
}

// PolicyFor returns the request policy for a model.
func PolicyFor(model string) Policy {
	return policies[FamilyOf(model)]
}

// Provider names the API that serves a model.
type Provider string

const (
	ProviderAzure      Provider = "azure"
	ProviderPerplexity Provider = "perplexity"
	ProviderAnthropic  Provider = "anthropic"
)

// ProviderFor routes a model to its provider: sonar* to Perplexity, claude*
// to Anthropic, anything else to Azure OpenAI deployments.
func ProviderFor(model string) Provider {
	switch {
	case strings.HasPrefix(model, "sonar"):
		return ProviderPerplexity
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	default:
		return ProviderAzure
	}
}
