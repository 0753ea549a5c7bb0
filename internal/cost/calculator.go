package cost

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Rates holds the pricing table keyed by model identifier.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model pricing. Token prices are USD per million
// tokens; Search is USD per thousand searches.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
	Search float64 `yaml:"search" mapstructure:"search"`
	// DefaultSearches is billed when a response does not report its own
	// search count.
	DefaultSearches int `yaml:"default_searches" mapstructure:"default_searches"`
}

// Field pairs an output key with the model that produced it.
type Field struct {
	Key   string
	Model string
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rate looks up a model by exact name, then by the longest configured name
// that prefixes it (dated snapshots price like their base model).
func (c *Calculator) Rate(modelName string) (ModelRate, bool) {
	if r, ok := c.rates.Models[modelName]; ok {
		return r, true
	}
	best := ""
	for name := range c.rates.Models {
		if strings.HasPrefix(modelName, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates.Models[best], true
}

// Tokens computes the token cost of one call. Unknown models cost 0.
func (c *Calculator) Tokens(modelName string, input, output int64) float64 {
	rate, ok := c.Rate(modelName)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Usage computes the cost of one call including any search fee.
func (c *Calculator) Usage(modelName string, u model.TokenUsage) float64 {
	rate, ok := c.Rate(modelName)
	if !ok {
		return 0
	}
	total := c.Tokens(modelName, u.PromptTokens, u.CompletionTokens)
	if rate.Search > 0 {
		searches := u.Searches
		if searches == 0 {
			searches = int64(rate.DefaultSearches)
		}
		total += (float64(searches) / 1000) * rate.Search
	}
	return total
}

// Record sums the cost of every listed output key from the usage counters
// stored on the record.
func (c *Calculator) Record(rec model.Record, fields []Field) float64 {
	var total float64
	for _, f := range fields {
		if !rec.Has(f.Key + "_prompt_tokens") {
			continue
		}
		total += c.Usage(f.Model, rec.Usage(f.Key))
	}
	return total
}

// Merge returns a copy of r with the entries of o added or replaced.
func (r Rates) Merge(o Rates) Rates {
	out := Rates{Models: make(map[string]ModelRate, len(r.Models)+len(o.Models))}
	for k, v := range r.Models {
		out.Models[k] = v
	}
	for k, v := range o.Models {
		out.Models[k] = v
	}
	return out
}

// DefaultRates returns the built-in pricing table.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"o1":      {Input: 5.00, Output: 20.00},
			"o3-mini": {Input: 1.10, Output: 4.40},
			"o4-mini": {Input: 1.10, Output: 4.40},
			"gpt-4o":  {Input: 2.50, Output: 10.00},
			"gpt-4.1": {Input: 2.00, Output: 8.00},

			"sonar-reasoning-pro": {Input: 2.00, Output: 8.00, Search: 5.00, DefaultSearches: 3},
			"sonar-reasoning":     {Input: 1.00, Output: 5.00, Search: 5.00, DefaultSearches: 1},
			"sonar-pro":           {Input: 3.00, Output: 15.00, Search: 5.00, DefaultSearches: 3},
			"sonar":               {Input: 1.00, Output: 1.00, Search: 5.00, DefaultSearches: 1},

			"claude-haiku-4-5":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":   {Input: 15.00, Output: 75.00},
		},
	}
}
