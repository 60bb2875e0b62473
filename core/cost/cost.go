// Package cost turns token counts into money. It holds the static pricing
// table with its pattern-based tier fallback, builds append-only usage
// records, and can estimate token counts when a backend fails to report them.
package cost

import (
	"strings"

	"github.com/relayai/relay/providers/ai"
)

// Pricing is a model's price in USD per one million tokens.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// cost applies the per-million formula.
func (p Pricing) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*(p.InputPerMillion/1_000_000) +
		float64(outputTokens)*(p.OutputPerMillion/1_000_000)
}

// exactPrices is the static table, keyed by full model identifier. Dated
// snapshot variants of a model id resolve through the pattern tiers below,
// so only the canonical ids are listed.
var exactPrices = map[string]Pricing{
	// Anthropic
	"claude-opus-4-1":   {15.00, 75.00},
	"claude-opus-4-0":   {15.00, 75.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-sonnet-4-0": {3.00, 15.00},
	"claude-haiku-4-5":  {1.00, 5.00},
	"claude-3-5-haiku":  {0.80, 4.00},

	// OpenAI
	"gpt-4o":      {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4.1":     {2.00, 8.00},
	"gpt-4-turbo": {10.00, 30.00},
	"o3":          {2.00, 8.00},
	"o4-mini":     {1.10, 4.40},

	// Others
	"deepseek-chat":         {0.27, 1.10},
	"deepseek-reasoner":     {0.55, 2.19},
	"mistral-large-latest":  {2.00, 6.00},
	"mistral-small-latest":  {0.10, 0.30},
	"llama-3.3-70b-versatile": {0.59, 0.79},
}

// tierPatterns resolve model families by substring when no exact entry
// matches: any id containing "opus" prices at the opus tier regardless of
// vendor prefix or date suffix, and so on. Order matters: first hit wins.
var tierPatterns = []struct {
	substring string
	pricing   Pricing
}{
	{"opus", Pricing{15.00, 75.00}},
	{"sonnet", Pricing{3.00, 15.00}},
	{"haiku", Pricing{0.80, 4.00}},
	{"gpt-4o-mini", Pricing{0.15, 0.60}},
	{"gpt-4o", Pricing{2.50, 10.00}},
	{"gpt-4", Pricing{2.00, 8.00}},
	{"deepseek", Pricing{0.27, 1.10}},
	{"mistral", Pricing{2.00, 6.00}},
}

// Calculator maps (model id, token counts) to cost. The zero value is not
// usable; construct with NewCalculator.
type Calculator struct {
	exact    map[string]Pricing
	patterns []struct {
		substring string
		pricing   Pricing
	}
}

// NewCalculator returns a Calculator backed by the static pricing table.
func NewCalculator() *Calculator {
	return &Calculator{exact: exactPrices, patterns: tierPatterns}
}

// Cost computes the cost of an exchange. Lookup order: exact table match,
// then substring tier fallback, then zero for anything unmatched; local and
// free-tier backends price at zero by falling through. The result is never
// negative.
func (c *Calculator) Cost(modelID string, inputTokens, outputTokens int) float64 {
	return c.CostWithOverride(modelID, nil, inputTokens, outputTokens)
}

// CostWithOverride is Cost with a caller-supplied per-model override, which
// slots between the exact table and the pattern fallback.
func (c *Calculator) CostWithOverride(modelID string, override *ai.ModelDescriptor, inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	if pricing, ok := c.exact[modelID]; ok {
		return pricing.cost(inputTokens, outputTokens)
	}

	if override != nil && override.InputCostPerMillion != nil && override.OutputCostPerMillion != nil {
		pricing := Pricing{
			InputPerMillion:  *override.InputCostPerMillion,
			OutputPerMillion: *override.OutputCostPerMillion,
		}
		if pricing.InputPerMillion >= 0 && pricing.OutputPerMillion >= 0 {
			return pricing.cost(inputTokens, outputTokens)
		}
	}

	lowered := strings.ToLower(modelID)
	for _, pattern := range c.patterns {
		if strings.Contains(lowered, pattern.substring) {
			return pattern.pricing.cost(inputTokens, outputTokens)
		}
	}

	return 0
}

// CostForProvider prices an exchange in the context of a provider snapshot:
// subscription-billed providers are forced to zero regardless of token
// counts, and the snapshot's model list supplies per-model overrides.
func (c *Calculator) CostForProvider(snapshot *ai.Snapshot, modelID string, inputTokens, outputTokens int) float64 {
	if snapshot != nil && snapshot.SubscriptionBilling {
		return 0
	}

	var override *ai.ModelDescriptor
	if snapshot != nil {
		for i := range snapshot.Models {
			if snapshot.Models[i].ID == modelID {
				override = &snapshot.Models[i]
				break
			}
		}
	}

	return c.CostWithOverride(modelID, override, inputTokens, outputTokens)
}
