// Package costs tracks provider spending against a monthly budget and
// flips the process-wide fallback flag when the budget is exhausted.
package costs

import (
	"github.com/shopspring/decimal"
)

// Operation names recorded with each usage event.
const (
	OpEmbedding     = "embedding"
	OpRerank        = "rerank"
	OpSynthesis     = "synthesis"
	OpContradiction = "contradiction"
)

// Unit is the billing unit for a price entry.
type Unit string

const (
	// UnitMillionTokens bills per million input tokens.
	UnitMillionTokens Unit = "million_tokens"
	// UnitRequest bills per API call, used by rerank providers.
	UnitRequest Unit = "request"
)

// Price is one immutable pricing table entry.
type Price struct {
	Provider string
	Model    string
	Unit     Unit
	Rate     decimal.Decimal
}

// pricingTable is keyed by provider/model. A "*" model entry is the
// provider default. The table is never mutated after init.
var pricingTable = map[string]Price{
	"openai/text-embedding-3-large": {Provider: "openai", Model: "text-embedding-3-large", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.13")},
	"openai/text-embedding-3-small": {Provider: "openai", Model: "text-embedding-3-small", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.02")},
	"openai/gpt-4o-mini":            {Provider: "openai", Model: "gpt-4o-mini", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.30")},
	"openai/*":                      {Provider: "openai", Model: "*", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.30")},

	"voyage/voyage-code-2": {Provider: "voyage", Model: "voyage-code-2", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.12")},
	"voyage/voyage-2":      {Provider: "voyage", Model: "voyage-2", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.10")},
	"voyage/*":             {Provider: "voyage", Model: "*", Unit: UnitMillionTokens, Rate: decimal.RequireFromString("0.12")},

	"cohere/rerank-english-v3.0": {Provider: "cohere", Model: "rerank-english-v3.0", Unit: UnitRequest, Rate: decimal.RequireFromString("0.002")},
	"cohere/*":                   {Provider: "cohere", Model: "*", Unit: UnitRequest, Rate: decimal.RequireFromString("0.002")},

	// Local providers cost nothing but their usage still shows up in
	// breakdowns.
	"ollama/*": {Provider: "ollama", Model: "*", Unit: UnitMillionTokens, Rate: decimal.Zero},
	"static/*": {Provider: "static", Model: "*", Unit: UnitMillionTokens, Rate: decimal.Zero},
	"local/*":  {Provider: "local", Model: "*", Unit: UnitMillionTokens, Rate: decimal.Zero},
}

var oneMillion = decimal.NewFromInt(1_000_000)

// PriceFor looks up the price entry for a provider/model pair, falling
// back to the provider default.
func PriceFor(provider, model string) (Price, bool) {
	if p, ok := pricingTable[provider+"/"+model]; ok {
		return p, true
	}
	if p, ok := pricingTable[provider+"/*"]; ok {
		return p, true
	}
	return Price{}, false
}

// CostOf computes the charge for a usage event. Unknown providers cost
// zero rather than failing the tracking path.
func CostOf(provider, model string, tokens int64, requests int) decimal.Decimal {
	price, ok := PriceFor(provider, model)
	if !ok {
		return decimal.Zero
	}

	switch price.Unit {
	case UnitRequest:
		return price.Rate.Mul(decimal.NewFromInt(int64(requests)))
	default:
		if tokens <= 0 {
			return decimal.Zero
		}
		return price.Rate.Mul(decimal.NewFromInt(tokens)).Div(oneMillion).Round(8)
	}
}
