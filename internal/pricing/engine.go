package pricing

import (
	"fmt"
	"math"
	"strings"
)

// RoundCurrency rounds a monetary value to cents, half away from zero.
// Non-finite inputs collapse to zero before rounding.
func RoundCurrency(v float64) float64 {
	return math.Round(finiteOrZero(v)*100) / 100
}

// finiteOrZero is the single coercion point for every numeric boundary in
// this package. Malformed numbers degrade to zero instead of failing the
// request.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// LineItem is a raw estimate line as supplied by the caller.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unitPrice"`
	Cost        *float64 `json:"cost,omitempty"`
}

// Normalize coerces every numeric field of the provided line items to a
// finite number and rounds monetary fields to cents. The result has the
// same length and order as the input; nothing is dropped or deduplicated.
func Normalize(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		normalized := LineItem{
			Description: it.Description,
			Quantity:    finiteOrZero(it.Quantity),
			UnitPrice:   RoundCurrency(it.UnitPrice),
		}
		if it.Cost != nil {
			cost := RoundCurrency(*it.Cost)
			normalized.Cost = &cost
		}
		out[i] = normalized
	}
	return out
}

// Tier describes one pricing tier applied on top of the QuickQuote baseline.
type Tier struct {
	Name    string  `json:"name"`
	Factor  float64 `json:"factor"`
	Summary string  `json:"summary"`
}

// tierTable is part of the observable contract: the names, factors, summary
// strings, and the order all surface verbatim in generated proposals.
var tierTable = [3]Tier{
	{Name: "Good", Factor: 0.85, Summary: "Value-focused essentials to win price-sensitive clients."},
	{Name: "Better", Factor: 1.00, Summary: "Balanced scope aligned with your QuickQuote baseline."},
	{Name: "Best", Factor: 1.20, Summary: "Premium upgrade package for maximum client delight."},
}

// Tiers returns the tier multiplier table in presentation order.
func Tiers() []Tier {
	return append([]Tier(nil), tierTable[:]...)
}

// OptionLineItem is a line item priced under a specific tier.
type OptionLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unitCost"`
	Total       float64 `json:"total"`
}

// Option is one priced tier of a proposal. Multiplier is nil when the
// option was hand-edited rather than derived from the tier table.
type Option struct {
	Name       string           `json:"name"`
	Summary    string           `json:"summary"`
	Multiplier *float64         `json:"multiplier"`
	LineItems  []OptionLineItem `json:"lineItems"`
	Subtotal   float64          `json:"subtotal"`
}

// Total pairs an option name with its subtotal for presentation.
type Total struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Proposal is the full three-tier output of Generate.
type Proposal struct {
	Options []Option `json:"options"`
	Totals  []Total  `json:"totals"`
}

// Branding carries optional presentation overrides for generation.
type Branding struct {
	BusinessName string `json:"businessName,omitempty"`
}

// BuildOption prices the provided line items under a single tier. The unit
// cost is rounded first and the line total is derived from the rounded unit
// cost; totals therefore differ at the penny level from multiplying the raw
// values through, which is the behavior clients reconcile against.
func BuildOption(items []LineItem, tier Tier) Option {
	lines := make([]OptionLineItem, 0, len(items))
	var sum float64
	for _, it := range items {
		unitCost := RoundCurrency(finiteOrZero(it.UnitPrice) * finiteOrZero(tier.Factor))
		total := RoundCurrency(unitCost * finiteOrZero(it.Quantity))
		lines = append(lines, OptionLineItem{
			Description: it.Description,
			Quantity:    finiteOrZero(it.Quantity),
			UnitCost:    unitCost,
			Total:       total,
		})
		sum += total
	}
	factor := tier.Factor
	return Option{
		Name:       tier.Name,
		Summary:    tier.Summary,
		Multiplier: &factor,
		LineItems:  lines,
		Subtotal:   RoundCurrency(sum),
	}
}

// Generate builds the full Good/Better/Best proposal from raw line items.
// When branding carries a business name the summary of the option at index 2
// is replaced; this targets the position, not the "Best" name, so reordering
// the tier table would brand a different tier.
func Generate(items []LineItem, branding *Branding) Proposal {
	normalized := Normalize(items)
	options := make([]Option, 0, len(tierTable))
	for _, tier := range tierTable {
		options = append(options, BuildOption(normalized, tier))
	}
	if branding != nil && strings.TrimSpace(branding.BusinessName) != "" && len(options) >= 3 {
		options[2].Summary = fmt.Sprintf("%s's signature upgrade experience.", branding.BusinessName)
	}
	totals := make([]Total, 0, len(options))
	for _, opt := range options {
		totals = append(totals, Total{Name: opt.Name, Total: opt.Subtotal})
	}
	return Proposal{Options: options, Totals: totals}
}
