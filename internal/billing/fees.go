package billing

import (
	"encoding/json"
	"strings"

	"github.com/noah-isme/backend-proposals/internal/pricing"
)

// DepositType discriminates how a deposit is derived from a proposal.
type DepositType string

const (
	// DepositPercentage collects a percentage of a chosen option's subtotal.
	DepositPercentage DepositType = "percentage"
	// DepositFixed collects a flat amount regardless of option choice.
	DepositFixed DepositType = "fixed"
)

// DepositConfig is the rule determining how much is collected upfront.
type DepositConfig struct {
	Type  DepositType `json:"type"`
	Value float64     `json:"value"`
}

// DefaultDepositConfig applies when a tenant has never chosen a deposit rule.
func DefaultDepositConfig() DepositConfig {
	return DepositConfig{Type: DepositPercentage, Value: 30}
}

// Deposit is the computed amount due together with the config that produced
// it. Config is nil when no deposit rule was in effect.
type Deposit struct {
	Amount float64        `json:"amount"`
	Config *DepositConfig `json:"config"`
}

// DepositParams tune a single ComputeDeposit invocation.
type DepositParams struct {
	// Override takes precedence over the proposal's stored config.
	Override *DepositConfig
	// OptionName selects the percentage basis by case-insensitive name.
	OptionName string
}

// ComputeDeposit derives the deposit due for a proposal. It never fails:
// a missing config, empty option list, or non-positive basis all degrade to
// a zero amount.
func ComputeDeposit(options []pricing.Option, configured *DepositConfig, params DepositParams) Deposit {
	cfg := params.Override
	if cfg == nil {
		cfg = configured
	}
	if cfg == nil {
		return Deposit{Amount: 0, Config: nil}
	}
	effective := *cfg
	switch effective.Type {
	case DepositFixed:
		value := effective.Value
		if value < 0 {
			value = 0
		}
		return Deposit{Amount: pricing.RoundCurrency(value), Config: &effective}
	case DepositPercentage:
		base, ok := selectBaseOption(options, params.OptionName)
		if !ok || base.Subtotal <= 0 {
			return Deposit{Amount: 0, Config: &effective}
		}
		amount := pricing.RoundCurrency(base.Subtotal * (effective.Value / 100))
		return Deposit{Amount: amount, Config: &effective}
	default:
		return Deposit{Amount: 0, Config: &effective}
	}
}

// selectBaseOption picks the percentage basis: the explicitly requested
// option when present, otherwise "Better", otherwise the first option.
func selectBaseOption(options []pricing.Option, name string) (pricing.Option, bool) {
	if len(options) == 0 {
		return pricing.Option{}, false
	}
	if strings.TrimSpace(name) != "" {
		for _, opt := range options {
			if strings.EqualFold(opt.Name, name) {
				return opt, true
			}
		}
	}
	for _, opt := range options {
		if strings.EqualFold(opt.Name, "Better") {
			return opt, true
		}
	}
	return options[0], true
}

// SubscriptionTier names from the billing plans.
const (
	TierLaunch = "launch"
	TierPro    = "pro"
	TierCrew   = "crew"
)

// FeeContext carries the billing state consulted when computing the
// platform fee for a payment. Addons is an opaque bag; only the
// financing_boost key is consulted today.
type FeeContext struct {
	Tier       string         `json:"tier"`
	Addons     map[string]any `json:"addons"`
	IsFinanced bool           `json:"isFinanced"`
}

// ComputeFeePercent returns the platform fee percentage applied to a
// payment (3 means 3%). The financing-boost addon, when enabled, replaces
// the tier-based rate entirely: financed payments are free, everything
// else pays 0.5%.
func ComputeFeePercent(ctx FeeContext) float64 {
	if flagEnabled(ctx.Addons["financing_boost"]) {
		if ctx.IsFinanced {
			return 0
		}
		return 0.5
	}
	if ctx.Tier == TierLaunch {
		return 3
	}
	return 1
}

// flagEnabled coerces the loosely typed addon values that reach us from
// JSON columns: boolean true, the string "true" in any case, and the
// number 1 all count as enabled.
func flagEnabled(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return strings.EqualFold(value, "true")
	case float64:
		return value == 1
	case float32:
		return value == 1
	case int:
		return value == 1
	case int32:
		return value == 1
	case int64:
		return value == 1
	case json.Number:
		parsed, err := value.Float64()
		return err == nil && parsed == 1
	default:
		return false
	}
}
