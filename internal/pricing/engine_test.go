package pricing

import (
	"math"
	"reflect"
	"testing"
)

func TestBuildOptionMultipliers(t *testing.T) {
	items := Normalize([]LineItem{{Description: "Deck", Quantity: 2, UnitPrice: 100}})
	cases := []struct {
		tier     string
		unitCost float64
		total    float64
	}{
		{"Good", 85.00, 170.00},
		{"Better", 100.00, 200.00},
		{"Best", 120.00, 240.00},
	}
	for _, tc := range cases {
		opt := BuildOption(items, tierByName(t, tc.tier))
		if len(opt.LineItems) != 1 {
			t.Fatalf("%s: expected 1 line item, got %d", tc.tier, len(opt.LineItems))
		}
		if got := opt.LineItems[0].UnitCost; got != tc.unitCost {
			t.Fatalf("%s: expected unit cost %.2f, got %.2f", tc.tier, tc.unitCost, got)
		}
		if got := opt.LineItems[0].Total; got != tc.total {
			t.Fatalf("%s: expected total %.2f, got %.2f", tc.tier, tc.total, got)
		}
		if opt.Subtotal != tc.total {
			t.Fatalf("%s: expected subtotal %.2f, got %.2f", tc.tier, tc.total, opt.Subtotal)
		}
	}
}

func TestBuildOptionDeterministic(t *testing.T) {
	items := Normalize([]LineItem{
		{Description: "Framing", Quantity: 3.5, UnitPrice: 42.37},
		{Description: "Railing", Quantity: 12, UnitPrice: 19.99},
	})
	tier := tierByName(t, "Best")
	first := BuildOption(items, tier)
	second := BuildOption(items, tier)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %+v vs %+v", first, second)
	}
}

func TestSubtotalSumsRoundedTotals(t *testing.T) {
	// 0.85 * 33.33 = 28.3305 -> 28.33 per unit; totals must be derived from
	// the rounded unit cost, not the raw product.
	items := Normalize([]LineItem{
		{Description: "a", Quantity: 3, UnitPrice: 33.33},
		{Description: "b", Quantity: 7, UnitPrice: 10.01},
	})
	opt := BuildOption(items, tierByName(t, "Good"))
	var want float64
	for _, line := range opt.LineItems {
		if line.Total != RoundCurrency(line.UnitCost*line.Quantity) {
			t.Fatalf("line total %.2f not derived from rounded unit cost", line.Total)
		}
		want += line.Total
	}
	if opt.Subtotal != RoundCurrency(want) {
		t.Fatalf("expected subtotal %.2f, got %.2f", RoundCurrency(want), opt.Subtotal)
	}
}

func TestGenerateThreeTiers(t *testing.T) {
	proposal := Generate([]LineItem{{Description: "Deck", Quantity: 1, UnitPrice: 1000}}, nil)
	if len(proposal.Options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(proposal.Options))
	}
	wantNames := []string{"Good", "Better", "Best"}
	wantSubtotals := []float64{850.00, 1000.00, 1200.00}
	for i, opt := range proposal.Options {
		if opt.Name != wantNames[i] {
			t.Fatalf("option %d: expected name %s, got %s", i, wantNames[i], opt.Name)
		}
		if opt.Subtotal != wantSubtotals[i] {
			t.Fatalf("option %d: expected subtotal %.2f, got %.2f", i, wantSubtotals[i], opt.Subtotal)
		}
		if proposal.Totals[i].Name != opt.Name || proposal.Totals[i].Total != opt.Subtotal {
			t.Fatalf("totals[%d] does not mirror option: %+v", i, proposal.Totals[i])
		}
	}
}

func TestGenerateBrandingTargetsThirdOption(t *testing.T) {
	items := []LineItem{{Description: "Deck", Quantity: 1, UnitPrice: 1000}}
	plain := Generate(items, nil)
	branded := Generate(items, &Branding{BusinessName: "Acme"})
	if branded.Options[0].Summary != plain.Options[0].Summary {
		t.Fatalf("first option summary changed: %q", branded.Options[0].Summary)
	}
	if branded.Options[1].Summary != plain.Options[1].Summary {
		t.Fatalf("second option summary changed: %q", branded.Options[1].Summary)
	}
	want := "Acme's signature upgrade experience."
	if branded.Options[2].Summary != want {
		t.Fatalf("expected third summary %q, got %q", want, branded.Options[2].Summary)
	}
}

func TestNormalizeCoercesNonFinite(t *testing.T) {
	nan := math.NaN()
	items := Normalize([]LineItem{
		{Description: "bad qty", Quantity: nan, UnitPrice: 10},
		{Description: "bad price", Quantity: 2, UnitPrice: math.Inf(1)},
		{Description: "bad cost", Quantity: 1, UnitPrice: 5, Cost: &nan},
	})
	if items[0].Quantity != 0 {
		t.Fatalf("expected NaN quantity coerced to 0, got %v", items[0].Quantity)
	}
	if items[1].UnitPrice != 0 {
		t.Fatalf("expected Inf unit price coerced to 0, got %v", items[1].UnitPrice)
	}
	if items[2].Cost == nil || *items[2].Cost != 0 {
		t.Fatalf("expected NaN cost coerced to 0, got %v", items[2].Cost)
	}
	if len(items) != 3 {
		t.Fatalf("expected normalization to preserve length, got %d", len(items))
	}
}

func TestRoundCurrencyHalfAwayFromZero(t *testing.T) {
	// 0.125 is exactly representable, so the half-cent boundary is clean.
	if got := RoundCurrency(0.125); got != 0.13 {
		t.Fatalf("expected 0.13, got %v", got)
	}
	if got := RoundCurrency(-0.125); got != -0.13 {
		t.Fatalf("expected -0.13, got %v", got)
	}
	if got := RoundCurrency(math.NaN()); got != 0 {
		t.Fatalf("expected NaN to round to 0, got %v", got)
	}
	if got := RoundCurrency(math.Inf(-1)); got != 0 {
		t.Fatalf("expected -Inf to round to 0, got %v", got)
	}
}

func tierByName(t *testing.T, name string) Tier {
	t.Helper()
	for _, tier := range Tiers() {
		if tier.Name == name {
			return tier
		}
	}
	t.Fatalf("tier %s not found", name)
	return Tier{}
}
