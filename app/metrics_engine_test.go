package app

import "testing"

func TestCostBasisBookOpenThenFullClose(t *testing.T) {
	book := newCostBasisBook()

	// buy 10 units for $1000 (cost basis $100/unit)
	if realized := book.apply("ETH", 10, 1000); realized != 0 {
		t.Errorf("opening a lot should never realize PnL, got %v", realized)
	}

	// sell all 10 units for $1500
	realized := book.apply("ETH", -10, 1500)
	if got, want := realized, 500.0; got != want {
		t.Errorf("realized PnL = %v, want %v", got, want)
	}

	if got := book.unrealizedUSD(map[string]float64{"ETH": 200}); got != 0 {
		t.Errorf("expected no remaining lots after full close, unrealized = %v", got)
	}
}

func TestCostBasisBookPartialClose(t *testing.T) {
	book := newCostBasisBook()
	book.apply("BTC", 2, 2000) // $1000/unit cost basis

	realized := book.apply("BTC", -1, 1200)
	if got, want := realized, 200.0; got != want {
		t.Errorf("realized PnL on partial close = %v, want %v", got, want)
	}

	unrealized := book.unrealizedUSD(map[string]float64{"BTC": 1100})
	if got, want := unrealized, 100.0; got != want {
		t.Errorf("unrealized on remaining lot = %v, want %v", got, want)
	}
}

func TestCostBasisBookFIFOOrdering(t *testing.T) {
	book := newCostBasisBook()
	book.apply("SOL", 5, 500)  // lot 1: $100/unit
	book.apply("SOL", 5, 1000) // lot 2: $200/unit

	// closing 5 units should consume lot 1 (the earlier, cheaper lot) first
	book.apply("SOL", -5, 750)

	unrealized := book.unrealizedUSD(map[string]float64{"SOL": 200})
	if got, want := unrealized, 0.0; got != want {
		t.Errorf("unrealized after consuming only lot 1 = %v, want %v (5 units @ $200 cost remaining)", got, want)
	}
}

func TestCostBasisBookUnknownPriceIsSkipped(t *testing.T) {
	book := newCostBasisBook()
	book.apply("DOGE", 100, 10)

	if got := book.unrealizedUSD(map[string]float64{}); got != 0 {
		t.Errorf("expected assets with no known price to contribute zero, got %v", got)
	}
}

func TestAbs(t *testing.T) {
	if abs(-5.5) != 5.5 {
		t.Error("abs(-5.5) should be 5.5")
	}
	if abs(5.5) != 5.5 {
		t.Error("abs(5.5) should be 5.5")
	}
	if abs(0) != 0 {
		t.Error("abs(0) should be 0")
	}
}
