package amm

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var tolerance = d(0.000000000001)

func near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// --- Probability tests ---

func TestProbability_EmptyPoolsIsHalf(t *testing.T) {
	p := Probability(decimal.Zero, decimal.Zero)
	if !p.Equal(d(0.5)) {
		t.Errorf("expected 0.5 for empty pools, got %s", p)
	}
}

func TestProbability_BalancedPools(t *testing.T) {
	p := Probability(d(500), d(500))
	if !p.Equal(d(0.5)) {
		t.Errorf("expected 0.5, got %s", p)
	}
}

func TestProbability_InOpenUnitInterval(t *testing.T) {
	tests := []struct{ yes, no float64 }{
		{1, 1},
		{500, 500},
		{600, 500},
		{1, 100000},
		{100000, 1},
		{0.01, 3},
	}
	for _, tc := range tests {
		p := Probability(d(tc.yes), d(tc.no))
		if p.Sign() <= 0 || p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			t.Errorf("Probability(%v, %v) = %s, want in (0,1)", tc.yes, tc.no, p)
		}
	}
}

func TestProbability_SwapSymmetry(t *testing.T) {
	one := decimal.NewFromInt(1)
	tests := []struct{ yes, no float64 }{
		{500, 500},
		{600, 500},
		{1234, 77},
		{3, 7},
	}
	for _, tc := range tests {
		p := Probability(d(tc.yes), d(tc.no))
		swapped := Probability(d(tc.no), d(tc.yes))
		if !near(p, one.Sub(swapped)) {
			t.Errorf("Probability(%v,%v)=%s should equal 1-Probability(%v,%v)=%s",
				tc.yes, tc.no, p, tc.no, tc.yes, one.Sub(swapped))
		}
	}
}

// --- Quote tests ---

func TestQuote_YesFromBalancedPools(t *testing.T) {
	var q *QuoteResult
	q, err := Quote(d(100), d(500), d(500), model.SideYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Price.Equal(d(0.5)) {
		t.Errorf("expected price 0.5, got %s", q.Price)
	}
	if !q.Shares.Equal(d(200)) {
		t.Errorf("expected 200 shares, got %s", q.Shares)
	}
	if !q.NewYesPool.Equal(d(600)) || !q.NewNoPool.Equal(d(500)) {
		t.Errorf("expected pools 600/500, got %s/%s", q.NewYesPool, q.NewNoPool)
	}
	want := d(600).Div(d(1100))
	if !q.NewProbability.Equal(want) {
		t.Errorf("expected new probability %s, got %s", want, q.NewProbability)
	}
}

func TestQuote_NoSideOnlyGrowsNoPool(t *testing.T) {
	q, err := Quote(d(50), d(600), d(400), model.SideNo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// p = 0.6, NO price = 0.4, shares = 50 / 0.4 = 125
	if !q.Price.Equal(d(0.4)) {
		t.Errorf("expected NO price 0.4, got %s", q.Price)
	}
	if !q.Shares.Equal(d(125)) {
		t.Errorf("expected 125 shares, got %s", q.Shares)
	}
	if !q.NewYesPool.Equal(d(600)) {
		t.Errorf("YES pool should be untouched, got %s", q.NewYesPool)
	}
	if !q.NewNoPool.Equal(d(450)) {
		t.Errorf("expected NO pool 450, got %s", q.NewNoPool)
	}
	if !q.NewProbability.LessThan(d(0.6)) {
		t.Errorf("buying NO should lower YES probability, got %s", q.NewProbability)
	}
}

func TestQuote_PoolRoundTrip(t *testing.T) {
	tests := []struct {
		amount, yes, no float64
		side            model.Side
	}{
		{100, 500, 500, model.SideYes},
		{1, 123, 456, model.SideYes},
		{10000, 700, 300, model.SideYes},
		{250, 500, 500, model.SideNo},
		{3, 20, 980, model.SideNo},
	}
	for _, tc := range tests {
		q, err := Quote(d(tc.amount), d(tc.yes), d(tc.no), tc.side)
		if err != nil {
			t.Fatalf("Quote(%v,%v,%v,%s): %v", tc.amount, tc.yes, tc.no, tc.side, err)
		}
		wantYes, wantNo := d(tc.yes), d(tc.no)
		if tc.side == model.SideYes {
			wantYes = wantYes.Add(d(tc.amount))
		} else {
			wantNo = wantNo.Add(d(tc.amount))
		}
		if !q.NewYesPool.Equal(wantYes) || !q.NewNoPool.Equal(wantNo) {
			t.Errorf("%s %v on %v/%v: pools %s/%s, want %s/%s",
				tc.side, tc.amount, tc.yes, tc.no, q.NewYesPool, q.NewNoPool, wantYes, wantNo)
		}
	}
}

func TestQuote_SharesIncreaseWithAmount(t *testing.T) {
	for _, side := range []model.Side{model.SideYes, model.SideNo} {
		prev := decimal.Zero
		for _, amount := range []float64{1, 5, 10, 100, 1000, 10000} {
			q, err := Quote(d(amount), d(500), d(700), side)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !q.Shares.GreaterThan(prev) {
				t.Errorf("%s: shares for %v (%s) should exceed %s", side, amount, q.Shares, prev)
			}
			prev = q.Shares
		}
	}
}

func TestQuote_DegeneratePools(t *testing.T) {
	tests := []struct {
		name    string
		yes, no float64
		side    model.Side
	}{
		{"no pool empty, buy yes", 500, 0, model.SideYes},
		{"no pool empty, buy no", 500, 0, model.SideNo},
		{"yes pool empty, buy yes", 0, 500, model.SideYes},
		{"yes pool empty, buy no", 0, 500, model.SideNo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Quote(d(10), d(tc.yes), d(tc.no), tc.side)
			if !errors.Is(err, ErrDegenerateMarket) {
				t.Errorf("expected ErrDegenerateMarket, got %v", err)
			}
		})
	}
}

func TestQuote_EmptyPoolsPricedAtHalf(t *testing.T) {
	q, err := Quote(d(10), decimal.Zero, decimal.Zero, model.SideYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Shares.Equal(d(20)) {
		t.Errorf("expected 20 shares at price 0.5, got %s", q.Shares)
	}
}

func TestQuote_RejectsBadInput(t *testing.T) {
	if _, err := Quote(decimal.Zero, d(500), d(500), model.SideYes); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero amount, got %v", err)
	}
	if _, err := Quote(d(-5), d(500), d(500), model.SideYes); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
	if _, err := Quote(d(5), d(500), d(500), model.Side("maybe")); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("expected ErrInvalidSide, got %v", err)
	}
}

// --- Settlement tests ---

func TestPotentialPayout_UsesPoolRatio(t *testing.T) {
	// After a 100 YES bet at 500/500: 200 shares, pools 600/500.
	got := PotentialPayout(d(200), d(600), d(500), model.SideYes)
	// 200 * 1100 / (600 + 200) = 275
	if !got.Equal(d(275)) {
		t.Errorf("expected potential payout 275, got %s", got)
	}

	got = PotentialPayout(d(125), d(600), d(450), model.SideNo)
	// 125 * 1050 / (450 + 125) = 228.26...
	want := d(125).Mul(d(1050)).Div(d(575))
	if !got.Equal(want) {
		t.Errorf("expected potential payout %s, got %s", want, got)
	}
}

func TestPotentialPayout_EmptyPools(t *testing.T) {
	if got := PotentialPayout(d(10), decimal.Zero, decimal.Zero, model.SideYes); !got.IsZero() {
		t.Errorf("expected 0 for empty pools, got %s", got)
	}
}

func TestPotentialPayout_ChangesWithPools(t *testing.T) {
	a := PotentialPayout(d(200), d(600), d(500), model.SideYes)
	b := PotentialPayout(d(200), d(600), d(5000), model.SideYes)
	if a.Equal(b) {
		t.Errorf("potential payout should scale with pool sizes, got %s for both", a)
	}
}

func TestActualPayout_WinnerRedeemsSharesOneToOne(t *testing.T) {
	for _, total := range []float64{0, 1100, 50000} {
		got := ActualPayout(d(200), d(total), model.SideYes, model.SideYes)
		if !got.Equal(d(200)) {
			t.Errorf("total=%v: expected payout 200, got %s", total, got)
		}
	}
}

func TestActualPayout_LoserGetsNothing(t *testing.T) {
	if got := ActualPayout(d(200), d(1100), model.SideNo, model.SideYes); !got.IsZero() {
		t.Errorf("expected 0 for losing NO position, got %s", got)
	}
	if got := ActualPayout(d(50), d(1100), model.SideYes, model.SideNo); !got.IsZero() {
		t.Errorf("expected 0 for losing YES position, got %s", got)
	}
}

func TestSettlement_PotentialAndActualDiffer(t *testing.T) {
	q, err := Quote(d(100), d(500), d(500), model.SideYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	potential := PotentialPayout(q.Shares, q.NewYesPool, q.NewNoPool, model.SideYes)
	actual := ActualPayout(q.Shares, q.NewYesPool.Add(q.NewNoPool), model.SideYes, model.SideYes)

	if !actual.Equal(q.Shares) {
		t.Errorf("actual payout should equal shares %s, got %s", q.Shares, actual)
	}
	if potential.Equal(actual) {
		t.Errorf("potential (%s) and actual (%s) payouts should differ", potential, actual)
	}
}

// --- Initialization / state ---

func TestInitialPools_Default(t *testing.T) {
	p, err := InitialPools(DefaultLiquidity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.YesPool.Equal(d(500)) || !p.NoPool.Equal(d(500)) {
		t.Errorf("expected 500/500, got %s/%s", p.YesPool, p.NoPool)
	}
	if !p.LiquidityPool.Equal(d(1000)) {
		t.Errorf("expected liquidity 1000, got %s", p.LiquidityPool)
	}
	if !p.Probability.Equal(d(0.5)) {
		t.Errorf("expected probability 0.5, got %s", p.Probability)
	}
}

func TestInitialPools_RejectsNonPositive(t *testing.T) {
	for _, l := range []float64{0, -100} {
		if _, err := InitialPools(d(l)); !errors.Is(err, ErrInvalidLiquidity) {
			t.Errorf("liquidity %v: expected ErrInvalidLiquidity, got %v", l, err)
		}
	}
}

func TestMarketState_PricesSumToOne(t *testing.T) {
	s := MarketState(d(600), d(500))
	if !s.TotalPool.Equal(d(1100)) {
		t.Errorf("expected total 1100, got %s", s.TotalPool)
	}
	if !s.YesPrice.Equal(s.Probability) {
		t.Errorf("YES price should equal probability")
	}
	if !near(s.YesPrice.Add(s.NoPrice), decimal.NewFromInt(1)) {
		t.Errorf("prices should sum to 1, got %s", s.YesPrice.Add(s.NoPrice))
	}
}
