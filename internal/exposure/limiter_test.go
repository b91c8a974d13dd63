package exposure

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	err := limiter.CheckLimit("c1", "sports", d(100), Stakes{})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerContractExceeded(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	// Existing stake of 950 + new 100 = 1050 > 1000.
	existing := Stakes{ByContract: map[string]decimal.Decimal{"c1": d(950)}}

	err := limiter.CheckLimit("c1", "sports", d(100), existing)
	if err != ErrPerContractLimitExceeded {
		t.Errorf("expected ErrPerContractLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ExactlyAtLimitAllowed(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))
	existing := Stakes{ByContract: map[string]decimal.Decimal{"c1": d(900)}}

	if err := limiter.CheckLimit("c1", "sports", d(100), existing); err != nil {
		t.Errorf("stake equal to the limit should pass, got %v", err)
	}
}

func TestCheckLimit_PerCategoryExceeded(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(2000))
	existing := Stakes{
		ByContract: map[string]decimal.Decimal{"c1": d(800), "c2": d(800), "c3": d(300)},
		ByCategory: map[string]decimal.Decimal{"sports": d(1900)},
	}

	// New contract in the same category: 1900 + 200 > 2000.
	err := limiter.CheckLimit("c4", "sports", d(200), existing)
	if err != ErrPerCategoryLimitExceeded {
		t.Errorf("expected ErrPerCategoryLimitExceeded, got %v", err)
	}

	// Another category is unaffected.
	if err := limiter.CheckLimit("c5", "politics", d(200), existing); err != nil {
		t.Errorf("expected no error for other category, got %v", err)
	}
}

func TestCheckLimit_ZeroDisables(t *testing.T) {
	tests := []struct {
		name    string
		limiter *StakeLimiter
	}{
		{"nil limiter", nil},
		{"both zero", NewStakeLimiter(decimal.Zero, decimal.Zero)},
	}
	existing := Stakes{
		ByContract: map[string]decimal.Decimal{"c1": d(1e9)},
		ByCategory: map[string]decimal.Decimal{"sports": d(1e9)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.limiter.Enabled() {
				t.Error("limiter should be disabled")
			}
			if err := tc.limiter.CheckLimit("c1", "sports", d(100), existing); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}

	onlyCategory := NewStakeLimiter(decimal.Zero, d(500))
	if err := onlyCategory.CheckLimit("c1", "sports", d(100), Stakes{ByContract: existing.ByContract}); err != nil {
		t.Errorf("per-contract check should be off, got %v", err)
	}
}

func TestStakesFromBets_SkipsSettled(t *testing.T) {
	settled := time.Now()
	bets := []model.Bet{
		{ContractID: "c1", Amount: d(100)},
		{ContractID: "c1", Amount: d(50)},
		{ContractID: "c2", Amount: d(30)},
		{ContractID: "c3", Amount: d(999), SettledAt: &settled},
		{ContractID: "c9", Amount: d(7)},
	}
	s := StakesFromBets(bets, map[string]string{"c1": "sports", "c2": "sports", "c3": "sports"})

	if !s.ByContract["c1"].Equal(d(150)) {
		t.Errorf("expected 150 on c1, got %s", s.ByContract["c1"])
	}
	if !s.ByCategory["sports"].Equal(d(180)) {
		t.Errorf("expected 180 in sports, got %s", s.ByCategory["sports"])
	}
	if !s.ByContract["c9"].Equal(d(7)) {
		t.Errorf("unknown contract should still count per contract, got %s", s.ByContract["c9"])
	}
	if _, ok := s.ByContract["c3"]; ok {
		t.Error("settled bets must not count")
	}
}
