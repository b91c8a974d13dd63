// Package exposure implements per-user stake limits on open positions.
//
// A user betting repeatedly on the same contract, or across many contracts
// in one category, concentrates risk on a single outcome. The limiter caps
// the total unsettled stake a user may hold per contract and per category.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

var (
	// ErrPerContractLimitExceeded is returned when a bet would push a
	// user's open stake on one contract beyond the per-contract maximum.
	ErrPerContractLimitExceeded = errors.New("exposure: per-contract stake limit exceeded")

	// ErrPerCategoryLimitExceeded is returned when a bet would push a
	// user's open stake across one category beyond the per-category maximum.
	ErrPerCategoryLimitExceeded = errors.New("exposure: per-category stake limit exceeded")
)

// Stakes is a user's current unsettled stake, keyed by contract and by
// category.
type Stakes struct {
	ByContract map[string]decimal.Decimal
	ByCategory map[string]decimal.Decimal
}

// StakesFromBets sums the unsettled bets of one user. categoryOf maps a
// contract ID to its category; bets on unknown contracts only count
// towards their contract.
func StakesFromBets(bets []model.Bet, categoryOf map[string]string) Stakes {
	s := Stakes{
		ByContract: make(map[string]decimal.Decimal),
		ByCategory: make(map[string]decimal.Decimal),
	}
	for _, b := range bets {
		if b.SettledAt != nil {
			continue
		}
		s.ByContract[b.ContractID] = s.ByContract[b.ContractID].Add(b.Amount)
		if cat, ok := categoryOf[b.ContractID]; ok {
			s.ByCategory[cat] = s.ByCategory[cat].Add(b.Amount)
		}
	}
	return s
}

// StakeLimiter enforces stake limits. A zero limit disables that check.
type StakeLimiter struct {
	// MaxPerContract is the maximum open stake on any single contract.
	MaxPerContract decimal.Decimal

	// MaxPerCategory is the maximum aggregate open stake across all
	// contracts of one category.
	MaxPerCategory decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given limits.
func NewStakeLimiter(maxPerContract, maxPerCategory decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxPerContract: maxPerContract,
		MaxPerCategory: maxPerCategory,
	}
}

// Enabled reports whether any limit is active.
func (l *StakeLimiter) Enabled() bool {
	return l != nil && (l.MaxPerContract.IsPositive() || l.MaxPerCategory.IsPositive())
}

// CheckLimit validates whether a new stake of amount on contractID (in
// category) respects the limits, given the user's existing stakes.
func (l *StakeLimiter) CheckLimit(contractID, category string, amount decimal.Decimal, existing Stakes) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-contract limit.
	if l.MaxPerContract.IsPositive() {
		next := existing.ByContract[contractID].Add(amount)
		if next.GreaterThan(l.MaxPerContract) {
			return ErrPerContractLimitExceeded
		}
	}

	// 2. Per-category aggregate.
	if l.MaxPerCategory.IsPositive() {
		next := existing.ByCategory[category].Add(amount)
		if next.GreaterThan(l.MaxPerCategory) {
			return ErrPerCategoryLimitExceeded
		}
	}

	return nil
}
