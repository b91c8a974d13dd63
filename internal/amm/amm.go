// Package amm implements the pool-ratio automated market maker used to
// price binary prediction contracts.
//
// The implied YES probability is the YES pool's share of the total pool:
//
//	p = yesPool / (yesPool + noPool)
//
// A purchase of side s at amount a is priced at that side's current
// probability and credits a to the pool on side s only. The opposing pool
// is never touched by a trade, so unlike a constant-product (x·y=k) market
// total liquidity grows with every order. This single-sided growth is a
// deliberate simplification: probability responds monotonically to
// one-sided demand and every quantity stays a closed-form expression.
//
// All functions are stateless; pool values are passed in explicitly.
// All monetary values use shopspring/decimal, never float64.
package amm

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

var (
	// ErrDegenerateMarket is returned when one pool is fully depleted
	// (p = 0 or p = 1) and a share price cannot be quoted.
	ErrDegenerateMarket = errors.New("amm: degenerate market, probability is 0 or 1")

	// ErrInvalidAmount is returned for a non-positive order amount.
	ErrInvalidAmount = errors.New("amm: amount must be positive")

	// ErrInvalidSide is returned for a side other than yes or no.
	ErrInvalidSide = errors.New("amm: side must be yes or no")

	// ErrInvalidLiquidity is returned when initial liquidity is not positive.
	ErrInvalidLiquidity = errors.New("amm: initial liquidity must be positive")

	// DefaultLiquidity is the initial liquidity of a new contract, split
	// evenly between the two pools.
	DefaultLiquidity = decimal.NewFromInt(1000)

	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

// QuoteResult is the result of pricing one order against the current pools.
type QuoteResult struct {
	Shares         decimal.Decimal `json:"shares"`
	Price          decimal.Decimal `json:"price"`
	NewYesPool     decimal.Decimal `json:"new_yes_pool"`
	NewNoPool      decimal.Decimal `json:"new_no_pool"`
	NewProbability decimal.Decimal `json:"new_probability"`
}

// State is a read-only view of a contract's pools and prices.
type State struct {
	YesPool     decimal.Decimal `json:"yes_pool"`
	NoPool      decimal.Decimal `json:"no_pool"`
	TotalPool   decimal.Decimal `json:"total_pool"`
	Probability decimal.Decimal `json:"probability"`
	YesPrice    decimal.Decimal `json:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price"`
}

// Pools is the starting pool configuration of a contract.
type Pools struct {
	YesPool       decimal.Decimal
	NoPool        decimal.Decimal
	LiquidityPool decimal.Decimal
	Probability   decimal.Decimal
}

// Probability returns the implied YES probability. Two empty pools are
// priced at 0.5.
func Probability(yesPool, noPool decimal.Decimal) decimal.Decimal {
	total := yesPool.Add(noPool)
	if total.IsZero() {
		return half
	}
	return yesPool.Div(total)
}

// Quote prices an order of amount coins on side against the given pools.
//
//	yes: price = p,     shares = amount / p,     yesPool += amount
//	no:  price = 1 - p, shares = amount / (1-p), noPool  += amount
//
// Returns ErrDegenerateMarket when p is exactly 0 or 1.
func Quote(amount, yesPool, noPool decimal.Decimal, side model.Side) (*QuoteResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	p := Probability(yesPool, noPool)
	if p.Sign() <= 0 || p.GreaterThanOrEqual(one) {
		return nil, ErrDegenerateMarket
	}

	q := &QuoteResult{NewYesPool: yesPool, NewNoPool: noPool}
	if side == model.SideYes {
		q.Price = p
		q.NewYesPool = yesPool.Add(amount)
	} else {
		q.Price = one.Sub(p)
		q.NewNoPool = noPool.Add(amount)
	}
	q.Shares = amount.Div(q.Price)
	q.NewProbability = Probability(q.NewYesPool, q.NewNoPool)
	return q, nil
}

// PotentialPayout estimates what shares on side would pay out, given the
// pools right after the trade:
//
//	yes: shares * total / (yesPool + shares)
//	no:  shares * total / (noPool + shares)
//
// The estimate is advisory. Later trades move the pools before
// resolution, and resolution pays ActualPayout, not this value.
func PotentialPayout(shares, yesPool, noPool decimal.Decimal, side model.Side) decimal.Decimal {
	total := yesPool.Add(noPool)
	if total.IsZero() {
		return decimal.Zero
	}
	sidePool := yesPool
	if side == model.SideNo {
		sidePool = noPool
	}
	denom := sidePool.Add(shares)
	if denom.IsZero() {
		return decimal.Zero
	}
	return shares.Mul(total).Div(denom)
}

// ActualPayout is the resolution-time payout for a position: winning
// shares redeem 1:1, losing shares pay nothing. totalPool is accepted for
// audit symmetry with PotentialPayout but does not scale the result.
func ActualPayout(shares, totalPool decimal.Decimal, side, resolution model.Side) decimal.Decimal {
	if side != resolution {
		return decimal.Zero
	}
	return shares
}

// InitialPools splits liquidity evenly between YES and NO.
func InitialPools(liquidity decimal.Decimal) (Pools, error) {
	if !liquidity.IsPositive() {
		return Pools{}, ErrInvalidLiquidity
	}
	h := liquidity.Div(decimal.NewFromInt(2))
	return Pools{
		YesPool:       h,
		NoPool:        h,
		LiquidityPool: liquidity,
		Probability:   half,
	}, nil
}

// MarketState derives prices from the current pools.
func MarketState(yesPool, noPool decimal.Decimal) State {
	p := Probability(yesPool, noPool)
	return State{
		YesPool:     yesPool,
		NoPool:      noPool,
		TotalPool:   yesPool.Add(noPool),
		Probability: p,
		YesPrice:    p,
		NoPrice:     one.Sub(p),
	}
}
