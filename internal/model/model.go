// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is one outcome of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is yes or no.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Status is the lifecycle state of a contract. The only transition is
// open → closed.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Contract is a binary prediction market backed by a YES and a NO pool.
// While open, Resolution is empty; once closed it is fixed.
type Contract struct {
	ID                    string          `json:"id" db:"id"`
	Title                 string          `json:"title" db:"title"`
	Description           string          `json:"description" db:"description"`
	Category              string          `json:"category" db:"category"`
	CreatorID             string          `json:"creator_id,omitempty" db:"creator_id"`
	Status                Status          `json:"status" db:"status"`
	Resolution            Side            `json:"resolution,omitempty" db:"resolution"`
	YesPool               decimal.Decimal `json:"yes_pool" db:"yes_pool"`
	NoPool                decimal.Decimal `json:"no_pool" db:"no_pool"`
	LiquidityPool         decimal.Decimal `json:"liquidity_pool" db:"liquidity_pool"`
	CurrentYesProbability decimal.Decimal `json:"current_yes_probability" db:"current_yes_probability"`
	ClosingDate           *time.Time      `json:"closing_date,omitempty" db:"closing_date"` // advisory only
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IsOpen reports whether the contract still accepts bets.
func (c *Contract) IsOpen() bool {
	return c.Status == StatusOpen
}

// PricePoint is an append-only snapshot of a contract's pools.
// Written once at creation and once per accepted bet; never modified.
type PricePoint struct {
	ID             string          `json:"id" db:"id"`
	ContractID     string          `json:"contract_id" db:"contract_id"`
	YesProbability decimal.Decimal `json:"yes_probability" db:"yes_probability"`
	YesPool        decimal.Decimal `json:"yes_pool" db:"yes_pool"`
	NoPool         decimal.Decimal `json:"no_pool" db:"no_pool"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// Bet is a user's stake on one side of a contract. Shares and
// PurchasePrice are fixed at placement; PayoutAmount stays zero until the
// contract resolves and SettledAt is set.
type Bet struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	ContractID      string          `json:"contract_id" db:"contract_id"`
	Position        Side            `json:"position" db:"position"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Shares          decimal.Decimal `json:"shares" db:"shares"`
	PurchasePrice   decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	PotentialPayout decimal.Decimal `json:"potential_payout" db:"potential_payout"` // advisory estimate
	PayoutAmount    decimal.Decimal `json:"payout_amount" db:"payout_amount"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// User holds one balance per currency. Prediction coins fund contract
// bets; fantasy coins belong to the prop-bet side of the platform.
type User struct {
	ID              string          `json:"id" db:"id"`
	Username        string          `json:"username" db:"username"`
	PredictionCoins decimal.Decimal `json:"prediction_coins" db:"prediction_coins"`
	FantasyCoins    decimal.Decimal `json:"fantasy_coins" db:"fantasy_coins"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// UserRanking is a user's position in the points ladder. Created lazily
// on the user's first settled bet.
type UserRanking struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Tier        string    `json:"tier" db:"tier"`
	RankPoints  int64     `json:"rank_points" db:"rank_points"` // may go negative
	GlobalRank  int       `json:"global_rank" db:"global_rank"`
	TierRank    int       `json:"tier_rank" db:"tier_rank"`
	WinStreak   int       `json:"win_streak" db:"win_streak"`
	BestStreak  int       `json:"best_streak" db:"best_streak"`
	LossStreak  int       `json:"loss_streak" db:"loss_streak"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// RankAssignment is the output of a full leaderboard re-sort for one user.
type RankAssignment struct {
	UserID     string `json:"user_id"`
	GlobalRank int    `json:"global_rank"`
	TierRank   int    `json:"tier_rank"`
}

// BetPlacement carries every write of one accepted bet so a store can
// apply them as a single unit. PrevYesPool/PrevNoPool are the pool values
// the quote was computed from; a store rejects the placement with
// ErrStaleContract if the contract no longer matches them.
type BetPlacement struct {
	Bet            *Bet
	PrevYesPool    decimal.Decimal
	PrevNoPool     decimal.Decimal
	NewYesPool     decimal.Decimal
	NewNoPool      decimal.Decimal
	NewProbability decimal.Decimal
	Point          *PricePoint
}
