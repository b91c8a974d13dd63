// Package ranking implements the points ladder driven by bet outcomes:
// per-bet points, win streaks, tier bands, and the full leaderboard
// re-sort that assigns global and in-tier ranks.
//
// Every function here is pure. Loading and persisting ranking rows is the
// caller's job, so the ladder can be tested without a database.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// Tier is a named band of rank points.
type Tier string

const (
	Rookie       Tier = "Rookie"
	Amateur      Tier = "Amateur"
	SemiPro      Tier = "Semi-Pro"
	Professional Tier = "Professional"
	Expert       Tier = "Expert"
	Master       Tier = "Master"
	Legend       Tier = "Legend"
)

// Band is the inclusive point range of one tier.
type Band struct {
	Tier Tier  `json:"tier"`
	Min  int64 `json:"min"`
	Max  int64 `json:"max"`
}

// Bands lists the tiers in ascending order. Ranges do not overlap.
var Bands = []Band{
	{Rookie, 0, 100},
	{Amateur, 101, 500},
	{SemiPro, 501, 1500},
	{Professional, 1501, 5000},
	{Expert, 5001, 15000},
	{Master, 15001, 50000},
	{Legend, 50001, math.MaxInt64},
}

// Scoring constants.
const (
	winMultiplier   int64 = 10
	lossPenalty     int64 = -5
	underdogFactor  int64 = 3
	confidentFactor int64 = 2
	streakStep      int64 = 5
	streakCap       int64 = 50
)

var (
	underdogOdds   = decimal.NewFromInt(2)
	highConfidence = decimal.NewFromInt(100)
	one            = decimal.NewFromInt(1)
)

// TierFromPoints maps rank points to a tier. Negative totals stay Rookie.
func TierFromPoints(points int64) Tier {
	for _, b := range Bands {
		if points >= b.Min && points <= b.Max {
			return b.Tier
		}
	}
	return Rookie
}

// BandFor returns the point band of a tier, or the Rookie band for an
// unknown name.
func BandFor(t Tier) Band {
	for _, b := range Bands {
		if b.Tier == t {
			return b
		}
	}
	return Bands[0]
}

// Result is the outcome of a settled bet.
type Result string

const (
	Win  Result = "win"
	Loss Result = "loss"
)

// Outcome is the input of one ladder transition.
type Outcome struct {
	Result           Result
	Amount           decimal.Decimal
	Odds             decimal.Decimal
	IsUnderdog       bool
	IsHighConfidence bool
}

// OutcomeForBet derives the ladder input from a settled bet: a positive
// payout is a win, odds are 1/purchasePrice (1 when the price is not
// positive), underdog means odds above 2 and high confidence a stake above
// 100.
func OutcomeForBet(b *model.Bet) Outcome {
	result := Loss
	if b.PayoutAmount.IsPositive() {
		result = Win
	}
	odds := one
	if b.PurchasePrice.IsPositive() {
		odds = one.Div(b.PurchasePrice)
	}
	return Outcome{
		Result:           result,
		Amount:           b.Amount,
		Odds:             odds,
		IsUnderdog:       odds.GreaterThan(underdogOdds),
		IsHighConfidence: b.Amount.GreaterThan(highConfidence),
	}
}

// BetPoints returns the base points of an outcome, before streak bonus.
// A win earns 10×odds, tripled for an underdog and doubled for a high
// confidence stake, rounded to the nearest integer. A loss costs 5.
func BetPoints(o Outcome) int64 {
	if o.Result != Win {
		return lossPenalty
	}
	pts := o.Odds.Mul(decimal.NewFromInt(winMultiplier))
	if o.IsUnderdog && o.Odds.GreaterThan(underdogOdds) {
		pts = pts.Mul(decimal.NewFromInt(underdogFactor))
	}
	if o.IsHighConfidence && o.Amount.GreaterThan(highConfidence) {
		pts = pts.Mul(decimal.NewFromInt(confidentFactor))
	}
	return pts.Round(0).IntPart()
}

// StreakBonus is 5 points per consecutive win, capped at 50.
func StreakBonus(winStreak int) int64 {
	if winStreak <= 0 {
		return 0
	}
	return min(int64(winStreak)*streakStep, streakCap)
}

// Change describes one applied transition.
type Change struct {
	BetPoints    int64 `json:"bet_points"`
	StreakBonus  int64 `json:"streak_bonus"`
	PreviousTier Tier  `json:"previous_tier"`
	NewTier      Tier  `json:"new_tier"`
	NewPoints    int64 `json:"new_points"`
}

// New returns the starting ranking row of a user.
func New(userID string, now time.Time) model.UserRanking {
	return model.UserRanking{
		UserID:      userID,
		Tier:        string(Rookie),
		LastUpdated: now,
	}
}

// Apply feeds one outcome into a ranking row and returns the updated row.
// Global and tier ranks are left untouched; see Recompute.
func Apply(r model.UserRanking, o Outcome, now time.Time) (model.UserRanking, Change) {
	prev := Tier(r.Tier)
	base := BetPoints(o)

	if o.Result == Win {
		r.WinStreak++
		r.LossStreak = 0
		r.BestStreak = max(r.BestStreak, r.WinStreak)
	} else {
		r.LossStreak++
		r.WinStreak = 0
	}

	var bonus int64
	if o.Result == Win {
		bonus = StreakBonus(r.WinStreak)
	}

	r.RankPoints += base + bonus
	r.Tier = string(TierFromPoints(r.RankPoints))
	r.LastUpdated = now

	return r, Change{
		BetPoints:    base,
		StreakBonus:  bonus,
		PreviousTier: prev,
		NewTier:      Tier(r.Tier),
		NewPoints:    r.RankPoints,
	}
}

// Recompute assigns global and tier ranks over a snapshot of every
// ranking row: a full descending sort on points, ties broken by user id.
// Tier rank is the position within the same tier under the same order.
// The input slice is not modified.
//
// This is O(n log n) per call and is meant to run once per resolution
// batch, not per bet.
func Recompute(rows []model.UserRanking) []model.RankAssignment {
	sorted := make([]model.UserRanking, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RankPoints != sorted[j].RankPoints {
			return sorted[i].RankPoints > sorted[j].RankPoints
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	perTier := make(map[string]int)
	out := make([]model.RankAssignment, len(sorted))
	for i, r := range sorted {
		perTier[r.Tier]++
		out[i] = model.RankAssignment{
			UserID:     r.UserID,
			GlobalRank: i + 1,
			TierRank:   perTier[r.Tier],
		}
	}
	return out
}

// ApplyRanks copies rank assignments onto the matching rows in place.
func ApplyRanks(rows []model.UserRanking, ranks []model.RankAssignment) {
	byUser := make(map[string]model.RankAssignment, len(ranks))
	for _, a := range ranks {
		byUser[a.UserID] = a
	}
	for i := range rows {
		if a, ok := byUser[rows[i].UserID]; ok {
			rows[i].GlobalRank = a.GlobalRank
			rows[i].TierRank = a.TierRank
		}
	}
}
