// Package portfolio derives a user's bet history, summary statistics and
// open positions from stored bets and the contracts they were placed on.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/amm"
	"github.com/betarena/market-engine/internal/model"
)

// Outcome classifies a bet against its contract's state.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomePending Outcome = "pending"
)

// HistoryEntry is one bet joined with its contract.
type HistoryEntry struct {
	BetID          string          `json:"id"`
	ContractID     string          `json:"contract_id"`
	ContractTitle  string          `json:"contract_title"`
	Position       model.Side      `json:"position"`
	Amount         decimal.Decimal `json:"amount"`
	Shares         decimal.Decimal `json:"shares"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	PayoutAmount   decimal.Decimal `json:"payout_amount"`
	BetDate        time.Time       `json:"bet_date"`
	ContractStatus model.Status    `json:"contract_status"`
	Resolution     model.Side      `json:"resolution,omitempty"`
	Outcome        Outcome         `json:"outcome"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
}

// Statistics summarises a user's betting record.
type Statistics struct {
	TotalBets   int             `json:"total_bets"`
	WinningBets int             `json:"winning_bets"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	WinRate     decimal.Decimal `json:"win_rate"` // over resolved bets only
}

// ActivePosition is a bet on a still-open contract with an advisory
// payout estimate from the contract's current pools.
type ActivePosition struct {
	BetID                 string          `json:"id"`
	ContractID            string          `json:"contract_id"`
	ContractTitle         string          `json:"contract_title"`
	Position              model.Side      `json:"position"`
	Amount                decimal.Decimal `json:"amount"`
	Shares                decimal.Decimal `json:"shares"`
	PurchasePrice         decimal.Decimal `json:"purchase_price"`
	CurrentYesProbability decimal.Decimal `json:"current_yes_probability"`
	YesPool               decimal.Decimal `json:"yes_pool"`
	NoPool                decimal.Decimal `json:"no_pool"`
	BetDate               time.Time       `json:"bet_date"`
	PotentialPayout       decimal.Decimal `json:"potential_payout"`
	PotentialProfit       decimal.Decimal `json:"potential_profit"`
}

// Classify returns the outcome of b on c and the realised profit:
// payout minus stake for a win, minus the stake for a loss, zero while
// the contract is open.
func Classify(b model.Bet, c model.Contract) (Outcome, decimal.Decimal) {
	if c.IsOpen() {
		return OutcomePending, decimal.Zero
	}
	if b.Position == c.Resolution {
		return OutcomeWin, b.PayoutAmount.Sub(b.Amount)
	}
	return OutcomeLoss, b.Amount.Neg()
}

// History joins bets with their contracts, keeping the order of bets.
// Bets whose contract is missing from contracts are skipped.
func History(bets []model.Bet, contracts map[string]model.Contract) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(bets))
	for _, b := range bets {
		c, ok := contracts[b.ContractID]
		if !ok {
			continue
		}
		outcome, pl := Classify(b, c)
		out = append(out, HistoryEntry{
			BetID:          b.ID,
			ContractID:     b.ContractID,
			ContractTitle:  c.Title,
			Position:       b.Position,
			Amount:         b.Amount,
			Shares:         b.Shares,
			PurchasePrice:  b.PurchasePrice,
			PayoutAmount:   b.PayoutAmount,
			BetDate:        b.CreatedAt,
			ContractStatus: c.Status,
			Resolution:     c.Resolution,
			Outcome:        outcome,
			ProfitLoss:     pl,
		})
	}
	return out
}

// Summarize computes statistics over a history.
func Summarize(history []HistoryEntry) Statistics {
	s := Statistics{
		TotalProfit: decimal.Zero,
		TotalVolume: decimal.Zero,
		WinRate:     decimal.Zero,
	}
	resolved := 0
	for _, h := range history {
		s.TotalBets++
		s.TotalVolume = s.TotalVolume.Add(h.Amount)
		s.TotalProfit = s.TotalProfit.Add(h.ProfitLoss)
		switch h.Outcome {
		case OutcomeWin:
			s.WinningBets++
			resolved++
		case OutcomeLoss:
			resolved++
		}
	}
	if resolved > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningBets)).Div(decimal.NewFromInt(int64(resolved)))
	}
	return s
}

// ActivePositions returns the bets placed on open contracts.
func ActivePositions(bets []model.Bet, contracts map[string]model.Contract) []ActivePosition {
	out := make([]ActivePosition, 0)
	for _, b := range bets {
		c, ok := contracts[b.ContractID]
		if !ok || !c.IsOpen() {
			continue
		}
		payout := amm.PotentialPayout(b.Shares, c.YesPool, c.NoPool, b.Position)
		out = append(out, ActivePosition{
			BetID:                 b.ID,
			ContractID:            b.ContractID,
			ContractTitle:         c.Title,
			Position:              b.Position,
			Amount:                b.Amount,
			Shares:                b.Shares,
			PurchasePrice:         b.PurchasePrice,
			CurrentYesProbability: c.CurrentYesProbability,
			YesPool:               c.YesPool,
			NoPool:                c.NoPool,
			BetDate:               b.CreatedAt,
			PotentialPayout:       payout,
			PotentialProfit:       payout.Sub(b.Amount),
		})
	}
	return out
}
