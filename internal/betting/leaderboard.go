package betting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/betarena/market-engine/internal/model"
	"github.com/betarena/market-engine/internal/portfolio"
)

// Timeframe restricts the rank leaderboard to recently active users.
type Timeframe string

const (
	TimeframeAll     Timeframe = "all-time"
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// ParseTimeframe maps a query value to a Timeframe. The empty string and
// "all" mean TimeframeAll.
func ParseTimeframe(raw string) (Timeframe, error) {
	switch raw {
	case "", "all", string(TimeframeAll):
		return TimeframeAll, nil
	case string(TimeframeDaily), string(TimeframeWeekly), string(TimeframeMonthly):
		return Timeframe(raw), nil
	}
	return "", fmt.Errorf("%w: timeframe must be one of all-time, daily, weekly, monthly", model.ErrValidation)
}

// since returns the start of the window ending at now. ok is false for
// TimeframeAll.
func (tf Timeframe) since(now time.Time) (time.Time, bool) {
	switch tf {
	case TimeframeDaily:
		return now.AddDate(0, 0, -1), true
	case TimeframeWeekly:
		return now.AddDate(0, 0, -7), true
	case TimeframeMonthly:
		return now.AddDate(0, 0, -30), true
	}
	return time.Time{}, false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	return min(limit, MaxLeaderboardLimit)
}

// ProfitEntry is one row of the profit leaderboard.
type ProfitEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	portfolio.Statistics
}

// ProfitLeaderboard ranks every user by realised profit, then by volume,
// then by username. Users without bets appear with zero totals.
func (s *Service) ProfitLeaderboard(ctx context.Context, limit int) ([]ProfitEntry, error) {
	limit = clampLimit(limit)

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	contracts := make(map[string]model.Contract)
	entries := make([]ProfitEntry, 0, len(users))
	for _, u := range users {
		bets, err := s.store.GetBetsByUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("load bets for %s: %w", u.ID, err)
		}
		for _, b := range bets {
			if _, ok := contracts[b.ContractID]; ok {
				continue
			}
			c, err := s.store.GetContract(ctx, b.ContractID)
			if err != nil {
				return nil, fmt.Errorf("load contract %s: %w", b.ContractID, err)
			}
			contracts[c.ID] = *c
		}
		entries = append(entries, ProfitEntry{
			UserID:     u.ID,
			Username:   u.Username,
			Statistics: portfolio.Summarize(portfolio.History(bets, contracts)),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.TotalProfit.Cmp(b.TotalProfit); c != 0 {
			return c > 0
		}
		if c := a.TotalVolume.Cmp(b.TotalVolume); c != 0 {
			return c > 0
		}
		return a.Username < b.Username
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
