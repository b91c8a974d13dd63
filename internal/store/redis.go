package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Contracts, ranking rows and the leaderboard are cached. Balances and
// bets are always read from the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateContract(ctx context.Context, c *model.Contract, first *model.PricePoint) error {
	if err := s.primary.CreateContract(ctx, c, first); err != nil {
		return err
	}
	s.set(ctx, contractKey(c.ID), c)
	return nil
}

func (s *CachedStore) CloseContract(ctx context.Context, id string, resolution model.Side) (*model.Contract, error) {
	// Invalidate before reporting the result, even on failure; the
	// primary may have committed before the error surfaced.
	defer s.rdb.Del(ctx, contractKey(id))
	return s.primary.CloseContract(ctx, id, resolution)
}

func (s *CachedStore) PlaceBet(ctx context.Context, p *model.BetPlacement) error {
	defer s.rdb.Del(ctx, contractKey(p.Bet.ContractID))
	return s.primary.PlaceBet(ctx, p)
}

func (s *CachedStore) SaveRanking(ctx context.Context, r *model.UserRanking) error {
	defer s.rdb.Del(ctx, rankingKey(r.UserID), leaderboardKey)
	return s.primary.SaveRanking(ctx, r)
}

func (s *CachedStore) UpdateRanks(ctx context.Context, ranks []model.RankAssignment) error {
	keys := make([]string, 0, len(ranks)+1)
	keys = append(keys, leaderboardKey)
	for _, a := range ranks {
		keys = append(keys, rankingKey(a.UserID))
	}
	defer s.rdb.Del(ctx, keys...)
	return s.primary.UpdateRanks(ctx, ranks)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	var c model.Contract
	if s.get(ctx, contractKey(id), &c) {
		return &c, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, contractKey(id), got)
	return got, nil
}

func (s *CachedStore) GetRanking(ctx context.Context, userID string) (*model.UserRanking, error) {
	var r model.UserRanking
	if s.get(ctx, rankingKey(userID), &r) {
		return &r, nil
	}

	got, err := s.primary.GetRanking(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, rankingKey(userID), got)
	return got, nil
}

func (s *CachedStore) ListRankings(ctx context.Context) ([]model.UserRanking, error) {
	var rows []model.UserRanking
	if s.get(ctx, leaderboardKey, &rows) {
		return rows, nil
	}

	rows, err := s.primary.ListRankings(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, leaderboardKey, rows)
	return rows, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) ListContracts(ctx context.Context) ([]model.Contract, error) {
	return s.primary.ListContracts(ctx)
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, contractID string) ([]model.PricePoint, error) {
	return s.primary.GetPriceHistory(ctx, contractID)
}

func (s *CachedStore) GetBetsByContract(ctx context.Context, contractID string) ([]model.Bet, error) {
	return s.primary.GetBetsByContract(ctx, contractID)
}

func (s *CachedStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.primary.GetBetsByUser(ctx, userID)
}

func (s *CachedStore) SettleBet(ctx context.Context, betID string, payout decimal.Decimal) error {
	return s.primary.SettleBet(ctx, betID, payout)
}

// --- Cache helpers ---

func (s *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const leaderboardKey = "leaderboard"

func contractKey(id string) string { return fmt.Sprintf("contract:%s", id) }
func rankingKey(uid string) string { return fmt.Sprintf("ranking:%s", uid) }
