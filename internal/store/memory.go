package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// A single lock guards all maps, so every multi-entity write is atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	contracts map[string]*model.Contract
	bets      []*model.Bet
	betIndex  map[string]*model.Bet
	history   map[string][]model.PricePoint
	rankings  map[string]*model.UserRanking
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		contracts: make(map[string]*model.Contract),
		betIndex:  make(map[string]*model.Bet),
		history:   make(map[string][]model.PricePoint),
		rankings:  make(map[string]*model.UserRanking),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("user %q: %w", u.Username, model.ErrDuplicate)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// --- Contracts ---

func (s *MemoryStore) CreateContract(_ context.Context, c *model.Contract, first *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.contracts {
		if existing.Title == c.Title {
			return fmt.Errorf("contract %q: %w", c.Title, model.ErrDuplicate)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *c
	s.contracts[c.ID] = &cp
	if first != nil {
		s.history[c.ID] = append(s.history[c.ID], *first)
	}
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListContracts(_ context.Context) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts := make([]model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		contracts = append(contracts, *c)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].CreatedAt.After(contracts[j].CreatedAt)
	})
	return contracts, nil
}

func (s *MemoryStore) CloseContract(_ context.Context, id string, resolution model.Side) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}
	if c.Status != model.StatusOpen {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrAlreadyResolved)
	}
	now := time.Now().UTC()
	c.Status = model.StatusClosed
	c.Resolution = resolution
	c.ResolvedAt = &now

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, contractID string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]model.PricePoint, len(s.history[contractID]))
	copy(points, s.history[contractID])
	return points, nil
}

// --- Bets ---

func (s *MemoryStore) PlaceBet(_ context.Context, p *model.BetPlacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := p.Bet
	c, ok := s.contracts[b.ContractID]
	if !ok {
		return fmt.Errorf("contract %s: %w", b.ContractID, model.ErrNotFound)
	}
	if c.Status != model.StatusOpen {
		return fmt.Errorf("contract %s is %s: %w", c.ID, c.Status, model.ErrInvalidState)
	}
	if !c.YesPool.Equal(p.PrevYesPool) || !c.NoPool.Equal(p.PrevNoPool) {
		return fmt.Errorf("contract %s: %w", c.ID, model.ErrStaleContract)
	}
	u, ok := s.users[b.UserID]
	if !ok {
		return fmt.Errorf("user %s: %w", b.UserID, model.ErrNotFound)
	}
	if u.PredictionCoins.LessThan(b.Amount) {
		return fmt.Errorf("user %s: %w", u.ID, model.ErrInsufficientFunds)
	}

	// All checks passed; apply every write under the same lock.
	c.YesPool = p.NewYesPool
	c.NoPool = p.NewNoPool
	c.CurrentYesProbability = p.NewProbability
	u.PredictionCoins = u.PredictionCoins.Sub(b.Amount)

	cp := *b
	s.bets = append(s.bets, &cp)
	s.betIndex[cp.ID] = &cp
	if p.Point != nil {
		s.history[c.ID] = append(s.history[c.ID], *p.Point)
	}
	return nil
}

func (s *MemoryStore) GetBetsByContract(_ context.Context, contractID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.ContractID == contractID {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetBetsByUser(_ context.Context, userID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for i := len(s.bets) - 1; i >= 0; i-- {
		if s.bets[i].UserID == userID {
			result = append(result, *s.bets[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) SettleBet(_ context.Context, betID string, payout decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.betIndex[betID]
	if !ok {
		return fmt.Errorf("bet %s: %w", betID, model.ErrNotFound)
	}
	if b.SettledAt != nil {
		return fmt.Errorf("bet %s: %w", betID, model.ErrAlreadySettled)
	}
	u, ok := s.users[b.UserID]
	if !ok {
		return fmt.Errorf("user %s: %w", b.UserID, model.ErrNotFound)
	}

	now := time.Now().UTC()
	b.PayoutAmount = payout
	b.SettledAt = &now
	if payout.IsPositive() {
		u.PredictionCoins = u.PredictionCoins.Add(payout)
	}
	return nil
}

// --- Rankings ---

func (s *MemoryStore) GetRanking(_ context.Context, userID string) (*model.UserRanking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rankings[userID]
	if !ok {
		return nil, fmt.Errorf("ranking %s: %w", userID, model.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) SaveRanking(_ context.Context, r *model.UserRanking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.rankings[r.UserID] = &cp
	return nil
}

func (s *MemoryStore) ListRankings(_ context.Context) ([]model.UserRanking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.UserRanking, 0, len(s.rankings))
	for _, r := range s.rankings {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RankPoints != rows[j].RankPoints {
			return rows[i].RankPoints > rows[j].RankPoints
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

func (s *MemoryStore) UpdateRanks(_ context.Context, ranks []model.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range ranks {
		if r, ok := s.rankings[a.UserID]; ok {
			r.GlobalRank = a.GlobalRank
			r.TierRank = a.TierRank
		}
	}
	return nil
}
