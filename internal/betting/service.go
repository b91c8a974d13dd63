// Package betting provides the business logic and HTTP handlers for
// users, prediction contracts, bet placement, resolution and rankings.
//
// All monetary values use shopspring/decimal, never float64.
package betting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/betarena/market-engine/internal/amm"
	"github.com/betarena/market-engine/internal/exposure"
	"github.com/betarena/market-engine/internal/metrics"
	"github.com/betarena/market-engine/internal/model"
	"github.com/betarena/market-engine/internal/portfolio"
	"github.com/betarena/market-engine/internal/ranking"
	"github.com/betarena/market-engine/internal/store"
)

// Config holds the market parameters of a Service.
type Config struct {
	InitialLiquidity  decimal.Decimal
	StartingBalance   decimal.Decimal
	MinBet            decimal.Decimal
	MaxBet            decimal.Decimal
	SettlementWorkers int
}

// DefaultConfig returns the stock market parameters.
func DefaultConfig() Config {
	return Config{
		InitialLiquidity:  amm.DefaultLiquidity,
		StartingBalance:   decimal.NewFromInt(1000),
		MinBet:            decimal.NewFromInt(1),
		MaxBet:            decimal.NewFromInt(10000),
		SettlementWorkers: 8,
	}
}

// maxPlaceAttempts bounds retries when the stored pools moved between the
// quote and the write, which only happens with several instances sharing
// one database.
const maxPlaceAttempts = 3

// Service handles contract operations.
//
// Bet placement and resolution on the same contract are serialized by a
// per-contract lock; different contracts proceed in parallel. The store
// additionally rejects a placement whose quoted pools are stale, which
// covers writers in other processes. When stake limits are enabled, a
// per-user lock is taken inside the contract lock so that one user's bets
// on different contracts of a category are checked one at a time. The
// ranking phase of resolution and RecomputeRanks share one mutex.
type Service struct {
	store   store.Store
	cfg     Config
	limiter *exposure.StakeLimiter
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts

	locks     *keyedMutex // per contract
	userLocks *keyedMutex // per user, only with stake limits
	rankMu    sync.Mutex
	now       func() time.Time
}

// NewService creates a new betting service.
// Pass nil for limiter to disable stake limits and nil for hub if
// WebSocket broadcasting is not needed.
func NewService(st store.Store, cfg Config, limiter *exposure.StakeLimiter, hub *WSHub) *Service {
	if cfg.SettlementWorkers < 1 {
		cfg.SettlementWorkers = 1
	}
	return &Service{
		store:     st,
		cfg:       cfg,
		limiter:   limiter,
		wsHub:     hub,
		locks:     newKeyedMutex(),
		userLocks: newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// --- Result types ---

// ContractView is a contract together with its derived market state.
type ContractView struct {
	model.Contract
	State    amm.State       `json:"state"`
	BetCount int             `json:"bet_count"`
	YesStake decimal.Decimal `json:"yes_stake"`
	NoStake  decimal.Decimal `json:"no_stake"`
}

// PlaceBetResult is returned from a successful bet placement.
type PlaceBetResult struct {
	Bet            *model.Bet      `json:"bet"`
	NewProbability decimal.Decimal `json:"new_probability"`
	YesPrice       decimal.Decimal `json:"yes_price"`
	NoPrice        decimal.Decimal `json:"no_price"`
}

// SettlementFailure records a bet whose payout could not be applied.
type SettlementFailure struct {
	BetID  string `json:"bet_id"`
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// ResolutionSummary is returned from ResolveContract.
type ResolutionSummary struct {
	ContractID   string              `json:"contract_id"`
	Resolution   model.Side          `json:"resolution"`
	TotalPayouts decimal.Decimal     `json:"total_payouts"`
	BetCount     int                 `json:"bet_count"`
	Failed       []SettlementFailure `json:"failed"`
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	Rank       int          `json:"rank"`
	UserID     string       `json:"user_id"`
	Username   string       `json:"username"`
	Tier       string       `json:"tier"`
	TierRank   int          `json:"tier_rank"`
	RankPoints int64        `json:"rank_points"`
	WinStreak  int          `json:"win_streak"`
	BestStreak int          `json:"best_streak"`
	Band       ranking.Band `json:"band"`
}

// RankingView is a user's ranking row with its tier band.
type RankingView struct {
	model.UserRanking
	Band ranking.Band `json:"band"`
}

// Leaderboard size bounds.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// --- Users ---

// CreateUser registers a user with the starting balance in both currencies.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u := &model.User{
		ID:              uuid.New().String(),
		Username:        req.Username,
		PredictionCoins: s.cfg.StartingBalance,
		FantasyCoins:    s.cfg.StartingBalance,
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("user created", "id", u.ID, "username", u.Username)
	return u, nil
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

// --- Contracts ---

// CreateContract opens a contract with the configured liquidity split
// evenly between the pools, and records its first price point.
func (s *Service) CreateContract(ctx context.Context, req CreateContractRequest) (*model.Contract, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pools, err := amm.InitialPools(s.cfg.InitialLiquidity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	now := s.now()
	c := &model.Contract{
		ID:                    uuid.New().String(),
		Title:                 req.Title,
		Description:           req.Description,
		Category:              req.Category,
		CreatorID:             req.CreatorID,
		Status:                model.StatusOpen,
		YesPool:               pools.YesPool,
		NoPool:                pools.NoPool,
		LiquidityPool:         pools.LiquidityPool,
		CurrentYesProbability: pools.Probability,
		ClosingDate:           req.ClosingDate,
		CreatedAt:             now,
	}
	first := &model.PricePoint{
		ID:             uuid.New().String(),
		ContractID:     c.ID,
		YesProbability: c.CurrentYesProbability,
		YesPool:        c.YesPool,
		NoPool:         c.NoPool,
		Timestamp:      now,
	}
	if err := s.store.CreateContract(ctx, c, first); err != nil {
		return nil, err
	}

	metrics.ActiveContracts.Inc()
	slog.Info("contract created",
		"id", c.ID,
		"title", c.Title,
		"category", c.Category,
		"liquidity", c.LiquidityPool.String(),
	)
	return c, nil
}

// ContractState returns a contract with its prices and stake totals.
func (s *Service) ContractState(ctx context.Context, id string) (*ContractView, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	bets, err := s.store.GetBetsByContract(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load bets for %s: %w", id, err)
	}
	v := contractView(*c, bets)
	return &v, nil
}

// ListContracts returns every contract, newest first, with its market
// state and stake totals.
func (s *Service) ListContracts(ctx context.Context) ([]ContractView, error) {
	contracts, err := s.store.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ContractView, 0, len(contracts))
	for _, c := range contracts {
		bets, err := s.store.GetBetsByContract(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("load bets for %s: %w", c.ID, err)
		}
		views = append(views, contractView(c, bets))
	}
	return views, nil
}

// ActiveContractCount returns the number of open contracts.
func (s *Service) ActiveContractCount(ctx context.Context) (int, error) {
	contracts, err := s.store.ListContracts(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range contracts {
		if c.IsOpen() {
			n++
		}
	}
	return n, nil
}

func contractView(c model.Contract, bets []model.Bet) ContractView {
	v := ContractView{
		Contract: c,
		State:    amm.MarketState(c.YesPool, c.NoPool),
		BetCount: len(bets),
		YesStake: decimal.Zero,
		NoStake:  decimal.Zero,
	}
	for _, b := range bets {
		if b.Position == model.SideYes {
			v.YesStake = v.YesStake.Add(b.Amount)
		} else {
			v.NoStake = v.NoStake.Add(b.Amount)
		}
	}
	return v
}

// PriceHistory returns a contract's price points, oldest first.
func (s *Service) PriceHistory(ctx context.Context, contractID string) ([]model.PricePoint, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.store.GetPriceHistory(ctx, contractID)
}

// --- Bets ---

// PlaceBet stakes req.Amount coins on one side of an open contract.
//
// The contract read, the quote and the write happen under the contract's
// lock. With stake limits enabled the user's lock is held too, always
// after the contract lock, from the exposure check through the write. The store applies the bet, the pool update, the price point and
// the balance debit as one unit, so a rejected bet changes nothing.
func (s *Service) PlaceBet(ctx context.Context, contractID string, req PlaceBetRequest) (*PlaceBetResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		metrics.BetRejections.WithLabelValues("validation").Inc()
		return nil, err
	}
	amount := decimal.NewFromInt(req.Amount)
	if amount.LessThan(s.cfg.MinBet) || amount.GreaterThan(s.cfg.MaxBet) {
		metrics.BetRejections.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: amount must be between %s and %s coins",
			model.ErrValidation, s.cfg.MinBet, s.cfg.MaxBet)
	}

	unlock := s.locks.Lock(contractID)
	defer unlock()
	if s.limiter.Enabled() {
		unlockUser := s.userLocks.Lock(req.UserID)
		defer unlockUser()
	}

	var (
		res *placed
		err error
	)
	for attempt := 1; attempt <= maxPlaceAttempts; attempt++ {
		res, err = s.placeBet(ctx, contractID, req.UserID, req.Position, amount)
		if !errors.Is(err, model.ErrStaleContract) {
			break
		}
		slog.Warn("stale contract on bet placement, retrying",
			"contract", contractID, "attempt", attempt)
	}
	if err != nil {
		metrics.BetRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	b := res.bet
	state := amm.MarketState(res.yesPool, res.noPool)

	metrics.BetsTotal.WithLabelValues(string(b.Position)).Inc()
	metrics.StakeVolume.WithLabelValues(res.category, string(b.Position)).Add(b.Amount.InexactFloat64())
	metrics.BetLatency.WithLabelValues(string(b.Position)).Observe(time.Since(start).Seconds())

	slog.Info("bet placed",
		"bet_id", b.ID,
		"user", b.UserID,
		"contract", b.ContractID,
		"position", b.Position,
		"amount", b.Amount.String(),
		"shares", b.Shares.String(),
		"price", b.PurchasePrice.String(),
		"new_probability", state.Probability.String(),
	)

	// Broadcast price update via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        MsgBetPlaced,
			ContractID:  b.ContractID,
			Probability: state.Probability.String(),
			YesPool:     state.YesPool.String(),
			NoPool:      state.NoPool.String(),
			Side:        string(b.Position),
			Amount:      b.Amount.String(),
		})
	}

	return &PlaceBetResult{
		Bet:            b,
		NewProbability: state.Probability,
		YesPrice:       state.YesPrice,
		NoPrice:        state.NoPrice,
	}, nil
}

type placed struct {
	bet      *model.Bet
	yesPool  decimal.Decimal
	noPool   decimal.Decimal
	category string
}

// placeBet runs one read-quote-write attempt. Caller holds the contract lock.
func (s *Service) placeBet(ctx context.Context, contractID, userID string, side model.Side, amount decimal.Decimal) (*placed, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		return nil, fmt.Errorf("contract %s is %s: %w", c.ID, c.Status, model.ErrInvalidState)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.PredictionCoins.LessThan(amount) {
		return nil, fmt.Errorf("user %s has %s, needs %s: %w",
			u.ID, u.PredictionCoins, amount, model.ErrInsufficientFunds)
	}

	if err := s.checkExposure(ctx, c, userID, amount); err != nil {
		return nil, err
	}

	q, err := amm.Quote(amount, c.YesPool, c.NoPool, side)
	if errors.Is(err, amm.ErrDegenerateMarket) {
		return nil, fmt.Errorf("contract %s: %w: %w", c.ID, model.ErrInvalidState, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	now := s.now()
	bet := &model.Bet{
		ID:              uuid.New().String(),
		UserID:          userID,
		ContractID:      c.ID,
		Position:        side,
		Amount:          amount,
		Shares:          q.Shares,
		PurchasePrice:   q.Price,
		PotentialPayout: amm.PotentialPayout(q.Shares, q.NewYesPool, q.NewNoPool, side),
		PayoutAmount:    decimal.Zero,
		CreatedAt:       now,
	}
	p := &model.BetPlacement{
		Bet:            bet,
		PrevYesPool:    c.YesPool,
		PrevNoPool:     c.NoPool,
		NewYesPool:     q.NewYesPool,
		NewNoPool:      q.NewNoPool,
		NewProbability: q.NewProbability,
		Point: &model.PricePoint{
			ID:             uuid.New().String(),
			ContractID:     c.ID,
			YesProbability: q.NewProbability,
			YesPool:        q.NewYesPool,
			NoPool:         q.NewNoPool,
			Timestamp:      now,
		},
	}
	if err := s.store.PlaceBet(ctx, p); err != nil {
		return nil, err
	}
	return &placed{bet: bet, yesPool: q.NewYesPool, noPool: q.NewNoPool, category: c.Category}, nil
}

// checkExposure applies the stake limiter to the user's open bets.
func (s *Service) checkExposure(ctx context.Context, c *model.Contract, userID string, amount decimal.Decimal) error {
	if !s.limiter.Enabled() {
		return nil
	}
	bets, err := s.store.GetBetsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load bets for %s: %w", userID, err)
	}
	categories := map[string]string{c.ID: c.Category}
	for _, b := range bets {
		if _, ok := categories[b.ContractID]; ok || b.SettledAt != nil {
			continue
		}
		other, err := s.store.GetContract(ctx, b.ContractID)
		if err != nil {
			return fmt.Errorf("load contract %s: %w", b.ContractID, err)
		}
		categories[other.ID] = other.Category
	}

	stakes := exposure.StakesFromBets(bets, categories)
	if err := s.limiter.CheckLimit(c.ID, c.Category, amount, stakes); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidState, err)
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, exposure.ErrPerContractLimitExceeded), errors.Is(err, exposure.ErrPerCategoryLimitExceeded):
		return "stake_limit"
	case errors.Is(err, amm.ErrDegenerateMarket):
		return "degenerate_market"
	case errors.Is(err, model.ErrStaleContract):
		return "stale_contract"
	case errors.Is(err, model.ErrInvalidState):
		return "contract_closed"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

// UserPositions returns a user's bets on one contract, newest first.
func (s *Service) UserPositions(ctx context.Context, contractID, userID string) ([]model.Bet, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	bets, err := s.store.GetBetsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Bet, 0)
	for _, b := range bets {
		if b.ContractID == contractID {
			out = append(out, b)
		}
	}
	return out, nil
}

// --- Resolution ---

// ResolveContract closes a contract, pays out every bet on it and feeds
// the outcomes into the ranking ladder.
//
// The close is committed under the contract lock before any payout, so no
// bet can be accepted mid-resolution. Bets settle in parallel and
// independently: a failed settlement is logged and reported in the
// summary without stopping the others. Rankings are then updated in one
// serialized phase followed by a single full re-sort.
func (s *Service) ResolveContract(ctx context.Context, contractID string, req ResolveRequest) (*ResolutionSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(contractID)
	c, err := s.store.CloseContract(ctx, contractID, req.Resolution)
	unlock()
	if err != nil {
		return nil, err
	}
	metrics.ActiveContracts.Dec()

	bets, err := s.store.GetBetsByContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load bets for %s: %w", contractID, err)
	}

	settled, failed := s.settleBets(ctx, c, bets)

	total := decimal.Zero
	for i, ok := range settled {
		if ok {
			total = total.Add(bets[i].PayoutAmount)
		}
	}

	if err := s.applyOutcomes(ctx, bets, settled); err != nil {
		slog.Error("ranking update failed", "contract", contractID, "err", err)
	}

	metrics.ContractsResolved.WithLabelValues(string(c.Resolution)).Inc()
	metrics.PayoutsTotal.Add(total.InexactFloat64())

	slog.Info("contract resolved",
		"contract", c.ID,
		"resolution", c.Resolution,
		"bets", len(bets),
		"total_payouts", total.String(),
		"failed", len(failed),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         MsgContractResolved,
			ContractID:   c.ID,
			Resolution:   string(c.Resolution),
			TotalPayouts: total.String(),
		})
	}

	return &ResolutionSummary{
		ContractID:   c.ID,
		Resolution:   c.Resolution,
		TotalPayouts: total,
		BetCount:     len(bets),
		Failed:       failed,
	}, nil
}

// settleBets pays out each bet with bounded parallelism. On return,
// settled[i] reports whether bets[i] was paid and bets[i].PayoutAmount
// holds its payout.
func (s *Service) settleBets(ctx context.Context, c *model.Contract, bets []model.Bet) ([]bool, []SettlementFailure) {
	totalPool := c.YesPool.Add(c.NoPool)
	settled := make([]bool, len(bets))
	failed := make([]SettlementFailure, 0)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.SettlementWorkers)
	for i := range bets {
		g.Go(func() error {
			b := &bets[i]
			if b.SettledAt != nil {
				return nil
			}
			payout := amm.ActualPayout(b.Shares, totalPool, b.Position, c.Resolution)
			if err := s.store.SettleBet(ctx, b.ID, payout); err != nil {
				slog.Error("bet settlement failed",
					"bet_id", b.ID, "user", b.UserID, "contract", c.ID, "err", err)
				metrics.SettlementFailures.Inc()
				mu.Lock()
				failed = append(failed, SettlementFailure{BetID: b.ID, UserID: b.UserID, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			b.PayoutAmount = payout
			settled[i] = true
			return nil
		})
	}
	g.Wait()
	return settled, failed
}

// applyOutcomes feeds settled bets into each owner's ranking row, oldest
// bet first, then recomputes every rank once.
func (s *Service) applyOutcomes(ctx context.Context, bets []model.Bet, settled []bool) error {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()

	now := s.now()
	rows := make(map[string]model.UserRanking)
	var order []string
	var errs []error

	for i := range bets {
		if !settled[i] {
			continue
		}
		b := &bets[i]
		r, ok := rows[b.UserID]
		if !ok {
			existing, err := s.store.GetRanking(ctx, b.UserID)
			switch {
			case err == nil:
				r = *existing
			case errors.Is(err, model.ErrNotFound):
				r = ranking.New(b.UserID, now)
			default:
				errs = append(errs, fmt.Errorf("load ranking %s: %w", b.UserID, err))
				continue
			}
			order = append(order, b.UserID)
		}
		r, _ = ranking.Apply(r, ranking.OutcomeForBet(b), now)
		rows[b.UserID] = r
	}

	for _, userID := range order {
		r := rows[userID]
		if err := s.store.SaveRanking(ctx, &r); err != nil {
			errs = append(errs, fmt.Errorf("save ranking %s: %w", userID, err))
		}
	}

	if err := s.recomputeLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// --- Rankings ---

// RecomputeRanks re-sorts every ranking row and rewrites global and tier
// ranks. Resolution does this itself; the scheduler calls it to repair
// ranks written concurrently by other instances.
func (s *Service) RecomputeRanks(ctx context.Context) error {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()
	return s.recomputeLocked(ctx)
}

func (s *Service) recomputeLocked(ctx context.Context) error {
	start := time.Now()
	rows, err := s.store.ListRankings(ctx)
	if err != nil {
		return fmt.Errorf("list rankings: %w", err)
	}
	ranks := ranking.Recompute(rows)
	if err := s.store.UpdateRanks(ctx, ranks); err != nil {
		return fmt.Errorf("update ranks: %w", err)
	}
	metrics.RankRecomputeDuration.Observe(time.Since(start).Seconds())
	slog.Debug("ranks recomputed", "users", len(ranks), "duration", time.Since(start))
	return nil
}

// Leaderboard returns the top users by rank points. Outside TimeframeAll
// only rows updated within the window are listed; ranks stay global.
// limit is clamped to MaxLeaderboardLimit; a non-positive limit uses the
// default.
func (s *Service) Leaderboard(ctx context.Context, tf Timeframe, limit int) ([]LeaderboardEntry, error) {
	limit = clampLimit(limit)

	rows, err := s.store.ListRankings(ctx)
	if err != nil {
		return nil, err
	}
	ranking.ApplyRanks(rows, ranking.Recompute(rows))
	if since, ok := tf.since(s.now()); ok {
		kept := rows[:0]
		for _, r := range rows {
			if !r.LastUpdated.Before(since) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		e := LeaderboardEntry{
			Rank:       r.GlobalRank,
			UserID:     r.UserID,
			Tier:       r.Tier,
			TierRank:   r.TierRank,
			RankPoints: r.RankPoints,
			WinStreak:  r.WinStreak,
			BestStreak: r.BestStreak,
			Band:       ranking.BandFor(ranking.Tier(r.Tier)),
		}
		if u, err := s.store.GetUser(ctx, r.UserID); err == nil {
			e.Username = u.Username
		}
		out = append(out, e)
	}
	return out, nil
}

// UserRanking returns a user's ranking row. A user without settled bets
// gets the starting row.
func (s *Service) UserRanking(ctx context.Context, userID string) (*RankingView, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	r, err := s.store.GetRanking(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		fresh := ranking.New(userID, s.now())
		r = &fresh
	} else if err != nil {
		return nil, err
	}
	return &RankingView{UserRanking: *r, Band: ranking.BandFor(ranking.Tier(r.Tier))}, nil
}

// --- Portfolio ---

// UserHistory returns every bet of a user with its outcome, newest first.
func (s *Service) UserHistory(ctx context.Context, userID string) ([]portfolio.HistoryEntry, error) {
	bets, contracts, err := s.userBets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return portfolio.History(bets, contracts), nil
}

// UserStatistics summarises a user's betting record.
func (s *Service) UserStatistics(ctx context.Context, userID string) (*portfolio.Statistics, error) {
	bets, contracts, err := s.userBets(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := portfolio.Summarize(portfolio.History(bets, contracts))
	return &stats, nil
}

// ActivePositions returns a user's bets on open contracts.
func (s *Service) ActivePositions(ctx context.Context, userID string) ([]portfolio.ActivePosition, error) {
	bets, contracts, err := s.userBets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return portfolio.ActivePositions(bets, contracts), nil
}

// userBets loads a user's bets and every contract they reference.
func (s *Service) userBets(ctx context.Context, userID string) ([]model.Bet, map[string]model.Contract, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, nil, err
	}
	bets, err := s.store.GetBetsByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	contracts := make(map[string]model.Contract)
	for _, b := range bets {
		if _, ok := contracts[b.ContractID]; ok {
			continue
		}
		c, err := s.store.GetContract(ctx, b.ContractID)
		if err != nil {
			return nil, nil, fmt.Errorf("load contract %s: %w", b.ContractID, err)
		}
		contracts[c.ID] = *c
	}
	return bets, contracts, nil
}
