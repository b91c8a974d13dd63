package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func dec(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, prediction_coins, fantasy_coins, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)`,
		u.ID, u.Username, u.PredictionCoins.String(), u.FantasyCoins.String(), u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.Username, model.ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var prediction, fantasy string

	err := s.pool.QueryRow(ctx,
		`SELECT id, username, prediction_coins::TEXT, fantasy_coins::TEXT, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &prediction, &fantasy, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u.PredictionCoins = dec(prediction)
	u.FantasyCoins = dec(fantasy)
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, prediction_coins::TEXT, fantasy_coins::TEXT, created_at
		 FROM users ORDER BY created_at DESC, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var prediction, fantasy string
		if err := rows.Scan(&u.ID, &u.Username, &prediction, &fantasy, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.PredictionCoins = dec(prediction)
		u.FantasyCoins = dec(fantasy)
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Contracts ---

const contractColumns = `id, title, description, category, creator_id, status, resolution,
	yes_pool::TEXT, no_pool::TEXT, liquidity_pool::TEXT, current_yes_probability::TEXT,
	closing_date, created_at, resolved_at`

func scanContract(row scanner) (*model.Contract, error) {
	var c model.Contract
	var yes, no, liquidity, prob string
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.CreatorID,
		&c.Status, &c.Resolution,
		&yes, &no, &liquidity, &prob,
		&c.ClosingDate, &c.CreatedAt, &c.ResolvedAt); err != nil {
		return nil, err
	}
	c.YesPool = dec(yes)
	c.NoPool = dec(no)
	c.LiquidityPool = dec(liquidity)
	c.CurrentYesProbability = dec(prob)
	return &c, nil
}

func (s *PostgresStore) CreateContract(ctx context.Context, c *model.Contract, first *model.PricePoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO contracts (id, title, description, category, creator_id, status, resolution,
		                        yes_pool, no_pool, liquidity_pool, current_yes_probability,
		                        closing_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13)`,
		c.ID, c.Title, c.Description, c.Category, c.CreatorID, c.Status, c.Resolution,
		c.YesPool.String(), c.NoPool.String(), c.LiquidityPool.String(), c.CurrentYesProbability.String(),
		c.ClosingDate, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("contract %q: %w", c.Title, model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}

	if first != nil {
		if err := insertPricePoint(ctx, tx, first); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	c, err := scanContract(s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context) ([]model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+` FROM contracts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (s *PostgresStore) CloseContract(ctx context.Context, id string, resolution model.Side) (*model.Contract, error) {
	c, err := scanContract(s.pool.QueryRow(ctx,
		`UPDATE contracts
		 SET status = $2, resolution = $3, resolved_at = $4
		 WHERE id = $1 AND status = $5
		 RETURNING `+contractColumns,
		id, model.StatusClosed, resolution, time.Now().UTC(), model.StatusOpen))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("close contract %s: %w", id, err)
	}

	// No row updated: either missing or no longer open.
	if _, err := s.GetContract(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("contract %s: %w", id, model.ErrAlreadyResolved)
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, contractID string) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contract_id, yes_probability::TEXT, yes_pool::TEXT, no_pool::TEXT, timestamp
		 FROM price_points WHERE contract_id = $1 ORDER BY timestamp, seq`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var prob, yes, no string
		if err := rows.Scan(&p.ID, &p.ContractID, &prob, &yes, &no, &p.Timestamp); err != nil {
			return nil, err
		}
		p.YesProbability = dec(prob)
		p.YesPool = dec(yes)
		p.NoPool = dec(no)
		points = append(points, p)
	}
	return points, rows.Err()
}

func insertPricePoint(ctx context.Context, tx pgx.Tx, p *model.PricePoint) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO price_points (id, contract_id, yes_probability, yes_pool, no_pool, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		p.ID, p.ContractID, p.YesProbability.String(), p.YesPool.String(), p.NoPool.String(), p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}
	return nil
}

// --- Bets ---

func (s *PostgresStore) PlaceBet(ctx context.Context, p *model.BetPlacement) error {
	b := p.Bet

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Guarded debit: the balance never goes negative.
	tag, err := tx.Exec(ctx,
		`UPDATE users SET prediction_coins = prediction_coins - $2::NUMERIC
		 WHERE id = $1 AND prediction_coins >= $2::NUMERIC`,
		b.UserID, b.Amount.String())
	if err != nil {
		return fmt.Errorf("debit user %s: %w", b.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, b.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %s: %w", b.UserID, model.ErrNotFound)
		}
		return fmt.Errorf("user %s: %w", b.UserID, model.ErrInsufficientFunds)
	}

	// Compare-and-set on the pools the quote was computed from.
	tag, err = tx.Exec(ctx,
		`UPDATE contracts
		 SET yes_pool = $2::NUMERIC, no_pool = $3::NUMERIC, current_yes_probability = $4::NUMERIC
		 WHERE id = $1 AND status = $5 AND yes_pool = $6::NUMERIC AND no_pool = $7::NUMERIC`,
		b.ContractID, p.NewYesPool.String(), p.NewNoPool.String(), p.NewProbability.String(),
		model.StatusOpen, p.PrevYesPool.String(), p.PrevNoPool.String())
	if err != nil {
		return fmt.Errorf("update pools %s: %w", b.ContractID, err)
	}
	if tag.RowsAffected() == 0 {
		c, err := s.GetContract(ctx, b.ContractID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			return fmt.Errorf("contract %s is %s: %w", c.ID, c.Status, model.ErrInvalidState)
		}
		return fmt.Errorf("contract %s: %w", c.ID, model.ErrStaleContract)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bets (id, user_id, contract_id, position, amount, shares, purchase_price,
		                   potential_payout, payout_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		b.ID, b.UserID, b.ContractID, b.Position,
		b.Amount.String(), b.Shares.String(), b.PurchasePrice.String(),
		b.PotentialPayout.String(), b.PayoutAmount.String(), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}

	if p.Point != nil {
		if err := insertPricePoint(ctx, tx, p.Point); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const betColumns = `id, user_id, contract_id, position,
	amount::TEXT, shares::TEXT, purchase_price::TEXT, potential_payout::TEXT, payout_amount::TEXT,
	created_at, settled_at`

func (s *PostgresStore) GetBetsByContract(ctx context.Context, contractID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE contract_id = $1 ORDER BY created_at, seq`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id = $1 ORDER BY created_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) SettleBet(ctx context.Context, betID string, payout decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx,
		`UPDATE bets SET payout_amount = $2::NUMERIC, settled_at = $3
		 WHERE id = $1 AND settled_at IS NULL
		 RETURNING user_id`,
		betID, payout.String(), time.Now().UTC()).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bets WHERE id = $1)`, betID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("bet %s: %w", betID, model.ErrNotFound)
		}
		return fmt.Errorf("bet %s: %w", betID, model.ErrAlreadySettled)
	}
	if err != nil {
		return fmt.Errorf("settle bet %s: %w", betID, err)
	}

	if payout.IsPositive() {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET prediction_coins = prediction_coins + $2::NUMERIC WHERE id = $1`,
			userID, payout.String()); err != nil {
			return fmt.Errorf("credit user %s: %w", userID, err)
		}
	}
	return tx.Commit(ctx)
}

// pgxRows is the subset of pgx.Rows used by the scan helpers.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBets(rows pgxRows) ([]model.Bet, error) {
	var bets []model.Bet
	for rows.Next() {
		var b model.Bet
		var amount, shares, price, potential, payout string

		if err := rows.Scan(&b.ID, &b.UserID, &b.ContractID, &b.Position,
			&amount, &shares, &price, &potential, &payout,
			&b.CreatedAt, &b.SettledAt); err != nil {
			return nil, err
		}

		b.Amount = dec(amount)
		b.Shares = dec(shares)
		b.PurchasePrice = dec(price)
		b.PotentialPayout = dec(potential)
		b.PayoutAmount = dec(payout)

		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// --- Rankings ---

const rankingColumns = `user_id, tier, rank_points, global_rank, tier_rank,
	win_streak, best_streak, loss_streak, last_updated`

func scanRanking(row scanner) (*model.UserRanking, error) {
	var r model.UserRanking
	if err := row.Scan(&r.UserID, &r.Tier, &r.RankPoints, &r.GlobalRank, &r.TierRank,
		&r.WinStreak, &r.BestStreak, &r.LossStreak, &r.LastUpdated); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRanking(ctx context.Context, userID string) (*model.UserRanking, error) {
	r, err := scanRanking(s.pool.QueryRow(ctx,
		`SELECT `+rankingColumns+` FROM user_rankings WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ranking %s: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ranking %s: %w", userID, err)
	}
	return r, nil
}

func (s *PostgresStore) SaveRanking(ctx context.Context, r *model.UserRanking) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_rankings (`+rankingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id) DO UPDATE SET
		     tier = EXCLUDED.tier,
		     rank_points = EXCLUDED.rank_points,
		     global_rank = EXCLUDED.global_rank,
		     tier_rank = EXCLUDED.tier_rank,
		     win_streak = EXCLUDED.win_streak,
		     best_streak = EXCLUDED.best_streak,
		     loss_streak = EXCLUDED.loss_streak,
		     last_updated = EXCLUDED.last_updated`,
		r.UserID, r.Tier, r.RankPoints, r.GlobalRank, r.TierRank,
		r.WinStreak, r.BestStreak, r.LossStreak, r.LastUpdated,
	)
	return err
}

func (s *PostgresStore) ListRankings(ctx context.Context) ([]model.UserRanking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rankingColumns+` FROM user_rankings ORDER BY rank_points DESC, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserRanking
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRanks(ctx context.Context, ranks []model.RankAssignment) error {
	if len(ranks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range ranks {
		batch.Queue(`UPDATE user_rankings SET global_rank = $2, tier_rank = $3 WHERE user_id = $1`,
			a.UserID, a.GlobalRank, a.TierRank)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update ranks: %w", err)
	}
	return tx.Commit(ctx)
}
