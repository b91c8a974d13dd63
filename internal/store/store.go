// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Every method that changes more than one entity applies its writes as a
// single unit: a reader never observes a pool update without the bet that
// caused it, or a payout without the matching balance credit.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user. Returns model.ErrDuplicate if the
	// username is taken.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUsers returns every user, newest first.
	ListUsers(ctx context.Context) ([]model.User, error)

	// --- Contracts ---

	// CreateContract persists a new contract together with its first
	// price point. Returns model.ErrDuplicate if the title is taken.
	CreateContract(ctx context.Context, c *model.Contract, first *model.PricePoint) error

	// GetContract retrieves a contract by ID.
	GetContract(ctx context.Context, id string) (*model.Contract, error)

	// ListContracts returns all contracts, newest first.
	ListContracts(ctx context.Context) ([]model.Contract, error)

	// CloseContract moves an open contract to closed with the given
	// resolution. Returns model.ErrAlreadyResolved if it is not open.
	CloseContract(ctx context.Context, id string, resolution model.Side) (*model.Contract, error)

	// GetPriceHistory returns a contract's price points, oldest first.
	GetPriceHistory(ctx context.Context, contractID string) ([]model.PricePoint, error)

	// --- Bets ---

	// PlaceBet atomically inserts the bet, moves the contract's pools from
	// Prev* to New*, appends the price point and debits the user by the
	// bet amount. Fails with model.ErrInsufficientFunds if the balance is
	// short, model.ErrInvalidState if the contract closed, and
	// model.ErrStaleContract if the pools moved since the quote.
	PlaceBet(ctx context.Context, p *model.BetPlacement) error

	// GetBetsByContract returns every bet on a contract, oldest first.
	GetBetsByContract(ctx context.Context, contractID string) ([]model.Bet, error)

	// GetBetsByUser returns every bet of a user, newest first.
	GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error)

	// SettleBet records a bet's payout and credits its owner by the same
	// amount. Returns model.ErrAlreadySettled if it was settled before.
	SettleBet(ctx context.Context, betID string, payout decimal.Decimal) error

	// --- Rankings ---

	// GetRanking retrieves a user's ranking row.
	GetRanking(ctx context.Context, userID string) (*model.UserRanking, error)

	// SaveRanking inserts or replaces a user's ranking row.
	SaveRanking(ctx context.Context, r *model.UserRanking) error

	// ListRankings returns every ranking row ordered by points descending.
	ListRankings(ctx context.Context) ([]model.UserRanking, error)

	// UpdateRanks writes global and tier ranks from a full re-sort.
	UpdateRanks(ctx context.Context, ranks []model.RankAssignment) error
}
