// Package store defines the persistence interface for the trade engine.
// PostgreSQL is the source of truth; the in-memory implementation backs
// tests and development.
package store

import (
	"context"
	"errors"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
)

// ChangeSet is one atomic unit of work: every wallet mutation and position
// transition that must land together, plus their ledger entries. Commit
// applies all of it or none of it.
type ChangeSet struct {
	Positions     []model.Position
	Wallets       []model.Wallet
	CryptoWallets []model.CryptoWallet
	Entries       []model.LedgerEntry
}

// IsEmpty reports whether the change set carries no work.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Positions) == 0 && len(c.Wallets) == 0 &&
		len(c.CryptoWallets) == 0 && len(c.Entries) == 0
}

// Store is the engine's persistence surface.
type Store interface {
	// --- Account, wallet and settings reads ---

	Account(ctx context.Context, userID string) (model.Account, error)
	Wallet(ctx context.Context, userID string) (model.Wallet, error)
	CryptoWallet(ctx context.Context, userID string) (model.CryptoWallet, error)
	UserSettings(ctx context.Context, userID string) (settings.UserSettings, error)

	// --- Position reads ---

	Position(ctx context.Context, id string) (model.Position, error)
	PositionsByUser(ctx context.Context, userID string, statuses ...types.PositionStatus) ([]model.Position, error)
	// OpenOpposite returns the OPEN position on the opposite side for the
	// same (user, symbol, exchange), or ErrNotFound.
	OpenOpposite(ctx context.Context, userID, symbol, exchange string, side types.Side) (model.Position, error)
	// ActiveBySymbols returns all OPEN and PENDING positions on the given
	// symbols, for the tick pass.
	ActiveBySymbols(ctx context.Context, symbols []string) ([]model.Position, error)
	// ActiveUserIDs lists every user holding at least one OPEN position.
	ActiveUserIDs(ctx context.Context) ([]string, error)

	// --- Ledger export (read-only) ---

	LedgerEntries(ctx context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error)

	// --- Provisioning (operator surface, out of band of trading) ---

	SaveAccount(ctx context.Context, a model.Account) error
	SaveWallet(ctx context.Context, w model.Wallet) error
	SaveCryptoWallet(ctx context.Context, w model.CryptoWallet) error
	SaveUserSettings(ctx context.Context, s settings.UserSettings) error

	// --- Atomic write ---

	Commit(ctx context.Context, change ChangeSet) error
}
