package model

import (
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the immutable append record of one wallet delta. Balance is
// the wallet balance after the delta was applied. Entries are write-once and
// never mutated or deleted; the wallet record stays the source of truth for
// the current balance.
type LedgerEntry struct {
	ID         string               `json:"id"`
	UserID     string               `json:"user_id"`
	Direction  types.EntryDirection `json:"direction"`
	Reason     types.LedgerReason   `json:"reason"`
	Currency   types.Currency       `json:"currency"`
	Amount     decimal.Decimal      `json:"amount"`
	Balance    decimal.Decimal      `json:"balance"`
	PositionID string               `json:"position_id,omitempty"`
	Note       string               `json:"note,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Account links a user to the operator taking the other side of the book.
type Account struct {
	UserID    string         `json:"user_id"`
	AdminID   string         `json:"admin_id"`
	Book      types.BookType `json:"book_type"`
	CreatedAt time.Time      `json:"created_at"`
}
