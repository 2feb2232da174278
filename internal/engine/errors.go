package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// State conflicts: the operation names a position that already left the
// required state. Rejected, never retried.
var (
	ErrPositionNotOpen    = errors.New("position is not open")
	ErrPositionNotPending = errors.New("order is not pending")
	ErrMarketClosed       = errors.New("market is closed for this segment")
)

// LotLimitError reports a lot count outside the resolved bounds.
type LotLimitError struct {
	Requested int64
	Min       int64
	Max       int64
}

func (e LotLimitError) Error() string {
	return fmt.Sprintf("lot count %d outside allowed range [%d, %d]", e.Requested, e.Min, e.Max)
}

// InsufficientMarginError reports that available capital cannot cover margin
// plus commission. Shortfall is the missing amount, reported to the caller.
type InsufficientMarginError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e InsufficientMarginError) Error() string {
	return fmt.Sprintf("insufficient margin: required %s, available %s (shortfall %s)",
		e.Required, e.Available, e.Shortfall())
}

// Shortfall is Required - Available.
func (e InsufficientMarginError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
