// Package broker abstracts the upstream execution venue used to hedge
// A-book exposure. B-book flow never reaches a venue; the disabled adapter
// is the default.
package broker

import (
	"context"
	"errors"

	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// HedgeOrder mirrors one freshly opened position to the venue.
type HedgeOrder struct {
	PositionID string
	Symbol     string
	Exchange   string
	Side       types.Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
}

// HedgeResult identifies the venue-side order covering a position.
type HedgeResult struct {
	VenueOrderID string
	Status       string
}

// Adapter is the venue surface: hedge on open, release on close.
type Adapter interface {
	Hedge(ctx context.Context, order HedgeOrder) (HedgeResult, error)
	Release(ctx context.Context, positionID string) error
}

// DisabledAdapter rejects every hedge. Used until a real venue is wired.
type DisabledAdapter struct{}

func NewDisabledAdapter() *DisabledAdapter {
	return &DisabledAdapter{}
}

func (a *DisabledAdapter) Hedge(ctx context.Context, order HedgeOrder) (HedgeResult, error) {
	return HedgeResult{}, errors.New("hedge venue not configured")
}

func (a *DisabledAdapter) Release(ctx context.Context, positionID string) error {
	return errors.New("hedge venue not configured")
}
