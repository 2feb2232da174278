package model

import (
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// Instrument identifies one tradable contract.
type Instrument struct {
	Symbol     string               `json:"symbol"`
	Exchange   string               `json:"exchange"`
	Segment    types.Segment        `json:"segment"`
	Kind       types.InstrumentKind `json:"kind"`
	Expiry     *time.Time           `json:"expiry,omitempty"`
	Strike     *decimal.Decimal     `json:"strike,omitempty"`
	OptionType types.OptionType     `json:"option_type,omitempty"`
}

// IsOption reports whether the contract is an option leg.
func (i Instrument) IsOption() bool {
	return i.Kind == types.KindOption
}

// Position is the trade record. It is created by order placement, mutated by
// tick processing while OPEN, and transitioned exactly once to a terminal
// status. Positions are never deleted.
type Position struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Instrument

	Side      types.Side        `json:"side"`
	Product   types.ProductType `json:"product_type"`
	OrderKind types.OrderKind   `json:"order_kind"`

	Lots     int64           `json:"lots"`
	LotSize  decimal.Decimal `json:"lot_size"`
	Quantity decimal.Decimal `json:"quantity"`

	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty"`
	StopLoss     *decimal.Decimal `json:"stop_loss,omitempty"`
	Target       *decimal.Decimal `json:"target,omitempty"`

	EntryPrice  decimal.Decimal `json:"entry_price"`
	MarketPrice decimal.Decimal `json:"market_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`

	MarginUsed decimal.Decimal `json:"margin_used"`
	Leverage   decimal.Decimal `json:"leverage"`
	Spread     decimal.Decimal `json:"spread"`
	Commission decimal.Decimal `json:"commission"`
	MarginRule string          `json:"margin_rule"`

	Status      types.PositionStatus `json:"status"`
	CloseReason types.CloseReason    `json:"close_reason,omitempty"`

	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	AdminPnL      decimal.Decimal `json:"admin_pnl"`

	CreatedAt time.Time  `json:"created_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// IsCrypto reports whether the position settles against the crypto sub-wallet.
func (p Position) IsCrypto() bool {
	return p.Segment == types.SegmentCrypto
}

// GrossPnL computes (exit - entry) * sideSign * quantity.
func (p Position) GrossPnL(exit decimal.Decimal) decimal.Decimal {
	return exit.Sub(p.EntryPrice).
		Mul(decimal.NewFromInt(p.Side.Sign())).
		Mul(p.Quantity)
}

// TickActionTriggered reports a PENDING order filled by a tick; close-side
// actions carry the close reason instead.
const TickActionTriggered = "TRIGGERED"

// TickAction is one position a price-tick pass acted on: a triggered fill,
// a stop-loss, target or margin-call close, or a netting consummation.
type TickAction struct {
	Position Position `json:"position"`
	Action   string   `json:"action"`
}
