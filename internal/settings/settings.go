package settings

import (
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// SegmentSettings are the per-segment defaults an operator grants a user.
type SegmentSettings struct {
	Enabled          bool                  `json:"enabled"`
	MinLots          int64                 `json:"min_lots"`
	MaxLots          int64                 `json:"max_lots"`
	ExposureIntraday decimal.Decimal       `json:"exposure_intraday"`
	ExposureCarry    decimal.Decimal       `json:"exposure_carry"`
	Commission       decimal.Decimal       `json:"commission"`
	CommissionBasis  types.CommissionBasis `json:"commission_basis"`
}

// FixedMargin carries per-lot margin overrides from script settings. A zero
// value means the leg is unset and the segment rule applies.
type FixedMargin struct {
	Intraday   decimal.Decimal `json:"intraday"`
	Carry      decimal.Decimal `json:"carry"`
	OptionBuy  decimal.Decimal `json:"option_buy"`
	OptionSell decimal.Decimal `json:"option_sell"`
}

// FixedCommission carries per-lot commission overrides from script settings.
type FixedCommission struct {
	Intraday   decimal.Decimal `json:"intraday"`
	Carry      decimal.Decimal `json:"carry"`
	OptionBuy  decimal.Decimal `json:"option_buy"`
	OptionSell decimal.Decimal `json:"option_sell"`
}

// ScriptSettings is the optional per-symbol override layer. Any non-zero
// field fully overrides the corresponding segment field.
type ScriptSettings struct {
	Symbol     string          `json:"symbol"`
	Blocked    bool            `json:"blocked"`
	Spread     decimal.Decimal `json:"spread"`
	MinLots    int64           `json:"min_lots"`
	MaxLots    int64           `json:"max_lots"`
	Margin     FixedMargin     `json:"margin"`
	Commission FixedCommission `json:"commission"`
}

// UserSettings is everything the resolver needs for one user: the segment
// map and the script-override map (keyed by symbol, base symbol or segment
// category).
type UserSettings struct {
	UserID   string                            `json:"user_id"`
	Segments map[types.Segment]SegmentSettings `json:"segments"`
	Scripts  map[string]ScriptSettings         `json:"scripts"`
}

// Resolved is the fully merged rule set for one (user, instrument) pair.
// After resolution no component does any further settings lookups.
type Resolved struct {
	Segment          types.Segment
	Enabled          bool
	MinLots          int64
	MaxLots          int64
	ExposureIntraday decimal.Decimal
	ExposureCarry    decimal.Decimal
	FixedMargin      FixedMargin
	FixedCommission  FixedCommission
	Commission       decimal.Decimal
	CommissionBasis  types.CommissionBasis
	Spread           decimal.Decimal
}
