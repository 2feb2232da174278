// Package pricing applies the dealing-desk spread and computes the broker
// commission for one order.
package pricing

import (
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// EntryPrice adds the symbol spread to the raw fill price: up on BUY, down
// on SELL. The result is the position's stored entry price.
func EntryPrice(raw decimal.Decimal, side types.Side, spread decimal.Decimal) decimal.Decimal {
	if side == types.SideSell {
		return raw.Sub(spread)
	}
	return raw.Add(spread)
}

// ExitPrice applies the spread with the opposite sign: a LONG exits below
// the raw price, a SHORT exits above it.
func ExitPrice(raw decimal.Decimal, side types.Side, spread decimal.Decimal) decimal.Decimal {
	if side == types.SideSell {
		return raw.Add(spread)
	}
	return raw.Sub(spread)
}

// CommissionInput describes the order being charged.
type CommissionInput struct {
	Instrument model.Instrument
	Side       types.Side
	Product    types.ProductType
	Lots       int64
	TradeValue decimal.Decimal
	Settings   settings.Resolved
}

// Commission computes the broker fee, charged once at entry as a round-trip
// cost. A script fixed per-lot commission for the matching leg wins; the
// segment commission basis is the fallback.
func Commission(in CommissionInput) decimal.Decimal {
	lots := decimal.NewFromInt(in.Lots)

	if perLot := fixedPerLot(in); perLot.GreaterThan(decimal.Zero) {
		return perLot.Mul(lots)
	}

	rate := in.Settings.Commission
	if !rate.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	switch in.Settings.CommissionBasis {
	case types.CommissionPerLot:
		return rate.Mul(lots)
	case types.CommissionPerTrade:
		return rate
	case types.CommissionTurnover:
		// rate is a percentage of aggregate turnover.
		return in.TradeValue.Mul(rate).Div(decimal.NewFromInt(100))
	default:
		return rate
	}
}

func fixedPerLot(in CommissionInput) decimal.Decimal {
	fc := in.Settings.FixedCommission
	if in.Instrument.IsOption() {
		if in.Side == types.SideSell && fc.OptionSell.GreaterThan(decimal.Zero) {
			return fc.OptionSell
		}
		if in.Side == types.SideBuy && fc.OptionBuy.GreaterThan(decimal.Zero) {
			return fc.OptionBuy
		}
	}
	if in.Product == types.ProductCarryForward && fc.Carry.GreaterThan(decimal.Zero) {
		return fc.Carry
	}
	if in.Product == types.ProductIntraday && fc.Intraday.GreaterThan(decimal.Zero) {
		return fc.Intraday
	}
	return decimal.Zero
}
