// Package margin computes the capital a candidate order must reserve.
//
// Rule priority: a non-zero fixed per-lot margin from script settings wins,
// then the segment exposure ratio, then a generic leverage fallback keyed by
// segment, instrument kind and side. Crypto spot orders reserve no margin at
// all. All monetary values use shopspring/decimal — never float64 for money.
package margin

import (
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// Rule names which margin rule fired, for preview APIs and audit.
type Rule string

const (
	RuleFixedPerLot Rule = "FIXED_PER_LOT"
	RuleExposure    Rule = "EXPOSURE"
	RuleLeverage    Rule = "LEVERAGE_FALLBACK"
	RuleCryptoSpot  Rule = "CRYPTO_SPOT"
)

// Input is one candidate order.
type Input struct {
	Instrument model.Instrument
	Side       types.Side
	Product    types.ProductType
	Price      decimal.Decimal
	Lots       int64
	LotSize    decimal.Decimal
	Settings   settings.Resolved
	// CryptoRate converts a crypto-unit trade value into the reference
	// currency for reporting. Crypto orders still reserve zero margin.
	CryptoRate decimal.Decimal
}

// Result reports the reserved amount and which rule produced it.
type Result struct {
	Required   decimal.Decimal
	TradeValue decimal.Decimal
	Leverage   decimal.Decimal
	Rule       Rule
}

// Compute resolves the margin requirement for in.
func Compute(in Input) Result {
	lots := decimal.NewFromInt(in.Lots)
	tradeValue := in.Price.Mul(in.LotSize).Mul(lots)

	if in.Instrument.Segment == types.SegmentCrypto {
		if in.CryptoRate.GreaterThan(decimal.Zero) {
			tradeValue = tradeValue.Mul(in.CryptoRate)
		}
		return Result{
			Required:   decimal.Zero,
			TradeValue: tradeValue,
			Rule:       RuleCryptoSpot,
		}
	}

	if perLot := fixedPerLot(in); perLot.GreaterThan(decimal.Zero) {
		required := perLot.Mul(lots)
		return Result{
			Required:   required,
			TradeValue: tradeValue,
			Leverage:   leverageOf(tradeValue, required),
			Rule:       RuleFixedPerLot,
		}
	}

	if exposure := exposureRatio(in); exposure.GreaterThan(decimal.Zero) {
		required := tradeValue.Div(exposure)
		return Result{
			Required:   required,
			TradeValue: tradeValue,
			Leverage:   exposure,
			Rule:       RuleExposure,
		}
	}

	multiplier := fallbackMultiplier(in)
	required := tradeValue.Mul(multiplier)
	return Result{
		Required:   required,
		TradeValue: tradeValue,
		Leverage:   leverageOf(tradeValue, required),
		Rule:       RuleLeverage,
	}
}

// fixedPerLot picks the script fixed-margin leg for this order, or zero when
// the script sets none.
func fixedPerLot(in Input) decimal.Decimal {
	fm := in.Settings.FixedMargin
	if in.Instrument.IsOption() {
		if in.Side == types.SideSell && fm.OptionSell.GreaterThan(decimal.Zero) {
			return fm.OptionSell
		}
		if in.Side == types.SideBuy && fm.OptionBuy.GreaterThan(decimal.Zero) {
			return fm.OptionBuy
		}
	}
	if in.Product == types.ProductCarryForward && fm.Carry.GreaterThan(decimal.Zero) {
		return fm.Carry
	}
	if in.Product == types.ProductIntraday && fm.Intraday.GreaterThan(decimal.Zero) {
		return fm.Intraday
	}
	return decimal.Zero
}

func exposureRatio(in Input) decimal.Decimal {
	if in.Product == types.ProductCarryForward {
		return in.Settings.ExposureCarry
	}
	return in.Settings.ExposureIntraday
}

// Fallback multipliers of notional, used only when neither a script fixed
// margin nor a segment exposure is configured.
var (
	fullNotional      = decimal.NewFromInt(1)
	intradayFraction  = decimal.NewFromFloat(0.2)  // 5x
	futuresFraction   = decimal.NewFromFloat(0.1)  // 10x
	optionSellPortion = decimal.NewFromFloat(0.25) // short premium exposure
)

func fallbackMultiplier(in Input) decimal.Decimal {
	switch in.Instrument.Segment {
	case types.SegmentEquity:
		// Delivery buys fund the full notional.
		if in.Product == types.ProductCarryForward {
			return fullNotional
		}
		return intradayFraction
	case types.SegmentFutures, types.SegmentCommodity:
		return futuresFraction
	case types.SegmentOptions:
		if in.Side == types.SideSell {
			return optionSellPortion
		}
		// Option buys pay full premium.
		return fullNotional
	default:
		return fullNotional
	}
}

func leverageOf(tradeValue, required decimal.Decimal) decimal.Decimal {
	if !required.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return tradeValue.Div(required)
}
