package settings

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// SegmentDisabledError signals that the user's segment is not enabled for
// trading. Placement rejects it synchronously and never retries.
type SegmentDisabledError struct {
	Segment types.Segment
}

func (e SegmentDisabledError) Error() string {
	return fmt.Sprintf("segment %s is disabled for this account", e.Segment)
}

// InstrumentBlockedError signals a hard per-symbol block from script settings.
type InstrumentBlockedError struct {
	Symbol string
}

func (e InstrumentBlockedError) Error() string {
	return fmt.Sprintf("instrument %s is blocked", e.Symbol)
}

// UnknownSegmentError signals a segment token no alias maps onto.
type UnknownSegmentError struct {
	Token string
}

func (e UnknownSegmentError) Error() string {
	return fmt.Sprintf("unknown segment %q", e.Token)
}

// segmentAliases folds every legacy token onto a canonical segment key.
var segmentAliases = map[string]types.Segment{
	"EQUITY":        types.SegmentEquity,
	"EQ":            types.SegmentEquity,
	"NSE":           types.SegmentEquity,
	"NSE_EQ":        types.SegmentEquity,
	"CASH":          types.SegmentEquity,
	"DELIVERY":      types.SegmentEquity,
	"FUTURES":       types.SegmentFutures,
	"FUT":           types.SegmentFutures,
	"NFO_FUT":       types.SegmentFutures,
	"INDEX_FUTURES": types.SegmentFutures,
	"STOCK_FUTURES": types.SegmentFutures,
	"FUTIDX":        types.SegmentFutures,
	"FUTSTK":        types.SegmentFutures,
	"OPTIONS":       types.SegmentOptions,
	"OPT":           types.SegmentOptions,
	"NFO_OPT":       types.SegmentOptions,
	"INDEX_OPTIONS": types.SegmentOptions,
	"STOCK_OPTIONS": types.SegmentOptions,
	"OPTIDX":        types.SegmentOptions,
	"OPTSTK":        types.SegmentOptions,
	"COMMODITY":     types.SegmentCommodity,
	"MCX":           types.SegmentCommodity,
	"MCX_FUT":       types.SegmentCommodity,
	"MCX_OPT":       types.SegmentCommodity,
	"COMMODITY_FUT": types.SegmentCommodity,
	"COMMODITY_OPT": types.SegmentCommodity,
	"CRYPTO":        types.SegmentCrypto,
	"SPOT_CRYPTO":   types.SegmentCrypto,
	"CRYPTO_SPOT":   types.SegmentCrypto,
}

// NormalizeSegment maps a caller-supplied segment token onto a canonical
// segment key. Tokens are case-insensitive; '-' and ' ' are treated as '_'.
func NormalizeSegment(token string) (types.Segment, error) {
	key := strings.ToUpper(strings.TrimSpace(token))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if seg, ok := segmentAliases[key]; ok {
		return seg, nil
	}
	return "", UnknownSegmentError{Token: token}
}

// defaultSegmentSettings is the final fallback when neither a script override
// nor a user segment entry supplies a field.
var defaultSegmentSettings = map[types.Segment]SegmentSettings{
	types.SegmentEquity: {
		Enabled:          true,
		MinLots:          1,
		MaxLots:          100,
		ExposureIntraday: decimal.NewFromInt(5),
		ExposureCarry:    decimal.NewFromInt(1),
		Commission:       decimal.NewFromInt(20),
		CommissionBasis:  types.CommissionPerTrade,
	},
	types.SegmentFutures: {
		Enabled:          true,
		MinLots:          1,
		MaxLots:          50,
		ExposureIntraday: decimal.NewFromInt(10),
		ExposureCarry:    decimal.NewFromInt(5),
		Commission:       decimal.NewFromInt(40),
		CommissionBasis:  types.CommissionPerLot,
	},
	types.SegmentOptions: {
		Enabled:          true,
		MinLots:          1,
		MaxLots:          50,
		ExposureIntraday: decimal.NewFromInt(1),
		ExposureCarry:    decimal.NewFromInt(1),
		Commission:       decimal.NewFromInt(40),
		CommissionBasis:  types.CommissionPerLot,
	},
	types.SegmentCommodity: {
		Enabled:          true,
		MinLots:          1,
		MaxLots:          30,
		ExposureIntraday: decimal.NewFromInt(8),
		ExposureCarry:    decimal.NewFromInt(4),
		Commission:       decimal.NewFromInt(50),
		CommissionBasis:  types.CommissionPerLot,
	},
	types.SegmentCrypto: {
		Enabled:          true,
		MinLots:          1,
		MaxLots:          1000,
		ExposureIntraday: decimal.NewFromInt(1),
		ExposureCarry:    decimal.NewFromInt(1),
		Commission:       decimal.NewFromFloat(0.05),
		CommissionBasis:  types.CommissionTurnover,
	},
}

// Resolve merges script fields over segment fields over hard defaults for the
// given instrument. It is a pure lookup with no side effects.
//
// Script overrides are looked up by exact symbol, then by the derived base
// symbol (expiry/strike suffix stripped), then by segment category key.
func Resolve(us UserSettings, inst model.Instrument) (Resolved, error) {
	seg := defaultSegmentSettings[inst.Segment]
	if user, ok := us.Segments[inst.Segment]; ok {
		seg = mergeSegment(seg, user)
	}
	if !seg.Enabled {
		return Resolved{}, SegmentDisabledError{Segment: inst.Segment}
	}

	res := Resolved{
		Segment:          inst.Segment,
		Enabled:          true,
		MinLots:          seg.MinLots,
		MaxLots:          seg.MaxLots,
		ExposureIntraday: seg.ExposureIntraday,
		ExposureCarry:    seg.ExposureCarry,
		Commission:       seg.Commission,
		CommissionBasis:  seg.CommissionBasis,
	}

	script, ok := lookupScript(us.Scripts, inst)
	if !ok {
		return res, nil
	}
	if script.Blocked {
		return Resolved{}, InstrumentBlockedError{Symbol: inst.Symbol}
	}
	res.Spread = script.Spread
	res.FixedMargin = script.Margin
	res.FixedCommission = script.Commission
	if script.MinLots > 0 {
		res.MinLots = script.MinLots
	}
	if script.MaxLots > 0 {
		res.MaxLots = script.MaxLots
	}
	return res, nil
}

func mergeSegment(base, user SegmentSettings) SegmentSettings {
	out := base
	out.Enabled = user.Enabled
	if user.MinLots > 0 {
		out.MinLots = user.MinLots
	}
	if user.MaxLots > 0 {
		out.MaxLots = user.MaxLots
	}
	if user.ExposureIntraday.GreaterThan(decimal.Zero) {
		out.ExposureIntraday = user.ExposureIntraday
	}
	if user.ExposureCarry.GreaterThan(decimal.Zero) {
		out.ExposureCarry = user.ExposureCarry
	}
	if user.Commission.GreaterThan(decimal.Zero) {
		out.Commission = user.Commission
	}
	if user.CommissionBasis != "" {
		out.CommissionBasis = user.CommissionBasis
	}
	return out
}

func lookupScript(scripts map[string]ScriptSettings, inst model.Instrument) (ScriptSettings, bool) {
	if len(scripts) == 0 {
		return ScriptSettings{}, false
	}
	if s, ok := scripts[inst.Symbol]; ok {
		return s, true
	}
	if base := BaseSymbol(inst.Symbol); base != inst.Symbol {
		if s, ok := scripts[base]; ok {
			return s, true
		}
	}
	if s, ok := scripts[string(inst.Segment)]; ok {
		return s, true
	}
	return ScriptSettings{}, false
}

// BaseSymbol strips the expiry/strike/option suffix from a derivative symbol:
// NIFTY24DEC21000CE -> NIFTY, CRUDEOIL24AUGFUT -> CRUDEOIL.
func BaseSymbol(symbol string) string {
	for i, r := range symbol {
		if unicode.IsDigit(r) && i > 0 {
			return symbol[:i]
		}
	}
	return symbol
}
