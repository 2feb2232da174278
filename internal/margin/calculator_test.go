package margin

import (
	"testing"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeFixedPerLotWinsOverExposure(t *testing.T) {
	res := Compute(Input{
		Instrument: model.Instrument{Symbol: "NIFTY24SEPFUT", Segment: types.SegmentFutures, Kind: types.KindFuture},
		Side:       types.SideBuy,
		Product:    types.ProductIntraday,
		Price:      d("25000"),
		Lots:       3,
		LotSize:    d("25"),
		Settings: settings.Resolved{
			ExposureIntraday: d("10"),
			FixedMargin:      settings.FixedMargin{Intraday: d("2000")},
		},
	})
	if res.Rule != RuleFixedPerLot {
		t.Fatalf("rule = %s, want FIXED_PER_LOT", res.Rule)
	}
	if !res.Required.Equal(d("6000")) {
		t.Errorf("required = %s, want 6000", res.Required)
	}
	if !res.TradeValue.Equal(d("1875000")) {
		t.Errorf("trade value = %s, want 1875000", res.TradeValue)
	}
}

func TestComputeOptionSellLegBeatsProductLegs(t *testing.T) {
	res := Compute(Input{
		Instrument: model.Instrument{Symbol: "NIFTY24DEC21000CE", Segment: types.SegmentOptions, Kind: types.KindOption},
		Side:       types.SideSell,
		Product:    types.ProductIntraday,
		Price:      d("120"),
		Lots:       2,
		LotSize:    d("25"),
		Settings: settings.Resolved{
			FixedMargin: settings.FixedMargin{
				Intraday:   d("500"),
				OptionSell: d("45000"),
			},
		},
	})
	if res.Rule != RuleFixedPerLot {
		t.Fatalf("rule = %s, want FIXED_PER_LOT", res.Rule)
	}
	if !res.Required.Equal(d("90000")) {
		t.Errorf("required = %s, want option-sell leg 90000", res.Required)
	}
}

func TestComputeExposure(t *testing.T) {
	res := Compute(Input{
		Instrument: model.Instrument{Symbol: "RELIANCE", Segment: types.SegmentEquity, Kind: types.KindEquity},
		Side:       types.SideBuy,
		Product:    types.ProductIntraday,
		Price:      d("2500"),
		Lots:       10,
		LotSize:    d("1"),
		Settings:   settings.Resolved{ExposureIntraday: d("5")},
	})
	if res.Rule != RuleExposure {
		t.Fatalf("rule = %s, want EXPOSURE", res.Rule)
	}
	if !res.Required.Equal(d("5000")) {
		t.Errorf("required = %s, want 25000/5 = 5000", res.Required)
	}
	if !res.Leverage.Equal(d("5")) {
		t.Errorf("leverage = %s, want 5", res.Leverage)
	}
}

func TestComputeCarryUsesCarryExposure(t *testing.T) {
	res := Compute(Input{
		Instrument: model.Instrument{Symbol: "RELIANCE", Segment: types.SegmentEquity, Kind: types.KindEquity},
		Side:       types.SideBuy,
		Product:    types.ProductCarryForward,
		Price:      d("2500"),
		Lots:       1,
		LotSize:    d("1"),
		Settings: settings.Resolved{
			ExposureIntraday: d("5"),
			ExposureCarry:    d("1"),
		},
	})
	if !res.Required.Equal(d("2500")) {
		t.Errorf("required = %s, want full notional 2500", res.Required)
	}
}

func TestComputeLeverageFallback(t *testing.T) {
	cases := []struct {
		name    string
		segment types.Segment
		kind    types.InstrumentKind
		side    types.Side
		product types.ProductType
		want    string // fraction of notional 100000
	}{
		{"equity intraday", types.SegmentEquity, types.KindEquity, types.SideBuy, types.ProductIntraday, "20000"},
		{"equity delivery", types.SegmentEquity, types.KindEquity, types.SideBuy, types.ProductCarryForward, "100000"},
		{"futures", types.SegmentFutures, types.KindFuture, types.SideBuy, types.ProductIntraday, "10000"},
		{"commodity", types.SegmentCommodity, types.KindFuture, types.SideSell, types.ProductIntraday, "10000"},
		{"option buy", types.SegmentOptions, types.KindOption, types.SideBuy, types.ProductIntraday, "100000"},
		{"option sell", types.SegmentOptions, types.KindOption, types.SideSell, types.ProductIntraday, "25000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Compute(Input{
				Instrument: model.Instrument{Symbol: "X", Segment: tc.segment, Kind: tc.kind},
				Side:       tc.side,
				Product:    tc.product,
				Price:      d("1000"),
				Lots:       100,
				LotSize:    d("1"),
				Settings:   settings.Resolved{},
			})
			if res.Rule != RuleLeverage {
				t.Fatalf("rule = %s, want LEVERAGE_FALLBACK", res.Rule)
			}
			if !res.Required.Equal(d(tc.want)) {
				t.Errorf("required = %s, want %s", res.Required, tc.want)
			}
		})
	}
}

func TestComputeCryptoSpotNoMargin(t *testing.T) {
	res := Compute(Input{
		Instrument: model.Instrument{Symbol: "BTCUSDT", Segment: types.SegmentCrypto, Kind: types.KindSpot},
		Side:       types.SideBuy,
		Product:    types.ProductIntraday,
		Price:      d("60000"),
		Lots:       2,
		LotSize:    d("0.1"),
		Settings:   settings.Resolved{},
		CryptoRate: d("88"),
	})
	if res.Rule != RuleCryptoSpot {
		t.Fatalf("rule = %s, want CRYPTO_SPOT", res.Rule)
	}
	if !res.Required.IsZero() {
		t.Errorf("required = %s, want zero", res.Required)
	}
	// 60000 * 0.2 crypto units, reported in reference currency.
	if !res.TradeValue.Equal(d("1056000")) {
		t.Errorf("trade value = %s, want 1056000", res.TradeValue)
	}
}
