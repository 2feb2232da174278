package settings

import (
	"errors"
	"testing"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

func TestNormalizeSegment(t *testing.T) {
	cases := []struct {
		token string
		want  types.Segment
	}{
		{"EQUITY", types.SegmentEquity},
		{"eq", types.SegmentEquity},
		{" nse ", types.SegmentEquity},
		{"delivery", types.SegmentEquity},
		{"FUTIDX", types.SegmentFutures},
		{"index-futures", types.SegmentFutures},
		{"stock options", types.SegmentOptions},
		{"OPTSTK", types.SegmentOptions},
		{"mcx", types.SegmentCommodity},
		{"MCX_FUT", types.SegmentCommodity},
		{"crypto-spot", types.SegmentCrypto},
	}
	for _, tc := range cases {
		got, err := NormalizeSegment(tc.token)
		if err != nil {
			t.Fatalf("NormalizeSegment(%q): %v", tc.token, err)
		}
		if got != tc.want {
			t.Errorf("NormalizeSegment(%q) = %s, want %s", tc.token, got, tc.want)
		}
	}
}

func TestNormalizeSegmentUnknown(t *testing.T) {
	_, err := NormalizeSegment("FOREX")
	var unknown UnknownSegmentError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownSegmentError, got %v", err)
	}
	if unknown.Token != "FOREX" {
		t.Errorf("token = %q, want FOREX", unknown.Token)
	}
}

func TestBaseSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"NIFTY24DEC21000CE", "NIFTY"},
		{"CRUDEOIL24AUGFUT", "CRUDEOIL"},
		{"RELIANCE", "RELIANCE"},
		{"M6M24SEP", "M"},
	}
	for _, tc := range cases {
		if got := BaseSymbol(tc.in); got != tc.want {
			t.Errorf("BaseSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	inst := model.Instrument{Symbol: "RELIANCE", Segment: types.SegmentEquity, Kind: types.KindEquity}
	res, err := Resolve(UserSettings{}, inst)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ExposureIntraday.Equal(decimal.NewFromInt(5)) {
		t.Errorf("intraday exposure = %s, want 5", res.ExposureIntraday)
	}
	if res.CommissionBasis != types.CommissionPerTrade {
		t.Errorf("basis = %s, want PER_TRADE", res.CommissionBasis)
	}
	if res.MinLots != 1 || res.MaxLots != 100 {
		t.Errorf("lot bounds = [%d,%d], want [1,100]", res.MinLots, res.MaxLots)
	}
}

func TestResolveUserSegmentOverridesDefault(t *testing.T) {
	us := UserSettings{
		Segments: map[types.Segment]SegmentSettings{
			types.SegmentFutures: {
				Enabled:          true,
				MaxLots:          10,
				ExposureIntraday: decimal.NewFromInt(20),
			},
		},
	}
	inst := model.Instrument{Symbol: "NIFTY24SEPFUT", Segment: types.SegmentFutures, Kind: types.KindFuture}
	res, err := Resolve(us, inst)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ExposureIntraday.Equal(decimal.NewFromInt(20)) {
		t.Errorf("exposure = %s, want user override 20", res.ExposureIntraday)
	}
	if res.MaxLots != 10 {
		t.Errorf("max lots = %d, want 10", res.MaxLots)
	}
	// Unset fields fall through to the segment default.
	if !res.ExposureCarry.Equal(decimal.NewFromInt(5)) {
		t.Errorf("carry exposure = %s, want default 5", res.ExposureCarry)
	}
}

func TestResolveScriptOverridesSegment(t *testing.T) {
	us := UserSettings{
		Scripts: map[string]ScriptSettings{
			"NIFTY": {
				Symbol:  "NIFTY",
				Spread:  decimal.NewFromFloat(0.5),
				MinLots: 2,
				MaxLots: 20,
				Margin:  FixedMargin{Intraday: decimal.NewFromInt(2000)},
			},
		},
	}
	// Looked up via the base symbol, not the full contract name.
	inst := model.Instrument{Symbol: "NIFTY24DEC21000CE", Segment: types.SegmentOptions, Kind: types.KindOption}
	res, err := Resolve(us, inst)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FixedMargin.Intraday.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("fixed margin = %s, want 2000", res.FixedMargin.Intraday)
	}
	if !res.Spread.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("spread = %s, want 0.5", res.Spread)
	}
	if res.MinLots != 2 || res.MaxLots != 20 {
		t.Errorf("lot bounds = [%d,%d], want [2,20]", res.MinLots, res.MaxLots)
	}
}

func TestResolveSegmentCategoryScriptKey(t *testing.T) {
	us := UserSettings{
		Scripts: map[string]ScriptSettings{
			"COMMODITY": {Spread: decimal.NewFromInt(1)},
		},
	}
	inst := model.Instrument{Symbol: "GOLDM24OCTFUT", Segment: types.SegmentCommodity, Kind: types.KindFuture}
	res, err := Resolve(us, inst)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Spread.Equal(decimal.NewFromInt(1)) {
		t.Errorf("spread = %s, want segment-category script 1", res.Spread)
	}
}

func TestResolveDisabledSegment(t *testing.T) {
	us := UserSettings{
		Segments: map[types.Segment]SegmentSettings{
			types.SegmentOptions: {Enabled: false},
		},
	}
	inst := model.Instrument{Symbol: "BANKNIFTY24SEP48000PE", Segment: types.SegmentOptions, Kind: types.KindOption}
	_, err := Resolve(us, inst)
	var disabled SegmentDisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("want SegmentDisabledError, got %v", err)
	}
	if disabled.Segment != types.SegmentOptions {
		t.Errorf("segment = %s, want OPTIONS", disabled.Segment)
	}
}

func TestResolveBlockedInstrument(t *testing.T) {
	us := UserSettings{
		Scripts: map[string]ScriptSettings{
			"YESBANK": {Symbol: "YESBANK", Blocked: true},
		},
	}
	inst := model.Instrument{Symbol: "YESBANK", Segment: types.SegmentEquity, Kind: types.KindEquity}
	_, err := Resolve(us, inst)
	var blocked InstrumentBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("want InstrumentBlockedError, got %v", err)
	}
}
