package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

func TestQuotesBidAskFallBackToLTP(t *testing.T) {
	q := NewQuotes()
	q.Set(Quote{Symbol: "reliance", LTP: decimal.NewFromInt(2500)})

	got, err := q.Get("RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Bid.Equal(decimal.NewFromInt(2500)) || !got.Ask.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("bid/ask = %s/%s, want LTP fallback 2500", got.Bid, got.Ask)
	}
}

func TestQuotesGetUnknownSymbol(t *testing.T) {
	q := NewQuotes()
	if _, err := q.Get("NOPE"); !errors.Is(err, ErrNoQuote) {
		t.Fatalf("want ErrNoQuote, got %v", err)
	}
}

func TestDecodeTickFrame(t *testing.T) {
	frame, err := DecodeTickFrame([]byte(`[{"symbol":"NIFTY","ltp":"25000","bid":"24999.5","ask":"25000.5"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 1 || frame[0].Symbol != "NIFTY" {
		t.Fatalf("frame = %+v", frame)
	}
	if !frame[0].Bid.Equal(decimal.NewFromFloat(24999.5)) {
		t.Errorf("bid = %s", frame[0].Bid)
	}

	// A bare object is a one-quote frame.
	frame, err = DecodeTickFrame([]byte(`{"symbol":"BTCUSDT","ltp":"60000"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 1 || frame[0].Symbol != "BTCUSDT" {
		t.Fatalf("frame = %+v", frame)
	}

	if _, err := DecodeTickFrame([]byte(`not json`)); err == nil {
		t.Fatal("want error on garbage frame")
	}
}

func TestScheduleSessions(t *testing.T) {
	s := NewSchedule(time.UTC)

	at := func(wd time.Weekday, hour, min int) func() time.Time {
		// 2026-09-07 is a Monday.
		day := 7 + int(wd) - 1
		return func() time.Time {
			return time.Date(2026, 9, day, hour, min, 0, 0, time.UTC)
		}
	}

	s.now = at(time.Monday, 10, 0)
	if !s.IsTradingAllowed(types.SegmentEquity) {
		t.Error("equity should trade Monday 10:00")
	}
	s.now = at(time.Monday, 8, 0)
	if s.IsTradingAllowed(types.SegmentEquity) {
		t.Error("equity should not trade before open")
	}
	s.now = at(time.Monday, 16, 0)
	if s.IsTradingAllowed(types.SegmentFutures) {
		t.Error("futures should not trade after close")
	}
	s.now = at(time.Monday, 22, 0)
	if !s.IsTradingAllowed(types.SegmentCommodity) {
		t.Error("commodity session runs to 23:30")
	}
	s.now = at(time.Sunday, 10, 0)
	if s.IsTradingAllowed(types.SegmentEquity) {
		t.Error("no equity session on Sunday")
	}
	if !s.IsTradingAllowed(types.SegmentCrypto) {
		t.Error("crypto trades around the clock")
	}
}
