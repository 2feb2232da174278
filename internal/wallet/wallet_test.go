package wallet

import (
	"errors"
	"testing"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
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

func TestReserveAndReleaseMarginRoundTrip(t *testing.T) {
	w := model.Wallet{UserID: "u1", TradingBalance: d("100000")}

	entry, err := ReserveMargin(&w, d("30000"), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !w.TradingBalance.Equal(d("70000")) || !w.UsedMargin.Equal(d("30000")) {
		t.Fatalf("after reserve: balance=%s used=%s", w.TradingBalance, w.UsedMargin)
	}
	if entry.Direction != types.EntryDebit || entry.Reason != types.ReasonMarginReserve {
		t.Errorf("entry = %s/%s", entry.Direction, entry.Reason)
	}
	if !entry.Balance.Equal(d("70000")) {
		t.Errorf("entry balance = %s, want resulting 70000", entry.Balance)
	}

	if _, err := ReleaseMargin(&w, d("30000"), "p1"); err != nil {
		t.Fatal(err)
	}
	if !w.TradingBalance.Equal(d("100000")) || !w.UsedMargin.IsZero() {
		t.Fatalf("after release: balance=%s used=%s", w.TradingBalance, w.UsedMargin)
	}
}

func TestReserveMarginOverdraw(t *testing.T) {
	w := model.Wallet{UserID: "u1", TradingBalance: d("1000")}
	_, err := ReserveMargin(&w, d("2500"), "p1")
	var insufficient InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientFundsError, got %v", err)
	}
	if !insufficient.Shortfall().Equal(d("1500")) {
		t.Errorf("shortfall = %s, want 1500", insufficient.Shortfall())
	}
	// Nothing mutated on failure.
	if !w.TradingBalance.Equal(d("1000")) || !w.UsedMargin.IsZero() {
		t.Errorf("wallet mutated on rejected reserve: %+v", w)
	}
}

func TestReleaseMarginExceedsReserved(t *testing.T) {
	w := model.Wallet{UserID: "u1", TradingBalance: d("1000"), UsedMargin: d("500")}
	if _, err := ReleaseMargin(&w, d("600"), "p1"); err == nil {
		t.Fatal("want error releasing more than reserved")
	}
}

func TestApplyRealizedGain(t *testing.T) {
	w := model.Wallet{UserID: "u1", TradingBalance: d("5000")}
	entry, err := ApplyRealized(&w, d("1200"), types.ReasonRealizedPnL, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !w.TradingBalance.Equal(d("6200")) {
		t.Errorf("balance = %s, want 6200", w.TradingBalance)
	}
	if !w.RealizedPnL.Equal(d("1200")) {
		t.Errorf("realized = %s, want 1200", w.RealizedPnL)
	}
	if entry.Direction != types.EntryCredit {
		t.Errorf("direction = %s, want CREDIT", entry.Direction)
	}
}

func TestApplyRealizedLossClampsAtZero(t *testing.T) {
	w := model.Wallet{UserID: "u1", TradingBalance: d("800")}
	_, err := ApplyRealized(&w, d("-1500"), types.ReasonRealizedPnL, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !w.TradingBalance.IsZero() {
		t.Errorf("balance = %s, want floor 0", w.TradingBalance)
	}
	// Realized P&L records the full loss regardless of the floor.
	if !w.RealizedPnL.Equal(d("-1500")) {
		t.Errorf("realized = %s, want -1500", w.RealizedPnL)
	}
}

func TestCryptoWalletIndependent(t *testing.T) {
	cw := model.CryptoWallet{UserID: "u1", Balance: d("2")}
	if _, err := DebitCrypto(&cw, d("0.5"), types.ReasonCommission, "p1", ""); err != nil {
		t.Fatal(err)
	}
	if !cw.Balance.Equal(d("1.5")) {
		t.Errorf("balance = %s, want 1.5", cw.Balance)
	}
	if _, err := ApplyRealizedCrypto(&cw, d("-9"), "p1"); err != nil {
		t.Fatal(err)
	}
	if !cw.Balance.IsZero() {
		t.Errorf("balance = %s, want floor 0", cw.Balance)
	}
	if !cw.RealizedPnL.Equal(d("-9")) {
		t.Errorf("realized = %s, want -9", cw.RealizedPnL)
	}
}

func TestReconcile(t *testing.T) {
	w := model.Wallet{UserID: "u1", UsedMargin: d("5000")}
	open := []model.Position{
		{Status: types.PositionOpen, MarginUsed: d("3000")},
		{Status: types.PositionOpen, MarginUsed: d("2000")},
		{Status: types.PositionClosed, MarginUsed: d("999")},
		{Status: types.PositionOpen, MarginUsed: d("10"), Instrument: model.Instrument{Segment: types.SegmentCrypto}},
	}
	if drift := Reconcile(w, open); !drift.IsZero() {
		t.Errorf("drift = %s, want 0", drift)
	}
	w.UsedMargin = d("5100")
	if drift := Reconcile(w, open); !drift.Equal(d("100")) {
		t.Errorf("drift = %s, want 100", drift)
	}
}
