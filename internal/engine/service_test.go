package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/broker"
	"github.com/shivammacoss/thefx.liv-sub001/internal/marketdata"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fixture struct {
	st     *store.MemoryStore
	quotes *marketdata.Quotes
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	quotes := marketdata.NewQuotes()
	svc := NewService(st, quotes, marketdata.AlwaysOpen{}, Config{CryptoRate: d("1")})
	return &fixture{st: st, quotes: quotes, svc: svc}
}

func (f *fixture) fundWallet(t *testing.T, userID, amount string) {
	t.Helper()
	require.NoError(t, f.st.SaveWallet(context.Background(), model.Wallet{
		UserID:         userID,
		TradingBalance: d(amount),
	}))
}

func (f *fixture) setQuote(symbol, bid, ask string) {
	f.quotes.Set(marketdata.Quote{
		Symbol: symbol,
		LTP:    d(bid).Add(d(ask)).Div(d("2")),
		Bid:    d(bid),
		Ask:    d(ask),
	})
}

func equityOrder(userID string, side types.Side, lots int64) OrderRequest {
	return OrderRequest{
		UserID: userID,
		Instrument: model.Instrument{
			Symbol:   "RELIANCE",
			Exchange: "NSE",
			Segment:  types.SegmentEquity,
			Kind:     types.KindEquity,
		},
		Side:      side,
		Product:   types.ProductIntraday,
		OrderKind: types.OrderKindMarket,
		Lots:      lots,
		LotSize:   d("1"),
	}
}

func TestPlaceMarketOrderWalletMath(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2499.5", "2500.5")

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 10))
	require.NoError(t, err)

	// BUY fills at the ask. Default equity rule: 5x intraday exposure,
	// flat 20 per trade.
	assert.Equal(t, types.PositionOpen, res.Position.Status)
	assert.True(t, res.Position.EntryPrice.Equal(d("2500.5")), "entry = %s", res.Position.EntryPrice)
	assert.True(t, res.MarginBlocked.Equal(d("5001")), "margin = %s", res.MarginBlocked)
	assert.True(t, res.Commission.Equal(d("20")), "commission = %s", res.Commission)

	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.TradingBalance.Equal(d("94979")), "balance = %s", w.TradingBalance)
	assert.True(t, w.UsedMargin.Equal(d("5001")), "used margin = %s", w.UsedMargin)

	entries, err := f.st.LedgerEntries(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	reasons := []types.LedgerReason{entries[0].Reason, entries[1].Reason}
	assert.Contains(t, reasons, types.ReasonMarginReserve)
	assert.Contains(t, reasons, types.ReasonCommission)
}

func TestPlaceRejectsLotLimitWithoutMutation(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "100", "100")
	require.NoError(t, f.st.SaveUserSettings(context.Background(), settings.UserSettings{
		UserID: "u1",
		Segments: map[types.Segment]settings.SegmentSettings{
			types.SegmentEquity: {Enabled: true, MinLots: 1, MaxLots: 10},
		},
	}))

	_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 11))
	var lotErr LotLimitError
	require.ErrorAs(t, err, &lotErr)
	assert.Equal(t, int64(11), lotErr.Requested)
	assert.Equal(t, int64(10), lotErr.Max)

	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.TradingBalance.Equal(d("100000")), "balance mutated on rejection")
	positions, err := f.st.PositionsByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPlaceInsufficientMargin(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100")
	f.setQuote("RELIANCE", "2500", "2500")

	_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 10))
	var marginErr InsufficientMarginError
	require.ErrorAs(t, err, &marginErr)
	// 5000 margin + 20 commission against 100 available.
	assert.True(t, marginErr.Shortfall().Equal(d("4920")), "shortfall = %s", marginErr.Shortfall())
}

func TestNettingClosesOppositeInsteadOfOpening(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2500", "2500")

	_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 4))
	require.NoError(t, err)

	// Price moves up; the SELL nets the long out at the bid.
	f.setQuote("RELIANCE", "2600", "2601")
	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideSell, 4))
	require.NoError(t, err)

	assert.True(t, res.Netted)
	assert.Equal(t, types.PositionClosed, res.Position.Status)
	assert.Equal(t, types.CloseReasonNetting, res.Position.CloseReason)
	assert.True(t, res.PnL.Equal(d("400")), "pnl = %s", res.PnL)

	open, err := f.st.PositionsByUser(context.Background(), "u1", types.PositionOpen)
	require.NoError(t, err)
	assert.Empty(t, open, "netting must not leave an open position")

	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.UsedMargin.IsZero(), "used margin = %s", w.UsedMargin)
	// 100000 - 20 entry commission + 400 realized.
	assert.True(t, w.TradingBalance.Equal(d("100380")), "balance = %s", w.TradingBalance)
}

func TestCryptoSpotCommissionOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.SaveCryptoWallet(context.Background(), model.CryptoWallet{
		UserID:  "u1",
		Balance: d("1000"),
	}))
	f.setQuote("BTCUSDT", "60000", "60000")

	req := OrderRequest{
		UserID: "u1",
		Instrument: model.Instrument{
			Symbol:   "BTCUSDT",
			Exchange: "CRYPTO",
			Segment:  types.SegmentCrypto,
			Kind:     types.KindSpot,
		},
		Side:      types.SideBuy,
		Product:   types.ProductIntraday,
		OrderKind: types.OrderKindMarket,
		Lots:      1,
		LotSize:   d("0.01"),
	}
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.MarginBlocked.IsZero(), "crypto spot reserves no margin")
	// Turnover commission: 600 * 0.05% = 0.3.
	assert.True(t, res.Commission.Equal(d("0.3")), "commission = %s", res.Commission)

	cw, err := f.st.CryptoWallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, cw.Balance.Equal(d("999.7")), "balance = %s", cw.Balance)

	w, err := f.st.Wallet(context.Background(), "u1")
	if err == nil {
		assert.True(t, w.UsedMargin.IsZero(), "trading wallet must stay untouched")
	}
}

func TestCancelPendingRefundsEverything(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "50000")

	req := equityOrder("u1", types.SideBuy, 5)
	req.OrderKind = types.OrderKindLimit
	limit := d("2400")
	req.LimitPrice = &limit

	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, types.PositionPending, res.Position.Status)

	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, w.TradingBalance.Equal(d("50000")), "pending order must reserve upfront")

	cancelled, err := f.svc.CancelOrder(context.Background(), res.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionCancelled, cancelled.Status)

	w, err = f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.TradingBalance.Equal(d("50000")), "balance = %s", w.TradingBalance)
	assert.True(t, w.UsedMargin.IsZero())

	// A cancelled order cannot be cancelled again.
	_, err = f.svc.CancelOrder(context.Background(), res.Position.ID)
	assert.ErrorIs(t, err, ErrPositionNotPending)
}

func TestPendingLimitTriggersOnTick(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "50000")

	req := equityOrder("u1", types.SideBuy, 5)
	req.OrderKind = types.OrderKindLimit
	limit := d("2400")
	req.LimitPrice = &limit

	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	// Ask above the limit: no fill.
	actions, err := f.svc.ApplyPriceTick(context.Background(), map[string]marketdata.Quote{
		"RELIANCE": {Symbol: "RELIANCE", LTP: d("2410"), Bid: d("2409"), Ask: d("2411")},
	})
	require.NoError(t, err)
	assert.Empty(t, actions)
	pos, err := f.st.Position(context.Background(), res.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionPending, pos.Status)

	// Ask crosses the limit: fill at the ask.
	actions, err = f.svc.ApplyPriceTick(context.Background(), map[string]marketdata.Quote{
		"RELIANCE": {Symbol: "RELIANCE", LTP: d("2398"), Bid: d("2397"), Ask: d("2399")},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.TickActionTriggered, actions[0].Action)
	assert.Equal(t, res.Position.ID, actions[0].Position.ID)
	pos, err = f.st.Position(context.Background(), res.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpen, pos.Status)
	assert.True(t, pos.EntryPrice.Equal(d("2399")), "entry = %s", pos.EntryPrice)
	require.NotNil(t, pos.OpenedAt)
}

func TestStopLossClosesOnTick(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "50000")
	f.setQuote("RELIANCE", "2500", "2500")

	req := equityOrder("u1", types.SideBuy, 5)
	sl := d("2450")
	req.StopLoss = &sl
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	// The feed refreshes the cache before handing the batch to the engine.
	f.setQuote("RELIANCE", "2448", "2450")
	actions, err := f.svc.ApplyPriceTick(context.Background(), map[string]marketdata.Quote{
		"RELIANCE": {Symbol: "RELIANCE", LTP: d("2449"), Bid: d("2448"), Ask: d("2450")},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, string(types.CloseReasonStopLoss), actions[0].Action)

	pos, err := f.st.Position(context.Background(), res.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosed, pos.Status)
	assert.Equal(t, types.CloseReasonStopLoss, pos.CloseReason)
	// LONG stop fill at the bid: (2448 - 2500) * 5 = -260.
	assert.True(t, pos.RealizedPnL.Equal(d("-260")), "pnl = %s", pos.RealizedPnL)
}

func TestCloseRealizesPnLAndReleasesMargin(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2500", "2500")

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 10))
	require.NoError(t, err)

	f.setQuote("RELIANCE", "2450", "2451")
	closed, err := f.svc.ClosePosition(context.Background(), res.Position.ID, types.CloseReasonManual, nil)
	require.NoError(t, err)

	// LONG exits at the bid: (2450 - 2500) * 10 = -500.
	assert.True(t, closed.PnL.Equal(d("-500")), "pnl = %s", closed.PnL)
	assert.Equal(t, types.PositionClosed, closed.Position.Status)
	assert.True(t, closed.Position.ExitPrice.Equal(d("2450")))

	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	// 100000 - 20 commission - 500 loss.
	assert.True(t, w.TradingBalance.Equal(d("99480")), "balance = %s", w.TradingBalance)
	assert.True(t, w.UsedMargin.IsZero())
	assert.True(t, w.RealizedPnL.Equal(d("-500")))

	// Closing again is a state conflict.
	_, err = f.svc.ClosePosition(context.Background(), res.Position.ID, types.CloseReasonManual, nil)
	assert.ErrorIs(t, err, ErrPositionNotOpen)
}

func TestBBookMirrorsNegatedPnLToAdmin(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.fundWallet(t, "admin1", "1000000")
	require.NoError(t, f.st.SaveAccount(context.Background(), model.Account{
		UserID:  "u1",
		AdminID: "admin1",
		Book:    types.BookB,
	}))
	f.setQuote("RELIANCE", "2500", "2500")

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 10))
	require.NoError(t, err)

	f.setQuote("RELIANCE", "2600", "2601")
	closed, err := f.svc.ClosePosition(context.Background(), res.Position.ID, types.CloseReasonManual, nil)
	require.NoError(t, err)
	require.True(t, closed.PnL.Equal(d("1000")))
	assert.True(t, closed.Position.AdminPnL.Equal(d("-1000")), "admin pnl = %s", closed.Position.AdminPnL)

	admin, err := f.st.Wallet(context.Background(), "admin1")
	require.NoError(t, err)
	// Counterparty loses the user's gain and collects the 20 commission.
	assert.True(t, admin.TradingBalance.Equal(d("999020")), "admin balance = %s", admin.TradingBalance)
	assert.True(t, admin.RealizedPnL.Equal(d("-1000")))
}

func TestRMSSweepClosesWorstFirstAndStopsWhenSolvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.st.SaveWallet(ctx, model.Wallet{
		UserID:         "u1",
		TradingBalance: d("100"),
		UsedMargin:     d("80"),
		UnrealizedPnL:  d("-120"),
	}))

	base := time.Now().UTC()
	seed := func(symbol string, qty string, uPnL string, age time.Duration) string {
		id := uuid.New().String()
		require.NoError(t, f.st.Commit(ctx, store.ChangeSet{Positions: []model.Position{{
			ID:     id,
			UserID: "u1",
			Instrument: model.Instrument{
				Symbol: symbol, Exchange: "NSE",
				Segment: types.SegmentEquity, Kind: types.KindEquity,
			},
			Side:          types.SideBuy,
			Product:       types.ProductIntraday,
			OrderKind:     types.OrderKindMarket,
			Lots:          1,
			LotSize:       d(qty),
			Quantity:      d(qty),
			EntryPrice:    d("100"),
			MarginUsed:    d("40"),
			Status:        types.PositionOpen,
			UnrealizedPnL: d(uPnL),
			CreatedAt:     base.Add(-age),
		}}}))
		return id
	}
	// Worst loser: (90 - 100) * 10 = -100 at the bid below.
	worst := seed("AAA", "10", "-100", 2*time.Hour)
	// Small loser: (90 - 100) * 2 = -20.
	small := seed("BBB", "2", "-20", time.Hour)
	f.setQuote("AAA", "90", "91")
	f.setQuote("BBB", "90", "91")

	// Equity 100 - 120 <= 0: insolvent.
	require.NoError(t, f.svc.Sweep(ctx))

	worstPos, err := f.st.Position(ctx, worst)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosed, worstPos.Status)
	assert.Equal(t, types.CloseReasonRMS, worstPos.CloseReason)

	// After the worst close: balance 100 + 40 margin - 100 loss = 40,
	// remaining unrealized -20, equity 20 > 0. The small loser survives.
	smallPos, err := f.st.Position(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpen, smallPos.Status)

	w, err := f.st.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, w.TradingBalance.Equal(d("40")), "balance = %s", w.TradingBalance)

	// The sweep is idempotent on a solvent book.
	require.NoError(t, f.svc.Sweep(ctx))
	smallPos, err = f.st.Position(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpen, smallPos.Status)
}

func TestConcurrentPlacementsSameUser(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "1000000")
	f.setQuote("RELIANCE", "2500", "2500")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Each order: 2500/5 = 500 margin + 20 commission. No lost updates.
	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.UsedMargin.Equal(d("5000")), "used margin = %s", w.UsedMargin)
	assert.True(t, w.TradingBalance.Equal(d("994800")), "balance = %s", w.TradingBalance)

	open, err := f.st.PositionsByUser(context.Background(), "u1", types.PositionOpen)
	require.NoError(t, err)
	assert.Len(t, open, n)
}

type closedHours struct{}

func (closedHours) IsTradingAllowed(types.Segment) bool { return false }

func TestMarketClosedGate(t *testing.T) {
	st := store.NewMemoryStore()
	quotes := marketdata.NewQuotes()
	svc := NewService(st, quotes, closedHours{}, Config{CryptoRate: d("1")})
	require.NoError(t, st.SaveWallet(context.Background(), model.Wallet{
		UserID: "u1", TradingBalance: d("50000"),
	}))
	quotes.Set(marketdata.Quote{Symbol: "RELIANCE", LTP: d("2500")})

	_, err := svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 1))
	require.ErrorIs(t, err, ErrMarketClosed)

	// Resting orders may be placed outside the session.
	req := equityOrder("u1", types.SideBuy, 1)
	req.OrderKind = types.OrderKindLimit
	limit := d("2400")
	req.LimitPrice = &limit
	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.PositionPending, res.Position.Status)
}

func TestAccountMetricsProjection(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2500", "2500")

	_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 10))
	require.NoError(t, err)

	_, err = f.svc.ApplyPriceTick(context.Background(), map[string]marketdata.Quote{
		"RELIANCE": {Symbol: "RELIANCE", LTP: d("2520"), Bid: d("2520"), Ask: d("2521")},
	})
	require.NoError(t, err)

	m, err := f.svc.Metrics(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.OpenPositions)
	// (2520 - 2500) * 10 = 200 unrealized on a 5001-less balance.
	assert.True(t, m.UnrealizedPnL.Equal(d("200")), "upnl = %s", m.UnrealizedPnL)
	assert.True(t, m.Equity.Equal(m.Balance.Add(m.UsedMargin).Add(d("200"))))
	assert.True(t, m.MarginLevel.GreaterThan(decimal.Zero))
}

type recordingHedger struct {
	mu       sync.Mutex
	hedged   []broker.HedgeOrder
	released []string
}

func (r *recordingHedger) Hedge(_ context.Context, o broker.HedgeOrder) (broker.HedgeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hedged = append(r.hedged, o)
	return broker.HedgeResult{VenueOrderID: "venue-" + o.PositionID, Status: "FILLED"}, nil
}

func (r *recordingHedger) Release(_ context.Context, positionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, positionID)
	return nil
}

func TestABookFillHedgesAndReleases(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2499.5", "2500.5")
	require.NoError(t, f.st.SaveAccount(context.Background(), model.Account{
		UserID: "u1",
		Book:   types.BookA,
	}))
	hedger := &recordingHedger{}
	f.svc.SetHedger(hedger)

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 2))
	require.NoError(t, err)
	require.Len(t, hedger.hedged, 1)
	assert.Equal(t, res.Position.ID, hedger.hedged[0].PositionID)
	assert.Equal(t, types.SideBuy, hedger.hedged[0].Side)
	assert.True(t, hedger.hedged[0].Price.Equal(d("2500.5")))

	_, err = f.svc.ClosePosition(context.Background(), res.Position.ID, types.CloseReasonManual, nil)
	require.NoError(t, err)
	require.Len(t, hedger.released, 1)
	assert.Equal(t, res.Position.ID, hedger.released[0])
}

func TestDisabledHedgeVenueDoesNotBlockFills(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2499.5", "2500.5")
	require.NoError(t, f.st.SaveAccount(context.Background(), model.Account{
		UserID: "u1",
		Book:   types.BookA,
	}))
	f.svc.SetHedger(broker.NewDisabledAdapter())

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 1))
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpen, res.Position.Status)
}

func TestPendingTriggerNetsAgainstOppositeOpen(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2499.5", "2500.5")

	// Resting BUY below the market.
	buy := equityOrder("u1", types.SideBuy, 1)
	buy.OrderKind = types.OrderKindLimit
	limit := d("2450")
	buy.LimitPrice = &limit
	buyRes, err := f.svc.PlaceOrder(context.Background(), buy)
	require.NoError(t, err)
	require.Equal(t, types.PositionPending, buyRes.Position.Status)

	// Market SELL opens a short; the resting BUY is PENDING, not nettable.
	sellRes, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideSell, 1))
	require.NoError(t, err)
	require.Equal(t, types.PositionOpen, sellRes.Position.Status)

	// Tick crosses the limit. The trigger must net out the short instead of
	// leaving the user long and short at once.
	f.setQuote("RELIANCE", "2448", "2450")
	actions, err := f.svc.ApplyPriceTick(context.Background(), map[string]marketdata.Quote{
		"RELIANCE": {Symbol: "RELIANCE", LTP: d("2449"), Bid: d("2448"), Ask: d("2450")},
	})
	require.NoError(t, err)

	open, err := f.st.PositionsByUser(context.Background(), "u1", types.PositionOpen)
	require.NoError(t, err)
	require.LessOrEqual(t, len(open), 1)
	assert.Empty(t, open)

	short, err := f.st.Position(context.Background(), sellRes.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosed, short.Status)
	assert.Equal(t, types.CloseReasonNetting, short.CloseReason)
	// SHORT entered at the bid 2499.5, netted out at the ask 2450.
	assert.True(t, short.RealizedPnL.Equal(d("49.5")), "pnl = %s", short.RealizedPnL)

	pending, err := f.st.Position(context.Background(), buyRes.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionCancelled, pending.Status)
	assert.Equal(t, types.CloseReasonNetting, pending.CloseReason)

	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, string(types.CloseReasonNetting), a.Action)
	}

	// All margin released; the consumed order's commission refunded, the
	// short's kept.
	w, err := f.st.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.UsedMargin.IsZero(), "used margin = %s", w.UsedMargin)
	want := d("100000").Sub(sellRes.Commission).Add(short.RealizedPnL)
	assert.True(t, w.TradingBalance.Equal(want), "balance = %s want %s", w.TradingBalance, want)
}

func TestNettingAllowedAfterSegmentDisabled(t *testing.T) {
	f := newFixture(t)
	f.fundWallet(t, "u1", "100000")
	f.setQuote("RELIANCE", "2499.5", "2500.5")

	_, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 2))
	require.NoError(t, err)

	// Desk disables the segment after entry; the user can still net out.
	require.NoError(t, f.st.SaveUserSettings(context.Background(), settings.UserSettings{
		UserID: "u1",
		Segments: map[types.Segment]settings.SegmentSettings{
			types.SegmentEquity: {Enabled: false},
		},
	}))

	res, err := f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideSell, 2))
	require.NoError(t, err)
	assert.True(t, res.Netted)
	assert.Equal(t, types.PositionClosed, res.Position.Status)

	// Fresh exposure in the disabled segment stays rejected.
	_, err = f.svc.PlaceOrder(context.Background(), equityOrder("u1", types.SideBuy, 2))
	var disabled settings.SegmentDisabledError
	require.ErrorAs(t, err, &disabled)
}
