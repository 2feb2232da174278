package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shivammacoss/thefx.liv-sub001/internal/metrics"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
	"github.com/shivammacoss/thefx.liv-sub001/internal/wallet"

	"github.com/shopspring/decimal"
)

// Sweep runs one risk-management pass over every user holding OPEN
// positions. A user is insolvent when trading balance plus aggregate
// unrealized P&L is at or below zero; the sweep then force-closes their
// positions worst loss first, re-checking solvency after each close so no
// more positions are cut than necessary. The pass is idempotent: a solvent
// book is left untouched.
func (s *Service) Sweep(ctx context.Context) error {
	users, err := s.store.ActiveUserIDs(ctx)
	if err != nil {
		return err
	}
	for _, userID := range users {
		err := s.locks.withLock(userID, func() error {
			return s.sweepUserLocked(ctx, userID)
		})
		if err != nil {
			slog.Error("rms sweep failed for user", "user", userID, "error", err)
		}
	}
	return nil
}

func (s *Service) sweepUserLocked(ctx context.Context, userID string) error {
	w, err := s.store.Wallet(ctx, userID)
	if err != nil {
		return err
	}
	open, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
	if err != nil {
		return err
	}
	book := make([]model.Position, 0, len(open))
	for _, p := range open {
		if !p.IsCrypto() {
			book = append(book, p)
		}
	}
	if len(book) == 0 {
		return nil
	}
	metrics.MarginDrift.WithLabelValues(userID).Set(
		wallet.Reconcile(w, book).InexactFloat64())
	if solvent(w.TradingBalance, book) {
		return nil
	}

	// Worst loss first, then oldest, so repeated sweeps over the same book
	// cut in the same order.
	sort.SliceStable(book, func(i, j int) bool {
		if c := book[i].UnrealizedPnL.Cmp(book[j].UnrealizedPnL); c != 0 {
			return c < 0
		}
		return book[i].CreatedAt.Before(book[j].CreatedAt)
	})

	for _, p := range book {
		res, err := s.closeLocked(ctx, p, types.CloseReasonRMS, nil)
		if err != nil {
			slog.Warn("rms close failed", "user", userID, "position", p.ID, "error", err)
			continue
		}
		metrics.RMSForceCloses.Inc()
		slog.Warn("rms force close",
			"user", userID, "position", p.ID, "symbol", p.Symbol, "pnl", res.PnL.String())

		w, err = s.store.Wallet(ctx, userID)
		if err != nil {
			return err
		}
		remaining, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
		if err != nil {
			return err
		}
		book = book[:0]
		for _, rp := range remaining {
			if !rp.IsCrypto() {
				book = append(book, rp)
			}
		}
		if solvent(w.TradingBalance, book) {
			return nil
		}
		sort.SliceStable(book, func(i, j int) bool {
			if c := book[i].UnrealizedPnL.Cmp(book[j].UnrealizedPnL); c != 0 {
				return c < 0
			}
			return book[i].CreatedAt.Before(book[j].CreatedAt)
		})
	}
	return nil
}

// solvent reports whether equity (trading balance plus aggregate unrealized
// P&L) is still positive for the given open book.
func solvent(balance decimal.Decimal, open []model.Position) bool {
	if len(open) == 0 {
		return true
	}
	equity := balance
	for _, p := range open {
		equity = equity.Add(p.UnrealizedPnL)
	}
	return equity.GreaterThan(decimal.Zero)
}

// AccountMetrics is the margin snapshot the client terminal renders.
type AccountMetrics struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	UsedMargin    decimal.Decimal `json:"used_margin"`
	FreeMargin    decimal.Decimal `json:"free_margin"`
	MarginLevel   decimal.Decimal `json:"margin_level"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions int             `json:"open_positions"`
}

// Metrics projects a user's current account metrics from the wallet and
// their OPEN non-crypto positions. Margin level is equity over used margin
// as a percentage, zero when nothing is reserved.
func (s *Service) Metrics(ctx context.Context, userID string) (AccountMetrics, error) {
	w, err := s.store.Wallet(ctx, userID)
	if err != nil {
		return AccountMetrics{}, err
	}
	open, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
	if err != nil {
		return AccountMetrics{}, err
	}
	unrealized := decimal.Zero
	count := 0
	for _, p := range open {
		if p.IsCrypto() {
			continue
		}
		unrealized = unrealized.Add(p.UnrealizedPnL)
		count++
	}
	equity := w.TradingBalance.Add(w.UsedMargin).Add(unrealized)
	m := AccountMetrics{
		UserID:        userID,
		Balance:       w.TradingBalance,
		Equity:        equity,
		UsedMargin:    w.UsedMargin,
		FreeMargin:    w.TradingBalance,
		UnrealizedPnL: unrealized,
		OpenPositions: count,
	}
	if w.UsedMargin.GreaterThan(decimal.Zero) {
		m.MarginLevel = equity.Div(w.UsedMargin).Mul(decimal.NewFromInt(100))
	}
	return m, nil
}
