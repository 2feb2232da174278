package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/metrics"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/pricing"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
	"github.com/shivammacoss/thefx.liv-sub001/internal/wallet"

	"github.com/shopspring/decimal"
)

// CloseResult reports one terminal close.
type CloseResult struct {
	Position model.Position  `json:"position"`
	PnL      decimal.Decimal `json:"pnl"`
}

// ClosePosition closes an OPEN position at the current dealing-desk price,
// or at exitPrice when the caller supplies one (admin and expiry paths).
func (s *Service) ClosePosition(ctx context.Context, positionID string, reason types.CloseReason, exitPrice *decimal.Decimal) (CloseResult, error) {
	pos, err := s.store.Position(ctx, positionID)
	if err != nil {
		return CloseResult{}, err
	}
	var res CloseResult
	err = s.locks.withLock(pos.UserID, func() error {
		pos, err := s.store.Position(ctx, positionID)
		if err != nil {
			return err
		}
		res, err = s.closeLocked(ctx, pos, reason, exitPrice)
		return err
	})
	return res, err
}

// closeLocked realizes P&L, releases margin and updates both ledgers as one
// atomic unit. Caller holds the user lock.
func (s *Service) closeLocked(ctx context.Context, pos model.Position, reason types.CloseReason, exitOverride *decimal.Decimal) (CloseResult, error) {
	if pos.Status != types.PositionOpen {
		return CloseResult{}, ErrPositionNotOpen
	}

	raw, err := s.closeQuote(pos, exitOverride)
	if err != nil {
		return CloseResult{}, err
	}
	// Spread applies with the opposite sign to entry.
	effExit := pricing.ExitPrice(raw, pos.Side, pos.Spread)
	gross := pos.GrossPnL(effExit)

	change := store.ChangeSet{}
	if pos.IsCrypto() {
		cw, err := s.store.CryptoWallet(ctx, pos.UserID)
		if err != nil {
			return CloseResult{}, fmt.Errorf("load crypto wallet: %w", err)
		}
		entry, err := wallet.ApplyRealizedCrypto(&cw, gross, pos.ID)
		if err != nil {
			return CloseResult{}, err
		}
		change.CryptoWallets = append(change.CryptoWallets, cw)
		change.Entries = append(change.Entries, entry)
	} else {
		w, err := s.store.Wallet(ctx, pos.UserID)
		if err != nil {
			return CloseResult{}, fmt.Errorf("load wallet: %w", err)
		}
		// Margin released always equals margin reserved on open.
		releaseEntry, err := wallet.ReleaseMargin(&w, pos.MarginUsed, pos.ID)
		if err != nil {
			return CloseResult{}, err
		}
		pnlEntry, err := wallet.ApplyRealized(&w, gross, types.ReasonRealizedPnL, pos.ID)
		if err != nil {
			return CloseResult{}, err
		}
		w.UnrealizedPnL = w.UnrealizedPnL.Sub(pos.UnrealizedPnL)
		change.Wallets = append(change.Wallets, w)
		change.Entries = append(change.Entries, releaseEntry, pnlEntry)
	}

	// B-book: the operator is the counterparty, so the admin ledger mirrors
	// the negated user P&L and collects the commission.
	account, err := s.store.Account(ctx, pos.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CloseResult{}, fmt.Errorf("load account: %w", err)
	}
	haveAccount := err == nil
	if haveAccount && account.Book == types.BookB && account.AdminID != "" {
		adminWallet, err := s.store.Wallet(ctx, account.AdminID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return CloseResult{}, fmt.Errorf("load admin wallet: %w", err)
		}
		if err == nil {
			pos.AdminPnL = gross.Neg()
			adminEntry, err := wallet.ApplyRealized(&adminWallet, pos.AdminPnL, types.ReasonAdminPnL, pos.ID)
			if err != nil {
				return CloseResult{}, err
			}
			change.Entries = append(change.Entries, adminEntry)
			if pos.Commission.GreaterThan(decimal.Zero) {
				feeEntry, err := wallet.Credit(&adminWallet, pos.Commission, types.ReasonAdminCommission, pos.ID, "broker commission")
				if err != nil {
					return CloseResult{}, err
				}
				change.Entries = append(change.Entries, feeEntry)
			}
			change.Wallets = append(change.Wallets, adminWallet)
		}
	}

	now := s.now().UTC()
	pos.Status = types.PositionClosed
	pos.CloseReason = reason
	pos.ExitPrice = effExit
	pos.MarketPrice = raw
	pos.RealizedPnL = gross
	pos.UnrealizedPnL = decimal.Zero
	pos.ClosedAt = &now
	change.Positions = append(change.Positions, pos)

	if err := s.store.Commit(ctx, change); err != nil {
		return CloseResult{}, fmt.Errorf("persist close: %w", err)
	}
	metrics.ClosesTotal.WithLabelValues(string(reason)).Inc()
	metrics.OpenPositions.Dec()
	if haveAccount && account.Book == types.BookA && s.hedger != nil {
		if herr := s.hedger.Release(ctx, pos.ID); herr != nil {
			slog.Warn("hedge release failed", "position", pos.ID, "error", herr)
		}
	}
	slog.Info("position closed",
		"user", pos.UserID,
		"position", pos.ID,
		"symbol", pos.Symbol,
		"reason", reason,
		"exit", effExit.String(),
		"pnl", gross.String(),
	)
	return CloseResult{Position: pos, PnL: gross}, nil
}

// closeQuote picks the raw exit price: a LONG unwinds into the bid, a SHORT
// into the ask.
func (s *Service) closeQuote(pos model.Position, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil && override.GreaterThan(decimal.Zero) {
		return *override, nil
	}
	tick, err := s.quotes.Get(pos.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if pos.Side == types.SideBuy {
		return tick.Bid, nil
	}
	return tick.Ask, nil
}

// CloseScopeResult summarizes a bulk close.
type CloseScopeResult struct {
	Scope  string `json:"scope"`
	Total  int    `json:"total"`
	Closed int    `json:"closed"`
	Failed int    `json:"failed"`
}

// CloseByScope closes a user's OPEN positions filtered by scope: "all",
// "profit" (positive unrealized P&L) or "loss".
func (s *Service) CloseByScope(ctx context.Context, userID, scope string) (CloseScopeResult, error) {
	if scope == "" {
		scope = "all"
	}
	if scope != "all" && scope != "profit" && scope != "loss" {
		return CloseScopeResult{}, errors.New("invalid close scope; allowed: all, profit, loss")
	}

	res := CloseScopeResult{Scope: scope}
	err := s.locks.withLock(userID, func() error {
		open, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
		if err != nil {
			return err
		}
		for _, p := range open {
			switch scope {
			case "profit":
				if !p.UnrealizedPnL.GreaterThan(decimal.Zero) {
					continue
				}
			case "loss":
				if !p.UnrealizedPnL.LessThan(decimal.Zero) {
					continue
				}
			}
			res.Total++
			if _, err := s.closeLocked(ctx, p, types.CloseReasonManual, nil); err != nil {
				res.Failed++
				slog.Warn("bulk close failed", "user", userID, "position", p.ID, "error", err)
				continue
			}
			res.Closed++
		}
		return nil
	})
	return res, err
}

// SquareOffSegment closes every OPEN intraday position in a segment with
// reason TIME_BASED. The market-hours scheduler invokes it at session close.
func (s *Service) SquareOffSegment(ctx context.Context, segment types.Segment) (int, error) {
	return s.sweepPositions(ctx, types.CloseReasonTime, func(p model.Position) bool {
		return p.Segment == segment && p.Product == types.ProductIntraday
	})
}

// SweepExpired closes every OPEN derivative position whose expiry has
// passed, with reason EXPIRY.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return s.sweepPositions(ctx, types.CloseReasonExpiry, func(p model.Position) bool {
		return p.Expiry != nil && !p.Expiry.After(now)
	})
}

func (s *Service) sweepPositions(ctx context.Context, reason types.CloseReason, match func(model.Position) bool) (int, error) {
	users, err := s.store.ActiveUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, userID := range users {
		err := s.locks.withLock(userID, func() error {
			open, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
			if err != nil {
				return err
			}
			for _, p := range open {
				if !match(p) {
					continue
				}
				if _, err := s.closeLocked(ctx, p, reason, nil); err != nil {
					slog.Warn("sweep close failed", "user", userID, "position", p.ID, "reason", reason, "error", err)
					continue
				}
				closed++
			}
			return nil
		})
		if err != nil {
			return closed, err
		}
	}
	return closed, nil
}
