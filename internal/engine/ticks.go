package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/marketdata"
	"github.com/shivammacoss/thefx.liv-sub001/internal/metrics"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/pricing"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// ApplyPriceTick advances the book against one tick batch: PENDING orders
// whose trigger condition is met become OPEN (or net out opposing exposure),
// OPEN positions are remarked, and stop-loss, target and per-position
// margin-call exits fire. The feed calls this for every decoded frame; the
// returned actions report each fill, close and netting the batch performed.
func (s *Service) ApplyPriceTick(ctx context.Context, batch map[string]marketdata.Quote) ([]model.TickAction, error) {
	start := time.Now()
	defer func() {
		metrics.TickBatchDuration.Observe(time.Since(start).Seconds())
	}()

	symbols := make([]string, 0, len(batch))
	for sym := range batch {
		symbols = append(symbols, sym)
	}
	active, err := s.store.ActiveBySymbols(ctx, symbols)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	byUser := make(map[string][]string)
	for _, p := range active {
		byUser[p.UserID] = append(byUser[p.UserID], p.ID)
	}
	var actions []model.TickAction
	for userID, ids := range byUser {
		err := s.locks.withLock(userID, func() error {
			acts, err := s.tickUserLocked(ctx, userID, ids, batch)
			actions = append(actions, acts...)
			return err
		})
		if err != nil {
			slog.Error("tick pass failed for user", "user", userID, "error", err)
		}
	}
	return actions, nil
}

// tickUserLocked processes one user's touched positions. Caller holds the
// user lock; every position is re-read so a close that raced the batch is
// skipped instead of resurrected.
func (s *Service) tickUserLocked(ctx context.Context, userID string, ids []string, batch map[string]marketdata.Quote) ([]model.TickAction, error) {
	type pendingClose struct {
		pos    model.Position
		reason types.CloseReason
	}
	type pendingNet struct {
		pending  model.Position
		opposite model.Position
	}
	var (
		change   store.ChangeSet
		closes   []pendingClose
		nettings []pendingNet
		remarked []model.Position
		actions  []model.TickAction
	)

	w, walletErr := s.store.Wallet(ctx, userID)

	for _, id := range ids {
		pos, err := s.store.Position(ctx, id)
		if err != nil {
			continue
		}
		tick, ok := batch[pos.Symbol]
		if !ok {
			continue
		}

		switch pos.Status {
		case types.PositionPending:
			pending := pos
			opened, ok := s.tryTrigger(&pos, tick)
			if !ok {
				continue
			}
			// A triggered order nets against opposing OPEN exposure on the
			// same instrument instead of leaving the user long and short
			// at once.
			opp, oppErr := s.store.OpenOpposite(ctx, userID, pending.Symbol, pending.Exchange, pending.Side)
			if oppErr == nil {
				nettings = append(nettings, pendingNet{pending: pending, opposite: opp})
				continue
			}
			if !errors.Is(oppErr, store.ErrNotFound) {
				slog.Warn("netting lookup failed on trigger",
					"user", userID, "position", pending.ID, "error", oppErr)
				continue
			}
			change.Positions = append(change.Positions, opened)
			remarked = append(remarked, opened)
			actions = append(actions, model.TickAction{Position: opened, Action: model.TickActionTriggered})
			metrics.OpenPositions.Inc()
			slog.Info("pending order triggered",
				"user", userID, "position", pos.ID, "symbol", pos.Symbol,
				"entry", opened.EntryPrice.String())
		case types.PositionOpen:
			fresh := s.remark(pos, tick)
			remarked = append(remarked, fresh)
			if reason, hit := s.exitReason(fresh, tick, w, walletErr == nil); hit {
				closes = append(closes, pendingClose{pos: fresh, reason: reason})
				continue
			}
			change.Positions = append(change.Positions, fresh)
		}
	}

	// Carry the user wallet's aggregate unrealized P&L alongside the marks.
	if walletErr == nil && hasNonCrypto(remarked) {
		w.UnrealizedPnL = s.sumUnrealized(ctx, userID, remarked)
		change.Wallets = append(change.Wallets, w)
	}

	if !change.IsEmpty() {
		if err := s.store.Commit(ctx, change); err != nil {
			return actions, err
		}
	}
	for _, c := range closes {
		closed, err := s.closeLocked(ctx, c.pos, c.reason, nil)
		if err != nil {
			slog.Warn("tick-driven close failed",
				"user", userID, "position", c.pos.ID, "reason", c.reason, "error", err)
			continue
		}
		actions = append(actions, model.TickAction{Position: closed.Position, Action: string(c.reason)})
		if c.reason == types.CloseReasonRMS {
			metrics.RMSForceCloses.Inc()
		}
	}
	for _, n := range nettings {
		// The opposite may have closed earlier in this same batch (a stop
		// or target on the same tick); re-read before consuming it.
		opp, err := s.store.Position(ctx, n.opposite.ID)
		if err != nil || opp.Status != types.PositionOpen {
			continue
		}
		closed, err := s.closeLocked(ctx, opp, types.CloseReasonNetting, nil)
		if err != nil {
			slog.Warn("netting close on trigger failed",
				"user", userID, "position", opp.ID, "error", err)
			continue
		}
		actions = append(actions, model.TickAction{Position: closed.Position, Action: string(types.CloseReasonNetting)})
		cancelled, err := s.cancelLocked(ctx, n.pending, types.CloseReasonNetting)
		if err != nil {
			slog.Warn("consuming netted pending order failed",
				"user", userID, "position", n.pending.ID, "error", err)
			continue
		}
		actions = append(actions, model.TickAction{Position: cancelled, Action: string(types.CloseReasonNetting)})
		slog.Info("pending order netted against open position",
			"user", userID, "pending", n.pending.ID, "against", opp.ID)
	}
	return actions, nil
}

// tryTrigger fills a PENDING order when its limit or stop condition is met
// against the side-appropriate book price.
func (s *Service) tryTrigger(pos *model.Position, tick marketdata.Quote) (model.Position, bool) {
	// A BUY fills against the ask, a SELL against the bid.
	raw := tick.Ask
	if pos.Side == types.SideSell {
		raw = tick.Bid
	}

	triggered := false
	switch pos.OrderKind {
	case types.OrderKindLimit:
		if pos.LimitPrice == nil {
			return model.Position{}, false
		}
		if pos.Side == types.SideBuy {
			triggered = raw.LessThanOrEqual(*pos.LimitPrice)
		} else {
			triggered = raw.GreaterThanOrEqual(*pos.LimitPrice)
		}
	case types.OrderKindStop:
		if pos.TriggerPrice == nil {
			return model.Position{}, false
		}
		if pos.Side == types.SideBuy {
			triggered = raw.GreaterThanOrEqual(*pos.TriggerPrice)
		} else {
			triggered = raw.LessThanOrEqual(*pos.TriggerPrice)
		}
	}
	if !triggered {
		return model.Position{}, false
	}

	now := s.now().UTC()
	pos.Status = types.PositionOpen
	pos.EntryPrice = pricing.EntryPrice(raw, pos.Side, pos.Spread)
	pos.MarketPrice = tick.LTP
	pos.OpenedAt = &now
	pos.UnrealizedPnL = pos.GrossPnL(s.markPrice(*pos, tick))
	return *pos, true
}

// remark refreshes an OPEN position's market price and unrealized P&L.
func (s *Service) remark(pos model.Position, tick marketdata.Quote) model.Position {
	pos.MarketPrice = tick.LTP
	pos.UnrealizedPnL = pos.GrossPnL(s.markPrice(pos, tick))
	return pos
}

// markPrice is the spread-adjusted price the position would exit at right
// now: a LONG marks against the bid, a SHORT against the ask.
func (s *Service) markPrice(pos model.Position, tick marketdata.Quote) decimal.Decimal {
	raw := tick.Bid
	if pos.Side == types.SideSell {
		raw = tick.Ask
	}
	return pricing.ExitPrice(raw, pos.Side, pos.Spread)
}

// exitReason decides whether a freshly remarked position must close on this
// tick. Stop-loss and target compare against the exit-side book price; the
// margin call fires when one position's loss alone covers the trading
// balance.
func (s *Service) exitReason(pos model.Position, tick marketdata.Quote, w model.Wallet, haveWallet bool) (types.CloseReason, bool) {
	raw := tick.Bid
	if pos.Side == types.SideSell {
		raw = tick.Ask
	}

	if pos.StopLoss != nil && pos.StopLoss.GreaterThan(decimal.Zero) {
		if pos.Side == types.SideBuy && raw.LessThanOrEqual(*pos.StopLoss) {
			return types.CloseReasonStopLoss, true
		}
		if pos.Side == types.SideSell && raw.GreaterThanOrEqual(*pos.StopLoss) {
			return types.CloseReasonStopLoss, true
		}
	}
	if pos.Target != nil && pos.Target.GreaterThan(decimal.Zero) {
		if pos.Side == types.SideBuy && raw.GreaterThanOrEqual(*pos.Target) {
			return types.CloseReasonTarget, true
		}
		if pos.Side == types.SideSell && raw.LessThanOrEqual(*pos.Target) {
			return types.CloseReasonTarget, true
		}
	}
	if haveWallet && !pos.IsCrypto() && pos.UnrealizedPnL.LessThan(decimal.Zero) {
		if pos.UnrealizedPnL.Neg().GreaterThanOrEqual(w.TradingBalance) {
			return types.CloseReasonRMS, true
		}
	}
	return "", false
}

// sumUnrealized totals unrealized P&L across the user's OPEN non-crypto
// positions, preferring the freshly remarked copies over the stored ones.
func (s *Service) sumUnrealized(ctx context.Context, userID string, remarked []model.Position) decimal.Decimal {
	fresh := make(map[string]model.Position, len(remarked))
	for _, p := range remarked {
		fresh[p.ID] = p
	}
	open, err := s.store.PositionsByUser(ctx, userID, types.PositionOpen)
	if err != nil {
		open = nil
	}
	seen := make(map[string]bool, len(open))
	total := decimal.Zero
	for _, p := range open {
		seen[p.ID] = true
		if f, ok := fresh[p.ID]; ok {
			p = f
		}
		if p.IsCrypto() {
			continue
		}
		total = total.Add(p.UnrealizedPnL)
	}
	// Remarked positions triggered OPEN in this very batch are not yet
	// visible through the store read.
	for _, p := range remarked {
		if p.Status == types.PositionOpen && !seen[p.ID] && !p.IsCrypto() {
			total = total.Add(p.UnrealizedPnL)
		}
	}
	return total
}

func hasNonCrypto(positions []model.Position) bool {
	for _, p := range positions {
		if !p.IsCrypto() {
			return true
		}
	}
	return false
}
