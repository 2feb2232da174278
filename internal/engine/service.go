// Package engine is the trade execution and risk core: it turns order
// requests into funded positions, nets opposing exposure, tracks P&L on
// every tick, closes positions, and force-liquidates accounts that breach
// margin.
//
// Every wallet mutation and position transition lands in one atomic store
// commit, and all operations for one user are serialized by a per-user lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/broker"
	"github.com/shivammacoss/thefx.liv-sub001/internal/margin"
	"github.com/shivammacoss/thefx.liv-sub001/internal/marketdata"
	"github.com/shivammacoss/thefx.liv-sub001/internal/metrics"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/pricing"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
	"github.com/shivammacoss/thefx.liv-sub001/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config carries the engine's tunables.
type Config struct {
	// CryptoRate converts crypto-unit values into the reference currency.
	// Read once at startup; crypto and reference amounts are never summed
	// without it.
	CryptoRate decimal.Decimal
	// AllowOffHours lets market orders execute while the segment session is
	// closed.
	AllowOffHours bool
}

// Service is the order placement, netting, close and risk engine.
type Service struct {
	store  store.Store
	quotes *marketdata.Quotes
	hours  marketdata.Hours
	cfg    Config
	locks  *userLocks
	hedger broker.Adapter
	now    func() time.Time
}

// SetHedger installs the venue adapter used to mirror A-book fills. Without
// one, A-book accounts trade unhedged and a warning is logged per fill.
func (s *Service) SetHedger(h broker.Adapter) { s.hedger = h }

func NewService(st store.Store, quotes *marketdata.Quotes, hours marketdata.Hours, cfg Config) *Service {
	if hours == nil {
		hours = marketdata.AlwaysOpen{}
	}
	return &Service{
		store:  st,
		quotes: quotes,
		hours:  hours,
		cfg:    cfg,
		locks:  newUserLocks(),
		now:    time.Now,
	}
}

// OrderRequest describes one inbound order.
type OrderRequest struct {
	UserID       string            `json:"user_id"`
	Instrument   model.Instrument  `json:"instrument"`
	Side         types.Side        `json:"side"`
	Product      types.ProductType `json:"product_type"`
	OrderKind    types.OrderKind   `json:"order_kind"`
	Lots         int64             `json:"lots"`
	LotSize      decimal.Decimal   `json:"lot_size"`
	LimitPrice   *decimal.Decimal  `json:"limit_price,omitempty"`
	TriggerPrice *decimal.Decimal  `json:"trigger_price,omitempty"`
	StopLoss     *decimal.Decimal  `json:"stop_loss,omitempty"`
	Target       *decimal.Decimal  `json:"target,omitempty"`
}

// PlaceResult reports what placement did: either a freshly created position
// or, when opposing exposure existed, the netted close.
type PlaceResult struct {
	Position      model.Position  `json:"position"`
	MarginBlocked decimal.Decimal `json:"margin_blocked"`
	Commission    decimal.Decimal `json:"commission"`
	Netted        bool            `json:"netted"`
	PnL           decimal.Decimal `json:"pnl,omitempty"`
}

func (r OrderRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Instrument.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if r.Side != types.SideBuy && r.Side != types.SideSell {
		return errors.New("invalid side")
	}
	if r.Product != types.ProductIntraday && r.Product != types.ProductCarryForward {
		return errors.New("invalid product type")
	}
	switch r.OrderKind {
	case types.OrderKindMarket:
	case types.OrderKindLimit:
		if r.LimitPrice == nil || !r.LimitPrice.GreaterThan(decimal.Zero) {
			return errors.New("limit price required for limit order")
		}
	case types.OrderKindStop:
		if r.TriggerPrice == nil || !r.TriggerPrice.GreaterThan(decimal.Zero) {
			return errors.New("trigger price required for stop order")
		}
	default:
		return errors.New("invalid order kind")
	}
	if r.Lots <= 0 {
		return errors.New("lots must be positive")
	}
	if !r.LotSize.GreaterThan(decimal.Zero) {
		return errors.New("lot size must be positive")
	}
	return nil
}

// quote evaluated for one order request.
type orderQuote struct {
	raw   decimal.Decimal // dealing-desk fill price before spread
	basis decimal.Decimal // price used for margin/commission valuation
	tick  marketdata.Quote
}

// fillQuote picks the dealing-desk side of the book: a BUY fills at ask, a
// SELL at bid. Resting orders are valued at their limit/trigger price until
// a tick crosses them.
func (s *Service) fillQuote(req OrderRequest) (orderQuote, error) {
	if req.OrderKind != types.OrderKindMarket {
		basis := req.LimitPrice
		if req.OrderKind == types.OrderKindStop {
			basis = req.TriggerPrice
		}
		return orderQuote{basis: *basis}, nil
	}
	tick, err := s.quotes.Get(req.Instrument.Symbol)
	if err != nil {
		return orderQuote{}, err
	}
	raw := tick.Ask
	if req.Side == types.SideSell {
		raw = tick.Bid
	}
	return orderQuote{raw: raw, basis: raw, tick: tick}, nil
}

// PlaceOrder validates, nets opposing exposure or opens a position, reserves
// margin and debits commission as one atomic unit.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (PlaceResult, error) {
	if err := req.validate(); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(req.Instrument.Segment), "rejected").Inc()
		return PlaceResult{}, err
	}

	var res PlaceResult
	err := s.locks.withLock(req.UserID, func() error {
		var err error
		res, err = s.placeLocked(ctx, req)
		return err
	})
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(req.Instrument.Segment), "rejected").Inc()
		return PlaceResult{}, err
	}
	result := "opened"
	if res.Netted {
		result = "netted"
	} else if res.Position.Status == types.PositionPending {
		result = "pending"
	}
	metrics.OrdersTotal.WithLabelValues(string(req.Instrument.Segment), result).Inc()
	return res, nil
}

func (s *Service) placeLocked(ctx context.Context, req OrderRequest) (PlaceResult, error) {
	// Netting: opposing OPEN exposure on the same (user, symbol, exchange)
	// is closed instead of opening a new position. The engine never holds
	// simultaneous long+short on one instrument for one user. The lookup
	// runs before settings resolution so a segment disabled or instrument
	// blocked after entry never traps the user in existing exposure.
	opposite, err := s.store.OpenOpposite(ctx, req.UserID, req.Instrument.Symbol, req.Instrument.Exchange, req.Side)
	if err == nil {
		closed, err := s.closeLocked(ctx, opposite, types.CloseReasonNetting, nil)
		if err != nil {
			return PlaceResult{}, fmt.Errorf("netting close: %w", err)
		}
		return PlaceResult{
			Position: closed.Position,
			Netted:   true,
			PnL:      closed.PnL,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return PlaceResult{}, err
	}

	us, err := s.store.UserSettings(ctx, req.UserID)
	if err != nil {
		return PlaceResult{}, fmt.Errorf("load settings: %w", err)
	}
	resolved, err := settings.Resolve(us, req.Instrument)
	if err != nil {
		return PlaceResult{}, err
	}

	if req.Lots < resolved.MinLots || req.Lots > resolved.MaxLots {
		return PlaceResult{}, LotLimitError{Requested: req.Lots, Min: resolved.MinLots, Max: resolved.MaxLots}
	}
	if req.OrderKind == types.OrderKindMarket && !s.cfg.AllowOffHours && !s.hours.IsTradingAllowed(req.Instrument.Segment) {
		return PlaceResult{}, ErrMarketClosed
	}

	q, err := s.fillQuote(req)
	if err != nil {
		return PlaceResult{}, err
	}

	marginRes := margin.Compute(margin.Input{
		Instrument: req.Instrument,
		Side:       req.Side,
		Product:    req.Product,
		Price:      q.basis,
		Lots:       req.Lots,
		LotSize:    req.LotSize,
		Settings:   resolved,
		CryptoRate: s.cfg.CryptoRate,
	})
	commission := pricing.Commission(pricing.CommissionInput{
		Instrument: req.Instrument,
		Side:       req.Side,
		Product:    req.Product,
		Lots:       req.Lots,
		TradeValue: marginRes.TradeValue,
		Settings:   resolved,
	})

	now := s.now().UTC()
	pos := model.Position{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		Instrument:   req.Instrument,
		Side:         req.Side,
		Product:      req.Product,
		OrderKind:    req.OrderKind,
		Lots:         req.Lots,
		LotSize:      req.LotSize,
		Quantity:     req.LotSize.Mul(decimal.NewFromInt(req.Lots)),
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		StopLoss:     req.StopLoss,
		Target:       req.Target,
		MarginUsed:   marginRes.Required,
		Leverage:     marginRes.Leverage,
		Spread:       resolved.Spread,
		Commission:   commission,
		MarginRule:   string(marginRes.Rule),
		Status:       types.PositionPending,
		CreatedAt:    now,
	}
	if req.OrderKind == types.OrderKindMarket {
		pos.Status = types.PositionOpen
		pos.MarketPrice = q.raw
		pos.EntryPrice = pricing.EntryPrice(q.raw, req.Side, resolved.Spread)
		opened := now
		pos.OpenedAt = &opened
	}

	change := store.ChangeSet{}
	if pos.IsCrypto() {
		cw, err := s.store.CryptoWallet(ctx, req.UserID)
		if err != nil {
			return PlaceResult{}, fmt.Errorf("load crypto wallet: %w", err)
		}
		if cw.Balance.LessThan(commission) {
			return PlaceResult{}, InsufficientMarginError{Required: commission, Available: cw.Balance}
		}
		entry, err := wallet.DebitCrypto(&cw, commission, types.ReasonCommission, pos.ID, "entry commission")
		if err != nil {
			return PlaceResult{}, err
		}
		change.CryptoWallets = append(change.CryptoWallets, cw)
		change.Entries = append(change.Entries, entry)
	} else {
		w, err := s.store.Wallet(ctx, req.UserID)
		if err != nil {
			return PlaceResult{}, fmt.Errorf("load wallet: %w", err)
		}
		needed := marginRes.Required.Add(commission)
		if w.AvailableCapital().LessThan(needed) {
			return PlaceResult{}, InsufficientMarginError{Required: needed, Available: w.AvailableCapital()}
		}
		reserveEntry, err := wallet.ReserveMargin(&w, marginRes.Required, pos.ID)
		if err != nil {
			return PlaceResult{}, err
		}
		change.Entries = append(change.Entries, reserveEntry)
		if commission.GreaterThan(decimal.Zero) {
			feeEntry, err := wallet.Debit(&w, commission, types.ReasonCommission, pos.ID, "entry commission")
			if err != nil {
				return PlaceResult{}, err
			}
			change.Entries = append(change.Entries, feeEntry)
		}
		change.Wallets = append(change.Wallets, w)
	}
	change.Positions = append(change.Positions, pos)

	if err := s.store.Commit(ctx, change); err != nil {
		return PlaceResult{}, fmt.Errorf("persist order: %w", err)
	}
	if pos.Status == types.PositionOpen {
		metrics.OpenPositions.Inc()
	}
	slog.Info("order placed",
		"user", req.UserID,
		"symbol", pos.Symbol,
		"side", pos.Side,
		"lots", pos.Lots,
		"status", pos.Status,
		"margin", marginRes.Required.String(),
		"rule", marginRes.Rule,
		"commission", commission.String(),
	)
	if pos.Status == types.PositionOpen {
		s.hedgeOpen(ctx, pos)
	}
	return PlaceResult{Position: pos, MarginBlocked: marginRes.Required, Commission: commission}, nil
}

// hedgeOpen mirrors an A-book fill to the venue. A failed hedge does not
// unwind the fill; the dealing desk handles it from the log.
func (s *Service) hedgeOpen(ctx context.Context, pos model.Position) {
	account, err := s.store.Account(ctx, pos.UserID)
	if err != nil || account.Book != types.BookA {
		return
	}
	if s.hedger == nil {
		slog.Warn("a-book fill without hedge venue", "user", pos.UserID, "position", pos.ID)
		return
	}
	res, err := s.hedger.Hedge(ctx, broker.HedgeOrder{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Exchange:   pos.Exchange,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		Price:      pos.EntryPrice,
	})
	if err != nil {
		slog.Error("hedge failed", "position", pos.ID, "error", err)
		return
	}
	slog.Info("position hedged", "position", pos.ID, "venue_order", res.VenueOrderID)
}

// Preview is the pure pre-trade projection used by client-side checks. It
// never mutates anything.
type Preview struct {
	MarginRequired decimal.Decimal `json:"margin_required"`
	Brokerage      decimal.Decimal `json:"brokerage"`
	TradeValue     decimal.Decimal `json:"trade_value"`
	Rule           string          `json:"margin_rule"`
	CanPlace       bool            `json:"can_place"`
	Shortfall      decimal.Decimal `json:"shortfall"`
}

// PreviewMargin computes what PlaceOrder would reserve and charge, without
// side effects.
func (s *Service) PreviewMargin(ctx context.Context, req OrderRequest) (Preview, error) {
	if err := req.validate(); err != nil {
		return Preview{}, err
	}
	us, err := s.store.UserSettings(ctx, req.UserID)
	if err != nil {
		return Preview{}, err
	}
	resolved, err := settings.Resolve(us, req.Instrument)
	if err != nil {
		return Preview{}, err
	}
	q, err := s.fillQuote(req)
	if err != nil {
		return Preview{}, err
	}
	marginRes := margin.Compute(margin.Input{
		Instrument: req.Instrument,
		Side:       req.Side,
		Product:    req.Product,
		Price:      q.basis,
		Lots:       req.Lots,
		LotSize:    req.LotSize,
		Settings:   resolved,
		CryptoRate: s.cfg.CryptoRate,
	})
	commission := pricing.Commission(pricing.CommissionInput{
		Instrument: req.Instrument,
		Side:       req.Side,
		Product:    req.Product,
		Lots:       req.Lots,
		TradeValue: marginRes.TradeValue,
		Settings:   resolved,
	})

	var available decimal.Decimal
	if req.Instrument.Segment == types.SegmentCrypto {
		cw, err := s.store.CryptoWallet(ctx, req.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Preview{}, err
		}
		available = cw.Balance
	} else {
		w, err := s.store.Wallet(ctx, req.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Preview{}, err
		}
		available = w.AvailableCapital()
	}

	needed := marginRes.Required.Add(commission)
	preview := Preview{
		MarginRequired: marginRes.Required,
		Brokerage:      commission,
		TradeValue:     marginRes.TradeValue,
		Rule:           string(marginRes.Rule),
		CanPlace:       available.GreaterThanOrEqual(needed),
	}
	if !preview.CanPlace {
		preview.Shortfall = needed.Sub(available)
	}
	if req.Lots < resolved.MinLots || req.Lots > resolved.MaxLots {
		preview.CanPlace = false
	}
	return preview, nil
}

// CancelOrder cancels a PENDING order before its trigger fires, releasing
// the reserved margin and refunding the entry commission. An order that
// already transitioned to OPEN is a conflict.
func (s *Service) CancelOrder(ctx context.Context, positionID string) (model.Position, error) {
	pos, err := s.store.Position(ctx, positionID)
	if err != nil {
		return model.Position{}, err
	}
	var out model.Position
	err = s.locks.withLock(pos.UserID, func() error {
		// Re-read under the lock; a tick may have triggered it meanwhile.
		pos, err := s.store.Position(ctx, positionID)
		if err != nil {
			return err
		}
		out, err = s.cancelLocked(ctx, pos, "")
		return err
	})
	return out, err
}

// cancelLocked voids a PENDING order, releasing the reserved margin and
// refunding the entry commission. Caller holds the user lock. A non-empty
// reason records why the order was consumed rather than cancelled by hand.
func (s *Service) cancelLocked(ctx context.Context, pos model.Position, reason types.CloseReason) (model.Position, error) {
	if pos.Status != types.PositionPending {
		return model.Position{}, ErrPositionNotPending
	}

	change := store.ChangeSet{}
	if pos.IsCrypto() {
		cw, err := s.store.CryptoWallet(ctx, pos.UserID)
		if err != nil {
			return model.Position{}, err
		}
		entry, err := wallet.CreditCrypto(&cw, pos.Commission, types.ReasonCommissionBack, pos.ID, "cancel refund")
		if err != nil {
			return model.Position{}, err
		}
		change.CryptoWallets = append(change.CryptoWallets, cw)
		change.Entries = append(change.Entries, entry)
	} else {
		w, err := s.store.Wallet(ctx, pos.UserID)
		if err != nil {
			return model.Position{}, err
		}
		releaseEntry, err := wallet.ReleaseMargin(&w, pos.MarginUsed, pos.ID)
		if err != nil {
			return model.Position{}, err
		}
		change.Entries = append(change.Entries, releaseEntry)
		if pos.Commission.GreaterThan(decimal.Zero) {
			refundEntry, err := wallet.Credit(&w, pos.Commission, types.ReasonCommissionBack, pos.ID, "cancel refund")
			if err != nil {
				return model.Position{}, err
			}
			change.Entries = append(change.Entries, refundEntry)
		}
		change.Wallets = append(change.Wallets, w)
	}

	now := s.now().UTC()
	pos.Status = types.PositionCancelled
	pos.CloseReason = reason
	pos.ClosedAt = &now
	change.Positions = append(change.Positions, pos)

	if err := s.store.Commit(ctx, change); err != nil {
		return model.Position{}, fmt.Errorf("persist cancel: %w", err)
	}
	slog.Info("order cancelled", "user", pos.UserID, "position", pos.ID, "reason", reason)
	return pos, nil
}
