// Package wallet mutates wallet records and emits the matching immutable
// ledger entries. Every balance delta produces exactly one entry carrying
// the resulting balance, so the ledger reconciles against the wallet for any
// closed period.
package wallet

import (
	"fmt"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsufficientFundsError reports a debit the trading balance cannot cover.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required, e.Available)
}

// Shortfall is the missing amount.
func (e InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func newEntry(userID string, dir types.EntryDirection, reason types.LedgerReason, cur types.Currency, amount, balance decimal.Decimal, positionID, note string) model.LedgerEntry {
	return model.LedgerEntry{
		ID:         uuid.New().String(),
		UserID:     userID,
		Direction:  dir,
		Reason:     reason,
		Currency:   cur,
		Amount:     amount,
		Balance:    balance,
		PositionID: positionID,
		Note:       note,
		CreatedAt:  time.Now().UTC(),
	}
}

// Debit removes amount from the trading balance. It fails rather than let
// the balance go negative.
func Debit(w *model.Wallet, amount decimal.Decimal, reason types.LedgerReason, positionID, note string) (model.LedgerEntry, error) {
	if amount.LessThan(decimal.Zero) {
		return model.LedgerEntry{}, fmt.Errorf("debit amount must not be negative: %s", amount)
	}
	if w.TradingBalance.LessThan(amount) {
		return model.LedgerEntry{}, InsufficientFundsError{Required: amount, Available: w.TradingBalance}
	}
	w.TradingBalance = w.TradingBalance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	return newEntry(w.UserID, types.EntryDebit, reason, types.CurrencyReference, amount, w.TradingBalance, positionID, note), nil
}

// Credit adds amount to the trading balance.
func Credit(w *model.Wallet, amount decimal.Decimal, reason types.LedgerReason, positionID, note string) (model.LedgerEntry, error) {
	if amount.LessThan(decimal.Zero) {
		return model.LedgerEntry{}, fmt.Errorf("credit amount must not be negative: %s", amount)
	}
	w.TradingBalance = w.TradingBalance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	return newEntry(w.UserID, types.EntryCredit, reason, types.CurrencyReference, amount, w.TradingBalance, positionID, note), nil
}

// ReserveMargin moves amount from the trading balance into used margin.
func ReserveMargin(w *model.Wallet, amount decimal.Decimal, positionID string) (model.LedgerEntry, error) {
	entry, err := Debit(w, amount, types.ReasonMarginReserve, positionID, "margin reserved")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	w.UsedMargin = w.UsedMargin.Add(amount)
	return entry, nil
}

// ReleaseMargin moves amount from used margin back into the trading balance.
// The amount must equal what the position reserved on open.
func ReleaseMargin(w *model.Wallet, amount decimal.Decimal, positionID string) (model.LedgerEntry, error) {
	if w.UsedMargin.LessThan(amount) {
		return model.LedgerEntry{}, fmt.Errorf("margin release %s exceeds used margin %s", amount, w.UsedMargin)
	}
	entry, err := Credit(w, amount, types.ReasonMarginRelease, positionID, "margin released")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	w.UsedMargin = w.UsedMargin.Sub(amount)
	return entry, nil
}

// ApplyRealized posts a realized P&L to the trading balance. Gains credit in
// full; losses debit no deeper than the remaining balance so the
// trading-balance floor of zero holds.
func ApplyRealized(w *model.Wallet, pnl decimal.Decimal, reason types.LedgerReason, positionID string) (model.LedgerEntry, error) {
	w.RealizedPnL = w.RealizedPnL.Add(pnl)
	if pnl.GreaterThanOrEqual(decimal.Zero) {
		return Credit(w, pnl, reason, positionID, "realized pnl")
	}
	loss := pnl.Neg()
	if loss.GreaterThan(w.TradingBalance) {
		loss = w.TradingBalance
	}
	return Debit(w, loss, reason, positionID, "realized pnl")
}

// CreditCrypto and DebitCrypto mutate the independent crypto sub-wallet.

func CreditCrypto(cw *model.CryptoWallet, amount decimal.Decimal, reason types.LedgerReason, positionID, note string) (model.LedgerEntry, error) {
	if amount.LessThan(decimal.Zero) {
		return model.LedgerEntry{}, fmt.Errorf("credit amount must not be negative: %s", amount)
	}
	cw.Balance = cw.Balance.Add(amount)
	cw.UpdatedAt = time.Now().UTC()
	return newEntry(cw.UserID, types.EntryCredit, reason, types.CurrencyCrypto, amount, cw.Balance, positionID, note), nil
}

func DebitCrypto(cw *model.CryptoWallet, amount decimal.Decimal, reason types.LedgerReason, positionID, note string) (model.LedgerEntry, error) {
	if amount.LessThan(decimal.Zero) {
		return model.LedgerEntry{}, fmt.Errorf("debit amount must not be negative: %s", amount)
	}
	if cw.Balance.LessThan(amount) {
		return model.LedgerEntry{}, InsufficientFundsError{Required: amount, Available: cw.Balance}
	}
	cw.Balance = cw.Balance.Sub(amount)
	cw.UpdatedAt = time.Now().UTC()
	return newEntry(cw.UserID, types.EntryDebit, reason, types.CurrencyCrypto, amount, cw.Balance, positionID, note), nil
}

// ApplyRealizedCrypto posts a crypto P&L to the sub-wallet, with the same
// zero floor as the trading wallet.
func ApplyRealizedCrypto(cw *model.CryptoWallet, pnl decimal.Decimal, positionID string) (model.LedgerEntry, error) {
	cw.RealizedPnL = cw.RealizedPnL.Add(pnl)
	if pnl.GreaterThanOrEqual(decimal.Zero) {
		return CreditCrypto(cw, pnl, types.ReasonRealizedPnL, positionID, "realized pnl")
	}
	loss := pnl.Neg()
	if loss.GreaterThan(cw.Balance) {
		loss = cw.Balance
	}
	return DebitCrypto(cw, loss, types.ReasonRealizedPnL, positionID, "realized pnl")
}

// Reconcile recomputes used margin from the OPEN non-crypto positions and
// returns the drift against the wallet record. A non-zero drift is a
// correctness bug; this check is a monitoring signal, never a repair path.
func Reconcile(w model.Wallet, open []model.Position) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range open {
		if p.Status != types.PositionOpen || p.IsCrypto() {
			continue
		}
		sum = sum.Add(p.MarginUsed)
	}
	return w.UsedMargin.Sub(sum)
}
