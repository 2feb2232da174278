package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's reference-currency balances. TradingBalance is the
// capital free for new margin trades; UsedMargin is the capital reserved by
// OPEN non-crypto positions. UsedMargin must always equal the sum of
// MarginUsed over those positions.
type Wallet struct {
	UserID         string          `json:"user_id"`
	TradingBalance decimal.Decimal `json:"trading_balance"`
	UsedMargin     decimal.Decimal `json:"used_margin"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AvailableCapital is the capital a new order may draw on.
func (w Wallet) AvailableCapital() decimal.Decimal {
	return w.TradingBalance
}

// Equity is balance plus reserved margin plus floating P&L.
func (w Wallet) Equity() decimal.Decimal {
	return w.TradingBalance.Add(w.UsedMargin).Add(w.UnrealizedPnL)
}

// CryptoWallet is the independent spot-crypto sub-wallet. Crypto positions
// never reserve margin; only commission and realized P&L move this balance.
type CryptoWallet struct {
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
