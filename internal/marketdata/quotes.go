package marketdata

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one price tick for a symbol as delivered by the upstream feed.
type Quote struct {
	Symbol string          `json:"symbol"`
	LTP    decimal.Decimal `json:"ltp"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	At     time.Time       `json:"at"`
}

// ErrNoQuote is returned when no tradable price is cached for a symbol.
var ErrNoQuote = errors.New("no tradable price available")

// Quotes caches the latest tick per symbol. Writers are the feed subscriber
// and tests; readers are placement, close and tick processing.
type Quotes struct {
	mu   sync.RWMutex
	last map[string]Quote
}

func NewQuotes() *Quotes {
	return &Quotes{last: make(map[string]Quote)}
}

// Set stores the latest quote for a symbol. Bid/ask fall back to LTP when
// the feed delivers only a last-traded price.
func (q *Quotes) Set(quote Quote) {
	quote.Symbol = strings.ToUpper(strings.TrimSpace(quote.Symbol))
	if quote.Symbol == "" {
		return
	}
	if !quote.Bid.GreaterThan(decimal.Zero) {
		quote.Bid = quote.LTP
	}
	if !quote.Ask.GreaterThan(decimal.Zero) {
		quote.Ask = quote.LTP
	}
	if quote.At.IsZero() {
		quote.At = time.Now().UTC()
	}
	q.mu.Lock()
	q.last[quote.Symbol] = quote
	q.mu.Unlock()
}

// Get returns the latest quote for a symbol.
func (q *Quotes) Get(symbol string) (Quote, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	quote, ok := q.last[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok || !quote.LTP.GreaterThan(decimal.Zero) {
		return Quote{}, ErrNoQuote
	}
	return quote, nil
}
