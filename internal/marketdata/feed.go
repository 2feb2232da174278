package marketdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"

	"github.com/gorilla/websocket"
)

// TickSink receives each decoded tick batch. The trade engine implements
// this with its ApplyPriceTick pass; the returned actions report what the
// batch did per position.
type TickSink interface {
	ApplyPriceTick(ctx context.Context, quotes map[string]Quote) ([]model.TickAction, error)
}

// Feed subscribes to the upstream price websocket and forwards every tick
// into the quote cache and the sink. One frame carries one or more quotes.
type Feed struct {
	url    string
	quotes *Quotes
	sink   TickSink
}

func NewFeed(url string, quotes *Quotes, sink TickSink) *Feed {
	return &Feed{url: url, quotes: quotes, sink: sink}
}

// Run dials the feed and pumps ticks until ctx is cancelled, redialing with
// a flat backoff on any read or dial failure.
func (f *Feed) Run(ctx context.Context) {
	const redialDelay = 3 * time.Second
	for {
		if err := f.pump(ctx); err != nil {
			slog.Warn("price feed disconnected", "url", f.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

func (f *Feed) pump(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("price feed connected", "url", f.url)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		frame, err := DecodeTickFrame(raw)
		if err != nil {
			slog.Warn("malformed tick frame", "error", err)
			continue
		}
		batch := make(map[string]Quote, len(frame))
		for _, q := range frame {
			q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
			if q.Symbol == "" {
				continue
			}
			f.quotes.Set(q)
			batch[q.Symbol] = q
		}
		if f.sink == nil || len(batch) == 0 {
			continue
		}
		if _, err := f.sink.ApplyPriceTick(ctx, batch); err != nil {
			slog.Error("tick processing failed", "symbols", len(batch), "error", err)
		}
	}
}

// DecodeTickFrame parses one raw feed frame, tolerating both a bare quote
// object and an array of quotes.
func DecodeTickFrame(raw []byte) ([]Quote, error) {
	var many []Quote
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one Quote
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []Quote{one}, nil
}
