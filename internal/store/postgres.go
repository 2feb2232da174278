package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Store. Commit wraps the whole change set
// in one serializable transaction, so a failed persistence never leaves a
// wallet mutation observable.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const positionColumns = `
	id, user_id, symbol, exchange, segment, kind, expiry, strike, option_type,
	side, product_type, order_kind, lots, lot_size, quantity,
	limit_price, trigger_price, stop_loss, target,
	entry_price, market_price, exit_price,
	margin_used, leverage, spread, commission, margin_rule,
	status, close_reason, realized_pnl, unrealized_pnl, admin_pnl,
	created_at, opened_at, closed_at`

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var closeReason *string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Symbol, &p.Exchange, &p.Segment, &p.Kind, &p.Expiry, &p.Strike, &p.OptionType,
		&p.Side, &p.Product, &p.OrderKind, &p.Lots, &p.LotSize, &p.Quantity,
		&p.LimitPrice, &p.TriggerPrice, &p.StopLoss, &p.Target,
		&p.EntryPrice, &p.MarketPrice, &p.ExitPrice,
		&p.MarginUsed, &p.Leverage, &p.Spread, &p.Commission, &p.MarginRule,
		&p.Status, &closeReason, &p.RealizedPnL, &p.UnrealizedPnL, &p.AdminPnL,
		&p.CreatedAt, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, ErrNotFound
		}
		return model.Position{}, err
	}
	if closeReason != nil {
		p.CloseReason = types.CloseReason(*closeReason)
	}
	return p, nil
}

func (s *PostgresStore) Account(ctx context.Context, userID string) (model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, admin_id, book_type, created_at FROM accounts WHERE user_id = $1`,
		userID).Scan(&a.UserID, &a.AdminID, &a.Book, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) Wallet(ctx context.Context, userID string) (model.Wallet, error) {
	var w model.Wallet
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, trading_balance, used_margin, realized_pnl, unrealized_pnl, updated_at
		 FROM wallets WHERE user_id = $1`,
		userID).Scan(&w.UserID, &w.TradingBalance, &w.UsedMargin, &w.RealizedPnL, &w.UnrealizedPnL, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Wallet{}, ErrNotFound
	}
	return w, err
}

func (s *PostgresStore) CryptoWallet(ctx context.Context, userID string) (model.CryptoWallet, error) {
	var w model.CryptoWallet
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, realized_pnl, updated_at FROM crypto_wallets WHERE user_id = $1`,
		userID).Scan(&w.UserID, &w.Balance, &w.RealizedPnL, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CryptoWallet{}, ErrNotFound
	}
	return w, err
}

func (s *PostgresStore) UserSettings(ctx context.Context, userID string) (settings.UserSettings, error) {
	us := settings.UserSettings{UserID: userID}
	var segments, scripts []byte
	err := s.pool.QueryRow(ctx,
		`SELECT segments, scripts FROM user_settings WHERE user_id = $1`,
		userID).Scan(&segments, &scripts)
	if errors.Is(err, pgx.ErrNoRows) {
		return us, nil
	}
	if err != nil {
		return us, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &us.Segments); err != nil {
			return us, fmt.Errorf("decode segment settings: %w", err)
		}
	}
	if len(scripts) > 0 {
		if err := json.Unmarshal(scripts, &us.Scripts); err != nil {
			return us, fmt.Errorf("decode script settings: %w", err)
		}
	}
	return us, nil
}

func (s *PostgresStore) Position(ctx context.Context, id string) (model.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	return scanPosition(row)
}

func (s *PostgresStore) PositionsByUser(ctx context.Context, userID string, statuses ...types.PositionStatus) ([]model.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1`
	args := []any{userID}
	if len(statuses) > 0 {
		set := make([]string, len(statuses))
		for i, st := range statuses {
			set[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, set)
	}
	query += ` ORDER BY created_at`
	return s.queryPositions(ctx, query, args...)
}

func (s *PostgresStore) OpenOpposite(ctx context.Context, userID, symbol, exchange string, side types.Side) (model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 AND symbol = $2 AND exchange = $3 AND side = $4 AND status = 'OPEN'
		 ORDER BY created_at LIMIT 1`,
		userID, symbol, exchange, string(side.Opposite()))
	return scanPosition(row)
}

func (s *PostgresStore) ActiveBySymbols(ctx context.Context, symbols []string) ([]model.Position, error) {
	upper := make([]string, len(symbols))
	for i, sym := range symbols {
		upper[i] = strings.ToUpper(sym)
	}
	return s.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE upper(symbol) = ANY($1) AND status IN ('OPEN', 'PENDING')
		 ORDER BY created_at`, upper)
}

func (s *PostgresStore) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM positions WHERE status = 'OPEN' ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LedgerEntries(ctx context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, direction, reason, currency, amount, balance, position_id, note, created_at
		 FROM ledger_entries WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var positionID, note *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Direction, &e.Reason, &e.Currency,
			&e.Amount, &e.Balance, &positionID, &note, &e.CreatedAt); err != nil {
			return nil, err
		}
		if positionID != nil {
			e.PositionID = *positionID
		}
		if note != nil {
			e.Note = *note
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, admin_id, book_type, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET admin_id = $2, book_type = $3`,
		a.UserID, a.AdminID, string(a.Book), a.CreatedAt)
	return err
}

func (s *PostgresStore) SaveWallet(ctx context.Context, w model.Wallet) error {
	return upsertWallet(ctx, s.pool, w)
}

func (s *PostgresStore) SaveCryptoWallet(ctx context.Context, w model.CryptoWallet) error {
	return upsertCryptoWallet(ctx, s.pool, w)
}

func (s *PostgresStore) SaveUserSettings(ctx context.Context, us settings.UserSettings) error {
	segments, err := json.Marshal(us.Segments)
	if err != nil {
		return err
	}
	scripts, err := json.Marshal(us.Scripts)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, segments, scripts)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET segments = $2, scripts = $3`,
		us.UserID, segments, scripts)
	return err
}

func (s *PostgresStore) Commit(ctx context.Context, change ChangeSet) error {
	if change.IsEmpty() {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range change.Positions {
		if err := upsertPosition(ctx, tx, p); err != nil {
			return fmt.Errorf("persist position %s: %w", p.ID, err)
		}
	}
	for _, w := range change.Wallets {
		if err := upsertWallet(ctx, tx, w); err != nil {
			return fmt.Errorf("persist wallet %s: %w", w.UserID, err)
		}
	}
	for _, w := range change.CryptoWallets {
		if err := upsertCryptoWallet(ctx, tx, w); err != nil {
			return fmt.Errorf("persist crypto wallet %s: %w", w.UserID, err)
		}
	}
	for _, e := range change.Entries {
		if err := insertLedgerEntry(ctx, tx, e); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// execer covers both the pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsertPosition(ctx context.Context, tx pgx.Tx, p model.Position) error {
	var closeReason *string
	if p.CloseReason != "" {
		cr := string(p.CloseReason)
		closeReason = &cr
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35)
		ON CONFLICT (id) DO UPDATE SET
			limit_price = $16, trigger_price = $17, stop_loss = $18, target = $19,
			entry_price = $20, market_price = $21, exit_price = $22,
			margin_used = $23, leverage = $24, spread = $25, commission = $26, margin_rule = $27,
			status = $28, close_reason = $29, realized_pnl = $30, unrealized_pnl = $31, admin_pnl = $32,
			opened_at = $34, closed_at = $35`,
		p.ID, p.UserID, p.Symbol, p.Exchange, string(p.Segment), string(p.Kind), p.Expiry, p.Strike, string(p.OptionType),
		string(p.Side), string(p.Product), string(p.OrderKind), p.Lots, p.LotSize, p.Quantity,
		p.LimitPrice, p.TriggerPrice, p.StopLoss, p.Target,
		p.EntryPrice, p.MarketPrice, p.ExitPrice,
		p.MarginUsed, p.Leverage, p.Spread, p.Commission, p.MarginRule,
		string(p.Status), closeReason, p.RealizedPnL, p.UnrealizedPnL, p.AdminPnL,
		p.CreatedAt, p.OpenedAt, p.ClosedAt)
	return err
}

func upsertWallet(ctx context.Context, db execer, w model.Wallet) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallets (user_id, trading_balance, used_margin, realized_pnl, unrealized_pnl, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			trading_balance = $2, used_margin = $3, realized_pnl = $4, unrealized_pnl = $5, updated_at = $6`,
		w.UserID, w.TradingBalance, w.UsedMargin, w.RealizedPnL, w.UnrealizedPnL, w.UpdatedAt)
	return err
}

func upsertCryptoWallet(ctx context.Context, db execer, w model.CryptoWallet) error {
	_, err := db.Exec(ctx, `
		INSERT INTO crypto_wallets (user_id, balance, realized_pnl, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = $2, realized_pnl = $3, updated_at = $4`,
		w.UserID, w.Balance, w.RealizedPnL, w.UpdatedAt)
	return err
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e model.LedgerEntry) error {
	var positionID, note *string
	if e.PositionID != "" {
		positionID = &e.PositionID
	}
	if e.Note != "" {
		note = &e.Note
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, direction, reason, currency, amount, balance, position_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.UserID, string(e.Direction), string(e.Reason), string(e.Currency),
		e.Amount, e.Balance, positionID, note, e.CreatedAt)
	return err
}
