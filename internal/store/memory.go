package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Commit applies the whole change set under one lock, so the
// atomicity contract holds.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]model.Account
	wallets       map[string]model.Wallet
	cryptoWallets map[string]model.CryptoWallet
	userSettings  map[string]settings.UserSettings
	positions     map[string]model.Position
	entries       []model.LedgerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]model.Account),
		wallets:       make(map[string]model.Wallet),
		cryptoWallets: make(map[string]model.CryptoWallet),
		userSettings:  make(map[string]settings.UserSettings),
		positions:     make(map[string]model.Position),
	}
}

func (s *MemoryStore) Account(_ context.Context, userID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Wallet(_ context.Context, userID string) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return model.Wallet{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) CryptoWallet(_ context.Context, userID string) (model.CryptoWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.cryptoWallets[userID]
	if !ok {
		return model.CryptoWallet{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) UserSettings(_ context.Context, userID string) (settings.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.userSettings[userID]
	if !ok {
		return settings.UserSettings{UserID: userID}, nil
	}
	return us, nil
}

func (s *MemoryStore) Position(_ context.Context, id string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return model.Position{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PositionsByUser(_ context.Context, userID string, statuses ...types.PositionStatus) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !statusIn(p.Status, statuses) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) OpenOpposite(_ context.Context, userID, symbol, exchange string, side types.Side) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.Status == types.PositionOpen &&
			p.UserID == userID &&
			p.Symbol == symbol &&
			p.Exchange == exchange &&
			p.Side == side.Opposite() {
			return p, nil
		}
	}
	return model.Position{}, ErrNotFound
}

func (s *MemoryStore) ActiveBySymbols(_ context.Context, symbols []string) ([]model.Position, error) {
	wanted := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		wanted[strings.ToUpper(sym)] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.Status != types.PositionOpen && p.Status != types.PositionPending {
			continue
		}
		if _, ok := wanted[strings.ToUpper(p.Symbol)]; !ok {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ActiveUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range s.positions {
		if p.Status == types.PositionOpen {
			seen[p.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) LedgerEntries(_ context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	// Newest first, matching the postgres query.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, a model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = a
	return nil
}

func (s *MemoryStore) SaveWallet(_ context.Context, w model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.UserID] = w
	return nil
}

func (s *MemoryStore) SaveCryptoWallet(_ context.Context, w model.CryptoWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cryptoWallets[w.UserID] = w
	return nil
}

func (s *MemoryStore) SaveUserSettings(_ context.Context, us settings.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSettings[us.UserID] = us
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, change ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range change.Positions {
		s.positions[p.ID] = p
	}
	for _, w := range change.Wallets {
		s.wallets[w.UserID] = w
	}
	for _, w := range change.CryptoWallets {
		s.cryptoWallets[w.UserID] = w
	}
	s.entries = append(s.entries, change.Entries...)
	return nil
}

func statusIn(status types.PositionStatus, set []types.PositionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
