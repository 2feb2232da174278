package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shivammacoss/thefx.liv-sub001/internal/httputil"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/shopspring/decimal"
)

// Handler exposes wallet snapshots, the ledger export and the operator
// deposit/withdraw surface.
type Handler struct {
	st store.Store
}

func NewHandler(st store.Store) *Handler {
	return &Handler{st: st}
}

func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request, userID string) {
	wal, err := h.st.Wallet(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "wallet not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wal)
}

func (h *Handler) CryptoWallet(w http.ResponseWriter, r *http.Request, userID string) {
	cw, err := h.st.CryptoWallet(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "crypto wallet not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cw)
}

// Ledger streams a user's ledger entries newest first, paginated by
// limit/offset query params.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request, userID string) {
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	entries, err := h.st.LedgerEntries(r.Context(), userID, limit, offset)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

type fundsRequest struct {
	Amount string `json:"amount"`
}

func (req fundsRequest) amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(req.Amount)
	if err != nil || !d.GreaterThan(decimal.Zero) {
		return decimal.Decimal{}, errors.New("amount must be a positive number")
	}
	return d, nil
}

// Deposit credits the trading balance. Operator-only.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, userID string) {
	h.adjustFunds(w, r, userID, true)
}

// Withdraw debits the trading balance, never below zero. Operator-only.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	h.adjustFunds(w, r, userID, false)
}

func (h *Handler) adjustFunds(w http.ResponseWriter, r *http.Request, userID string, deposit bool) {
	var req fundsRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := req.amount()
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	wal, err := h.st.Wallet(r.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	wal.UserID = userID

	var (
		entry    model.LedgerEntry
		entryErr error
	)
	if deposit {
		entry, entryErr = Credit(&wal, amount, types.ReasonDeposit, "", "operator deposit")
	} else {
		entry, entryErr = Debit(&wal, amount, types.ReasonWithdraw, "", "operator withdrawal")
	}
	if entryErr != nil {
		status := http.StatusBadRequest
		var insufficient InsufficientFundsError
		if errors.As(entryErr, &insufficient) {
			status = http.StatusPaymentRequired
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: entryErr.Error()})
		return
	}

	change := store.ChangeSet{
		Wallets: []model.Wallet{wal},
		Entries: []model.LedgerEntry{entry},
	}
	if err := h.st.Commit(r.Context(), change); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wal)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
