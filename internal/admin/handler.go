// Package admin is the operator surface: account provisioning, per-user
// settings management and manual risk actions. It sits behind the internal
// token, never the public API.
package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/engine"
	"github.com/shivammacoss/thefx.liv-sub001/internal/httputil"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *engine.Service
	st  store.Store
}

func NewHandler(svc *engine.Service, st store.Store) *Handler {
	return &Handler{svc: svc, st: st}
}

type accountRequest struct {
	AdminID string `json:"admin_id"`
	Book    string `json:"book"`
}

// UpsertAccount binds a user to an operator and a book.
func (h *Handler) UpsertAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req accountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	book := types.BookType(strings.ToUpper(strings.TrimSpace(req.Book)))
	if book == "" {
		book = types.BookB
	}
	if book != types.BookA && book != types.BookB {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid book; allowed: A_BOOK, B_BOOK"})
		return
	}
	account := model.Account{
		UserID:    userID,
		AdminID:   strings.TrimSpace(req.AdminID),
		Book:      book,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.st.SaveAccount(r.Context(), account); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

// Settings returns a user's raw settings overlay, not the resolved view.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	us, err := h.st.UserSettings(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, us)
}

// UpsertSettings replaces a user's settings overlay. Segment keys are
// normalized so aliases land on the canonical segment.
func (h *Handler) UpsertSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var us settings.UserSettings
	if err := httputil.ReadJSON(r, &us); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	us.UserID = userID
	if len(us.Segments) > 0 {
		normalized := make(map[types.Segment]settings.SegmentSettings, len(us.Segments))
		for key, seg := range us.Segments {
			canonical, err := settings.NormalizeSegment(string(key))
			if err != nil {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
				return
			}
			normalized[canonical] = seg
		}
		us.Segments = normalized
	}
	if err := h.st.SaveUserSettings(r.Context(), us); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, us)
}

// Sweep triggers one risk sweep immediately.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sweep(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SquareOff closes all intraday positions in one segment.
func (h *Handler) SquareOff(w http.ResponseWriter, r *http.Request) {
	seg, err := settings.NormalizeSegment(chi.URLParam(r, "segment"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	closed, err := h.svc.SquareOffSegment(r.Context(), seg)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// SweepExpired closes every derivative position past its expiry.
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	closed, err := h.svc.SweepExpired(r.Context(), time.Now().UTC())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// RequireToken guards the admin routes with the internal API token.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Internal-Token") != token {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
