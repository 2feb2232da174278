package engine

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/httputil"
	"github.com/shivammacoss/thefx.liv-sub001/internal/marketdata"
	"github.com/shivammacoss/thefx.liv-sub001/internal/model"
	"github.com/shivammacoss/thefx.liv-sub001/internal/settings"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
	st  store.Store
}

func NewHandler(svc *Service, st store.Store) *Handler {
	return &Handler{svc: svc, st: st}
}

type placeOrderRequest struct {
	Symbol       string `json:"symbol"`
	Exchange     string `json:"exchange"`
	Segment      string `json:"segment"`
	Kind         string `json:"kind"`
	Expiry       string `json:"expiry"`
	Strike       string `json:"strike"`
	OptionType   string `json:"option_type"`
	Side         string `json:"side"`
	Product      string `json:"product_type"`
	OrderKind    string `json:"order_kind"`
	Lots         int64  `json:"lots"`
	LotSize      string `json:"lot_size"`
	LimitPrice   string `json:"limit_price"`
	TriggerPrice string `json:"trigger_price"`
	StopLoss     string `json:"stop_loss"`
	Target       string `json:"target"`
}

func parseOptionalPrice(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("invalid " + field)
	}
	return &d, nil
}

func (req placeOrderRequest) toOrder(userID string) (OrderRequest, error) {
	seg, err := settings.NormalizeSegment(req.Segment)
	if err != nil {
		return OrderRequest{}, err
	}
	inst := model.Instrument{
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Exchange:   strings.ToUpper(strings.TrimSpace(req.Exchange)),
		Segment:    seg,
		Kind:       types.InstrumentKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		OptionType: types.OptionType(strings.ToUpper(strings.TrimSpace(req.OptionType))),
	}
	if req.Expiry != "" {
		t, err := time.Parse("2006-01-02", req.Expiry)
		if err != nil {
			return OrderRequest{}, errors.New("invalid expiry; want YYYY-MM-DD")
		}
		inst.Expiry = &t
	}
	if inst.Strike, err = parseOptionalPrice(req.Strike, "strike"); err != nil {
		return OrderRequest{}, err
	}

	lotSize := decimal.NewFromInt(1)
	if req.LotSize != "" {
		if lotSize, err = decimal.NewFromString(req.LotSize); err != nil {
			return OrderRequest{}, errors.New("invalid lot_size")
		}
	}
	order := OrderRequest{
		UserID:     userID,
		Instrument: inst,
		Side:       types.Side(strings.ToUpper(req.Side)),
		Product:    types.ProductType(strings.ToUpper(req.Product)),
		OrderKind:  types.OrderKind(strings.ToUpper(req.OrderKind)),
		Lots:       req.Lots,
		LotSize:    lotSize,
	}
	if order.OrderKind == "" {
		order.OrderKind = types.OrderKindMarket
	}
	if order.Product == "" {
		order.Product = types.ProductIntraday
	}
	if order.LimitPrice, err = parseOptionalPrice(req.LimitPrice, "limit_price"); err != nil {
		return OrderRequest{}, err
	}
	if order.TriggerPrice, err = parseOptionalPrice(req.TriggerPrice, "trigger_price"); err != nil {
		return OrderRequest{}, err
	}
	if order.StopLoss, err = parseOptionalPrice(req.StopLoss, "stop_loss"); err != nil {
		return OrderRequest{}, err
	}
	if order.Target, err = parseOptionalPrice(req.Target, "target"); err != nil {
		return OrderRequest{}, err
	}
	return order, nil
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	order, err := req.toOrder(userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.svc.PlaceOrder(r.Context(), order)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	order, err := req.toOrder(userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	preview, err := h.svc.PreviewMargin(r.Context(), order)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, preview)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID string) {
	id := chi.URLParam(r, "id")
	pos, err := h.ownedPosition(r, id, userID)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.CancelOrder(r.Context(), pos.ID)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID string) {
	id := chi.URLParam(r, "id")
	pos, err := h.ownedPosition(r, id, userID)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.svc.ClosePosition(r.Context(), pos.ID, types.CloseReasonManual, nil)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) CloseAll(w http.ResponseWriter, r *http.Request, userID string) {
	scope := r.URL.Query().Get("scope")
	res, err := h.svc.CloseByScope(r.Context(), userID, scope)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, userID string) {
	var statuses []types.PositionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, types.PositionStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	positions, err := h.st.PositionsByUser(r.Context(), userID, statuses...)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

func (h *Handler) AccountMetrics(w http.ResponseWriter, r *http.Request, userID string) {
	m, err := h.svc.Metrics(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

type adminCloseRequest struct {
	Price string `json:"price"`
}

// AdminClose force-closes any position, optionally at an override price.
func (h *Handler) AdminClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adminCloseRequest
	if err := httputil.ReadJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	price, err := parseOptionalPrice(req.Price, "price")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.svc.ClosePosition(r.Context(), id, types.CloseReasonAdmin, price)
	if err != nil {
		httputil.WriteJSON(w, statusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ownedPosition(r *http.Request, id, userID string) (model.Position, error) {
	if strings.TrimSpace(id) == "" {
		return model.Position{}, errors.New("position id is required")
	}
	pos, err := h.st.Position(r.Context(), id)
	if err != nil {
		return model.Position{}, err
	}
	if pos.UserID != userID {
		return model.Position{}, store.ErrNotFound
	}
	return pos, nil
}

func statusFor(err error) int {
	var (
		lotErr      LotLimitError
		marginErr   InsufficientMarginError
		disabledErr settings.SegmentDisabledError
		blockedErr  settings.InstrumentBlockedError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPositionNotPending), errors.Is(err, ErrPositionNotOpen):
		return http.StatusConflict
	case errors.Is(err, ErrMarketClosed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, marketdata.ErrNoQuote):
		return http.StatusServiceUnavailable
	case errors.As(err, &marginErr):
		return http.StatusPaymentRequired
	case errors.As(err, &lotErr), errors.As(err, &disabledErr), errors.As(err, &blockedErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
