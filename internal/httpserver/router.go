package httpserver

import (
	"net/http"
	"strings"

	"github.com/shivammacoss/thefx.liv-sub001/internal/admin"
	"github.com/shivammacoss/thefx.liv-sub001/internal/engine"
	"github.com/shivammacoss/thefx.liv-sub001/internal/httputil"
	"github.com/shivammacoss/thefx.liv-sub001/internal/wallet"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	EngineHandler *engine.Handler
	WalletHandler *wallet.Handler
	AdminHandler  *admin.Handler
	InternalToken string
}

// userHandler is a route handler that needs the authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// Identity arrives from the upstream gateway in X-User-ID; this service
// never terminates end-user auth itself.
func withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing X-User-ID"})
			return
		}
		h(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", withUser(d.EngineHandler.Place))
			r.Post("/preview", withUser(d.EngineHandler.Preview))
			r.Post("/{id}/cancel", withUser(d.EngineHandler.Cancel))
		})
		r.Route("/positions", func(r chi.Router) {
			r.Get("/", withUser(d.EngineHandler.Positions))
			r.Post("/close", withUser(d.EngineHandler.CloseAll))
			r.Post("/{id}/close", withUser(d.EngineHandler.Close))
		})
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", withUser(d.WalletHandler.Wallet))
			r.Get("/crypto", withUser(d.WalletHandler.CryptoWallet))
			r.Get("/ledger", withUser(d.WalletHandler.Ledger))
		})
		r.Get("/account/metrics", withUser(d.EngineHandler.AccountMetrics))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(admin.RequireToken(d.InternalToken))
		r.Put("/users/{userID}/account", d.AdminHandler.UpsertAccount)
		r.Get("/users/{userID}/settings", d.AdminHandler.Settings)
		r.Put("/users/{userID}/settings", d.AdminHandler.UpsertSettings)
		r.Post("/users/{userID}/deposit", func(w http.ResponseWriter, r *http.Request) {
			d.WalletHandler.Deposit(w, r, chi.URLParam(r, "userID"))
		})
		r.Post("/users/{userID}/withdraw", func(w http.ResponseWriter, r *http.Request) {
			d.WalletHandler.Withdraw(w, r, chi.URLParam(r, "userID"))
		})
		r.Post("/rms/sweep", d.AdminHandler.Sweep)
		r.Post("/rms/squareoff/{segment}", d.AdminHandler.SquareOff)
		r.Post("/rms/expiry", d.AdminHandler.SweepExpired)
		r.Post("/positions/{id}/close", d.EngineHandler.AdminClose)
	})

	return r
}
