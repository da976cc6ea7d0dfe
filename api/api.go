// Package api exposes the tally engine over HTTP with a chi router.
//
// Every route runs on behalf of one owner, resolved per request by the
// OwnerFunc (by default the X-Tally-Owner header). Responses use a single
// JSON envelope: {"data": ...} on success and {"error": "..."} on failure.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/tally"
)

// OwnerHeader is the request header read by the default OwnerFunc.
const OwnerHeader = "X-Tally-Owner"

// OwnerFunc resolves the authenticated owner of a request.
type OwnerFunc func(r *http.Request) (string, bool)

// Response is the JSON envelope for all API responses.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// API serves the engine's operations.
type API struct {
	t      *tally.Tally
	owner  OwnerFunc
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithOwnerFunc replaces the header-based owner resolution, e.g. with a
// session or token lookup.
func WithOwnerFunc(fn OwnerFunc) Option {
	return func(a *API) { a.owner = fn }
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API over t.
func New(t *tally.Tally, opts ...Option) *API {
	a := &API{
		t:      t,
		owner:  headerOwner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a router serving every route at its root.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.Routes(r)
	return r
}

// Routes registers the API routes on r.
func (a *API) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(a.requireOwner)

		r.Get("/accounts", a.listAccounts)
		r.Post("/accounts", a.createAccount)
		r.Get("/accounts/{id}", a.getAccount)
		r.Put("/accounts/{id}", a.updateAccount)
		r.Delete("/accounts/{id}", a.deleteAccount)

		r.Get("/categories", a.listCategories)
		r.Post("/categories", a.createCategory)
		r.Get("/items", a.listItems)
		r.Post("/items", a.createItem)

		r.Get("/transactions", a.listTransactions)
		r.Post("/transactions", a.createTransaction)
		r.Get("/transactions/{id}", a.getTransaction)
		r.Put("/transactions/{id}", a.editTransaction)
		r.Delete("/transactions/{id}", a.deleteTransaction)
		r.Put("/transactions/{id}/pay", a.payTransaction)

		r.Post("/transfers", a.createTransfer)
		r.Put("/transfers/{id}", a.editTransfer)

		r.Get("/summary", a.summary)
		r.Get("/reconcile", a.reconcile)
	})
}

func headerOwner(r *http.Request) (string, bool) {
	owner := r.Header.Get(OwnerHeader)
	return owner, owner != ""
}

// requireOwner is middleware that binds the request's owner to its context.
func (a *API) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := a.owner(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, tally.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(tally.WithOwner(r.Context(), owner)))
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: msg})
}

// fail maps an engine error to its HTTP status. Insufficient balance is a
// client error: the request asked for money the account does not have.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tally.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case tally.IsInvalidInput(err), tally.IsInsufficientBalance(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case tally.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case tally.IsInvalidState(err), tally.IsConflict(err), errors.Is(err, tally.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}
