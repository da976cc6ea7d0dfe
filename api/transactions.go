package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
)

// transactionRequest is the body of POST /transactions. Multi-item
// expenses carry their amount in Total; Price is used otherwise.
type transactionRequest struct {
	Type            movement.Kind   `json:"type"`
	CategoryID      id.CategoryID   `json:"category_id"`
	ItemID          id.ItemID       `json:"item_id"`
	ItemIDs         []id.ItemID     `json:"item_ids"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Total           decimal.Decimal `json:"total"`
	Remark          string          `json:"remark"`
	AccountID       id.AccountID    `json:"account_id"`
	TransactionDate string          `json:"transaction_date"`
	IsMultiItem     bool            `json:"is_multi_item"`
	IsCredit        bool            `json:"is_credit"`
}

// editRequest is the body of PUT /transactions/{id}.
type editRequest struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remark    string          `json:"remark"`
	IsCredit  bool            `json:"is_credit"`
	AccountID id.AccountID    `json:"account_id"`
}

type payRequest struct {
	AccountID id.AccountID `json:"account_id"`
}

type transferRequest struct {
	FromAccountID   id.AccountID    `json:"from_account_id"`
	ToAccountID     id.AccountID    `json:"to_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Remark          string          `json:"remark"`
	TransactionDate string          `json:"transaction_date"`
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := a.t.Rows(r.Context(), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) createTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionRequest
	if !decode(w, r, &in) {
		return
	}
	occurred, err := parseDate(in.TransactionDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction_date")
		return
	}

	price := in.Price
	if in.IsMultiItem && !in.Total.IsZero() {
		price = in.Total
	}

	m, err := a.t.CreateMovement(r.Context(), tally.CreateInput{
		Kind:       in.Type,
		CategoryID: in.CategoryID,
		ItemID:     in.ItemID,
		ItemIDs:    in.ItemIDs,
		Price:      price,
		Quantity:   in.Quantity,
		Remark:     in.Remark,
		AccountID:  in.AccountID,
		OccurredAt: occurred,
		MultiItem:  in.IsMultiItem,
		Credit:     in.IsCredit,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) getTransaction(w http.ResponseWriter, r *http.Request) {
	movementID, ok := pathID(w, r, id.PrefixMovement)
	if !ok {
		return
	}

	m, err := a.t.GetMovement(r.Context(), movementID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) editTransaction(w http.ResponseWriter, r *http.Request) {
	movementID, ok := pathID(w, r, id.PrefixMovement)
	if !ok {
		return
	}
	var in editRequest
	if !decode(w, r, &in) {
		return
	}

	m, err := a.t.EditMovement(r.Context(), movementID, tally.EditInput{
		Price:     in.Price,
		Quantity:  in.Quantity,
		Remark:    in.Remark,
		Credit:    in.IsCredit,
		AccountID: in.AccountID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	movementID, ok := pathID(w, r, id.PrefixMovement)
	if !ok {
		return
	}

	if err := a.t.DeleteMovement(r.Context(), movementID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) payTransaction(w http.ResponseWriter, r *http.Request) {
	movementID, ok := pathID(w, r, id.PrefixMovement)
	if !ok {
		return
	}
	var in payRequest
	if !decode(w, r, &in) {
		return
	}

	m, err := a.t.PayCredit(r.Context(), movementID, in.AccountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) createTransfer(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeTransfer(w, r)
	if !ok {
		return
	}

	m, err := a.t.CreateTransfer(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) editTransfer(w http.ResponseWriter, r *http.Request) {
	movementID, ok := pathID(w, r, id.PrefixMovement)
	if !ok {
		return
	}
	in, ok := decodeTransfer(w, r)
	if !ok {
		return
	}

	m, err := a.t.EditTransfer(r.Context(), movementID, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func decodeTransfer(w http.ResponseWriter, r *http.Request) (tally.TransferInput, bool) {
	var in transferRequest
	if !decode(w, r, &in) {
		return tally.TransferInput{}, false
	}
	occurred, err := parseDate(in.TransactionDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction_date")
		return tally.TransferInput{}, false
	}
	return tally.TransferInput{
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Amount:        in.Amount,
		Remark:        in.Remark,
		OccurredAt:    occurred,
	}, true
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates. An
// empty string yields the zero time, which the engine reads as now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// listOpts reads the movement filter from the query string.
func listOpts(r *http.Request) (movement.ListOpts, error) {
	q := r.URL.Query()
	opts := movement.ListOpts{
		Kind:  movement.Kind(q.Get("type")),
		State: movement.State(q.Get("state")),
	}

	var err error
	if opts.AccountID, err = id.ParseOptional(q.Get("account_id"), id.PrefixAccount); err != nil {
		return opts, errBadQuery("account_id")
	}
	if opts.CategoryID, err = id.ParseOptional(q.Get("category_id"), id.PrefixCategory); err != nil {
		return opts, errBadQuery("category_id")
	}
	if opts.Start, err = parseDate(q.Get("start")); err != nil {
		return opts, errBadQuery("start")
	}
	if opts.End, err = parseDate(q.Get("end")); err != nil {
		return opts, errBadQuery("end")
	}
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 0 {
			return opts, errBadQuery("limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil || opts.Offset < 0 {
			return opts, errBadQuery("offset")
		}
	}
	return opts, nil
}

type errBadQuery string

func (e errBadQuery) Error() string { return "invalid query parameter " + string(e) }
