package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// accountRequest is the body of account create and update. Balance sets
// the opening balance on create and is ignored on update.
type accountRequest struct {
	Type          account.Kind    `json:"type"`
	Name          string          `json:"name"`
	BankName      string          `json:"bank_name"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := a.t.ListAccounts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	var in accountRequest
	if !decode(w, r, &in) {
		return
	}

	acct := &account.Account{
		Kind:           in.Type,
		Name:           in.Name,
		BankName:       in.BankName,
		AccountNumber:  in.AccountNumber,
		OpeningBalance: types.New(in.Balance, a.t.Currency()),
	}
	if err := a.t.CreateAccount(r.Context(), acct); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, id.PrefixAccount)
	if !ok {
		return
	}

	acct, err := a.t.GetAccount(r.Context(), accountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, id.PrefixAccount)
	if !ok {
		return
	}
	var in accountRequest
	if !decode(w, r, &in) {
		return
	}

	acct := &account.Account{
		ID:            accountID,
		Kind:          in.Type,
		Name:          in.Name,
		BankName:      in.BankName,
		AccountNumber: in.AccountNumber,
	}
	if err := a.t.UpdateAccount(r.Context(), acct); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, id.PrefixAccount)
	if !ok {
		return
	}

	if err := a.t.DeleteAccount(r.Context(), accountID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

type categoryRequest struct {
	Name string `json:"name"`
}

type itemRequest struct {
	CategoryID id.CategoryID `json:"category_id"`
	Name       string        `json:"name"`
	Unit       string        `json:"unit"`
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.t.ListCategories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryRequest
	if !decode(w, r, &in) {
		return
	}

	c := &catalog.Category{Name: in.Name}
	if err := a.t.CreateCategory(r.Context(), c); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	categoryID, err := id.ParseOptional(r.URL.Query().Get("category_id"), id.PrefixCategory)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}

	items, err := a.t.ListItems(r.Context(), categoryID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) {
	var in itemRequest
	if !decode(w, r, &in) {
		return
	}

	it := &catalog.Item{CategoryID: in.CategoryID, Name: in.Name, Unit: in.Unit}
	if err := a.t.CreateItem(r.Context(), it); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// pathID parses the {id} URL parameter, writing a 400 when it is not an
// ID of the expected kind.
func pathID(w http.ResponseWriter, r *http.Request, prefix id.Prefix) (id.ID, bool) {
	v, err := id.ParseWithPrefix(chi.URLParam(r, "id"), prefix)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return id.Nil, false
	}
	return v, true
}
