package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/report"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

const owner = "user-1"

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newClient(t *testing.T) *client {
	t.Helper()
	return newClientOn(t, memory.New())
}

func newClientOn(t *testing.T, s store.Store) *client {
	t.Helper()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	tl := tally.New(s,
		tally.WithLogger(discard),
		tally.WithClock(func() time.Time { return time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC) }),
	)
	require.NoError(t, tl.Start(context.Background()))
	t.Cleanup(func() { _ = tl.Stop() })

	srv := httptest.NewServer(api.New(tl, api.WithLogger(discard)).Handler())
	t.Cleanup(srv.Close)

	return &client{t: t, srv: srv}
}

// do sends body as JSON and decodes the envelope's data into out.
func (c *client) do(method, path string, body, out any) (int, string) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set(api.OwnerHeader, owner)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, ""
	}

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode, env.Error
}

func (c *client) setup() (*account.Account, *catalog.Item) {
	c.t.Helper()

	var acct account.Account
	status, _ := c.do(http.MethodPost, "/accounts", map[string]any{
		"type": "bank", "name": "Savings", "bank_name": "HDFC", "balance": "500",
	}, &acct)
	require.Equal(c.t, http.StatusCreated, status)

	var cat catalog.Category
	status, _ = c.do(http.MethodPost, "/categories", map[string]any{"name": "Groceries"}, &cat)
	require.Equal(c.t, http.StatusCreated, status)

	var item catalog.Item
	status, _ = c.do(http.MethodPost, "/items", map[string]any{
		"category_id": cat.ID.String(), "name": "Rice", "unit": "kg",
	}, &item)
	require.Equal(c.t, http.StatusCreated, status)

	return &acct, &item
}

func (c *client) expense(acct *account.Account, item *catalog.Item, price string, credit bool) (int, string, *movement.Movement) {
	c.t.Helper()
	body := map[string]any{
		"type":             "expense",
		"category_id":      item.CategoryID.String(),
		"item_id":          item.ID.String(),
		"price":            price,
		"quantity":         "1",
		"transaction_date": "2026-10-16",
		"is_credit":        credit,
	}
	if !credit {
		body["account_id"] = acct.ID.String()
	}
	var m movement.Movement
	status, msg := c.do(http.MethodPost, "/transactions", body, &m)
	return status, msg, &m
}

func (c *client) balance(acct *account.Account) types.Money {
	c.t.Helper()
	var got account.Account
	status, _ := c.do(http.MethodGet, "/accounts/"+acct.ID.String(), nil, &got)
	require.Equal(c.t, http.StatusOK, status)
	return got.Balance
}

func TestMissingOwner(t *testing.T) {
	c := newClient(t)

	resp, err := http.Get(c.srv.URL + "/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateExpense_DebitsAccount(t *testing.T) {
	c := newClient(t)
	acct, item := c.setup()

	status, _, m := c.expense(acct, item, "200", false)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, movement.StateSettled, m.State)
	assert.Equal(t, "16102026:14:0501", m.Code)
	assert.True(t, types.FromInt(300, "INR").Equal(c.balance(acct)))
}

func TestCreateExpense_InsufficientBalanceIsBadRequest(t *testing.T) {
	c := newClient(t)
	acct, item := c.setup()

	status, msg, _ := c.expense(acct, item, "800", false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, msg, "insufficient balance")
	assert.True(t, types.FromInt(500, "INR").Equal(c.balance(acct)))
}

func TestCreditLifecycle(t *testing.T) {
	c := newClient(t)
	acct, item := c.setup()

	status, _, m := c.expense(acct, item, "120", true)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, movement.StatePendingCredit, m.State)
	assert.True(t, types.FromInt(500, "INR").Equal(c.balance(acct)))

	var paid movement.Movement
	status, _ = c.do(http.MethodPut, "/transactions/"+m.ID.String()+"/pay",
		map[string]any{"account_id": acct.ID.String()}, &paid)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, movement.StateSettled, paid.State)
	assert.Equal(t, acct.ID, paid.AccountID)
	assert.True(t, types.FromInt(380, "INR").Equal(c.balance(acct)))

	status, _ = c.do(http.MethodPut, "/transactions/"+m.ID.String()+"/pay",
		map[string]any{"account_id": acct.ID.String()}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

// racedStore reports every revision-checked commit as lost to another writer.
type racedStore struct{ store.Store }

func (s racedStore) Commit(ctx context.Context, cs *store.Changeset) error {
	if cs.Expect != nil {
		return tally.ErrConflict
	}
	return s.Store.Commit(ctx, cs)
}

func TestConcurrentChangeIsConflict(t *testing.T) {
	c := newClientOn(t, racedStore{memory.New()})
	acct, item := c.setup()

	status, _, m := c.expense(acct, item, "120", true)
	require.Equal(t, http.StatusCreated, status)

	status, msg := c.do(http.MethodPut, "/transactions/"+m.ID.String()+"/pay",
		map[string]any{"account_id": acct.ID.String()}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, msg, "changed concurrently")
	assert.True(t, types.FromInt(500, "INR").Equal(c.balance(acct)))
}

func TestEditAndDelete(t *testing.T) {
	c := newClient(t)
	acct, item := c.setup()

	_, _, m := c.expense(acct, item, "100", false)

	var edited movement.Movement
	status, _ := c.do(http.MethodPut, "/transactions/"+m.ID.String(), map[string]any{
		"price": "150", "quantity": "1", "remark": "more rice", "account_id": acct.ID.String(),
	}, &edited)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "more rice", edited.Remark)
	assert.True(t, types.FromInt(350, "INR").Equal(c.balance(acct)))

	status, _ = c.do(http.MethodDelete, "/transactions/"+m.ID.String(), nil, nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.True(t, types.FromInt(500, "INR").Equal(c.balance(acct)))

	status, _ = c.do(http.MethodGet, "/transactions/"+m.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInvalidPathID(t *testing.T) {
	c := newClient(t)

	status, msg := c.do(http.MethodGet, "/transactions/42", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid id", msg)
}

func TestTransfersAndReports(t *testing.T) {
	c := newClient(t)
	from, item := c.setup()

	var to account.Account
	status, _ := c.do(http.MethodPost, "/accounts", map[string]any{"type": "cash", "name": "Wallet"}, &to)
	require.Equal(t, http.StatusCreated, status)

	var tr movement.Movement
	status, _ = c.do(http.MethodPost, "/transfers", map[string]any{
		"from_account_id": from.ID.String(), "to_account_id": to.ID.String(), "amount": "200",
	}, &tr)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Savings → Wallet", tr.Remark)

	status, _ = c.do(http.MethodPut, "/transfers/"+tr.ID.String(), map[string]any{
		"from_account_id": from.ID.String(), "to_account_id": to.ID.String(), "amount": "250",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, types.FromInt(250, "INR").Equal(c.balance(from)))
	assert.True(t, types.FromInt(250, "INR").Equal(c.balance(&to)))

	c.expense(from, item, "50", false)

	var rows []report.Row
	status, _ = c.do(http.MethodGet, "/transactions?type=expense", nil, &rows)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 1)
	assert.Equal(t, "Rice", rows[0].ItemName)
	assert.Equal(t, "Savings", rows[0].AccountName)

	var sum report.Summary
	status, _ = c.do(http.MethodGet, "/summary", nil, &sum)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, types.FromInt(50, "INR").Equal(sum.Expense))
	assert.True(t, types.FromInt(250, "INR").Equal(sum.TransferVolume))
	assert.True(t, types.FromInt(450, "INR").Equal(sum.NetBalance))

	var ds []report.Discrepancy
	status, _ = c.do(http.MethodGet, "/reconcile", nil, &ds)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, ds)
}

func TestBadQuery(t *testing.T) {
	c := newClient(t)

	status, msg := c.do(http.MethodGet, "/transactions?limit=-3", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid query parameter limit", msg)
}
