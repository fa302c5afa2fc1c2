// ABOUTME: Tests for the generic domain engine: filters, argument validation and operation kinds.
// ABOUTME: Operations run against a recording fake of the upstream API.

package domains

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/qbo-gateway/internal/packs"
	"github.com/2389/qbo-gateway/internal/qbo"
)

type apiCall struct {
	Method   string
	Path     string
	Params   url.Values
	Body     json.RawMessage
	Query    string
	PageSize int
}

// recordingAPI records every call and answers with canned results.
type recordingAPI struct {
	mu    sync.Mutex
	calls []apiCall
	items []json.RawMessage
}

func (r *recordingAPI) record(c apiCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingAPI) last(t *testing.T) apiCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func (r *recordingAPI) Get(_ context.Context, path string, params url.Values) (json.RawMessage, error) {
	r.record(apiCall{Method: "GET", Path: path, Params: params})
	return json.RawMessage(`{"ok":true}`), nil
}

func (r *recordingAPI) Post(_ context.Context, path string, params url.Values, body json.RawMessage) (json.RawMessage, error) {
	r.record(apiCall{Method: "POST", Path: path, Params: params, Body: body})
	return json.RawMessage(`{"created":true}`), nil
}

func (r *recordingAPI) Query(_ context.Context, q string) (json.RawMessage, error) {
	r.record(apiCall{Method: "POST", Path: qbo.QueryPath, Query: q})
	return json.RawMessage(`{}`), nil
}

func (r *recordingAPI) QueryAll(_ context.Context, q string, pageSize int) ([]json.RawMessage, error) {
	r.record(apiCall{Method: "POST", Path: qbo.QueryPath, Query: q, PageSize: pageSize})
	if r.items == nil {
		return []json.RawMessage{}, nil
	}
	return r.items, nil
}

func findTool(t *testing.T, p *packs.Pack, name string) *packs.Tool {
	t.Helper()
	for _, tool := range p.Tools {
		if tool.Definition.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found in %s", name, p.Domain)
	return nil
}

func run(t *testing.T, p *packs.Pack, name, args string) (*recordingAPI, json.RawMessage, error) {
	t.Helper()
	api := &recordingAPI{}
	out, err := findTool(t, p, name).Handler(context.Background(), api, json.RawMessage(args))
	return api, out, err
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "2024-01-31", Escape("2024-01-31"))
	assert.Equal(t, "Acme42", Escape("Acme42"))
	assert.Equal(t, `O\'Brien`, Escape("O'Brien"))
	assert.Equal(t, `a\\b`, Escape(`a\b`))
	assert.Equal(t, `\\\'`, Escape(`\'`))
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "SELECT * FROM Customer", BuildQuery("Customer", nil))
	assert.Equal(t,
		"SELECT * FROM Invoice WHERE Balance > '0' AND TxnDate >= '2024-01-01'",
		BuildQuery("Invoice", []Condition{
			{Field: "Balance", Operator: ">", Value: "0"},
			{Field: "TxnDate", Operator: ">=", Value: "2024-01-01"},
		}))
}

func TestBuildQuery_EscapesInjection(t *testing.T) {
	q := BuildQuery("Customer", []Condition{{Field: "DisplayName", Operator: "LIKE", Value: "%x' OR Active = 'false%"}})
	assert.Equal(t, `SELECT * FROM Customer WHERE DisplayName LIKE '%x\' OR Active = \'false%'`, q)
}

func TestParseArgs_Validation(t *testing.T) {
	params := []Param{
		{Name: "id", Type: TypeString, Required: true},
		{Name: "start_date", Type: TypeString, Date: true},
		{Name: "status", Type: TypeString, Enum: []string{"Paid", "Unpaid"}},
		{Name: "page_size", Type: TypeInteger},
		{Name: "active", Type: TypeBoolean},
		{Name: "Line", Type: TypeArray},
		{Name: "Ref", Type: TypeObject},
	}

	tests := []struct {
		name  string
		args  string
		field string
	}{
		{"missing required", `{}`, "id"},
		{"null required", `{"id":null}`, "id"},
		{"blank required", `{"id":"  "}`, "id"},
		{"wrong type", `{"id":5}`, "id"},
		{"bad date", `{"id":"1","start_date":"01/02/2024"}`, "start_date"},
		{"impossible date", `{"id":"1","start_date":"2024-02-30"}`, "start_date"},
		{"bad enum", `{"id":"1","status":"Overdue"}`, "status"},
		{"fractional integer", `{"id":"1","page_size":1.5}`, "page_size"},
		{"quoted integer", `{"id":"1","page_size":"5"}`, "page_size"},
		{"string boolean", `{"id":"1","active":"yes"}`, "active"},
		{"object for array", `{"id":"1","Line":{}}`, "Line"},
		{"array for object", `{"id":"1","Ref":[]}`, "Ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(json.RawMessage(tt.args), params)
			var invalid *packs.InvalidArgumentsError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}

	args, err := parseArgs(json.RawMessage(`{"id":" 7 ","start_date":"2024-02-29","status":"Paid","page_size":50,"active":true,"extra":1}`), params)
	require.NoError(t, err)
	assert.Equal(t, "7", args.String("id"))
	assert.Equal(t, 50, args.Int("page_size"))
	v, ok := args.Text("active")
	assert.True(t, ok)
	assert.Equal(t, "true", v)
	assert.True(t, args.Has("extra"))
}

func TestSchema(t *testing.T) {
	raw := schema([]Param{
		{Name: "id", Type: TypeString, Required: true, Description: "the id"},
		{Name: "start_date", Type: TypeString, Date: true},
		{Name: "status", Type: TypeString, Enum: []string{"Paid"}},
	}, false)

	var s struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"id"}, s.Required)
	assert.Equal(t, "date", s.Properties["start_date"]["format"])
	assert.Equal(t, []any{"Paid"}, s.Properties["status"]["enum"])
	assert.Equal(t, "the id", s.Properties["id"]["description"])
}

func TestListOperation_FiltersAndPageSize(t *testing.T) {
	p := Build(InvoicesTable(), Options{})

	api, out, err := run(t, p, "qbo_invoices_list", `{"customer_id":"42","start_date":"2024-01-01","end_date":"2024-03-31","page_size":250}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))

	call := api.last(t)
	assert.Equal(t,
		"SELECT * FROM Invoice WHERE CustomerRef = '42' AND TxnDate >= '2024-01-01' AND TxnDate <= '2024-03-31'",
		call.Query)
	assert.Equal(t, 250, call.PageSize)
}

func TestListOperation_NoFilters(t *testing.T) {
	p := Build(CustomersTable(), Options{})
	api, _, err := run(t, p, "qbo_customers_list", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM Customer", api.last(t).Query)
	assert.Zero(t, api.last(t).PageSize)
}

func TestListOperation_ReturnsItemsInOrder(t *testing.T) {
	p := Build(PaymentsTable(), Options{})
	api := &recordingAPI{items: []json.RawMessage{json.RawMessage(`{"Id":"1"}`), json.RawMessage(`{"Id":"2"}`)}}
	out, err := findTool(t, p, "qbo_payments_list").Handler(context.Background(), api, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Id":"1"},{"Id":"2"}]`, string(out))
}

func TestListOperation_InvalidDateMakesNoCall(t *testing.T) {
	p := Build(PaymentsTable(), Options{})
	api, _, err := run(t, p, "qbo_payments_list", `{"start_date":"yesterday"}`)
	var invalid *packs.InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "start_date", invalid.Field)
	assert.Empty(t, api.calls)
}

func TestSearchOperation(t *testing.T) {
	p := Build(CustomersTable(), Options{})

	api, _, err := run(t, p, "qbo_customers_search", `{"query":"Acme"}`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM Customer WHERE DisplayName LIKE '%Acme%'", api.last(t).Query)

	_, _, err = run(t, p, "qbo_customers_search", `{}`)
	var invalid *packs.InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "query", invalid.Field)
}

func TestFlagFilter(t *testing.T) {
	p := Build(ExpensesTable(), Options{})
	api, _, err := run(t, p, "qbo_expenses_list_vendors", `{"active":false}`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM Vendor WHERE Active = 'false'", api.last(t).Query)
}

func TestGetOperation(t *testing.T) {
	p := Build(CustomersTable(), Options{})

	api, out, err := run(t, p, "qbo_customers_get", `{"id":"58"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, "/customer/58", api.last(t).Path)

	api, _, err = run(t, p, "qbo_customers_get", `{"id":"a/b"}`)
	require.NoError(t, err)
	assert.Equal(t, "/customer/a%2Fb", api.last(t).Path)
}

func TestCreateOperation_ForwardsBody(t *testing.T) {
	p := Build(CustomersTable(), Options{})

	api, out, err := run(t, p, "qbo_customers_create", `{"DisplayName":"Acme","PrimaryEmailAddr":{"Address":"a@b.c"}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"created":true}`, string(out))

	call := api.last(t)
	assert.Equal(t, "/customer", call.Path)
	assert.JSONEq(t, `{"DisplayName":"Acme","PrimaryEmailAddr":{"Address":"a@b.c"}}`, string(call.Body))
}

func TestCreateOperation_RequiredFields(t *testing.T) {
	p := Build(InvoicesTable(), Options{})

	tests := []struct {
		args  string
		field string
	}{
		{`{"Line":[{"Amount":1}]}`, "CustomerRef"},
		{`{"CustomerRef":{"value":"1"}}`, "Line"},
		{`{"CustomerRef":{"value":"1"},"Line":[]}`, "Line"},
	}
	for _, tt := range tests {
		api, _, err := run(t, p, "qbo_invoices_create", tt.args)
		var invalid *packs.InvalidArgumentsError
		require.ErrorAs(t, err, &invalid, tt.args)
		assert.Equal(t, tt.field, invalid.Field)
		assert.Empty(t, api.calls)
	}
}

func TestInvoiceSend(t *testing.T) {
	p := Build(InvoicesTable(), Options{})

	api, _, err := run(t, p, "qbo_invoices_send", `{"id":"130","email":"billing@example.com"}`)
	require.NoError(t, err)
	call := api.last(t)
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "/invoice/130/send", call.Path)
	assert.Equal(t, "billing@example.com", call.Params.Get("sendTo"))
	assert.Nil(t, call.Body)

	api, _, err = run(t, p, "qbo_invoices_send", `{"id":"130"}`)
	require.NoError(t, err)
	assert.Nil(t, api.last(t).Params)
}

func TestInvoiceSend_RejectsMalformedEmail(t *testing.T) {
	p := Build(InvoicesTable(), Options{})

	api, _, err := run(t, p, "qbo_invoices_send", `{"id":"7","email":"not an email' OR x"}`)
	var invalid *packs.InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "email", invalid.Field)
	assert.Contains(t, invalid.Reason, "email")
	assert.Empty(t, api.calls)
}

func TestListOperation_PageSizeBounds(t *testing.T) {
	p := Build(InvoicesTable(), Options{})

	for _, args := range []string{`{"page_size":0}`, `{"page_size":1001}`, `{"page_size":"5"}`} {
		api, _, err := run(t, p, "qbo_invoices_list", args)
		var invalid *packs.InvalidArgumentsError
		require.ErrorAs(t, err, &invalid, args)
		assert.Equal(t, "page_size", invalid.Field, args)
		assert.Empty(t, api.calls, args)
	}

	api, _, err := run(t, p, "qbo_invoices_list", `{"page_size":5}`)
	require.NoError(t, err)
	assert.Equal(t, 5, api.last(t).PageSize)
}

func TestArgsInt(t *testing.T) {
	args := Args{"n": json.RawMessage(`42`), "quoted": json.RawMessage(`"42"`), "frac": json.RawMessage(`1.5`)}
	assert.Equal(t, 42, args.Int("n"))
	assert.Equal(t, 0, args.Int("quoted"))
	assert.Equal(t, 0, args.Int("frac"))
	assert.Equal(t, 0, args.Int("missing"))
}

func TestReportOperation(t *testing.T) {
	p := Build(ReportsTable(), Options{})

	api, out, err := run(t, p, "qbo_reports_profit_and_loss", `{"start_date":"2024-01-01","end_date":"2024-12-31","accounting_method":"Cash"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))

	call := api.last(t)
	assert.Equal(t, "/reports/ProfitAndLoss", call.Path)
	assert.Equal(t, "2024-01-01", call.Params.Get("start_date"))
	assert.Equal(t, "2024-12-31", call.Params.Get("end_date"))
	assert.Equal(t, "Cash", call.Params.Get("accounting_method"))

	api, _, err = run(t, p, "qbo_reports_aged_payables", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "/reports/AgedPayables", api.last(t).Path)
	assert.Empty(t, api.last(t).Params)

	_, _, err = run(t, p, "qbo_reports_cash_flow", `{"accounting_method":"Modified"}`)
	var invalid *packs.InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "accounting_method", invalid.Field)
}
