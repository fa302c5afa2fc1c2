// ABOUTME: Tests for routing operation calls through navigation and domain packs.
// ABOUTME: Uses a fake upstream API and a counting client factory.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/qbo"
)

// fakeAPI is bound to the credential it was built with and echoes it back.
type fakeAPI struct {
	cred credentials.Credential
}

func (f *fakeAPI) Get(_ context.Context, path string, _ url.Values) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"path": path, "realm": f.cred.RealmID})
}

func (f *fakeAPI) Post(context.Context, string, url.Values, json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeAPI) Query(context.Context, string) (json.RawMessage, error) { return nil, nil }

func (f *fakeAPI) QueryAll(context.Context, string, int) ([]json.RawMessage, error) { return nil, nil }

type routerFixture struct {
	router  *Router
	clients int
}

func newRouterFixture(t *testing.T, resolver credentials.Resolver) *routerFixture {
	t.Helper()

	reg := NewRegistry(slog.Default())
	for _, d := range navigation.Domains {
		prefix := "qbo_" + string(d) + "_"
		p := testPack(d, prefix, prefix+"list")
		p.Tools = append(p.Tools, &Tool{
			Definition: ToolDefinition{Name: prefix + "get", InputSchema: json.RawMessage(`{}`)},
			Handler: func(ctx context.Context, api qbo.API, args json.RawMessage) (json.RawMessage, error) {
				return api.Get(ctx, "/thing/1", nil)
			},
		})
		p.Tools = append(p.Tools, &Tool{
			Definition: ToolDefinition{Name: prefix + "fail", InputSchema: json.RawMessage(`{}`)},
			Handler: func(context.Context, qbo.API, json.RawMessage) (json.RawMessage, error) {
				return nil, &qbo.UpstreamError{Method: http.MethodGet, Path: "/thing/1", Status: 404, Body: "missing"}
			},
		})
		require.NoError(t, reg.RegisterPack(p))
	}

	fx := &routerFixture{}
	router, err := NewRouter(RouterConfig{
		Registry: reg,
		Resolver: resolver,
		NewClient: func(cred credentials.Credential) (qbo.API, error) {
			fx.clients++
			return &fakeAPI{cred: cred}, nil
		},
		Logger: slog.Default(),
	})
	require.NoError(t, err)
	fx.router = router
	return fx
}

func fixedResolver() credentials.Resolver {
	return credentials.NewFixedResolver(func() (credentials.Credential, error) {
		return credentials.Credential{AccessToken: "tok", RealmID: "realm-1"}, nil
	})
}

func toolNames(defs []ToolDefinition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

func TestNewRouter_RequiresCollaborators(t *testing.T) {
	_, err := NewRouter(RouterConfig{})
	assert.Error(t, err)
	_, err = NewRouter(RouterConfig{Registry: NewRegistry(nil)})
	assert.Error(t, err)
	_, err = NewRouter(RouterConfig{Registry: NewRegistry(nil), Resolver: fixedResolver()})
	assert.Error(t, err)
}

func TestRouter_ListingFollowsNavigation(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())
	state := navigation.New()

	assert.Equal(t, []string{navigation.SelectToolName}, toolNames(fx.router.ListTools(state)))

	_, err := fx.router.Call(context.Background(), state, navigation.SelectToolName, json.RawMessage(`{"domain":"invoices"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{navigation.BackToolName, "qbo_invoices_list", "qbo_invoices_get", "qbo_invoices_fail"},
		toolNames(fx.router.ListTools(state)))

	_, err = fx.router.Call(context.Background(), state, navigation.SelectToolName, json.RawMessage(`{"domain":"payments"}`))
	require.NoError(t, err)
	listed := toolNames(fx.router.ListTools(state))
	assert.Contains(t, listed, "qbo_payments_list")
	assert.NotContains(t, listed, "qbo_invoices_list")

	resp, err := fx.router.Call(context.Background(), state, navigation.BackToolName, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Text, navigation.SelectToolName)
	assert.Equal(t, []string{navigation.SelectToolName}, toolNames(fx.router.ListTools(state)))

	resp, err = fx.router.Call(context.Background(), state, navigation.BackToolName, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Already")
	assert.Equal(t, []string{navigation.SelectToolName}, toolNames(fx.router.ListTools(state)))
}

func TestRouter_SelectConfirmationNamesOperations(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())
	resp, err := fx.router.Call(context.Background(), navigation.New(), navigation.SelectToolName, json.RawMessage(`{"domain":"reports"}`))
	require.NoError(t, err)
	assert.Equal(t, navigation.Reports, resp.Domain)
	assert.Contains(t, resp.Text, `"reports"`)
	assert.Contains(t, resp.Text, "qbo_reports_list")
	assert.Contains(t, resp.Text, navigation.BackToolName)
}

func TestRouter_SelectValidatesDomain(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())
	state := navigation.New()

	var invalid *InvalidArgumentsError
	_, err := fx.router.Call(context.Background(), state, navigation.SelectToolName, json.RawMessage(`{}`))
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "domain", invalid.Field)

	_, err = fx.router.Call(context.Background(), state, navigation.SelectToolName, json.RawMessage(`{"domain":"payroll"}`))
	require.ErrorAs(t, err, &invalid)

	_, err = fx.router.Call(context.Background(), state, navigation.SelectToolName, json.RawMessage(`{"domain":7}`))
	require.ErrorAs(t, err, &invalid)

	assert.Equal(t, navigation.Root, state.Current())
}

func TestRouter_UnknownOperation(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())

	for _, name := range []string{"qbo_vendors_list", "qbo_invoices_delete", "", "select"} {
		_, err := fx.router.Call(context.Background(), navigation.New(), name, nil)
		var unknown *UnknownOperationError
		require.ErrorAs(t, err, &unknown, name)
		assert.Equal(t, name, unknown.Name)
	}
	assert.Zero(t, fx.clients)
}

func TestRouter_DomainCallWithoutNavigating(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())
	state := navigation.New()

	resp, err := fx.router.Call(context.Background(), state, "qbo_customers_get", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/thing/1","realm":"realm-1"}`, resp.Text)
	assert.Equal(t, navigation.Customers, resp.Domain)
	assert.Equal(t, credentials.Fingerprint("realm-1"), resp.Tenant)
	assert.Equal(t, navigation.Root, state.Current(), "domain calls never move navigation")
}

func TestRouter_EachCallBuildsItsOwnClient(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())
	for i := 0; i < 3; i++ {
		_, err := fx.router.Call(context.Background(), navigation.New(), "qbo_payments_get", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fx.clients)
}

func TestRouter_MissingCredentialsSkipsUpstream(t *testing.T) {
	fx := newRouterFixture(t, credentials.NewHeaderResolver())

	h := http.Header{}
	h.Set(credentials.HeaderRealmID, "realm-9")
	ctx := credentials.WithHeaders(context.Background(), h)

	resp, err := fx.router.Call(ctx, navigation.New(), "qbo_invoices_get", nil)
	var missing *credentials.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{credentials.HeaderAccessToken}, missing.Fields)
	assert.Equal(t, navigation.Invoices, resp.Domain)
	assert.Zero(t, fx.clients)
}

func TestRouter_PerRequestCredentialsReachClient(t *testing.T) {
	fx := newRouterFixture(t, credentials.NewHeaderResolver())

	h := http.Header{}
	h.Set(credentials.HeaderAccessToken, "tok-b")
	h.Set(credentials.HeaderRealmID, "realm-b")
	ctx := credentials.WithHeaders(context.Background(), h)

	resp, err := fx.router.Call(ctx, navigation.New(), "qbo_expenses_get", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/thing/1","realm":"realm-b"}`, resp.Text)
}

func TestRouter_RejectsNonObjectArguments(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())

	_, err := fx.router.Call(context.Background(), navigation.New(), "qbo_customers_list", json.RawMessage(`[1,2]`))
	var invalid *InvalidArgumentsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "arguments", invalid.Field)
	assert.Zero(t, fx.clients)
}

func TestRouter_HandlerErrorsPassThrough(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())

	_, err := fx.router.Call(context.Background(), navigation.New(), "qbo_reports_fail", nil)
	var upstream *qbo.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 404, upstream.Status)
}

func TestRouter_ClientFactoryFailure(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterPack(testPack(navigation.Customers, "qbo_customers_", "qbo_customers_list")))
	router, err := NewRouter(RouterConfig{
		Registry: reg,
		Resolver: fixedResolver(),
		NewClient: func(credentials.Credential) (qbo.API, error) {
			return nil, errors.New("bad template")
		},
	})
	require.NoError(t, err)

	_, err = router.Call(context.Background(), navigation.New(), "qbo_customers_list", nil)
	assert.ErrorContains(t, err, "bad template")
}

func TestRouter_NilResultSerializesAsNull(t *testing.T) {
	reg := NewRegistry(slog.Default())
	p := &Pack{Domain: navigation.Invoices, Prefix: "qbo_invoices_", Tools: []*Tool{{
		Definition: ToolDefinition{Name: "qbo_invoices_send"},
		Handler: func(context.Context, qbo.API, json.RawMessage) (json.RawMessage, error) {
			return nil, nil
		},
	}}}
	require.NoError(t, reg.RegisterPack(p))
	router, err := NewRouter(RouterConfig{
		Registry:  reg,
		Resolver:  fixedResolver(),
		NewClient: func(c credentials.Credential) (qbo.API, error) { return &fakeAPI{cred: c}, nil },
	})
	require.NoError(t, err)

	resp, err := router.Call(context.Background(), navigation.New(), "qbo_invoices_send", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", resp.Text)
}

func TestRouter_WriteCatalog(t *testing.T) {
	fx := newRouterFixture(t, fixedResolver())

	var sb strings.Builder
	require.NoError(t, fx.router.WriteCatalog(&sb))
	out := sb.String()

	assert.Contains(t, out, "### `qbo_select_domain`")
	assert.Contains(t, out, "| `domain` | string | yes |")
	assert.Contains(t, out, "## invoices")
	assert.Contains(t, out, "### `qbo_invoices_list`")
	assert.Less(t, strings.Index(out, "## customers"), strings.Index(out, "## reports"))
}
