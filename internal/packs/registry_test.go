// ABOUTME: Tests for pack registration and prefix-based lookup.
// ABOUTME: Covers prefix disjointness, collisions, and declaration-order listing.

package packs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/qbo"
)

func echoHandler(ctx context.Context, api qbo.API, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func testPack(d navigation.Domain, prefix string, names ...string) *Pack {
	p := &Pack{Domain: d, Prefix: prefix, Summary: "test " + string(d)}
	for _, n := range names {
		p.Tools = append(p.Tools, &Tool{
			Definition: ToolDefinition{Name: n, Description: n, InputSchema: json.RawMessage(`{"type":"object"}`)},
			Handler:    echoHandler,
		})
	}
	return p
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterPack(testPack(navigation.Invoices, "qbo_invoices_", "qbo_invoices_list", "qbo_invoices_get")))
	require.NoError(t, r.RegisterPack(testPack(navigation.Customers, "qbo_customers_", "qbo_customers_list")))

	tool, pack := r.Tool("qbo_invoices_get")
	require.NotNil(t, tool)
	assert.Equal(t, navigation.Invoices, pack.Domain)

	tool, pack = r.Tool("qbo_invoices_delete")
	assert.Nil(t, tool)
	assert.NotNil(t, pack, "prefix still identifies the owning pack")

	tool, pack = r.Tool("qbo_vendors_list")
	assert.Nil(t, tool)
	assert.Nil(t, pack)

	assert.Equal(t, []string{"qbo_invoices_list", "qbo_invoices_get"}, r.ToolNames(navigation.Invoices))
	assert.Equal(t, []navigation.Domain{navigation.Invoices, navigation.Customers}, r.Domains())
	assert.Equal(t, 3, r.ToolCount())
	assert.Len(t, r.Definitions(navigation.Customers), 1)
	assert.Nil(t, r.Definitions(navigation.Reports))
}

func TestRegistry_RejectsOverlappingPrefixes(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterPack(testPack(navigation.Invoices, "qbo_inv_", "qbo_inv_list")))

	err := r.RegisterPack(testPack(navigation.Customers, "qbo_inv_cust_", "qbo_inv_cust_list"))
	assert.ErrorIs(t, err, ErrPrefixOverlap)

	err = r.RegisterPack(testPack(navigation.Customers, "qbo_", "qbo_list"))
	assert.ErrorIs(t, err, ErrPrefixOverlap)
}

func TestRegistry_RejectsPrefixCoveringNavigation(t *testing.T) {
	r := NewRegistry(slog.Default())
	err := r.RegisterPack(testPack(navigation.Reports, "qbo_b", "qbo_balance"))
	assert.ErrorIs(t, err, ErrPrefixOverlap)
}

func TestRegistry_RejectsBadTools(t *testing.T) {
	r := NewRegistry(slog.Default())

	err := r.RegisterPack(testPack(navigation.Payments, "qbo_payments_", "qbo_pay_list"))
	assert.ErrorIs(t, err, ErrToolOutsidePrefix)

	err = r.RegisterPack(testPack(navigation.Payments, "qbo_payments_", "qbo_payments_"))
	assert.ErrorIs(t, err, ErrToolOutsidePrefix)

	err = r.RegisterPack(testPack(navigation.Payments, "qbo_payments_", "qbo_payments_get", "qbo_payments_get"))
	assert.ErrorIs(t, err, ErrToolCollision)

	assert.Empty(t, r.Domains(), "failed registrations leave nothing behind")
}

func TestRegistry_RejectsDuplicateDomainAndUnknownDomain(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.RegisterPack(testPack(navigation.Expenses, "qbo_expenses_", "qbo_expenses_list")))

	err := r.RegisterPack(testPack(navigation.Expenses, "qbo_costs_", "qbo_costs_list"))
	assert.ErrorIs(t, err, ErrPackAlreadyRegistered)

	err = r.RegisterPack(testPack("payroll", "qbo_payroll_", "qbo_payroll_list"))
	assert.Error(t, err)
}
