// ABOUTME: Tests for the navigation state machine and listing rule.
// ABOUTME: Covers select/back transitions and idempotent back at Root.

package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opsOf(d Domain) []string {
	return []string{"qbo_" + string(d) + "_list", "qbo_" + string(d) + "_get"}
}

func TestState_StartsAtRoot(t *testing.T) {
	s := New()
	assert.Equal(t, Root, s.Current())
	assert.Equal(t, []string{SelectToolName}, Listing(s.Current(), opsOf))
}

func TestState_SelectThenSelectShowsOnlyLatestDomain(t *testing.T) {
	for _, d1 := range Domains {
		for _, d2 := range Domains {
			s := New()
			require.NoError(t, s.Select(d1))
			require.NoError(t, s.Select(d2))

			got := Listing(s.Current(), opsOf)
			want := append([]string{BackToolName}, opsOf(d2)...)
			assert.Equal(t, want, got, "select(%s) then select(%s)", d1, d2)
			if d1 != d2 {
				for _, op := range opsOf(d1) {
					assert.NotContains(t, got, op)
				}
			}
		}
	}
}

func TestState_BackAtRootIsIdempotent(t *testing.T) {
	s := New()
	assert.False(t, s.Back())
	assert.False(t, s.Back())
	assert.Equal(t, []string{SelectToolName}, Listing(s.Current(), opsOf))
}

func TestState_BackLeavesDomain(t *testing.T) {
	s := New()
	require.NoError(t, s.Select(Invoices))
	assert.True(t, s.Back())
	assert.Equal(t, Root, s.Current())
}

func TestState_SelectStoresCanonicalDomain(t *testing.T) {
	s := New()
	require.NoError(t, s.Select(" Invoices "))
	assert.Equal(t, Invoices, s.Current())
	assert.Equal(t, []string{BackToolName, "qbo_invoices_list", "qbo_invoices_get"}, Listing(s.Current(), opsOf))
}

func TestState_SelectRejectsUnknownDomain(t *testing.T) {
	s := New()
	require.NoError(t, s.Select(Payments))

	assert.Error(t, s.Select("payroll"))
	assert.Error(t, s.Select(Root))
	assert.Equal(t, Payments, s.Current(), "failed select must not move the state")
}

func TestParseDomain(t *testing.T) {
	d, err := ParseDomain(" Invoices ")
	require.NoError(t, err)
	assert.Equal(t, Invoices, d)

	_, err = ParseDomain("")
	assert.Error(t, err)
}

func TestListing_DoesNotAliasDomainSlice(t *testing.T) {
	shared := make([]string, 1, 4)
	shared[0] = "qbo_reports_balance_sheet"
	ops := func(Domain) []string { return shared }

	first := Listing(Reports, ops)
	first[1] = "mutated"
	assert.Equal(t, "qbo_reports_balance_sheet", shared[0])
}
