// ABOUTME: The set of accounting domains the gateway serves and their registration.

package domains

import (
	"fmt"

	"github.com/2389/qbo-gateway/internal/packs"
)

// Tables returns every domain table in menu order.
func Tables() []EntityTable {
	return []EntityTable{
		CustomersTable(),
		InvoicesTable(),
		ExpensesTable(),
		PaymentsTable(),
		ReportsTable(),
	}
}

// Packs builds a pack for every domain table.
func Packs(opts Options) []*packs.Pack {
	tables := Tables()
	out := make([]*packs.Pack, len(tables))
	for i, t := range tables {
		out[i] = Build(t, opts)
	}
	return out
}

// Register adds every domain pack to reg.
func Register(reg *packs.Registry, opts Options) error {
	for _, p := range Packs(opts) {
		if err := reg.RegisterPack(p); err != nil {
			return fmt.Errorf("registering %s: %w", p.Domain, err)
		}
	}
	return nil
}
