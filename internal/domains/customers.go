// ABOUTME: Customers domain table.
// ABOUTME: Listing, name search, lookup and creation of Customer records.

package domains

import "github.com/2389/qbo-gateway/internal/navigation"

// CustomersTable declares the customers domain.
func CustomersTable() EntityTable {
	return EntityTable{
		Domain:  navigation.Customers,
		Prefix:  "qbo_customers_",
		Summary: "customer records",
		Operations: []Operation{
			List("list", "Customer", "List customers",
				Flag("active", "Active", "Only active (true) or inactive (false) customers"),
			),
			Search("search", "Customer", "DisplayName", "Search customers by display name"),
			Get("Customer", "Get a customer by id"),
			Create("Customer", "Create a customer; fields are passed through as the Customer body",
				Param{Name: "DisplayName", Type: TypeString, Description: "Unique display name"},
			),
		},
	}
}
