// ABOUTME: Expenses domain table covering purchases, bills and vendors.

package domains

import "github.com/2389/qbo-gateway/internal/navigation"

var billStatus = Status("status", "Payment status", []string{"Paid", "Unpaid"}, map[string]StatusRule{
	"Paid":   paidRule,
	"Unpaid": unpaidRule,
})

// ExpensesTable declares the expenses domain.
func ExpensesTable() EntityTable {
	return EntityTable{
		Domain:  navigation.Expenses,
		Prefix:  "qbo_expenses_",
		Summary: "purchases, bills and vendors",
		Operations: []Operation{
			List("list", "Purchase", "List expense purchases",
				DateFrom("start_date", "TxnDate"),
				DateTo("end_date", "TxnDate"),
				OneOf("payment_type", "PaymentType", "Payment method", "Cash", "Check", "CreditCard"),
			),
			Get("Purchase", "Get an expense purchase by id"),
			Create("Purchase", "Record an expense; fields are passed through as the Purchase body",
				Param{Name: "PaymentType", Type: TypeString, Enum: []string{"Cash", "Check", "CreditCard"}, Description: "Payment method"},
				Param{Name: "AccountRef", Type: TypeObject, Description: "Paying account reference"},
				Param{Name: "Line", Type: TypeArray, Description: "Expense line items"},
			),
			List("list_bills", "Bill", "List vendor bills",
				billStatus,
				Equals("vendor_id", "VendorRef", "Only bills from this vendor id"),
			),
			List("list_vendors", "Vendor", "List vendors",
				Flag("active", "Active", "Only active (true) or inactive (false) vendors"),
			),
		},
	}
}
