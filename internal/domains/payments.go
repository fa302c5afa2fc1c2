// ABOUTME: Payments domain table.

package domains

import "github.com/2389/qbo-gateway/internal/navigation"

// PaymentsTable declares the payments domain.
func PaymentsTable() EntityTable {
	return EntityTable{
		Domain:  navigation.Payments,
		Prefix:  "qbo_payments_",
		Summary: "customer payments",
		Operations: []Operation{
			List("list", "Payment", "List customer payments",
				Equals("customer_id", "CustomerRef", "Only payments from this customer id"),
				DateFrom("start_date", "TxnDate"),
				DateTo("end_date", "TxnDate"),
			),
			Get("Payment", "Get a payment by id"),
			Create("Payment", "Record a payment; fields are passed through as the Payment body",
				Param{Name: "CustomerRef", Type: TypeObject, Description: "Paying customer reference"},
				Param{Name: "TotalAmt", Type: TypeNumber, Description: "Payment amount"},
			),
		},
	}
}
