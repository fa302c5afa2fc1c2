// ABOUTME: Invoices domain table, including the invoice send operation.
// ABOUTME: Status filters expand to balance and due-date conditions.

package domains

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/qbo"
)

var invoiceStatus = Status("status", "Payment status", []string{"Paid", "Unpaid", "Overdue"}, map[string]StatusRule{
	"Paid":    paidRule,
	"Unpaid":  unpaidRule,
	"Overdue": overdueRule,
})

// InvoicesTable declares the invoices domain.
func InvoicesTable() EntityTable {
	return EntityTable{
		Domain:  navigation.Invoices,
		Prefix:  "qbo_invoices_",
		Summary: "invoices and invoice delivery",
		Operations: []Operation{
			List("list", "Invoice", "List invoices",
				invoiceStatus,
				Equals("customer_id", "CustomerRef", "Only invoices for this customer id"),
				DateFrom("start_date", "TxnDate"),
				DateTo("end_date", "TxnDate"),
			),
			Get("Invoice", "Get an invoice by id"),
			Create("Invoice", "Create an invoice; fields are passed through as the Invoice body",
				Param{Name: "CustomerRef", Type: TypeObject, Description: `Customer reference, e.g. {"value": "1"}`},
				Param{Name: "Line", Type: TypeArray, Description: "Invoice line items"},
			),
			sendInvoice(),
		},
	}
}

func sendInvoice() Operation {
	return Operation{
		Name:    "send",
		Summary: "Email an invoice to the customer or to the given address",
		Params: []Param{
			{Name: "id", Type: TypeString, Required: true, Description: "Invoice id"},
			{Name: "email", Type: TypeString, Rules: "email", Description: "Recipient address; defaults to the invoice's BillEmail"},
		},
		Run: func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error) {
			var q url.Values
			if email := call.Args.String("email"); email != "" {
				q = url.Values{"sendTo": {email}}
			}
			return api.Post(ctx, EntityPath("Invoice", call.Args.String("id"), "send"), q, nil)
		},
	}
}
