// ABOUTME: Reports domain table. Report payloads are passed through as returned.

package domains

import "github.com/2389/qbo-gateway/internal/navigation"

// ReportsTable declares the reports domain.
func ReportsTable() EntityTable {
	return EntityTable{
		Domain:  navigation.Reports,
		Prefix:  "qbo_reports_",
		Summary: "financial reports",
		Operations: []Operation{
			Report("profit_and_loss", "ProfitAndLoss", "Profit and loss statement"),
			Report("balance_sheet", "BalanceSheet", "Balance sheet"),
			Report("cash_flow", "CashFlow", "Statement of cash flows"),
			Report("aged_receivables", "AgedReceivables", "Aged receivables summary"),
			Report("aged_payables", "AgedPayables", "Aged payables summary"),
		},
	}
}
