package order

import "github.com/shopspring/decimal"

// ComputeTotal sums price × quantity over approved, priced items. It is the
// only source of an order's total_amount.
func ComputeTotal(items []*Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.Status != ItemApproved || it.Price == nil {
			continue
		}
		total = total.Add(it.LineTotal())
	}
	return total.Round(2)
}
