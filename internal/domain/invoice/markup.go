package invoice

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
)

var markupTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(inv *Invoice) string { return inv.Snapshot.IssuedAt.UTC().Format("02 Jan 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.InvoiceNumber}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #222; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 6px; border-bottom: 1px solid #ddd; text-align: left; }
td.num, th.num { text-align: right; }
.parties td { border: none; vertical-align: top; }
</style>
</head>
<body>
<h1>Invoice {{.InvoiceNumber}}</h1>
<p>Order {{.Snapshot.OrderShortID}} &middot; Issued {{date .}}</p>
<table class="parties">
<tr>
<td>
<strong>Seller</strong><br>
{{.Snapshot.Seller.Name}}<br>
{{with .Snapshot.Seller.Address}}{{.}}<br>{{end}}
{{with .Snapshot.Seller.Phone}}{{.}}<br>{{end}}
{{with .Snapshot.Seller.Email}}{{.}}<br>{{end}}
{{with .Snapshot.Seller.LicenseNo}}License {{.}}{{end}}
</td>
<td>
<strong>Bill to</strong><br>
{{.Snapshot.Buyer.Name}}<br>
{{with .Snapshot.Buyer.Address}}{{.}}<br>{{end}}
{{with .Snapshot.Buyer.Phone}}{{.}}<br>{{end}}
{{with .Snapshot.Buyer.Email}}{{.}}{{end}}
</td>
{{with .Snapshot.Doctor}}<td>
<strong>Prescribed by</strong><br>
{{.Name}}<br>
{{with .RegistrationNo}}Reg. {{.}}<br>{{end}}
{{with .Clinic}}{{.}}{{end}}
</td>{{end}}
</tr>
</table>
<table>
<thead><tr><th>Item</th><th class="num">Qty</th><th class="num">Unit price</th><th class="num">Amount</th></tr></thead>
<tbody>
{{range .Snapshot.Items}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .UnitPrice}}</td><td class="num">{{money .LineTotal}}</td></tr>
{{end}}</tbody>
<tfoot>
<tr><td colspan="3" class="num">Subtotal</td><td class="num">{{money .Snapshot.Subtotal}}</td></tr>
<tr><td colspan="3" class="num">Tax</td><td class="num">{{money .Snapshot.Tax}}</td></tr>
<tr><td colspan="3" class="num"><strong>Total ({{.Snapshot.Currency}})</strong></td><td class="num"><strong>{{money .Snapshot.GrandTotal}}</strong></td></tr>
</tfoot>
</table>
</body>
</html>
`))

// Markup renders the invoice as HTML for the document renderer.
func Markup(inv *Invoice) (string, error) {
	var buf bytes.Buffer
	if err := markupTmpl.Execute(&buf, inv); err != nil {
		return "", fmt.Errorf("render invoice markup: %w", err)
	}
	return buf.String(), nil
}
