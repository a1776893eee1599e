package services

import (
	"bytes"
	"fmt"
	"html/template"

	"PosPrint/app/models"
)

var receiptFuncs = template.FuncMap{
	"label": itemLabel,
}

const receiptStyle = `
<style>
@page { size: {{.Paper}} auto; margin: 0; }
body { width: {{.Paper}}; margin: 0; padding: 2mm; font-family: monospace; font-size: 12px; color: #000; }
h1 { font-size: 20px; text-align: center; margin: 2px 0; }
.center { text-align: center; }
.ident { border: 2px solid #000; font-size: 22px; font-weight: bold; text-align: center; padding: 4px; margin: 4px 0; }
table { width: 100%; border-collapse: collapse; }
td.r { text-align: right; white-space: nowrap; }
.note { padding-left: 12px; font-style: italic; }
.total td { font-weight: bold; border-top: 1px dashed #000; }
hr { border: 0; border-top: 1px dashed #000; }
</style>`

var kitchenTemplate = template.Must(template.New("kot").Funcs(receiptFuncs).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>KOT</title>` + receiptStyle + `</head><body>
<h1>{{if .T.Header}}{{.T.Header}}{{else}}KITCHEN ORDER{{end}}</h1>
{{if .T.TicketNumber}}<div class="center"><b>KOT #{{.T.TicketNumber}}</b></div>{{end}}
{{if .T.TableNumber}}<div class="ident">TABLE {{.T.TableNumber}}</div>{{end}}
{{if .T.TokenNumber}}<div class="ident">TOKEN {{.T.TokenNumber}}</div>{{end}}
{{if .T.Waiter}}<div>Waiter: {{.T.Waiter}}</div>{{end}}
<hr>
<table>
{{range .T.Items}}<tr><td><b>{{label .}}</b></td><td class="r">x{{.Quantity}}</td></tr>
{{if .Note}}<tr><td class="note" colspan="2">* {{.Note}}</td></tr>{{end}}{{end}}
</table>
{{if .T.Notes}}<hr><b>NOTES:</b><div>{{.T.Notes}}</div>{{end}}
</body></html>`))

var billTemplate = template.Must(template.New("bill").Funcs(receiptFuncs).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Bill</title>` + receiptStyle + `</head><body>
{{if .B.BusinessName}}<h1>{{.B.BusinessName}}</h1>{{end}}
{{if .B.Address}}<div class="center">{{.B.Address}}</div>{{end}}
{{if .B.Phone}}<div class="center">Tel: {{.B.Phone}}</div>{{end}}
{{if .B.BillNumber}}<div class="center"><b>BILL #{{.B.BillNumber}}</b></div>{{end}}
{{if .B.TableNumber}}<div class="ident">TABLE {{.B.TableNumber}}</div>{{end}}
{{if .B.TokenNumber}}<div class="ident">TOKEN {{.B.TokenNumber}}</div>{{end}}
{{if .B.CustomerName}}<div>Customer: {{.B.CustomerName}}</div>{{end}}
<hr>
<table>
{{range .Lines}}<tr><td>{{.Label}}</td><td class="r">{{.Amount}}</td></tr>
{{if .Note}}<tr><td class="note" colspan="2">* {{.Note}}</td></tr>{{end}}{{end}}
</table>
<hr>
<table>
{{range .Totals}}<tr><td>{{.Label}}</td><td class="r">{{.Amount}}</td></tr>{{end}}
<tr class="total"><td>TOTAL</td><td class="r">{{.Total}}</td></tr>
</table>
<p class="center">{{if .B.Footer}}{{.B.Footer}}{{else}}Thank you!{{end}}</p>
</body></html>`))

type htmlLine struct {
	Label  string
	Amount string
	Note   string
}

// KitchenTicketHTML renders the browser fallback for a kitchen ticket
func KitchenTicketHTML(p models.TicketPayload, paper models.PaperFormat) (RenderTarget, error) {
	var buf bytes.Buffer
	data := struct {
		T     models.TicketPayload
		Paper string
	}{p, fmt.Sprintf("%.0fmm", paper.WidthMM())}
	if err := kitchenTemplate.Execute(&buf, data); err != nil {
		return RenderTarget{}, fmt.Errorf("failed to execute template: %w", err)
	}
	title := "kot"
	if p.TicketNumber != "" {
		title = "kot_" + p.TicketNumber
	}
	return RenderTarget{Title: title, HTML: buf.String()}, nil
}

// BillHTML renders the browser fallback for a bill
func BillHTML(p models.BillPayload, paper models.PaperFormat, currency string) (RenderTarget, error) {
	money := func(v float64) string { return FormatMoney(currency, v) }

	lines := make([]htmlLine, 0, len(p.Items))
	for _, item := range p.Items {
		lines = append(lines, htmlLine{
			Label:  fmt.Sprintf("%dx %s", item.Quantity, itemLabel(item)),
			Amount: money(item.Amount()),
			Note:   item.Note,
		})
	}
	totals := []htmlLine{{Label: "Subtotal", Amount: money(p.Subtotal)}}
	for _, tax := range p.Taxes {
		totals = append(totals, htmlLine{Label: tax.Label, Amount: money(tax.Amount)})
	}
	if p.Discount != 0 {
		totals = append(totals, htmlLine{Label: "Discount", Amount: money(-p.Discount)})
	}

	var buf bytes.Buffer
	data := struct {
		B      models.BillPayload
		Paper  string
		Lines  []htmlLine
		Totals []htmlLine
		Total  string
	}{p, fmt.Sprintf("%.0fmm", paper.WidthMM()), lines, totals, money(p.Total)}
	if err := billTemplate.Execute(&buf, data); err != nil {
		return RenderTarget{}, fmt.Errorf("failed to execute template: %w", err)
	}
	title := "bill"
	if p.BillNumber != "" {
		title = "bill_" + p.BillNumber
	}
	return RenderTarget{Title: title, HTML: buf.String()}, nil
}
