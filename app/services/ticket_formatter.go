package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
)

// ErrEmptyTicket is returned when a ticket or bill has no items
var ErrEmptyTicket = errors.New("ticket has no items")

const timeLayout = "2006-01-02 15:04"

// FormatMoney renders an amount with the caller's currency symbol and two
// decimals. Negative amounts get a leading minus before the symbol.
func FormatMoney(currency string, amount float64) string {
	if amount < 0 {
		return "-" + currency + fmt.Sprintf("%.2f", math.Abs(amount))
	}
	return currency + fmt.Sprintf("%.2f", amount)
}

// itemLabel is the item name with the portion in parentheses when it is
// not the default portion
func itemLabel(item models.LineItem) string {
	if item.HasCustomPortion() {
		return fmt.Sprintf("%s (%s)", item.Name, item.Portion)
	}
	return item.Name
}

// writeIdentifier prints the table/token block enlarged, bold and boxed
// between solid rules. The caller must have selected center alignment.
func writeIdentifier(e *escpos.Encoder, table, token string) {
	if table == "" && token == "" {
		return
	}
	e.SolidSeparator()
	e.Bold(true).Size(2, 2)
	if table != "" {
		e.LineWidth("TABLE "+table, e.Width()/2)
	}
	if token != "" {
		e.LineWidth("TOKEN "+token, e.Width()/2)
	}
	e.Size(1, 1).Bold(false)
	e.SolidSeparator()
}

func writeNote(e *escpos.Encoder, note string) {
	if strings.TrimSpace(note) == "" {
		return
	}
	e.Line("  * " + note)
}

// FormatKitchenTicket builds a kitchen order ticket: quantities only, no prices
func FormatKitchenTicket(p models.TicketPayload, paper models.PaperFormat) ([]byte, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyTicket
	}

	e := escpos.NewEncoder(paper)
	e.Init().Align(escpos.AlignCenter)

	header := p.Header
	if header == "" {
		header = "KITCHEN ORDER"
	}
	e.Bold(true).Size(2, 2)
	e.LineWidth(header, e.Width()/2)
	e.Size(1, 1).Bold(false)

	if p.TicketNumber != "" {
		e.Bold(true).Line("KOT #" + p.TicketNumber).Bold(false)
	}
	if !p.CreatedAt.IsZero() {
		e.Line(p.CreatedAt.Format(timeLayout))
	}

	writeIdentifier(e, p.TableNumber, p.TokenNumber)

	e.Align(escpos.AlignLeft)
	if p.Waiter != "" {
		e.Line("Waiter: " + p.Waiter)
	}
	e.Separator()
	e.Bold(true).Columns("ITEM", "QTY").Bold(false)
	e.Separator()

	for _, item := range p.Items {
		e.Bold(true).Columns(itemLabel(item), fmt.Sprintf("x%d", item.Quantity)).Bold(false)
		writeNote(e, item.Note)
	}

	if p.Notes != "" {
		e.Separator()
		e.Bold(true).Line("NOTES:").Bold(false)
		e.Line(p.Notes)
	}

	e.Separator()
	e.Feed(3).PartialCut()
	return e.Build(), nil
}

// FormatBill builds a customer bill. Amounts are printed as given; nothing
// is recomputed here.
func FormatBill(p models.BillPayload, paper models.PaperFormat, currency string) ([]byte, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyTicket
	}
	money := func(v float64) string { return FormatMoney(currency, v) }

	e := escpos.NewEncoder(paper)
	e.Init().Align(escpos.AlignCenter)

	if p.Logo != "" {
		// A broken logo never blocks the bill
		if img, err := escpos.DecodeBase64Image(p.Logo); err == nil {
			if block, err := escpos.RasterImage(escpos.ScaleToWidth(img, paper.Dots()*2/3)); err == nil {
				e.Raw(block).Feed(1)
			}
		}
	}

	if p.BusinessName != "" {
		e.Bold(true).Size(2, 2)
		e.LineWidth(p.BusinessName, e.Width()/2)
		e.Size(1, 1).Bold(false)
	}
	if p.Address != "" {
		e.Line(p.Address)
	}
	if p.Phone != "" {
		e.Line("Tel: " + p.Phone)
	}
	if p.TaxID != "" {
		e.Line("Tax ID: " + p.TaxID)
	}

	e.SolidSeparator()
	if p.BillNumber != "" {
		e.Bold(true).Line("BILL #" + p.BillNumber).Bold(false)
	}
	if !p.CreatedAt.IsZero() {
		e.Line(p.CreatedAt.Format(timeLayout))
	}

	writeIdentifier(e, p.TableNumber, p.TokenNumber)

	e.Align(escpos.AlignLeft)
	if p.CustomerName != "" {
		e.Line("Customer: " + p.CustomerName)
	}
	if p.CustomerPhone != "" {
		e.Line("Phone: " + p.CustomerPhone)
	}

	e.Separator()
	e.Bold(true).Columns("ITEM", "AMOUNT").Bold(false)
	e.Separator()
	for _, item := range p.Items {
		e.Columns(fmt.Sprintf("%dx %s", item.Quantity, itemLabel(item)), money(item.Amount()))
		writeNote(e, item.Note)
	}

	e.Separator()
	e.Columns("Subtotal", money(p.Subtotal))
	for _, tax := range p.Taxes {
		e.Columns(tax.Label, money(tax.Amount))
	}
	if p.Discount != 0 {
		e.Columns("Discount", money(-math.Abs(p.Discount)))
	}
	e.SolidSeparator()
	e.Bold(true).Columns("TOTAL", money(p.Total)).Bold(false)
	if p.PaymentMethod != "" {
		e.Columns("Paid by", strings.ToUpper(p.PaymentMethod))
	}
	if p.LoyaltyPoints > 0 {
		e.Columns("Loyalty points", fmt.Sprintf("%d", p.LoyaltyPoints))
	}

	e.Align(escpos.AlignCenter)
	if p.QRData != "" {
		img, err := escpos.QRImage(p.QRData, qrSize(paper))
		if err != nil {
			return nil, err
		}
		block, err := escpos.RasterImage(img)
		if err != nil {
			return nil, err
		}
		e.Feed(1).Raw(block)
	}

	footer := p.Footer
	if footer == "" {
		footer = "Thank you!"
	}
	e.Feed(1).Line(footer)
	e.Feed(3).PartialCut()
	return e.Build(), nil
}

func qrSize(paper models.PaperFormat) int {
	if paper == models.Paper58mm {
		return 192
	}
	return 256
}

// FormatTestPage builds the fixed diagnostic page used to check connectivity
func FormatTestPage(desc models.PrinterDescriptor) []byte {
	e := escpos.NewEncoder(desc.PaperFormat)
	e.Init().Align(escpos.AlignCenter)
	e.Bold(true).Size(2, 2).LineWidth("TEST PRINT", e.Width()/2).Size(1, 1).Bold(false)
	e.SolidSeparator()
	e.Align(escpos.AlignLeft)
	e.Columns("Printer", desc.Name)
	e.Columns("Role", string(desc.Role))
	e.Columns("Transport", string(desc.Transport))
	e.Columns("Paper", fmt.Sprintf("%s / %d cols", desc.PaperFormat, e.Width()))
	e.Separator()
	e.Line("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	e.Line("abcdefghijklmnopqrstuvwxyz")
	e.Line("0123456789 !\"#$%&'()*+,-./:;<=>?@")
	e.Line("Cafe Nino Senor")
	e.Bold(true).Line("Bold text").Bold(false)
	e.Size(2, 1).LineWidth("Double width", e.Width()/2).Size(1, 1)
	e.Separator()
	e.Feed(3).PartialCut()
	return e.Build()
}

// DrawerPulse returns the cash drawer command for a paper format
func DrawerPulse(paper models.PaperFormat) []byte {
	return escpos.NewEncoder(paper).CashDrawer().Build()
}
