package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
)

var partialCut = []byte{0x1D, 0x56, 0x42, 0x00}

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		currency string
		amount   float64
		want     string
	}{
		{"$", 10, "$10.00"},
		{"Rs.", 1234.5, "Rs.1234.50"},
		{"€", 0.5, "€0.50"},
		{"$", -3.2, "-$3.20"},
	}
	for _, tc := range cases {
		if got := FormatMoney(tc.currency, tc.amount); got != tc.want {
			t.Fatalf("FormatMoney(%q, %v) = %q, want %q", tc.currency, tc.amount, got, tc.want)
		}
	}
}

func TestFormatKitchenTicketLayout(t *testing.T) {
	p := models.TicketPayload{
		TableNumber:  "T1",
		TicketNumber: "07",
		Items: []models.LineItem{
			{Name: "Burger", Quantity: 2, Portion: "half", Note: "no onions"},
			{Name: "Fries", Quantity: 1, Portion: "full"},
		},
		CreatedAt: time.Date(2026, 10, 19, 13, 45, 0, 0, time.Local),
	}
	out, err := FormatKitchenTicket(p, models.Paper58mm)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	mustContain := []string{
		"KOT #07",
		"2026-10-19 13:45",
		"TABLE T1",
		escpos.TwoColumns("Burger (half)", "x2", 32) + "\n",
		escpos.TwoColumns("Fries", "x1", 32) + "\n",
		"  * no onions\n",
	}
	for _, s := range mustContain {
		if !bytes.Contains(out, []byte(s)) {
			t.Fatalf("ticket missing %q", s)
		}
	}
	if bytes.Contains(out, []byte("Fries (full)")) {
		t.Fatalf("default portion should not be printed")
	}

	// note sits directly beneath its item
	item := bytes.Index(out, []byte(escpos.TwoColumns("Burger (half)", "x2", 32)))
	note := bytes.Index(out, []byte("  * no onions"))
	next := bytes.Index(out, []byte(escpos.TwoColumns("Fries", "x1", 32)))
	if !(item < note && note < next) {
		t.Fatalf("note is not beneath its item: item=%d note=%d next=%d", item, note, next)
	}

	// table block is double size and bold
	if !bytes.Contains(out, []byte{0x1B, 0x45, 0x01, 0x1D, 0x21, 0x11, 'T', 'A', 'B', 'L', 'E'}) {
		t.Fatalf("table block is not enlarged and bold")
	}

	if !bytes.HasPrefix(out, []byte{0x1B, 0x40}) {
		t.Fatalf("ticket must start with a reset")
	}
	if !bytes.HasSuffix(out, partialCut) {
		t.Fatalf("ticket must end with a cut")
	}
	if bytes.Contains(out, []byte("$")) {
		t.Fatalf("kitchen ticket must not print prices")
	}
}

func TestFormatKitchenTicketEmpty(t *testing.T) {
	if _, err := FormatKitchenTicket(models.TicketPayload{}, models.Paper80mm); !errors.Is(err, ErrEmptyTicket) {
		t.Fatalf("err = %v, want ErrEmptyTicket", err)
	}
}

func TestFormatBillLayout(t *testing.T) {
	p := models.BillPayload{
		BusinessName: "Cafe Central",
		BillNumber:   "B-000042",
		TokenNumber:  "12",
		Items: []models.LineItem{
			{Name: "Burger", Quantity: 2, UnitPrice: 5},
			{Name: "Lassi", Quantity: 1, UnitPrice: 2.5, Portion: "large", Note: "less sugar"},
		},
		Subtotal:      12.5,
		Taxes:         []models.TaxLine{{Label: "GST 5%", Amount: 0.63}},
		Discount:      1,
		Total:         12.13,
		PaymentMethod: "cash",
		LoyaltyPoints: 12,
		QRData:        "upi://pay?pa=cafe@bank&am=12.13",
	}
	out, err := FormatBill(p, models.Paper80mm, "$")
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	mustContain := []string{
		"BILL #B-000042",
		"TOKEN 12",
		escpos.TwoColumns("2x Burger", "$10.00", 48) + "\n",
		escpos.TwoColumns("1x Lassi (large)", "$2.50", 48) + "\n",
		"  * less sugar\n",
		escpos.TwoColumns("Subtotal", "$12.50", 48) + "\n",
		escpos.TwoColumns("GST 5%", "$0.63", 48) + "\n",
		escpos.TwoColumns("Discount", "-$1.00", 48) + "\n",
		escpos.TwoColumns("TOTAL", "$12.13", 48) + "\n",
		escpos.TwoColumns("Paid by", "CASH", 48) + "\n",
		escpos.TwoColumns("Loyalty points", "12", 48) + "\n",
		"Thank you!",
	}
	for _, s := range mustContain {
		if !bytes.Contains(out, []byte(s)) {
			t.Fatalf("bill missing %q", s)
		}
	}
	if !bytes.Contains(out, []byte{0x1D, 0x76, 0x30, 0x00}) {
		t.Fatalf("bill with qr data must embed a raster image")
	}
	if !bytes.HasSuffix(out, partialCut) {
		t.Fatalf("bill must end with a cut")
	}
}

func TestFormatBillSkipsBrokenLogo(t *testing.T) {
	p := models.BillPayload{
		Logo:  "data:image/png;base64,not-an-image",
		Items: []models.LineItem{{Name: "Tea", Quantity: 1, UnitPrice: 1}},
		Total: 1,
	}
	out, err := FormatBill(p, models.Paper58mm, "$")
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if bytes.Contains(out, []byte{0x1D, 0x76, 0x30, 0x00}) {
		t.Fatalf("broken logo should be skipped")
	}
}

func TestFormatTestPage(t *testing.T) {
	desc := models.PrinterDescriptor{Name: "Bar", Role: models.RoleBar, Transport: models.TransportUSB, PaperFormat: models.Paper58mm}
	out := FormatTestPage(desc)
	for _, s := range []string{"TEST PRINT", "Bar", "usb", "58mm / 32 cols", "ABCDEFGHIJKLMNOPQRSTUVWXYZ"} {
		if !strings.Contains(string(out), s) {
			t.Fatalf("test page missing %q", s)
		}
	}
}
