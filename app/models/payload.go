package models

import "time"

// LineItem is one ordered item as printed on a ticket or bill
type LineItem struct {
	ID        uint    `json:"id,omitempty"` // backend order item id, used when marking items sent to kitchen
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Portion   string  `json:"portion,omitempty"` // "full" or empty is the default portion
	Note      string  `json:"note,omitempty"`
}

// Amount returns quantity times unit price
func (i LineItem) Amount() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// HasCustomPortion reports whether the portion must be printed next to the name
func (i LineItem) HasCustomPortion() bool {
	return i.Portion != "" && i.Portion != "full" && i.Portion != "default"
}

// TaxLine is a single tax component already computed by the caller
type TaxLine struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// TicketPayload is a kitchen order ticket
type TicketPayload struct {
	ID           string     `json:"id,omitempty"` // client generated, used by the offline queue
	OrderID      uint       `json:"order_id,omitempty"`
	Header       string     `json:"header,omitempty"`
	TableNumber  string     `json:"table,omitempty"`
	TokenNumber  string     `json:"token,omitempty"`
	TicketNumber string     `json:"ticket_number,omitempty"`
	Waiter       string     `json:"waiter,omitempty"`
	Items        []LineItem `json:"items"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ItemIDs returns the backend ids of the ticket's items
func (t TicketPayload) ItemIDs() []uint {
	ids := make([]uint, 0, len(t.Items))
	for _, item := range t.Items {
		if item.ID != 0 {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// BillPayload is a customer facing bill
type BillPayload struct {
	ID            string     `json:"id,omitempty"` // client generated, stable across retries
	OrderID       uint       `json:"order_id,omitempty"`
	BusinessName  string     `json:"business_name,omitempty"`
	Address       string     `json:"address,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	TaxID         string     `json:"tax_id,omitempty"`
	Logo          string     `json:"logo,omitempty"` // base64 PNG/JPEG, data URI prefix allowed
	BillNumber    string     `json:"bill_number,omitempty"`
	TableNumber   string     `json:"table,omitempty"`
	TokenNumber   string     `json:"token,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Taxes         []TaxLine  `json:"taxes,omitempty"`
	Discount      float64    `json:"discount,omitempty"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"payment_method,omitempty"` // "cash", "card", "upi", ...
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	LoyaltyPoints int        `json:"loyalty_points,omitempty"`
	QRData        string     `json:"qr_data,omitempty"`
	Footer        string     `json:"footer,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PaidInCash reports whether the drawer should be opened
func (b BillPayload) PaidInCash() bool {
	return b.PaymentMethod == "cash"
}
