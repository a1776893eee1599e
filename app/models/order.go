package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem is a backend order line. The replay path only touches the
// kitchen flags.
type OrderItem struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	OrderID         uint       `gorm:"index" json:"order_id"`
	Name            string     `json:"name"`
	Quantity        int        `json:"quantity"`
	UnitPrice       float64    `json:"unit_price"`
	Portion         string     `json:"portion"`
	Notes           string     `json:"notes"`
	SentToKitchen   bool       `gorm:"default:false" json:"sent_to_kitchen"`
	SentToKitchenAt *time.Time `json:"sent_to_kitchen_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Bill is a persisted bill. ClientID is the id generated on the station and
// makes inserts idempotent across replays.
type Bill struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ClientID      string         `gorm:"size:64;uniqueIndex;not null" json:"client_id"`
	BillNumber    string         `gorm:"size:32;uniqueIndex;not null" json:"bill_number"`
	OrderID       *uint          `gorm:"index" json:"order_id,omitempty"`
	TableNumber   string         `json:"table_number"`
	Subtotal      float64        `json:"subtotal"`
	TaxTotal      float64        `json:"tax_total"`
	Discount      float64        `json:"discount"`
	Total         float64        `json:"total"`
	PaymentMethod string         `json:"payment_method"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	Items         []BillItem     `gorm:"foreignKey:BillID" json:"items,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BillItem is a bill line; (BillID, LineNo) is unique so retried inserts are no-ops
type BillItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BillID    uint      `gorm:"uniqueIndex:idx_bill_line;not null" json:"bill_id"`
	LineNo    int       `gorm:"uniqueIndex:idx_bill_line;not null" json:"line_no"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Amount    float64   `json:"amount"`
	Portion   string    `json:"portion"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// BillCounter holds the server issued bill sequence (single row)
type BillCounter struct {
	ID    uint  `gorm:"primaryKey"`
	Value int64 `gorm:"not null;default:0"`
}

// NewBill maps a bill payload onto a backend row
func NewBill(p BillPayload, number string) Bill {
	var taxTotal float64
	for _, t := range p.Taxes {
		taxTotal += t.Amount
	}
	bill := Bill{
		ClientID:      p.ID,
		BillNumber:    number,
		TableNumber:   p.TableNumber,
		Subtotal:      p.Subtotal,
		TaxTotal:      taxTotal,
		Discount:      p.Discount,
		Total:         p.Total,
		PaymentMethod: p.PaymentMethod,
		CustomerName:  p.CustomerName,
		CustomerPhone: p.CustomerPhone,
	}
	if p.OrderID != 0 {
		orderID := p.OrderID
		bill.OrderID = &orderID
	}
	return bill
}

// NewBillItems maps payload lines onto bill item rows, numbered from 1
func NewBillItems(billID uint, items []LineItem) []BillItem {
	rows := make([]BillItem, 0, len(items))
	for i, item := range items {
		rows = append(rows, BillItem{
			BillID:    billID,
			LineNo:    i + 1,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.Amount(),
			Portion:   item.Portion,
			Notes:     item.Note,
		})
	}
	return rows
}
