package models

import "time"

// RecordKind selects one of the two offline replay queues
type RecordKind string

const (
	RecordBill RecordKind = "bill"
	RecordKOT  RecordKind = "kot"
)

// PendingRecord is a bill or kitchen ticket not yet persisted remotely.
// (Kind, ID) is unique; the row is deleted only after confirmed persistence.
type PendingRecord struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	Kind      RecordKind `gorm:"primaryKey;size:8" json:"kind"`
	Payload   []byte     `json:"-"` // CBOR encoded BillPayload or TicketPayload
	Attempts  int        `gorm:"default:0" json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SequenceRecord is the kitchen ticket counter for one calendar day
type SequenceRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Date      string    `gorm:"size:10;not null" json:"date"` // 2006-01-02, local time
	Counter   int       `gorm:"not null;default:0" json:"counter"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reference data keys
const (
	ReferenceProducts = "products"
	ReferenceSections = "sections"
)

// CachedReference is a last-write-wins snapshot of reference data
type CachedReference struct {
	Key        string    `gorm:"primaryKey;size:32" json:"key"`
	Data       string    `json:"data"` // JSON snapshot as received
	LastSynced time.Time `json:"last_synced"`
}

// SyncStatus is reported to the UI as the pending-count indicator
type SyncStatus struct {
	PendingBills   int        `json:"pending_bills"`
	PendingKOTs    int        `json:"pending_kots"`
	Draining       bool       `json:"draining"`
	Online         bool       `json:"online"`
	LastDrainAt    *time.Time `json:"last_drain_at,omitempty"`
	LastDrainError string     `json:"last_drain_error,omitempty"`
}
