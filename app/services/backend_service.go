package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"PosPrint/app/models"
)

// Backend is the persistence path the offline cache replays through
type Backend interface {
	Ping(ctx context.Context) error
	NextBillNumber(ctx context.Context) (string, error)
	FindBillByClientID(ctx context.Context, clientID string) (*models.Bill, error)
	UpsertBill(ctx context.Context, p models.BillPayload, number string) (*models.Bill, error)
	InsertBillItems(ctx context.Context, billID uint, items []models.LineItem) error
	MarkItemsSentToKitchen(ctx context.Context, itemIDs []uint, at time.Time) error
}

// BackendService writes bills and kitchen flags to the main database
type BackendService struct {
	db *gorm.DB
}

func NewBackendService(db *gorm.DB) *BackendService {
	return &BackendService{db: db}
}

// Ping checks that the main database answers
func (s *BackendService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NextBillNumber issues the next server side bill number
func (s *BackendService) NextBillNumber(ctx context.Context) (string, error) {
	var counter models.BillCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BillCounter{}).
			Where("id = ?", 1).
			Update("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}
		return tx.First(&counter, 1).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue bill number: %w", err)
	}
	return fmt.Sprintf("B%06d", counter.Value), nil
}

// FindBillByClientID returns nil when the bill was never persisted
func (s *BackendService) FindBillByClientID(ctx context.Context, clientID string) (*models.Bill, error) {
	var bill models.Bill
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// UpsertBill inserts the bill keyed by its client id. A bill already stored
// under that id keeps its number and id.
func (s *BackendService) UpsertBill(ctx context.Context, p models.BillPayload, number string) (*models.Bill, error) {
	if p.ID == "" {
		return nil, errors.New("bill has no client id")
	}
	bill := models.NewBill(p, number)
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "client_id"}}, DoNothing: true}).
		Create(&bill).Error; err != nil {
		return nil, fmt.Errorf("failed to insert bill: %w", err)
	}

	stored, err := s.FindBillByClientID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("bill %s missing after insert", p.ID)
	}
	return stored, nil
}

// InsertBillItems inserts the bill's lines. Lines already present are skipped.
func (s *BackendService) InsertBillItems(ctx context.Context, billID uint, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := models.NewBillItems(billID, items)
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "bill_id"}, {Name: "line_no"}}, DoNothing: true}).
		Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert bill items: %w", err)
	}
	return nil
}

// MarkItemsSentToKitchen flags order items as printed for the kitchen
func (s *BackendService) MarkItemsSentToKitchen(ctx context.Context, itemIDs []uint, at time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Where("id IN ?", itemIDs).
		Updates(map[string]interface{}{
			"sent_to_kitchen":    true,
			"sent_to_kitchen_at": at,
		}).Error; err != nil {
		return fmt.Errorf("failed to mark items sent to kitchen: %w", err)
	}
	return nil
}

// BillItems returns the stored lines of a bill
func (s *BackendService) BillItems(ctx context.Context, billID uint) ([]models.BillItem, error) {
	var items []models.BillItem
	err := s.db.WithContext(ctx).Where("bill_id = ?", billID).Order("line_no").Find(&items).Error
	return items, err
}

// CountBills returns how many bills are stored
func (s *BackendService) CountBills(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Bill{}).Count(&n).Error
	return n, err
}

// LazyBackend opens the main database on first use and retries the open on
// every call until it succeeds, so a station can start while the backend
// is down and queue everything offline.
type LazyBackend struct {
	open func() (*gorm.DB, error)

	mu      sync.Mutex
	backend *BackendService
}

func NewLazyBackend(open func() (*gorm.DB, error)) *LazyBackend {
	return &LazyBackend{open: open}
}

func (l *LazyBackend) get() (*BackendService, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		return l.backend, nil
	}
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	l.backend = NewBackendService(db)
	return l.backend, nil
}

// DB returns the open connection, nil before the first successful open
func (l *LazyBackend) DB() *gorm.DB {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend == nil {
		return nil
	}
	return l.backend.db
}

func (l *LazyBackend) Ping(ctx context.Context) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

func (l *LazyBackend) NextBillNumber(ctx context.Context) (string, error) {
	b, err := l.get()
	if err != nil {
		return "", err
	}
	return b.NextBillNumber(ctx)
}

func (l *LazyBackend) FindBillByClientID(ctx context.Context, clientID string) (*models.Bill, error) {
	b, err := l.get()
	if err != nil {
		return nil, err
	}
	return b.FindBillByClientID(ctx, clientID)
}

func (l *LazyBackend) UpsertBill(ctx context.Context, p models.BillPayload, number string) (*models.Bill, error) {
	b, err := l.get()
	if err != nil {
		return nil, err
	}
	return b.UpsertBill(ctx, p, number)
}

func (l *LazyBackend) InsertBillItems(ctx context.Context, billID uint, items []models.LineItem) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.InsertBillItems(ctx, billID, items)
}

func (l *LazyBackend) MarkItemsSentToKitchen(ctx context.Context, itemIDs []uint, at time.Time) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.MarkItemsSentToKitchen(ctx, itemIDs, at)
}
