package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PosPrint/app/database"
	"PosPrint/app/models"
)

// ErrOffline is returned by Drain when the backend is unreachable
var ErrOffline = errors.New("backend is offline")

// Connectivity reports whether the backend can be reached
type Connectivity interface {
	Online(ctx context.Context) bool
}

// PingConnectivity treats a successful backend ping as online
type PingConnectivity struct {
	Backend Backend
	Timeout time.Duration
}

func (p PingConnectivity) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Backend.Ping(ctx) == nil
}

// DrainResult summarizes one drain run
type DrainResult struct {
	Skipped     bool `json:"skipped"`
	BillsSynced int  `json:"bills_synced"`
	KOTsSynced  int  `json:"kots_synced"`
	Failed      int  `json:"failed"`
}

// OfflineCacheService queues bills and kitchen tickets that could not be
// persisted and replays them once the backend is reachable again
type OfflineCacheService struct {
	local        *database.LocalDB
	codec        *database.PayloadCodec
	backend      Backend
	connectivity Connectivity
	notifier     Notifier
	logger       *LoggerService
	now          func() time.Time

	draining atomic.Bool

	mu           sync.Mutex
	online       bool
	lastDrainAt  *time.Time
	lastDrainErr string
}

// NewOfflineCacheService creates the cache. notifier may be nil.
func NewOfflineCacheService(local *database.LocalDB, backend Backend, connectivity Connectivity, notifier Notifier, logger *LoggerService) (*OfflineCacheService, error) {
	codec, err := database.NewPayloadCodec()
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &OfflineCacheService{
		local:        local,
		codec:        codec,
		backend:      backend,
		connectivity: connectivity,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// SetNotifier replaces the notifier once the websocket hub exists
func (s *OfflineCacheService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *OfflineCacheService) queue(kind models.RecordKind, id string, payload interface{}) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%s record has no id", kind)
	}
	data, err := s.codec.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}
	added, err := s.local.InsertPending(&models.PendingRecord{
		ID:        id,
		Kind:      kind,
		Payload:   data,
		CreatedAt: s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to queue %s %s: %w", kind, id, err)
	}
	if added {
		s.logger.LogInfo(fmt.Sprintf("Queued %s offline", kind), id)
		s.notifyStatus()
	}
	return added, nil
}

// QueueBill stores a bill for replay. It reports false when the id was
// already queued.
func (s *OfflineCacheService) QueueBill(p models.BillPayload) (bool, error) {
	return s.queue(models.RecordBill, p.ID, p)
}

// QueueKitchenTicket stores a kitchen ticket for replay
func (s *OfflineCacheService) QueueKitchenTicket(p models.TicketPayload) (bool, error) {
	return s.queue(models.RecordKOT, p.ID, p)
}

// PersistBill writes the bill to the backend, or queues it when that fails.
// It returns the stored bill when the write went through.
func (s *OfflineCacheService) PersistBill(ctx context.Context, p models.BillPayload) (*models.Bill, bool, error) {
	bill, err := s.replayBill(ctx, p)
	if err == nil {
		return bill, false, nil
	}
	s.logger.LogWarning("Bill not persisted, queueing offline", fmt.Sprintf("id=%s error=%v", p.ID, err))
	if _, qerr := s.QueueBill(p); qerr != nil {
		return nil, false, qerr
	}
	return nil, true, nil
}

// PersistKitchenTicket marks the ticket's items as sent, or queues it
func (s *OfflineCacheService) PersistKitchenTicket(ctx context.Context, p models.TicketPayload) (bool, error) {
	err := s.replayKOT(ctx, p)
	if err == nil {
		return false, nil
	}
	s.logger.LogWarning("Kitchen ticket not persisted, queueing offline", fmt.Sprintf("id=%s error=%v", p.ID, err))
	if _, qerr := s.QueueKitchenTicket(p); qerr != nil {
		return false, qerr
	}
	return true, nil
}

// PendingCount returns how many bills and kitchen tickets wait for replay
func (s *OfflineCacheService) PendingCount() (bills, kots int, err error) {
	if bills, err = s.local.CountPending(models.RecordBill); err != nil {
		return 0, 0, err
	}
	if kots, err = s.local.CountPending(models.RecordKOT); err != nil {
		return 0, 0, err
	}
	return bills, kots, nil
}

// SetOnline records the last connectivity observation
func (s *OfflineCacheService) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// Status is the pending-count indicator shown by the UI
func (s *OfflineCacheService) Status() models.SyncStatus {
	bills, kots, err := s.PendingCount()
	if err != nil {
		s.logger.LogError("Failed to count pending records", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SyncStatus{
		PendingBills:   bills,
		PendingKOTs:    kots,
		Draining:       s.draining.Load(),
		Online:         s.online,
		LastDrainAt:    s.lastDrainAt,
		LastDrainError: s.lastDrainErr,
	}
}

func (s *OfflineCacheService) notifyStatus() {
	s.notifier.Notify("sync_status", s.Status())
}

// Drain replays queued records. Only one drain runs at a time; a call made
// while another is in flight returns at once with Skipped set.
func (s *OfflineCacheService) Drain(ctx context.Context) (DrainResult, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer s.draining.Store(false)

	online := s.connectivity.Online(ctx)
	s.SetOnline(online)
	if !online {
		return DrainResult{Skipped: true}, ErrOffline
	}

	var result DrainResult
	var lastErr error

	bills, err := s.local.ListPending(models.RecordBill)
	if err != nil {
		return result, fmt.Errorf("failed to list pending bills: %w", err)
	}
	for _, rec := range bills {
		if ctx.Err() != nil {
			break
		}
		var p models.BillPayload
		if err := s.codec.Unmarshal(rec.Payload, &p); err == nil {
			_, err = s.replayBill(ctx, p)
			if err == nil {
				err = s.local.DeletePending(models.RecordBill, rec.ID)
			}
			if err == nil {
				result.BillsSynced++
				continue
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("undecodable payload: %w", err)
		}
		result.Failed++
		s.recordFailure(rec, lastErr)
	}

	kots, err := s.local.ListPending(models.RecordKOT)
	if err != nil {
		return result, fmt.Errorf("failed to list pending kitchen tickets: %w", err)
	}
	for _, rec := range kots {
		if ctx.Err() != nil {
			break
		}
		var p models.TicketPayload
		if err := s.codec.Unmarshal(rec.Payload, &p); err == nil {
			err = s.replayKOT(ctx, p)
			if err == nil {
				err = s.local.DeletePending(models.RecordKOT, rec.ID)
			}
			if err == nil {
				result.KOTsSynced++
				continue
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("undecodable payload: %w", err)
		}
		result.Failed++
		s.recordFailure(rec, lastErr)
	}

	now := s.now()
	s.mu.Lock()
	s.lastDrainAt = &now
	s.lastDrainErr = ""
	if lastErr != nil {
		s.lastDrainErr = lastErr.Error()
	}
	s.mu.Unlock()

	if result.BillsSynced+result.KOTsSynced+result.Failed > 0 {
		s.logger.LogInfo("Offline drain finished", fmt.Sprintf("bills=%d kots=%d failed=%d",
			result.BillsSynced, result.KOTsSynced, result.Failed))
	}
	s.notifyStatus()
	return result, nil
}

func (s *OfflineCacheService) recordFailure(rec models.PendingRecord, err error) {
	s.logger.LogWarning(fmt.Sprintf("Replay of %s %s failed", rec.Kind, rec.ID), err.Error())
	if merr := s.local.MarkPendingFailed(rec.Kind, rec.ID, err.Error()); merr != nil {
		s.logger.LogError("Failed to record replay failure", merr, rec.ID)
	}
}

// replayBill persists a bill idempotently: a bill already stored under the
// client id keeps its number, and item lines already present are skipped.
func (s *OfflineCacheService) replayBill(ctx context.Context, p models.BillPayload) (*models.Bill, error) {
	if p.ID == "" {
		return nil, errors.New("bill has no client id")
	}
	bill, err := s.backend.FindBillByClientID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		number, err := s.backend.NextBillNumber(ctx)
		if err != nil {
			return nil, err
		}
		if bill, err = s.backend.UpsertBill(ctx, p, number); err != nil {
			return nil, err
		}
	}
	if err := s.backend.InsertBillItems(ctx, bill.ID, p.Items); err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *OfflineCacheService) replayKOT(ctx context.Context, p models.TicketPayload) error {
	return s.backend.MarkItemsSentToKitchen(ctx, p.ItemIDs(), s.now())
}

// Clear drops every queued record
func (s *OfflineCacheService) Clear() error {
	if err := s.local.ClearPending(); err != nil {
		return err
	}
	s.notifyStatus()
	return nil
}

// SaveReference stores a reference data snapshot (products, sections).
// The last write wins.
func (s *OfflineCacheService) SaveReference(key, data string) error {
	switch key {
	case models.ReferenceProducts, models.ReferenceSections:
	default:
		return fmt.Errorf("unknown reference key %q", key)
	}
	return s.local.SaveReference(key, data, s.now())
}

// LoadReference returns the cached snapshot, nil when never synced
func (s *OfflineCacheService) LoadReference(key string) (*models.CachedReference, error) {
	return s.local.LoadReference(key)
}
