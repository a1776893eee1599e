package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SyncWorker watches backend connectivity and drains the offline cache on
// every offline to online transition
type SyncWorker struct {
	cache        *OfflineCacheService
	connectivity Connectivity
	interval     time.Duration
	logger       *LoggerService

	mu        sync.Mutex
	wasOnline bool
	stopChan  chan struct{}
	drains    sync.WaitGroup
}

// NewSyncWorker creates the worker. The process starts in the offline state,
// so the first successful check drains whatever is left from the last run.
func NewSyncWorker(cache *OfflineCacheService, connectivity Connectivity, interval time.Duration, logger *LoggerService) *SyncWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SyncWorker{
		cache:        cache,
		connectivity: connectivity,
		interval:     interval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Check takes one connectivity sample. It reports whether a drain was started.
func (w *SyncWorker) Check(ctx context.Context) bool {
	online := w.connectivity.Online(ctx)
	w.cache.SetOnline(online)

	w.mu.Lock()
	transition := online && !w.wasOnline
	if online != w.wasOnline {
		if online {
			w.logger.LogInfo("Backend reachable again")
		} else {
			w.logger.LogWarning("Backend unreachable, new records will be queued offline")
		}
	}
	w.wasOnline = online
	w.mu.Unlock()

	if !transition {
		return false
	}

	w.drains.Add(1)
	go func() {
		defer w.drains.Done()
		defer w.logger.RecoverPanic()
		res, err := w.cache.Drain(ctx)
		switch {
		case errors.Is(err, ErrOffline):
			// connectivity dropped again between the check and the drain
		case err != nil:
			w.logger.LogError("Offline drain failed", err)
		case res.Skipped:
			w.logger.LogDebug("Drain already in flight, trigger ignored")
		}
	}()
	return true
}

// Run samples connectivity until ctx is done or Stop is called
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer w.drains.Wait()

	w.Check(ctx)
	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-w.stopChan:
			w.logger.LogInfo("Sync worker stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends Run
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
}

// Wait blocks until drains started by Check have finished
func (w *SyncWorker) Wait() {
	w.drains.Wait()
}
