package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"PosPrint/app/config"
	"PosPrint/app/models"
)

const (
	DefaultPickupLimit = 10
	MaxPickupLimit     = 100
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotProcessing = errors.New("job is not processing")
	ErrInvalidJob       = errors.New("invalid job")
)

// PrintQueueService stores remote print jobs and hands them out to agents
type PrintQueueService struct {
	db                *gorm.DB
	publisher         EventPublisher
	notifier          Notifier
	logger            *LoggerService
	visibilityTimeout time.Duration
	reapInterval      time.Duration
	maxAttempts       int
	now               func() time.Time
}

// NewPrintQueueService creates the queue store. publisher and notifier may be nil.
func NewPrintQueueService(db *gorm.DB, cfg config.QueueConfig, publisher EventPublisher, notifier Notifier, logger *LoggerService) *PrintQueueService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &PrintQueueService{
		db:                db,
		publisher:         publisher,
		notifier:          notifier,
		logger:            logger,
		visibilityTimeout: cfg.VisibilityTimeout,
		reapInterval:      cfg.ReapInterval,
		maxAttempts:       cfg.MaxAttempts,
		now:               func() time.Time { return time.Now().UTC() },
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	return s
}

// SetNotifier replaces the notifier once the websocket hub exists
func (s *PrintQueueService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *PrintQueueService) publish(ctx context.Context, job *models.PrintJob) {
	event := NewJobEvent(job)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.LogWarning("Failed to publish job event", fmt.Sprintf("job=%s error=%v", job.ID, err))
	}
}

// Submit stores a new pending job and returns it
func (s *PrintQueueService) Submit(ctx context.Context, req SubmitRequest) (*models.PrintJob, error) {
	if !req.JobType.Valid() {
		return nil, fmt.Errorf("%w: unknown job_type %q", ErrInvalidJob, req.JobType)
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return nil, fmt.Errorf("%w: payload must be a JSON value", ErrInvalidJob)
	}

	job := &models.PrintJob{
		ID:          uuid.NewString(),
		JobType:     req.JobType,
		PrinterRole: req.PrinterRole,
		Payload:     models.JobPayload(req.Payload),
		Status:      models.JobStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	s.publish(ctx, job)
	s.notifier.Notify("job_available", map[string]interface{}{
		"job_id":       job.ID,
		"printer_role": job.PrinterRole,
	})
	return job, nil
}

// Pickup claims up to limit of the oldest pending jobs for agentID. The
// claim is a conditional update stamped with a fresh token, and only rows
// carrying that token are returned, so two pickups never share a job.
func (s *PrintQueueService) Pickup(ctx context.Context, agentID string, limit int) ([]models.PrintJob, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidJob)
	}
	if limit <= 0 {
		limit = DefaultPickupLimit
	}
	if limit > MaxPickupLimit {
		limit = MaxPickupLimit
	}

	token := uuid.NewString()
	now := s.now()
	var jobs []models.PrintJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidates := tx.Model(&models.PrintJob{}).
			Where("status = ?", models.JobStatusPending).
			Order("created_at ASC, id ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			candidates = candidates.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var ids []string
		if err := candidates.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&models.PrintJob{}).
			Where("id IN ? AND status = ?", ids, models.JobStatusPending).
			Updates(map[string]interface{}{
				"status":      models.JobStatusProcessing,
				"agent_id":    agentID,
				"claim_token": token,
				"picked_at":   now,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ? AND status = ?", token, models.JobStatusProcessing).
			Order("created_at ASC, id ASC").
			Find(&jobs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pick up jobs: %w", err)
	}

	for i := range jobs {
		s.publish(ctx, &jobs[i])
	}
	if len(jobs) > 0 {
		s.logger.LogInfo(fmt.Sprintf("Agent %s picked up %d job(s)", agentID, len(jobs)))
	}
	return jobs, nil
}

// Complete records an agent's outcome for a processing job. When agentID is
// set the job must still be held by that agent; a report arriving after the
// reaper handed the job to someone else is refused as not processing.
func (s *PrintQueueService) Complete(ctx context.Context, jobID, agentID string, success bool, errMsg string) (*models.PrintJob, error) {
	status := models.JobStatusCompleted
	if !success {
		status = models.JobStatusFailed
		if errMsg == "" {
			errMsg = "print failed"
		}
	} else {
		errMsg = ""
	}

	now := s.now()
	var job models.PrintJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != models.JobStatusProcessing {
			return ErrJobNotProcessing
		}
		if agentID != "" && job.AgentID != agentID {
			return ErrJobNotProcessing
		}

		res := tx.Model(&models.PrintJob{}).
			Where("id = ? AND status = ? AND claim_token = ?", jobID, models.JobStatusProcessing, job.ClaimToken).
			Updates(map[string]interface{}{
				"status":        status,
				"error_message": errMsg,
				"processed_at":  now,
				"claim_token":   "",
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobNotProcessing
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotProcessing) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	job.Status = status
	job.ErrorMessage = errMsg
	job.ProcessedAt = &now
	s.publish(ctx, &job)
	return &job, nil
}

// Status returns the job's state without changing it
func (s *PrintQueueService) Status(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	var job models.PrintJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	view := job.StatusView()
	return &view, nil
}

// List returns the most recent jobs, optionally filtered by status
func (s *PrintQueueService) List(ctx context.Context, status models.JobStatus, limit int) ([]models.PrintJob, error) {
	if limit <= 0 || limit > MaxPickupLimit {
		limit = MaxPickupLimit
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []models.PrintJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReapStuck returns jobs held in processing past the visibility timeout to
// pending. A job that has timed out maxAttempts times fails with
// "agent timeout" instead.
func (s *PrintQueueService) ReapStuck(ctx context.Context) (requeued, failed int64, err error) {
	if s.visibilityTimeout <= 0 {
		return 0, 0, nil
	}
	now := s.now()
	cutoff := now.Add(-s.visibilityTimeout)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PrintJob{}).
			Where("status = ? AND picked_at < ? AND attempts + 1 >= ?", models.JobStatusProcessing, cutoff, s.maxAttempts).
			Updates(map[string]interface{}{
				"status":        models.JobStatusFailed,
				"error_message": "agent timeout",
				"attempts":      gorm.Expr("attempts + 1"),
				"claim_token":   "",
				"processed_at":  now,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected

		res = tx.Model(&models.PrintJob{}).
			Where("status = ? AND picked_at < ?", models.JobStatusProcessing, cutoff).
			Updates(map[string]interface{}{
				"status":      models.JobStatusPending,
				"attempts":    gorm.Expr("attempts + 1"),
				"agent_id":    "",
				"claim_token": "",
				"picked_at":   nil,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reap stuck jobs: %w", err)
	}

	if requeued > 0 || failed > 0 {
		s.logger.LogWarning("Reaped stuck print jobs", fmt.Sprintf("requeued=%d failed=%d", requeued, failed))
	}
	if requeued > 0 {
		s.notifier.Notify("job_available", map[string]interface{}{"requeued": requeued})
	}
	return requeued, failed, nil
}

// Run reaps stuck jobs on the configured interval until ctx is done
func (s *PrintQueueService) Run(ctx context.Context) {
	interval := s.reapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.ReapStuck(ctx); err != nil {
				s.logger.LogError("Reaper run failed", err)
			}
		}
	}
}

// Ping checks the job store
func (s *PrintQueueService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
