package services

import (
	"fmt"
	"sync"
	"time"

	"PosPrint/app/models"
)

const sequenceDateLayout = "2006-01-02"

// SequenceStore persists the kitchen ticket counter. LocalDB implements it.
type SequenceStore interface {
	LoadSequence() (*models.SequenceRecord, error)
	SaveSequence(date string, counter int) error
}

// SequenceService issues kitchen ticket numbers that restart at 01 on each
// local calendar day. It assumes a single writer per install; the mutex
// only covers callers inside this process.
type SequenceService struct {
	store  SequenceStore
	logger *LoggerService
	now    func() time.Time

	mu       sync.Mutex
	loaded   bool
	degraded bool
	date     string
	counter  int
}

// NewSequenceService creates the service. A nil store runs in memory only.
func NewSequenceService(store SequenceStore, logger *LoggerService) *SequenceService {
	return &SequenceService{
		store:    store,
		logger:   logger,
		now:      time.Now,
		degraded: store == nil,
	}
}

// SetClock replaces the time source
func (s *SequenceService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *SequenceService) today() string {
	return s.now().Local().Format(sequenceDateLayout)
}

// load reads the persisted record once. Must hold s.mu.
func (s *SequenceService) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	if s.degraded {
		return
	}
	rec, err := s.store.LoadSequence()
	if err != nil {
		s.degrade("load", err)
		return
	}
	if rec != nil {
		s.date = rec.Date
		s.counter = rec.Counter
	}
}

// persist saves the current state. Must hold s.mu.
func (s *SequenceService) persist() {
	if s.degraded {
		return
	}
	if err := s.store.SaveSequence(s.date, s.counter); err != nil {
		s.degrade("save", err)
	}
}

// degrade switches to in-memory counting for the rest of the process
func (s *SequenceService) degrade(op string, err error) {
	s.degraded = true
	s.logger.LogWarning("Sequence store unavailable, counting in memory",
		fmt.Sprintf("%s: %v", op, err))
}

// Next returns the next ticket number for today, zero padded to two digits
func (s *SequenceService) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	today := s.today()
	if s.date != today {
		s.date = today
		s.counter = 1
	} else {
		s.counter++
	}
	s.persist()
	return fmt.Sprintf("%02d", s.counter)
}

// Peek returns today's counter without advancing it, 0 if nothing was issued today
func (s *SequenceService) Peek() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	if s.date != s.today() {
		return 0
	}
	return s.counter
}

// Reset sets today's counter back to 0
func (s *SequenceService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.date = s.today()
	s.counter = 0
	s.persist()
}

// Persistent reports whether the counter is still being saved
func (s *SequenceService) Persistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.degraded
}
