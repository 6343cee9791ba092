package audit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/config"
)

const (
	DefaultRetentionDays   = 30
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service records receiver connection history and device faults.
type Service struct {
	logger              *log.Logger
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new receiver event log service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	retention := cfg.EventRetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneInterval: DefaultPruneInterval,
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes a new receiver event.
func (s *Service) RecordEvent(input WriteEventInput) (*ReceiverEvent, error) {
	if input.Level == "" {
		input.Level = EventLevelInfo
	}

	s.logger.Printf("[DEBUG] AUDIT: %s %s level=%s message=%s",
		input.DeviceID, input.Type, input.Level, input.Message)

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record receiver event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]ReceiverEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query receiver events: %w", err)
	}

	s.recordSuccess()
	return events, total, filters.Offset+len(events) < total, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*ReceiverEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get receiver event: %w", err)
	}
	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// StartPruneJob prunes once immediately, then every pruneInterval.
func (s *Service) StartPruneJob() {
	s.logger.Printf("AUDIT: Starting prune job (interval: %v, retention: %d days)",
		s.pruneInterval, s.retentionDays)

	s.wg.Add(1)
	go s.runPruneLoop()
}

// StopPruneJob stops the background prune job. Safe to call twice.
func (s *Service) StopPruneJob() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	if count, err := s.Prune(); err != nil {
		s.logger.Printf("AUDIT: Error pruning events on start: %v", err)
	} else if count > 0 {
		s.logger.Printf("AUDIT: Pruned %d events on startup", count)
	}

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if count, err := s.Prune(); err != nil {
				s.logger.Printf("AUDIT: Error pruning events: %v", err)
			} else if count > 0 {
				s.logger.Printf("AUDIT: Pruned %d events", count)
			}
		}
	}
}

// Prune deletes events past the retention window.
func (s *Service) Prune() (int64, error) {
	cutoff := s.repo.now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.Prune(cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune receiver events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy reports false after MaxConsecutiveFailures storage errors.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when a receiver event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("receiver event not found: %s", e.EventID)
}
