// Package queue implements the durable effect queue and its processor.
//
// Producers append validated, kind-discriminated payloads; the processor
// is the sole mutator afterwards. Within a kind items are delivered in
// strict creation order with at most one running at a time; kinds drain
// concurrently. Speech items use two-phase delivery: a claim fires the
// pre-cue, and the payload is delivered only after a configured delay.
package queue

import (
	"fmt"

	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// Service is the producer-facing queue surface.
type Service struct {
	db         *sqlite.DB
	maxPending int // per kind; 0 disables the limit
}

// NewService creates a queue service. maxPending bounds the pending
// backlog per kind.
func NewService(db *sqlite.DB, maxPending int) *Service {
	return &Service{db: db, maxPending: maxPending}
}

// Enqueue validates the payload against its kind and appends a pending
// item. Unknown kinds, malformed payloads, and a full queue are rejected
// before any write.
func (s *Service) Enqueue(kind domain.QueueKind, payload any) (int64, error) {
	raw, err := domain.EncodePayload(kind, payload)
	if err != nil {
		return 0, err
	}

	if s.maxPending > 0 {
		n, err := s.db.CountPending(kind)
		if err != nil {
			return 0, fmt.Errorf("count pending: %w", err)
		}
		if n >= s.maxPending {
			return 0, fmt.Errorf("%w: %d pending %s items", domain.ErrQueueFull, n, kind)
		}
	}

	id, err := s.db.EnqueueItem(kind, raw)
	if err != nil {
		return 0, err
	}
	observability.QueueDepth.WithLabelValues(string(kind)).Inc()
	return id, nil
}

// EnqueueSpeech appends a speech item.
func (s *Service) EnqueueSpeech(p domain.SpeechPayload) (int64, error) {
	return s.Enqueue(domain.KindSpeech, p)
}

// List returns queue items filtered by status and kind, newest first.
func (s *Service) List(status domain.QueueStatus, kind domain.QueueKind, limit int) ([]domain.QueueItem, error) {
	if status != "" {
		switch status {
		case domain.StatusPending, domain.StatusRunning, domain.StatusDone, domain.StatusFailed:
		default:
			return nil, fmt.Errorf("invalid status %q", status)
		}
	}
	if kind != "" {
		if !knownKind(kind) {
			return nil, domain.ErrUnknownKind
		}
	}
	return s.db.ListItems(status, kind, limit)
}

func knownKind(kind domain.QueueKind) bool {
	for _, k := range domain.KnownKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
