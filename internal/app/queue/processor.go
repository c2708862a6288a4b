package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// Executor runs the side effect for one claimed queue item. Executors are
// external collaborators (draw renderer, effect applier); a panic or error
// inside one fails the item without halting the pipeline.
type Executor interface {
	Execute(ctx context.Context, item domain.QueueItem) error
}

// SpeechDeliverer handles two-phase speech: Prime fires the pre-roll cue
// when an item is claimed; Deliver hands the payload to the synthesis
// engine once the configured delay has elapsed.
type SpeechDeliverer interface {
	Prime(ctx context.Context, p domain.SpeechPayload) error
	Deliver(ctx context.Context, p domain.SpeechPayload) error
}

// Config controls processor behavior.
type Config struct {
	PollInterval    time.Duration // idle wait between drain attempts
	SpeechPreDelay  time.Duration // delay between priming and delivery
	WatchdogTimeout time.Duration // running longer than this → failed
	WatchdogEvery   time.Duration // watchdog sweep cadence
}

// DefaultConfig returns safe processor defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    250 * time.Millisecond,
		SpeechPreDelay:  1500 * time.Millisecond,
		WatchdogTimeout: 2 * time.Minute,
		WatchdogEvery:   30 * time.Second,
	}
}

// Processor drains the queue: one sequential consumer goroutine per kind
// plus a stuck-item watchdog. Exactly one item per kind runs at a time.
type Processor struct {
	db     *sqlite.DB
	cfg    Config
	now    func() time.Time
	speech SpeechDeliverer

	mu        sync.Mutex
	executors map[domain.QueueKind]Executor
}

// NewProcessor creates a processor over db.
func NewProcessor(db *sqlite.DB, cfg Config) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.WatchdogEvery <= 0 {
		cfg.WatchdogEvery = DefaultConfig().WatchdogEvery
	}
	return &Processor{
		db:        db,
		cfg:       cfg,
		now:       time.Now,
		executors: make(map[domain.QueueKind]Executor),
	}
}

// RegisterExecutor binds an executor to a non-speech kind.
func (p *Processor) RegisterExecutor(kind domain.QueueKind, ex Executor) {
	p.mu.Lock()
	p.executors[kind] = ex
	p.mu.Unlock()
}

// SetSpeechDeliverer binds the two-phase speech collaborator.
func (p *Processor) SetSpeechDeliverer(d SpeechDeliverer) { p.speech = d }

// Run validates the registration table, then drains every kind until ctx
// is cancelled. The check happens at startup, not at call time: a kind
// without an executor is a configuration error.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	for kind := range p.executors {
		if !knownKind(kind) || kind == domain.KindSpeech {
			p.mu.Unlock()
			return fmt.Errorf("executor registered for invalid kind %q", kind)
		}
	}
	for _, kind := range domain.KnownKinds() {
		if kind == domain.KindSpeech {
			continue
		}
		if _, ok := p.executors[kind]; !ok {
			p.mu.Unlock()
			return fmt.Errorf("no executor registered for kind %q", kind)
		}
	}
	p.mu.Unlock()
	if p.speech == nil {
		return fmt.Errorf("no speech deliverer registered")
	}

	var wg sync.WaitGroup
	for _, kind := range domain.KnownKinds() {
		kind := kind
		wg.Add(1)
		go func() {
			defer wg.Done()
			if kind == domain.KindSpeech {
				p.speechLoop(ctx)
			} else {
				p.drainLoop(ctx, kind)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.watchdogLoop(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// ─── Generic kinds ──────────────────────────────────────────────────────────

func (p *Processor) drainLoop(ctx context.Context, kind domain.QueueKind) {
	for {
		worked, err := p.step(ctx, kind)
		if err != nil {
			log.Printf("[processor] %s: %v", kind, err)
		}
		if worked {
			// Drain back-to-back while items are available.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// step claims and executes the next pending item of a kind. It reports
// whether an item was processed.
func (p *Processor) step(ctx context.Context, kind domain.QueueKind) (bool, error) {
	item, err := p.db.NextPending(kind)
	if err != nil || item == nil {
		return false, err
	}

	if err := p.db.ClaimItem(item.ID, p.now(), false); err != nil {
		return false, fmt.Errorf("claim item %d: %w", item.ID, err)
	}
	item.Status = domain.StatusRunning
	observability.QueueDepth.WithLabelValues(string(kind)).Dec()

	p.mu.Lock()
	ex := p.executors[kind]
	p.mu.Unlock()

	if execErr := runExecutor(ctx, ex, *item); execErr != nil {
		log.Printf("[processor] %s item %d failed: %v", kind, item.ID, execErr)
		observability.QueueItemsTotal.WithLabelValues(string(kind), string(domain.StatusFailed)).Inc()
		return true, p.db.MarkFailed(item.ID, p.now(), execErr.Error())
	}
	observability.QueueItemsTotal.WithLabelValues(string(kind), string(domain.StatusDone)).Inc()
	return true, p.db.MarkDone(item.ID, p.now())
}

// runExecutor contains executor panics so a single bad effect never halts
// the pipeline.
func runExecutor(ctx context.Context, ex Executor, item domain.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return ex.Execute(ctx, item)
}

// ─── Speech (two-phase) ─────────────────────────────────────────────────────

func (p *Processor) speechLoop(ctx context.Context) {
	for {
		wait, err := p.pollSpeech(ctx)
		if err != nil {
			log.Printf("[processor] speech: %v", err)
		}
		if wait <= 0 {
			wait = p.cfg.PollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			// A primed-but-undelivered item stays safely running; the
			// watchdog recovers it after restart.
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// pollSpeech advances the speech state machine by one step and returns how
// long to wait before the next step. The first claim of a pending item
// primes it (pre-cue, primed_at recorded) without delivering; a later poll
// delivers only once the pre-delay has elapsed.
func (p *Processor) pollSpeech(ctx context.Context) (time.Duration, error) {
	now := p.now()

	running, err := p.db.RunningItem(domain.KindSpeech)
	if err != nil {
		return 0, err
	}
	if running != nil {
		primedAt := running.PrimedAt
		if primedAt == nil {
			primedAt = running.StartedAt
		}
		if primedAt == nil || now.Sub(*primedAt) < p.cfg.SpeechPreDelay {
			// Priming delay not yet elapsed: the poll is a no-op and the
			// item stays running.
			remaining := p.cfg.SpeechPreDelay
			if primedAt != nil {
				remaining = p.cfg.SpeechPreDelay - now.Sub(*primedAt)
			}
			return remaining, nil
		}

		var payload domain.SpeechPayload
		if err := json.Unmarshal(running.Payload, &payload); err != nil {
			observability.QueueItemsTotal.WithLabelValues(string(domain.KindSpeech), string(domain.StatusFailed)).Inc()
			return 0, p.db.MarkFailed(running.ID, now, fmt.Sprintf("decode payload: %v", err))
		}
		if err := deliverSpeech(ctx, p.speech, payload); err != nil {
			observability.QueueItemsTotal.WithLabelValues(string(domain.KindSpeech), string(domain.StatusFailed)).Inc()
			return 0, p.db.MarkFailed(running.ID, now, err.Error())
		}
		observability.QueueItemsTotal.WithLabelValues(string(domain.KindSpeech), string(domain.StatusDone)).Inc()
		return 0, p.db.MarkDone(running.ID, now)
	}

	pending, err := p.db.NextPending(domain.KindSpeech)
	if err != nil || pending == nil {
		return 0, err
	}

	if err := p.db.ClaimItem(pending.ID, now, true); err != nil {
		return 0, fmt.Errorf("claim speech item %d: %w", pending.ID, err)
	}
	observability.QueueDepth.WithLabelValues(string(domain.KindSpeech)).Dec()

	var payload domain.SpeechPayload
	if err := json.Unmarshal(pending.Payload, &payload); err != nil {
		observability.QueueItemsTotal.WithLabelValues(string(domain.KindSpeech), string(domain.StatusFailed)).Inc()
		return 0, p.db.MarkFailed(pending.ID, now, fmt.Sprintf("decode payload: %v", err))
	}
	if err := primeSpeech(ctx, p.speech, payload); err != nil {
		observability.QueueItemsTotal.WithLabelValues(string(domain.KindSpeech), string(domain.StatusFailed)).Inc()
		return 0, p.db.MarkFailed(pending.ID, now, err.Error())
	}
	return p.cfg.SpeechPreDelay, nil
}

func primeSpeech(ctx context.Context, d SpeechDeliverer, p domain.SpeechPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prime panic: %v", r)
		}
	}()
	return d.Prime(ctx, p)
}

func deliverSpeech(ctx context.Context, d SpeechDeliverer, p domain.SpeechPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver panic: %v", r)
		}
	}()
	return d.Deliver(ctx, p)
}

// ─── Watchdog ───────────────────────────────────────────────────────────────

func (p *Processor) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.WatchdogEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.sweepStale(); n > 0 {
				log.Printf("[watchdog] failed %d stalled items", n)
			}
		}
	}
}

// sweepStale fails items running past the watchdog timeout so a crashed
// executor cannot wedge its queue.
func (p *Processor) sweepStale() int64 {
	if p.cfg.WatchdogTimeout <= 0 {
		return 0
	}
	cutoff := p.now().Add(-p.cfg.WatchdogTimeout)
	n, err := p.db.FailStale(cutoff)
	if err != nil {
		log.Printf("[watchdog] sweep: %v", err)
		return 0
	}
	if n > 0 {
		observability.WatchdogFailures.Add(float64(n))
	}
	return n
}
