// Package draw resolves weighted prize draws queued as KindDraw items.
// A draw picks one option by weight, applies the option's effects, and
// announces the outcome with a speech line. Resolution happens on the
// queue processor's draw goroutine, never inline with the request that
// paid for the draw.
package draw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"github.com/glimmer-live/glimmer/internal/app/effects"
	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
)

// Outcome is one resolved draw, identified for audit.
type Outcome struct {
	ID      string           `json:"id"`
	Subject string           `json:"subject"`
	Option  string           `json:"option"`
	Effects []effects.Result `json:"effects,omitempty"`
}

// Drawer executes KindDraw queue items.
type Drawer struct {
	ledger   *ledger.Ledger
	effects  *effects.Registry
	queue    *queue.Service
	rng      *rand.Rand
	announce func(Outcome) // test hook, optional
}

// New creates a drawer. rng may be nil, in which case the global source
// is used through a private generator.
func New(led *ledger.Ledger, reg *effects.Registry, q *queue.Service, rng *rand.Rand) *Drawer {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Drawer{ledger: led, effects: reg, queue: q, rng: rng}
}

// Execute implements queue.Executor for KindDraw.
func (d *Drawer) Execute(_ context.Context, item domain.QueueItem) error {
	var p domain.DrawPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return fmt.Errorf("decode draw payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	subject, err := d.ledger.EnsureSubject(p.Subject)
	if err != nil {
		return err
	}

	idx, err := WeightedIndex(p.Options, d.rng)
	if err != nil {
		return err
	}
	won := p.Options[idx]

	out := Outcome{
		ID:      uuid.NewString(),
		Subject: subject.Name,
		Option:  won.Name,
	}
	if len(won.Effects) > 0 {
		out.Effects = d.effects.ApplyAll(subject, won.Effects)
	}

	// The win line rides the speech queue so two-phase delivery applies
	// to draw announcements just like level announcements.
	line := fmt.Sprintf("%s won %s!", subject.Name, won.Name)
	if _, err := d.queue.EnqueueSpeech(domain.SpeechPayload{
		Subject: subject.Name,
		Text:    line,
		Source:  "draw",
	}); err != nil {
		log.Printf("[draw] announce %s: %v", out.ID, err)
	}

	log.Printf("[draw] %s: %s won %q", out.ID, subject.Name, won.Name)
	if d.announce != nil {
		d.announce(out)
	}
	return nil
}

// WeightedIndex picks an option index proportionally to option weights.
// Options with non-positive weight are never picked; an all-zero table
// is an error.
func WeightedIndex(options []domain.DrawOption, rng *rand.Rand) (int, error) {
	total := 0
	for _, o := range options {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("draw: no option has positive weight")
	}
	n := rng.Intn(total)
	for i, o := range options {
		if o.Weight <= 0 {
			continue
		}
		n -= o.Weight
		if n < 0 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("draw: weighted pick fell through")
}
