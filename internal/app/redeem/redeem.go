// Package redeem lets subjects spend balance on catalog entries that
// enqueue effects: a speech line, a prize draw, or a named effect. The
// catalog is stored in SQLite so entries survive restarts and can be
// toggled at runtime.
package redeem

import (
	"fmt"
	"log"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/cooldown"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// Result describes a completed redemption.
type Result struct {
	Key         string `json:"key"`
	Subject     string `json:"subject"`
	Cost        int64  `json:"cost"`
	NewBalance  int64  `json:"new_balance"`
	QueueItemID int64  `json:"queue_item_id,omitempty"`
}

// Service processes redemptions against the stored catalog.
type Service struct {
	db        *sqlite.DB
	ledger    *ledger.Ledger
	cooldowns *cooldown.Store
	queue     *queue.Service
	draws     []domain.DrawOption
}

// New creates the redemption service. drawOptions is the prize table
// used by draw-type redeems.
func New(db *sqlite.DB, led *ledger.Ledger, cds *cooldown.Store, q *queue.Service, drawOptions []domain.DrawOption) *Service {
	return &Service{db: db, ledger: led, cooldowns: cds, queue: q, draws: drawOptions}
}

// Catalog returns all catalog entries, enabled or not.
func (s *Service) Catalog() ([]domain.Redeem, error) {
	return s.db.ListRedeems()
}

// Upsert inserts or replaces a catalog entry.
func (s *Service) Upsert(r domain.Redeem) error {
	if r.Key == "" {
		return fmt.Errorf("redeem: empty key")
	}
	if r.Cost < 0 {
		return fmt.Errorf("redeem %q: negative cost", r.Key)
	}
	return s.db.UpsertRedeem(r)
}

// Toggle enables or disables a catalog entry.
func (s *Service) Toggle(key string, enabled bool) error {
	return s.db.ToggleRedeem(key, enabled)
}

// Redeem spends a subject's balance on the entry named by key. text is
// only used by speech-type entries. The per-entry cooldown is held once
// the redemption succeeds; a failed spend or enqueue releases it so the
// subject can retry immediately.
func (s *Service) Redeem(subjectName, key, text string) (Result, error) {
	entry, err := s.db.GetRedeem(key)
	if err != nil {
		return Result{}, err
	}
	if !entry.Enabled {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrRedeemDisabled, key)
	}

	subject, err := s.ledger.EnsureSubject(subjectName)
	if err != nil {
		return Result{}, err
	}

	cdKey := "redeem:" + key
	adm := s.cooldowns.Admit(subject.Name, cdKey, entry.Cooldown)
	if !adm.OK {
		return Result{}, &domain.CooldownError{Key: cdKey, Remaining: adm.Remaining}
	}

	// Free entries skip the ledger entirely.
	var balance int64
	if entry.Cost > 0 {
		balance, err = s.ledger.Spend(subject.ID, entry.Cost, "redeem:"+key)
	} else {
		balance, err = s.ledger.Balance(subject.ID)
	}
	if err != nil {
		s.cooldowns.Clear(subject.Name, cdKey)
		return Result{}, err
	}

	itemID, err := s.enqueue(entry, subject, text)
	if err != nil {
		// Refund: the subject paid for an item that never entered the
		// queue.
		if entry.Cost > 0 {
			if _, rerr := s.ledger.Grant(subject.ID, entry.Cost, "refund:"+key); rerr != nil {
				log.Printf("[redeem] refund %s for %s failed: %v", key, subject.Name, rerr)
			}
		}
		s.cooldowns.Clear(subject.Name, cdKey)
		return Result{}, err
	}

	log.Printf("[redeem] %s redeemed %s for %d", subject.Name, key, entry.Cost)
	return Result{
		Key:         key,
		Subject:     subject.Name,
		Cost:        entry.Cost,
		NewBalance:  balance,
		QueueItemID: itemID,
	}, nil
}

func (s *Service) enqueue(entry domain.Redeem, subject domain.Subject, text string) (int64, error) {
	switch entry.Kind {
	case domain.KindSpeech:
		if text == "" {
			text = entry.DisplayName
		}
		return s.queue.EnqueueSpeech(domain.SpeechPayload{
			Subject: subject.Name,
			Text:    text,
			Source:  "redeem",
		})
	case domain.KindDraw:
		return s.queue.Enqueue(domain.KindDraw, domain.DrawPayload{
			Subject: subject.Name,
			Options: s.draws,
		})
	case domain.KindEffect:
		return s.queue.Enqueue(domain.KindEffect, domain.EffectPayload{
			Subject:    subject.Name,
			EffectName: entry.EffectName,
			Params:     entry.EffectParams,
		})
	default:
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownKind, entry.Kind)
	}
}
