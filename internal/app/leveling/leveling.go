// Package leveling derives levels from cumulative experience and fans out
// level-reward rules. A single large XP award that skips several
// thresholds triggers every intermediate reward exactly once, in level
// order; each level's side effects complete (or are durably queued) before
// the next level's rule runs.
package leveling

import (
	"fmt"
	"log"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// RewardAction records one applied level reward.
type RewardAction struct {
	Level       int    `json:"level"`
	Currency    int64  `json:"currency,omitempty"`
	NewBalance  int64  `json:"new_balance,omitempty"`
	Announce    string `json:"announce,omitempty"`
	QueueItemID int64  `json:"queue_item_id,omitempty"`
}

// Result summarizes one ApplyXP call.
type Result struct {
	SubjectID     int64          `json:"subject_id"`
	Subject       string         `json:"subject"`
	Delta         int64          `json:"delta"`
	TotalXP       int64          `json:"total_xp"`
	LevelBefore   int            `json:"level_before"`
	LevelAfter    int            `json:"level_after"`
	RewardActions []RewardAction `json:"reward_actions,omitempty"`
}

// Engine applies experience and reward rules.
type Engine struct {
	db      *sqlite.DB
	ledger  *ledger.Ledger
	queue   *queue.Service
	curve   domain.Curve
	rules   *RuleTable
	stripes *ledger.Stripes
}

// New creates a leveling engine.
func New(db *sqlite.DB, led *ledger.Ledger, q *queue.Service, curve domain.Curve, rules *RuleTable) *Engine {
	if rules == nil {
		rules = EmptyRules()
	}
	return &Engine{
		db:      db,
		ledger:  led,
		queue:   q,
		curve:   curve,
		rules:   rules,
		stripes: ledger.NewStripes(),
	}
}

// Curve returns the engine's curve parameters.
func (e *Engine) Curve() domain.Curve { return e.curve }

// Rules returns the engine's rule table (for explicit reload).
func (e *Engine) Rules() *RuleTable { return e.rules }

// Experience returns a subject's current experience record.
func (e *Engine) Experience(subjectID int64) (domain.ExperienceRecord, error) {
	return e.db.GetExperience(subjectID)
}

// ApplyXP commits an experience transaction for the subject, recomputes
// the derived level, and applies reward rules for every crossed threshold
// in ascending order. Negative deltas may lower the level; previously
// granted rewards are never reversed. The call is a critical section for
// this subject's level only; unrelated subjects are not blocked.
func (e *Engine) ApplyXP(subjectID int64, subjectName string, delta int64, reason, source string) (Result, error) {
	unlock := e.stripes.Lock(subjectID)
	defer unlock()

	before, err := e.db.GetExperience(subjectID)
	if err != nil {
		return Result{}, fmt.Errorf("read experience: %w", err)
	}
	levelBefore := e.curve.LevelFromXP(before.TotalXP)

	newTotal, err := e.db.ApplyExperienceDelta(subjectID, delta, reason)
	if err != nil {
		return Result{}, err
	}
	observability.TransactionsTotal.WithLabelValues(string(domain.TxExperience)).Inc()

	levelAfter := e.curve.LevelFromXP(newTotal)
	if err := e.db.SetLevel(subjectID, levelAfter); err != nil {
		return Result{}, fmt.Errorf("store level: %w", err)
	}

	res := Result{
		SubjectID:   subjectID,
		Subject:     subjectName,
		Delta:       delta,
		TotalXP:     newTotal,
		LevelBefore: levelBefore,
		LevelAfter:  levelAfter,
	}

	for lvl := levelBefore + 1; lvl <= levelAfter; lvl++ {
		observability.LevelUpsTotal.Inc()
		action, ok := e.applyRule(subjectID, subjectName, lvl)
		if ok {
			res.RewardActions = append(res.RewardActions, action)
		}
	}
	return res, nil
}

// applyRule applies the reward rule for one reached level, if a rule
// exists. Rule failures are logged, not propagated: a broken reward must
// not roll back the XP award it decorates.
func (e *Engine) applyRule(subjectID int64, subjectName string, level int) (RewardAction, bool) {
	rule, ok := e.rules.Rule(level)
	if !ok {
		return RewardAction{}, false
	}

	action := RewardAction{Level: level}

	if rule.CurrencyBonus > 0 {
		bal, err := e.ledger.Grant(subjectID, rule.CurrencyBonus, fmt.Sprintf("level_reward:%d", level))
		if err != nil {
			log.Printf("[leveling] level %d bonus for %s: %v", level, subjectName, err)
		} else {
			action.Currency = rule.CurrencyBonus
			action.NewBalance = bal
		}
	}

	if rule.AnnounceText != "" {
		action.Announce = rule.FormatAnnounce(subjectName)
		if rule.RequiresSpeech && e.queue != nil {
			id, err := e.queue.EnqueueSpeech(domain.SpeechPayload{
				Subject: subjectName,
				Text:    action.Announce,
				Source:  "level",
			})
			if err != nil {
				log.Printf("[leveling] enqueue announcement for %s level %d: %v", subjectName, level, err)
			} else {
				action.QueueItemID = id
			}
		}
	}

	return action, true
}

// Progress returns a subject's progress toward the next level.
func (e *Engine) Progress(subjectID int64) (into, required int64, ratio float64, err error) {
	rec, err := e.db.GetExperience(subjectID)
	if err != nil {
		return 0, 0, 0, err
	}
	level := e.curve.LevelFromXP(rec.TotalXP)
	into, required, ratio = e.curve.Progress(rec.TotalXP, level)
	return into, required, ratio, nil
}
