// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the architecture; it depends on nothing.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ─── Subject Types ──────────────────────────────────────────────────────────

// Subject is a user identity on the platform. Subjects are created on
// first event and never deleted, only deactivated.
type Subject struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ─── Event Types ────────────────────────────────────────────────────────────

// EventType classifies an inbound activity signal.
type EventType string

const (
	EventChat         EventType = "chat"
	EventFollow       EventType = "follow"
	EventSubscription EventType = "subscription"
	EventTip          EventType = "tip"
	EventPresence     EventType = "presence"
)

// Event is the canonical, already-normalized activity signal. The protocol
// client parses wire formats; this core only consumes this shape.
type Event struct {
	Type     EventType         `json:"type"`
	Subject  string            `json:"subject"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Source   string            `json:"source,omitempty"` // e.g. "socket", "sim", "admin"
}

// NormalizeEventType lowercases and trims an event type string and reports
// whether it names a known type.
func NormalizeEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case EventChat, EventFollow, EventSubscription, EventTip, EventPresence:
		return t, true
	}
	return "", false
}

// ChatEligible reports whether a chat message should earn passive rewards.
// Command traffic (lines starting with "!") earns nothing.
func ChatEligible(text string, minLen int) bool {
	msg := strings.TrimSpace(text)
	if msg == "" || strings.HasPrefix(msg, "!") {
		return false
	}
	if minLen < 1 {
		minLen = 1
	}
	return len(msg) >= minLen
}

// ─── Ledger Types ───────────────────────────────────────────────────────────

// TransactionKind discriminates what a transaction mutated.
type TransactionKind string

const (
	TxCurrency   TransactionKind = "currency"
	TxExperience TransactionKind = "experience"
)

// Transaction is an immutable, append-only ledger entry. For any subject
// the sum of currency deltas must equal the current balance at all times.
type Transaction struct {
	ID           int64           `json:"id"`
	SubjectID    int64           `json:"subject_id"`
	Kind         TransactionKind `json:"kind"`
	Delta        int64           `json:"delta"`
	Reason       string          `json:"reason"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExperienceRecord is a subject's cumulative XP with its derived level.
// TotalXP is the source of truth; Level is always recomputed from it.
type ExperienceRecord struct {
	SubjectID int64 `json:"subject_id"`
	TotalXP   int64 `json:"total_xp"`
	Level     int   `json:"level"`
}

// ─── Level Reward Types ─────────────────────────────────────────────────────

// LevelRewardRule describes what a subject receives on reaching a level.
// Rules are loaded once from an external table and are immutable at
// runtime except via explicit reload.
type LevelRewardRule struct {
	Level          int    `json:"level"`
	CurrencyBonus  int64  `json:"currency_bonus"`
	AnnounceText   string `json:"announce_text"`
	RequiresSpeech bool   `json:"requires_speech"`
}

// FormatAnnounce expands {user} and {level} placeholders in the rule's
// announcement template.
func (r LevelRewardRule) FormatAnnounce(subject string) string {
	s := strings.ReplaceAll(r.AnnounceText, "{user}", subject)
	return strings.ReplaceAll(s, "{level}", fmt.Sprintf("%d", r.Level))
}

// ─── Queue Types ────────────────────────────────────────────────────────────

// QueueKind names a side-effect queue. Kinds drain independently; within a
// kind, items are delivered in strict creation order.
type QueueKind string

const (
	KindSpeech QueueKind = "speech"
	KindDraw   QueueKind = "draw"
	KindEffect QueueKind = "effect"
)

// KnownKinds returns the closed set of queue kinds.
func KnownKinds() []QueueKind {
	return []QueueKind{KindSpeech, KindDraw, KindEffect}
}

// QueueStatus is a queue item's lifecycle state. Transitions are
// forward-only: pending → running → done|failed.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusRunning QueueStatus = "running"
	StatusDone    QueueStatus = "done"
	StatusFailed  QueueStatus = "failed"
)

// QueueItem is a durable side-effect record. Created by producers,
// exclusively mutated by the queue processor thereafter.
type QueueItem struct {
	ID         int64       `json:"id"`
	Kind       QueueKind   `json:"kind"`
	Status     QueueStatus `json:"status"`
	Payload    []byte      `json:"payload"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	PrimedAt   *time.Time  `json:"primed_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ─── Queue Payloads (closed, kind-discriminated set) ────────────────────────

// SpeechPayload is the payload for KindSpeech items.
type SpeechPayload struct {
	Subject        string `json:"subject"`
	Text           string `json:"text"`
	PrefixIdentity bool   `json:"prefix_identity"`
	Source         string `json:"source"` // e.g. "level", "redeem", "draw"
}

// Validate checks the payload at enqueue time.
func (p SpeechPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("speech payload: empty text")
	}
	return nil
}

// Line returns the deliverable speech line, optionally prefixed with the
// subject's identity.
func (p SpeechPayload) Line() string {
	if p.PrefixIdentity && p.Subject != "" {
		return p.Subject + " says: " + p.Text
	}
	return p.Text
}

// DrawOption is one weighted outcome of a prize draw.
type DrawOption struct {
	Name    string       `json:"name"`
	Weight  int          `json:"weight"`
	Effects []DrawEffect `json:"effects,omitempty"`
}

// DrawEffect is an effect attached to a draw outcome.
type DrawEffect struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// DrawPayload is the payload for KindDraw items.
type DrawPayload struct {
	Subject string       `json:"subject"`
	Options []DrawOption `json:"options"`
}

// Validate checks the payload at enqueue time.
func (p DrawPayload) Validate() error {
	if p.Subject == "" {
		return fmt.Errorf("draw payload: missing subject")
	}
	if len(p.Options) == 0 {
		return fmt.Errorf("draw payload: no options")
	}
	for i, o := range p.Options {
		if o.Name == "" {
			return fmt.Errorf("draw payload: option %d has no name", i)
		}
		if o.Weight < 1 {
			return fmt.Errorf("draw payload: option %q weight must be >= 1", o.Name)
		}
	}
	return nil
}

// EffectPayload is the payload for KindEffect items.
type EffectPayload struct {
	Subject    string            `json:"subject"`
	EffectName string            `json:"effect_name"`
	Params     map[string]string `json:"params,omitempty"`
}

// Validate checks the payload at enqueue time.
func (p EffectPayload) Validate() error {
	if p.Subject == "" {
		return fmt.Errorf("effect payload: missing subject")
	}
	if p.EffectName == "" {
		return fmt.Errorf("effect payload: missing effect name")
	}
	return nil
}

// EncodePayload validates a kind's payload and marshals it for storage.
// Unknown kinds and malformed payloads are rejected before anything is
// written.
func EncodePayload(kind QueueKind, payload any) ([]byte, error) {
	var err error
	switch kind {
	case KindSpeech:
		p, ok := payload.(SpeechPayload)
		if !ok {
			return nil, fmt.Errorf("kind %s requires SpeechPayload", kind)
		}
		err = p.Validate()
	case KindDraw:
		p, ok := payload.(DrawPayload)
		if !ok {
			return nil, fmt.Errorf("kind %s requires DrawPayload", kind)
		}
		err = p.Validate()
	case KindEffect:
		p, ok := payload.(EffectPayload)
		if !ok {
			return nil, fmt.Errorf("kind %s requires EffectPayload", kind)
		}
		err = p.Validate()
	default:
		return nil, ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}
