// Package pipeline turns inbound activity events into currency and
// experience awards. Each event passes the cooldown gate first, then a
// pure reward calculation, then the ledger and leveling engine. The gate
// key is scoped per event type so chatting and tipping cool down
// independently.
package pipeline

import (
	"log"
	"strconv"
	"time"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/cooldown"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
)

// Rate is the reward attached to one event type.
type Rate struct {
	Currency int64
	XP       int64
	Cooldown time.Duration
}

// Rates configures per-event rewards. Subscription rewards scale with
// months; tip rewards scale with the tipped amount.
type Rates struct {
	Chat         Rate
	Presence     Rate
	Follow       Rate
	Subscription Rate
	Tip          Rate // Currency and XP are per tipped unit; amounts round down

	MinChatLen int
}

// DefaultRates mirrors the shipped configuration.
func DefaultRates() Rates {
	return Rates{
		Chat:         Rate{Currency: 5, XP: 10, Cooldown: 60 * time.Second},
		Presence:     Rate{Currency: 10, XP: 5, Cooldown: 5 * time.Minute},
		Follow:       Rate{Currency: 50, XP: 100},
		Subscription: Rate{Currency: 200, XP: 500},
		Tip:          Rate{Currency: 10, XP: 20, Cooldown: 10 * time.Second},
		MinChatLen:   1,
	}
}

// Award is the outcome of one processed event. Admitted is false when
// the cooldown gate rejected the event; nothing else is set in that
// case except RetryAfter.
type Award struct {
	Admitted   bool            `json:"admitted"`
	RetryAfter int64           `json:"retry_after_s,omitempty"`
	Subject    domain.Subject  `json:"subject"`
	Currency   int64           `json:"currency"`
	Balance    int64           `json:"balance"`
	XP         int64           `json:"xp"`
	Leveling   leveling.Result `json:"leveling"`
}

// Engine processes events.
type Engine struct {
	cooldowns *cooldown.Store
	ledger    *ledger.Ledger
	leveling  *leveling.Engine
	rates     Rates
}

// New creates the pipeline engine.
func New(cds *cooldown.Store, led *ledger.Ledger, lvl *leveling.Engine, rates Rates) *Engine {
	return &Engine{cooldowns: cds, ledger: led, leveling: lvl, rates: rates}
}

// HandleEvent processes one event end to end. A zero-reward event (an
// unknown type, or a chat command) returns a nil award and no error. A
// cooldown rejection returns an unadmitted award, not an error: being
// gated is normal operation.
func (e *Engine) HandleEvent(ev domain.Event) (*Award, error) {
	evType, ok := domain.NormalizeEventType(string(ev.Type))
	if !ok {
		return nil, nil
	}
	observability.EventsTotal.WithLabelValues(string(evType)).Inc()

	currency, xp := e.reward(evType, ev)
	if currency == 0 && xp == 0 {
		return nil, nil
	}

	subject, err := e.ledger.EnsureSubject(ev.Subject)
	if err != nil {
		return nil, err
	}

	gateKey := "xp:" + string(evType)
	rate := e.rate(evType)
	adm := e.cooldowns.Admit(subject.Name, gateKey, rate.Cooldown)
	if !adm.OK {
		observability.AdmissionsRejected.WithLabelValues(gateKey).Inc()
		return &Award{Admitted: false, RetryAfter: adm.Remaining, Subject: subject}, nil
	}

	award := &Award{Admitted: true, Subject: subject, Currency: currency, XP: xp}

	if currency > 0 {
		award.Balance, err = e.ledger.Grant(subject.ID, currency, "event:"+string(evType))
		if err != nil {
			// Release the gate so the subject is not charged a cooldown
			// for an award that never landed.
			e.cooldowns.Clear(subject.Name, gateKey)
			return nil, err
		}
	}
	if xp > 0 {
		award.Leveling, err = e.leveling.ApplyXP(subject.ID, subject.Name, xp, "event:"+string(evType), string(evType))
		if err != nil {
			e.cooldowns.Clear(subject.Name, gateKey)
			return nil, err
		}
	}

	log.Printf("[pipeline] %s %s: +%d currency, +%d xp", evType, subject.Name, currency, xp)
	return award, nil
}

func (e *Engine) rate(t domain.EventType) Rate {
	switch t {
	case domain.EventChat:
		return e.rates.Chat
	case domain.EventPresence:
		return e.rates.Presence
	case domain.EventFollow:
		return e.rates.Follow
	case domain.EventSubscription:
		return e.rates.Subscription
	case domain.EventTip:
		return e.rates.Tip
	default:
		return Rate{}
	}
}

// reward computes the award amounts for an event without touching any
// state. Pure, and deliberately so: the calculation is the easiest part
// to get wrong and the easiest part to test.
func (e *Engine) reward(t domain.EventType, ev domain.Event) (currency, xp int64) {
	r := e.rate(t)
	switch t {
	case domain.EventChat:
		if !domain.ChatEligible(ev.Metadata["text"], e.rates.MinChatLen) {
			return 0, 0
		}
		return r.Currency, r.XP
	case domain.EventSubscription:
		months := metaInt(ev.Metadata, "months", 1)
		return r.Currency * months, r.XP * months
	case domain.EventTip:
		units := metaInt(ev.Metadata, "amount", 0)
		if units <= 0 {
			return 0, 0
		}
		return r.Currency * units, r.XP * units
	default:
		return r.Currency, r.XP
	}
}

func metaInt(meta map[string]string, key string, fallback int64) int64 {
	raw, ok := meta[key]
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
