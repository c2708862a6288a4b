// Package effects applies named effects (currency grants, XP grants,
// speech lines) on behalf of draw outcomes, effect queue items, and
// administrative triggers. The effect set is closed: handlers are a fixed
// registration table validated at construction, not looked up lazily at
// call time.
package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
)

// Known effect names.
const (
	EffectGrantCurrency = "grant_currency"
	EffectGrantXP       = "grant_xp"
	EffectSpeech        = "speech"
)

// Result is one applied effect, safe to log or store.
type Result struct {
	Name   string            `json:"name"`
	OK     bool              `json:"ok"`
	Detail map[string]string `json:"detail,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type handler func(subject domain.Subject, params map[string]string) (map[string]string, error)

// Registry executes the closed effect set.
type Registry struct {
	ledger   *ledger.Ledger
	leveling *leveling.Engine
	queue    *queue.Service
	handlers map[string]handler
}

// New builds the registry and checks the handler table. Every known
// effect must have a handler; the check runs at startup so a gap is a
// construction error, not a runtime surprise.
func New(led *ledger.Ledger, lvl *leveling.Engine, q *queue.Service) (*Registry, error) {
	r := &Registry{ledger: led, leveling: lvl, queue: q}
	r.handlers = map[string]handler{
		EffectGrantCurrency: r.grantCurrency,
		EffectGrantXP:       r.grantXP,
		EffectSpeech:        r.speech,
	}
	for _, name := range []string{EffectGrantCurrency, EffectGrantXP, EffectSpeech} {
		if r.handlers[name] == nil {
			return nil, fmt.Errorf("effect %q has no handler", name)
		}
	}
	return r, nil
}

// Apply runs one effect for a subject.
func (r *Registry) Apply(subject domain.Subject, name string, params map[string]string) Result {
	h, ok := r.handlers[name]
	if !ok {
		return Result{Name: name, Error: fmt.Sprintf("unknown effect %q", name)}
	}
	detail, err := h(subject, params)
	if err != nil {
		return Result{Name: name, Error: err.Error()}
	}
	return Result{Name: name, OK: true, Detail: detail}
}

// ApplyAll runs a list of effects best-effort: one failing effect does
// not stop the rest.
func (r *Registry) ApplyAll(subject domain.Subject, effs []domain.DrawEffect) []Result {
	out := make([]Result, 0, len(effs))
	for _, e := range effs {
		out = append(out, r.Apply(subject, e.Name, e.Params))
	}
	return out
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (r *Registry) grantCurrency(subject domain.Subject, params map[string]string) (map[string]string, error) {
	amount, err := paramInt(params, "amount")
	if err != nil {
		return nil, err
	}
	bal, err := r.ledger.Grant(subject.ID, amount, paramOr(params, "reason", "effect:grant_currency"))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"amount":      strconv.FormatInt(amount, 10),
		"new_balance": strconv.FormatInt(bal, 10),
	}, nil
}

func (r *Registry) grantXP(subject domain.Subject, params map[string]string) (map[string]string, error) {
	amount, err := paramInt(params, "amount")
	if err != nil {
		return nil, err
	}
	res, err := r.leveling.ApplyXP(subject.ID, subject.Name, amount, paramOr(params, "reason", "effect:grant_xp"), "effect")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"amount":   strconv.FormatInt(amount, 10),
		"total_xp": strconv.FormatInt(res.TotalXP, 10),
		"level":    strconv.Itoa(res.LevelAfter),
	}, nil
}

func (r *Registry) speech(subject domain.Subject, params map[string]string) (map[string]string, error) {
	text := params["text"]
	if text == "" {
		return nil, fmt.Errorf("speech effect: missing text")
	}
	id, err := r.queue.EnqueueSpeech(domain.SpeechPayload{
		Subject: subject.Name,
		Text:    text,
		Source:  paramOr(params, "source", "effect"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"queue_item_id": strconv.FormatInt(id, 10)}, nil
}

func paramInt(params map[string]string, key string) (int64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing param %q", key)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("param %q must be a positive integer", key)
	}
	return n, nil
}

func paramOr(params map[string]string, key, fallback string) string {
	if v := params[key]; v != "" {
		return v
	}
	return fallback
}

// ─── Queue Executor ─────────────────────────────────────────────────────────

// Executor adapts the registry to the effect queue: it runs the effect
// named by a KindEffect item's payload.
type Executor struct {
	registry *Registry
	ledger   *ledger.Ledger
}

// NewExecutor creates the queue-facing executor.
func NewExecutor(r *Registry, led *ledger.Ledger) *Executor {
	return &Executor{registry: r, ledger: led}
}

// Execute implements queue.Executor.
func (e *Executor) Execute(_ context.Context, item domain.QueueItem) error {
	var p domain.EffectPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return fmt.Errorf("decode effect payload: %w", err)
	}
	subject, err := e.ledger.EnsureSubject(p.Subject)
	if err != nil {
		return err
	}
	res := e.registry.Apply(subject, p.EffectName, p.Params)
	if !res.OK {
		return fmt.Errorf("effect %s: %s", p.EffectName, res.Error)
	}
	return nil
}
