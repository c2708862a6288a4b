package batch

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.Ledger, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "batch_test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	led := ledger.New(db)
	lvl := leveling.New(db, led, queue.NewService(db, 0), domain.DefaultCurve(), nil)
	return New(db, led, lvl), led, db
}

func TestApply_UnknownSubjectDoesNotAbort(t *testing.T) {
	c, led, db := newTestCoordinator(t)
	a, _ := db.EnsureSubject("alice")
	cc, _ := db.EnsureSubject("carol")

	report, err := c.Apply(Request{
		Operation: OpAdd,
		Kind:      domain.TxCurrency,
		Amount:    100,
		Subjects:  []string{"alice", "bob", "carol"},
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if report.Total != 3 || report.Success != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want total 3 / success 2 / failed 1", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].Subject != "bob" || report.Errors[0].Error != "not found" {
		t.Errorf("errors = %+v, want [{bob, not found}]", report.Errors)
	}

	for _, s := range []domain.Subject{a, cc} {
		bal, _ := led.Balance(s.ID)
		if bal != 100 {
			t.Errorf("%s balance = %d, want exactly 100", s.Name, bal)
		}
	}
	if report.ID == "" {
		t.Error("report has no id")
	}
}

func TestApply_InsufficientBalanceIsolated(t *testing.T) {
	c, led, db := newTestCoordinator(t)
	rich, _ := db.EnsureSubject("rich")
	poor, _ := db.EnsureSubject("poor")
	led.Grant(rich.ID, 500, "seed")

	report, err := c.Apply(Request{
		Operation: OpSubtract,
		Kind:      domain.TxCurrency,
		Amount:    100,
		Subjects:  []string{"rich", "poor"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Success != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want one success, one failure", report)
	}
	if report.Errors[0].Subject != "poor" || report.Errors[0].Error != "insufficient balance" {
		t.Errorf("errors = %+v", report.Errors)
	}

	bal, _ := led.Balance(rich.ID)
	if bal != 400 {
		t.Errorf("rich balance = %d, want 400", bal)
	}
	bal, _ = led.Balance(poor.ID)
	if bal != 0 {
		t.Errorf("poor balance = %d, want untouched 0", bal)
	}
}

func TestApply_ExperienceTracksLevelUps(t *testing.T) {
	c, _, db := newTestCoordinator(t)
	db.EnsureSubject("ada")
	db.EnsureSubject("bob")

	report, err := c.Apply(Request{
		Operation: OpAdd,
		Kind:      domain.TxExperience,
		Amount:    150,
		Subjects:  []string{"ada", "bob"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Success != 2 || len(report.LevelUps) != 2 {
		t.Fatalf("report = %+v, want 2 successes with 2 level-ups", report)
	}
	for _, lu := range report.LevelUps {
		if lu.LevelBefore != 1 || lu.LevelAfter != 2 {
			t.Errorf("level up = %+v, want 1→2", lu)
		}
	}
}

func TestApply_AllTargetsEveryKnownSubject(t *testing.T) {
	c, led, db := newTestCoordinator(t)
	a, _ := db.EnsureSubject("ada")
	b, _ := db.EnsureSubject("bob")

	report, err := c.Apply(Request{
		Operation: OpAdd,
		Kind:      domain.TxCurrency,
		Amount:    50,
		All:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 || report.Success != 2 {
		t.Errorf("report = %+v", report)
	}
	for _, s := range []domain.Subject{a, b} {
		bal, _ := led.Balance(s.ID)
		if bal != 50 {
			t.Errorf("%s balance = %d, want 50", s.Name, bal)
		}
	}
}

func TestApply_Validation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"zero amount", Request{Operation: OpAdd, Kind: domain.TxCurrency, Amount: 0, All: true}},
		{"negative amount", Request{Operation: OpAdd, Kind: domain.TxCurrency, Amount: -5, All: true}},
		{"bad operation", Request{Operation: "multiply", Kind: domain.TxCurrency, Amount: 1, All: true}},
		{"bad kind", Request{Operation: OpAdd, Kind: "karma", Amount: 1, All: true}},
		{"no targets", Request{Operation: OpAdd, Kind: domain.TxCurrency, Amount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Apply(tt.req); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApply_InvalidAmountSentinel(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, err := c.Apply(Request{Operation: OpAdd, Kind: domain.TxCurrency, Amount: 0, All: true})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}
