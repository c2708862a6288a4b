// Package batch fans an administrative ledger or leveling operation out
// across many subjects. Each subject's mutation is its own short critical
// section: one failure is recorded and the iteration continues, and no
// lock is held for the batch's duration. The batch is not transactional
// across subjects: re-running a completed batch double-applies.
package batch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// Operation is the direction of a batch mutation.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
)

// Request describes one batch run.
type Request struct {
	Operation     Operation              `json:"operation"`
	Kind          domain.TransactionKind `json:"kind"` // currency or experience
	Amount        int64                  `json:"amount"`
	All           bool                   `json:"all"`      // target every known subject
	Subjects      []string               `json:"subjects"` // explicit target list
	Reason        string                 `json:"reason"`
	AllowNegative bool                   `json:"allow_negative"` // currency only
}

// SubjectError records one per-subject failure.
type SubjectError struct {
	Subject string `json:"subject"`
	Error   string `json:"error"`
}

// LevelUp records a subject whose XP batch crossed a level boundary.
type LevelUp struct {
	Subject     string `json:"subject"`
	LevelBefore int    `json:"level_before"`
	LevelAfter  int    `json:"level_after"`
}

// Report aggregates a batch run.
type Report struct {
	ID       string         `json:"id"`
	Total    int            `json:"total"`
	Success  int            `json:"success"`
	Failed   int            `json:"failed"`
	Errors   []SubjectError `json:"errors,omitempty"`
	LevelUps []LevelUp      `json:"level_ups,omitempty"`
}

// Coordinator runs batch operations.
type Coordinator struct {
	db       *sqlite.DB
	ledger   *ledger.Ledger
	leveling *leveling.Engine
}

// New creates a batch coordinator.
func New(db *sqlite.DB, led *ledger.Ledger, lvl *leveling.Engine) *Coordinator {
	return &Coordinator{db: db, ledger: led, leveling: lvl}
}

// Apply validates and runs a batch. Validation failures reject the whole
// request before any mutation; per-subject failures afterwards are
// isolated into the report.
func (c *Coordinator) Apply(req Request) (Report, error) {
	if req.Amount <= 0 {
		return Report{}, domain.ErrInvalidAmount
	}
	switch req.Operation {
	case OpAdd, OpSubtract:
	default:
		return Report{}, fmt.Errorf("%w: invalid operation %q", domain.ErrInvalidRequest, req.Operation)
	}
	switch req.Kind {
	case domain.TxCurrency, domain.TxExperience:
	default:
		return Report{}, fmt.Errorf("%w: invalid kind %q", domain.ErrInvalidRequest, req.Kind)
	}
	if !req.All && len(req.Subjects) == 0 {
		return Report{}, fmt.Errorf("%w: no target subjects", domain.ErrInvalidRequest)
	}
	if req.Reason == "" {
		req.Reason = "batch_admin"
	}

	delta := req.Amount
	if req.Operation == OpSubtract {
		delta = -req.Amount
	}

	report := Report{ID: uuid.NewString()}
	observability.BatchOperationsTotal.WithLabelValues(string(req.Operation)).Inc()

	if req.All {
		subjects, err := c.db.ListSubjects()
		if err != nil {
			return Report{}, fmt.Errorf("list subjects: %w", err)
		}
		report.Total = len(subjects)
		for _, s := range subjects {
			c.applyOne(&report, s, req.Kind, delta, req.Reason, req.AllowNegative)
		}
		return report, nil
	}

	report.Total = len(req.Subjects)
	for _, name := range req.Subjects {
		s, err := c.db.GetSubject(name)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, SubjectError{Subject: name, Error: errText(err)})
			continue
		}
		c.applyOne(&report, s, req.Kind, delta, req.Reason, req.AllowNegative)
	}
	return report, nil
}

func (c *Coordinator) applyOne(report *Report, s domain.Subject, kind domain.TransactionKind, delta int64, reason string, allowNegative bool) {
	switch kind {
	case domain.TxCurrency:
		if _, err := c.ledger.Adjust(s.ID, delta, reason, allowNegative); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, SubjectError{Subject: s.Name, Error: errText(err)})
			return
		}
	case domain.TxExperience:
		res, err := c.leveling.ApplyXP(s.ID, s.Name, delta, reason, "batch_admin")
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, SubjectError{Subject: s.Name, Error: errText(err)})
			return
		}
		if res.LevelAfter != res.LevelBefore {
			report.LevelUps = append(report.LevelUps, LevelUp{
				Subject:     s.Name,
				LevelBefore: res.LevelBefore,
				LevelAfter:  res.LevelAfter,
			})
		}
	}
	report.Success++
}

func errText(err error) string {
	switch {
	case errors.Is(err, domain.ErrSubjectNotFound):
		return "not found"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient balance"
	default:
		return err.Error()
	}
}
