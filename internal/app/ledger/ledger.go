// Package ledger is the authoritative balance-mutation surface. Every
// mutation commits the balance change and its transaction record
// atomically, and same-subject operations are serialized through striped
// locks so concurrent grants and spends never lose updates. Operations on
// different subjects proceed independently.
package ledger

import (
	"fmt"

	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/observability"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

// Ledger mediates all currency mutations.
type Ledger struct {
	db      *sqlite.DB
	stripes *Stripes
}

// New creates a ledger over db.
func New(db *sqlite.DB) *Ledger {
	return &Ledger{db: db, stripes: NewStripes()}
}

// EnsureSubject creates a subject on first sight and refreshes last_seen
// otherwise.
func (l *Ledger) EnsureSubject(name string) (domain.Subject, error) {
	return l.db.EnsureSubject(name)
}

// Subject looks a subject up by name.
func (l *Ledger) Subject(name string) (domain.Subject, error) {
	return l.db.GetSubject(name)
}

// ListSubjects returns all active subjects.
func (l *Ledger) ListSubjects() ([]domain.Subject, error) {
	return l.db.ListSubjects()
}

// Balance returns a subject's current balance.
func (l *Ledger) Balance(subjectID int64) (int64, error) {
	return l.db.GetBalance(subjectID)
}

// Grant adds amount (> 0) to a subject's balance. Always succeeds for a
// known subject.
func (l *Ledger) Grant(subjectID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return l.apply(subjectID, amount, reason, false)
}

// Spend removes amount (> 0) from a subject's balance. Fails with
// domain.ErrInsufficientBalance when the balance cannot cover it; no
// partial spend occurs.
func (l *Ledger) Spend(subjectID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return l.apply(subjectID, -amount, reason, false)
}

// Adjust is the administrative path: delta may have either sign, and
// allowNegative permits the balance to drop below zero. A disallowed
// negative result fails with domain.ErrInsufficientBalance and performs no
// mutation.
func (l *Ledger) Adjust(subjectID, delta int64, reason string, allowNegative bool) (int64, error) {
	if delta == 0 {
		return l.db.GetBalance(subjectID)
	}
	return l.apply(subjectID, delta, reason, allowNegative)
}

func (l *Ledger) apply(subjectID, delta int64, reason string, allowNegative bool) (int64, error) {
	unlock := l.stripes.Lock(subjectID)
	defer unlock()

	bal, err := l.db.ApplyCurrencyDelta(subjectID, delta, reason, allowNegative)
	if err != nil {
		return bal, err
	}
	observability.TransactionsTotal.WithLabelValues(string(domain.TxCurrency)).Inc()
	return bal, nil
}

// Transactions returns a subject's recent transaction history.
func (l *Ledger) Transactions(subjectID int64, kind domain.TransactionKind, limit int) ([]domain.Transaction, error) {
	return l.db.ListTransactions(subjectID, kind, limit)
}

// Audit verifies the balance-conservation invariant for one subject:
// balance == sum of its currency transaction deltas.
func (l *Ledger) Audit(subjectID int64) error {
	unlock := l.stripes.Lock(subjectID)
	defer unlock()

	bal, err := l.db.GetBalance(subjectID)
	if err != nil {
		return err
	}
	sum, err := l.db.SumTransactionDeltas(subjectID, domain.TxCurrency)
	if err != nil {
		return err
	}
	if bal != sum {
		return fmt.Errorf("ledger drift for subject %d: balance %d, transaction sum %d", subjectID, bal, sum)
	}
	return nil
}
