package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// ─── Ledger Operations ──────────────────────────────────────────────────────
// Each apply commits the balance mutation and its transaction record as a
// single SQLite transaction: either both happen or neither does.

// ApplyCurrencyDelta mutates a subject's balance by delta and appends the
// matching currency transaction. When allowNegative is false and the
// result would drop below zero, nothing is written and
// domain.ErrInsufficientBalance is returned.
func (db *DB) ApplyCurrencyDelta(subjectID, delta int64, reason string, allowNegative bool) (int64, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO balances (subject_id, balance) VALUES (?, 0)`, subjectID); err != nil {
		return 0, err
	}

	var balance int64
	if err := tx.QueryRow(`SELECT balance FROM balances WHERE subject_id = ?`, subjectID).Scan(&balance); err != nil {
		return 0, err
	}

	newBalance := balance + delta
	if newBalance < 0 && !allowNegative {
		return balance, domain.ErrInsufficientBalance
	}

	if _, err := tx.Exec(`UPDATE balances SET balance = ? WHERE subject_id = ?`, newBalance, subjectID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		INSERT INTO transactions (subject_id, kind, delta, reason, balance_after, created_at)
		VALUES (?, 'currency', ?, ?, ?, ?)
	`, subjectID, delta, reason, newBalance, formatTime(time.Now())); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newBalance, nil
}

// ApplyExperienceDelta mutates a subject's total XP by delta (floored at
// zero) and appends the matching experience transaction. The derived level
// is the caller's concern; use SetLevel after recomputing it.
func (db *DB) ApplyExperienceDelta(subjectID, delta int64, reason string) (int64, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO experience (subject_id, total_xp, level) VALUES (?, 0, 1)`, subjectID); err != nil {
		return 0, err
	}

	var total int64
	if err := tx.QueryRow(`SELECT total_xp FROM experience WHERE subject_id = ?`, subjectID).Scan(&total); err != nil {
		return 0, err
	}

	newTotal := total + delta
	if newTotal < 0 {
		newTotal = 0
	}
	// Record the delta that actually took effect so the transaction sum
	// matches total_xp even when the floor clamps a large deduction.
	applied := newTotal - total

	if _, err := tx.Exec(`UPDATE experience SET total_xp = ? WHERE subject_id = ?`, newTotal, subjectID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		INSERT INTO transactions (subject_id, kind, delta, reason, balance_after, created_at)
		VALUES (?, 'experience', ?, ?, ?, ?)
	`, subjectID, applied, reason, newTotal, formatTime(time.Now())); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newTotal, nil
}

// SetLevel stores the recomputed derived level for a subject.
func (db *DB) SetLevel(subjectID int64, level int) error {
	_, err := db.db.Exec(`UPDATE experience SET level = ? WHERE subject_id = ?`, level, subjectID)
	return err
}

// ListTransactions returns a subject's most recent transactions, newest
// first. kind filters to currency or experience when non-empty.
func (db *DB) ListTransactions(subjectID int64, kind domain.TransactionKind, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, subject_id, kind, delta, reason, balance_after, created_at
		FROM transactions WHERE subject_id = ?`
	args := []any{subjectID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var created string
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Kind, &t.Delta, &t.Reason, &t.BalanceAfter, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumTransactionDeltas returns the sum of all deltas of the given kind for
// a subject. Used to audit the balance-conservation invariant.
func (db *DB) SumTransactionDeltas(subjectID int64, kind domain.TransactionKind) (int64, error) {
	var sum sql.NullInt64
	err := db.db.QueryRow(`
		SELECT SUM(delta) FROM transactions WHERE subject_id = ? AND kind = ?
	`, subjectID, string(kind)).Scan(&sum)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return sum.Int64, nil
}
