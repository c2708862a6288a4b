package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// ─── Queue Operations ───────────────────────────────────────────────────────
// Status transitions are enforced in SQL: every UPDATE carries the expected
// current status in its WHERE clause, so an illegal transition affects zero
// rows and is reported as an error.

// ErrConflict is returned when a status transition races or is illegal.
var ErrConflict = errors.New("queue item not in expected status")

// EnqueueItem appends a pending item and returns its id. Ids are assigned
// by AUTOINCREMENT, giving the strict per-kind creation order the
// processor relies on.
func (db *DB) EnqueueItem(kind domain.QueueKind, payloadJSON []byte) (int64, error) {
	res, err := db.db.Exec(`
		INSERT INTO queue_items (kind, status, payload_json, created_at)
		VALUES (?, 'pending', ?, ?)
	`, string(kind), string(payloadJSON), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return res.LastInsertId()
}

// NextPending returns the oldest pending item of a kind, or nil.
func (db *DB) NextPending(kind domain.QueueKind) (*domain.QueueItem, error) {
	return db.queryOneItem(`
		SELECT id, kind, status, payload_json, created_at, started_at, primed_at, finished_at, error
		FROM queue_items WHERE kind = ? AND status = 'pending'
		ORDER BY id ASC LIMIT 1
	`, string(kind))
}

// RunningItem returns the currently running item of a kind, or nil.
// At most one item per kind is ever running.
func (db *DB) RunningItem(kind domain.QueueKind) (*domain.QueueItem, error) {
	return db.queryOneItem(`
		SELECT id, kind, status, payload_json, created_at, started_at, primed_at, finished_at, error
		FROM queue_items WHERE kind = ? AND status = 'running'
		ORDER BY id ASC LIMIT 1
	`, string(kind))
}

// ClaimItem transitions pending → running, recording started_at and, when
// primed is set, primed_at for two-phase delivery.
func (db *DB) ClaimItem(id int64, now time.Time, primed bool) error {
	var primedAt any
	if primed {
		primedAt = formatTime(now)
	}
	res, err := db.db.Exec(`
		UPDATE queue_items SET status = 'running', started_at = ?, primed_at = ?
		WHERE id = ? AND status = 'pending'
	`, formatTime(now), primedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkDone transitions running → done.
func (db *DB) MarkDone(id int64, now time.Time) error {
	res, err := db.db.Exec(`
		UPDATE queue_items SET status = 'done', finished_at = ?
		WHERE id = ? AND status = 'running'
	`, formatTime(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkFailed transitions running → failed, recording the executor error.
func (db *DB) MarkFailed(id int64, now time.Time, msg string) error {
	res, err := db.db.Exec(`
		UPDATE queue_items SET status = 'failed', finished_at = ?, error = ?
		WHERE id = ? AND status = 'running'
	`, formatTime(now), msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// CountPending counts pending items of a kind, for size-limit enforcement.
func (db *DB) CountPending(kind domain.QueueKind) (int, error) {
	var n int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM queue_items WHERE kind = ? AND status = 'pending'
	`, string(kind)).Scan(&n)
	return n, err
}

// FailStale marks items running since before cutoff as failed and returns
// how many were affected. The watchdog calls this so a crashed executor
// never wedges its queue.
func (db *DB) FailStale(cutoff time.Time) (int64, error) {
	res, err := db.db.Exec(`
		UPDATE queue_items SET status = 'failed', finished_at = ?, error = ?
		WHERE status = 'running' AND started_at < ?
	`, formatTime(time.Now()), domain.ErrQueueStalled.Error(), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListItems returns queue items, newest first, optionally filtered by
// status and kind.
func (db *DB) ListItems(status domain.QueueStatus, kind domain.QueueKind, limit int) ([]domain.QueueItem, error) {
	if limit < 1 {
		limit = 100
	}
	query := `
		SELECT id, kind, status, payload_json, created_at, started_at, primed_at, finished_at, error
		FROM queue_items WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
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

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// GetItem returns one queue item by id.
func (db *DB) GetItem(id int64) (*domain.QueueItem, error) {
	return db.queryOneItem(`
		SELECT id, kind, status, payload_json, created_at, started_at, primed_at, finished_at, error
		FROM queue_items WHERE id = ?
	`, id)
}

// ─── Scanning ───────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var payload, created string
	var started, primed, finished sql.NullString
	if err := r.Scan(&item.ID, &item.Kind, &item.Status, &payload, &created,
		&started, &primed, &finished, &item.Error); err != nil {
		return nil, err
	}
	item.Payload = []byte(payload)
	item.CreatedAt = parseTime(created)
	item.StartedAt = parseNullTime(started)
	item.PrimedAt = parseNullTime(primed)
	item.FinishedAt = parseNullTime(finished)
	return &item, nil
}

func (db *DB) queryOneItem(query string, args ...any) (*domain.QueueItem, error) {
	item, err := scanItem(db.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}
