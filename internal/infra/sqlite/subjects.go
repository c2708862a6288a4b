package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// ─── Subject Operations ─────────────────────────────────────────────────────

// EnsureSubject returns the subject named name, creating it (with zeroed
// balance and experience rows) on first sight, and refreshing last_seen
// otherwise.
func (db *DB) EnsureSubject(name string) (domain.Subject, error) {
	now := time.Now()
	sub, err := db.GetSubject(name)
	if err == nil {
		_, uerr := db.db.Exec(`UPDATE subjects SET last_seen = ? WHERE id = ?`,
			formatTime(now), sub.ID)
		if uerr != nil {
			return domain.Subject{}, fmt.Errorf("touch subject: %w", uerr)
		}
		sub.LastSeen = now
		return sub, nil
	}
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		return domain.Subject{}, err
	}

	res, err := db.db.Exec(`
		INSERT INTO subjects (name, active, first_seen, last_seen)
		VALUES (?, 1, ?, ?)
	`, name, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Subject{}, err
	}
	if _, err := db.db.Exec(`INSERT OR IGNORE INTO balances (subject_id, balance) VALUES (?, 0)`, id); err != nil {
		return domain.Subject{}, fmt.Errorf("init balance: %w", err)
	}
	if _, err := db.db.Exec(`INSERT OR IGNORE INTO experience (subject_id, total_xp, level) VALUES (?, 0, 1)`, id); err != nil {
		return domain.Subject{}, fmt.Errorf("init experience: %w", err)
	}

	return domain.Subject{ID: id, Name: name, Active: true, FirstSeen: now, LastSeen: now}, nil
}

// GetSubject looks a subject up by name.
func (db *DB) GetSubject(name string) (domain.Subject, error) {
	return db.scanSubject(db.db.QueryRow(`
		SELECT id, name, active, first_seen, last_seen FROM subjects WHERE name = ?
	`, name))
}

func (db *DB) scanSubject(row *sql.Row) (domain.Subject, error) {
	var s domain.Subject
	var activeInt int
	var first, last string
	err := row.Scan(&s.ID, &s.Name, &activeInt, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	if err != nil {
		return domain.Subject{}, err
	}
	s.Active = activeInt == 1
	s.FirstSeen = parseTime(first)
	s.LastSeen = parseTime(last)
	return s, nil
}

// ListSubjects returns all subjects, active ones first by name.
func (db *DB) ListSubjects() ([]domain.Subject, error) {
	rows, err := db.db.Query(`
		SELECT id, name, active, first_seen, last_seen
		FROM subjects ORDER BY active DESC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Subject
	for rows.Next() {
		var s domain.Subject
		var activeInt int
		var first, last string
		if err := rows.Scan(&s.ID, &s.Name, &activeInt, &first, &last); err != nil {
			return nil, err
		}
		s.Active = activeInt == 1
		s.FirstSeen = parseTime(first)
		s.LastSeen = parseTime(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeactivateSubject marks a subject inactive. Subjects are never deleted.
func (db *DB) DeactivateSubject(id int64) error {
	res, err := db.db.Exec(`UPDATE subjects SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubjectNotFound
	}
	return nil
}

// ─── Balance / Experience Reads ─────────────────────────────────────────────

// GetBalance returns a subject's current currency balance.
func (db *DB) GetBalance(subjectID int64) (int64, error) {
	var bal int64
	err := db.db.QueryRow(`SELECT balance FROM balances WHERE subject_id = ?`, subjectID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

// GetExperience returns a subject's experience record.
func (db *DB) GetExperience(subjectID int64) (domain.ExperienceRecord, error) {
	rec := domain.ExperienceRecord{SubjectID: subjectID, Level: 1}
	err := db.db.QueryRow(`
		SELECT total_xp, level FROM experience WHERE subject_id = ?
	`, subjectID).Scan(&rec.TotalXP, &rec.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	return rec, err
}
