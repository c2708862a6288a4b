package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// ─── Redeem Catalog Operations ──────────────────────────────────────────────

const redeemColumns = `key, display_name, kind, cost, cooldown_s, enabled, effect_name, effect_params, created_at, updated_at`

// SeedRedeems inserts any missing catalog entries. Existing rows are left
// untouched so admin edits survive restarts.
func (db *DB) SeedRedeems(defaults []domain.Redeem) error {
	now := formatTime(time.Now())
	for _, r := range defaults {
		params, err := encodeParams(r.EffectParams)
		if err != nil {
			return err
		}
		_, err = db.db.Exec(`
			INSERT OR IGNORE INTO redeems (`+redeemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.Key, r.DisplayName, string(r.Kind), r.Cost, int64(r.Cooldown/time.Second),
			boolInt(r.Enabled), r.EffectName, params, now, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRedeem looks a redeem up by key.
func (db *DB) GetRedeem(key string) (domain.Redeem, error) {
	return scanRedeem(db.db.QueryRow(`
		SELECT `+redeemColumns+` FROM redeems WHERE key = ?
	`, key))
}

// ListRedeems returns the full catalog ordered by key.
func (db *DB) ListRedeems() ([]domain.Redeem, error) {
	rows, err := db.db.Query(`
		SELECT ` + redeemColumns + ` FROM redeems ORDER BY key ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Redeem
	for rows.Next() {
		r, err := scanRedeemRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRedeem creates or updates a catalog entry.
func (db *DB) UpsertRedeem(r domain.Redeem) error {
	params, err := encodeParams(r.EffectParams)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	_, err = db.db.Exec(`
		INSERT INTO redeems (`+redeemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			display_name  = excluded.display_name,
			kind          = excluded.kind,
			cost          = excluded.cost,
			cooldown_s    = excluded.cooldown_s,
			enabled       = excluded.enabled,
			effect_name   = excluded.effect_name,
			effect_params = excluded.effect_params,
			updated_at    = excluded.updated_at
	`, r.Key, r.DisplayName, string(r.Kind), r.Cost, int64(r.Cooldown/time.Second),
		boolInt(r.Enabled), r.EffectName, params, now, now)
	return err
}

// ToggleRedeem enables or disables a catalog entry.
func (db *DB) ToggleRedeem(key string, enabled bool) error {
	res, err := db.db.Exec(`
		UPDATE redeems SET enabled = ?, updated_at = ? WHERE key = ?
	`, boolInt(enabled), formatTime(time.Now()), key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRedeemNotFound
	}
	return nil
}

type redeemScanner interface {
	Scan(dest ...any) error
}

func scanRedeem(row *sql.Row) (domain.Redeem, error) {
	r, err := scanRedeemRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Redeem{}, domain.ErrRedeemNotFound
	}
	return r, err
}

func scanRedeemRow(sc redeemScanner) (domain.Redeem, error) {
	var r domain.Redeem
	var kind string
	var cooldownS int64
	var enabled int
	var params, created, updated string
	err := sc.Scan(&r.Key, &r.DisplayName, &kind, &r.Cost, &cooldownS, &enabled,
		&r.EffectName, &params, &created, &updated)
	if err != nil {
		return domain.Redeem{}, err
	}
	r.Kind = domain.QueueKind(kind)
	r.Cooldown = time.Duration(cooldownS) * time.Second
	r.Enabled = enabled == 1
	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &r.EffectParams); err != nil {
			return domain.Redeem{}, fmt.Errorf("redeem %s: decode params: %w", r.Key, err)
		}
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

func encodeParams(params map[string]string) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
