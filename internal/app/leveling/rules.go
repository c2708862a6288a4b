package leveling

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// RuleTable holds the level-reward rules, loaded once at startup and
// replaced wholesale on explicit reload, never re-read per call.
type RuleTable struct {
	path  string
	rules atomic.Pointer[map[int]domain.LevelRewardRule]
}

// LoadRules reads the rule file at path. A missing file yields an empty
// table; a malformed file is an error.
func LoadRules(path string) (*RuleTable, error) {
	t := &RuleTable{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// EmptyRules returns a table with no rules (and no backing file).
func EmptyRules() *RuleTable {
	t := &RuleTable{}
	empty := map[int]domain.LevelRewardRule{}
	t.rules.Store(&empty)
	return t
}

// Reload re-reads the rule file and swaps the table atomically. In-flight
// lookups keep seeing the previous snapshot.
func (t *RuleTable) Reload() error {
	m := map[int]domain.LevelRewardRule{}
	if t.path != "" {
		raw, err := os.ReadFile(t.path)
		if os.IsNotExist(err) {
			t.rules.Store(&m)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rules: %w", err)
		}
		var list []domain.LevelRewardRule
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("parse rules: %w", err)
		}
		for _, r := range list {
			if r.Level < 2 {
				continue
			}
			m[r.Level] = r
		}
	}
	t.rules.Store(&m)
	return nil
}

// Rule returns the rule for a level, if any.
func (t *RuleTable) Rule(level int) (domain.LevelRewardRule, bool) {
	m := t.rules.Load()
	if m == nil {
		return domain.LevelRewardRule{}, false
	}
	r, ok := (*m)[level]
	return r, ok
}

// Len returns the number of loaded rules.
func (t *RuleTable) Len() int {
	m := t.rules.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Set installs a rule directly (tests and admin seeding).
func (t *RuleTable) Set(r domain.LevelRewardRule) {
	old := t.rules.Load()
	m := map[int]domain.LevelRewardRule{}
	if old != nil {
		for k, v := range *old {
			m[k] = v
		}
	}
	m[r.Level] = r
	t.rules.Store(&m)
}
