package domain

import "testing"

// ─── Curve Tests ────────────────────────────────────────────────────────────

func TestCurve_XPForLevel(t *testing.T) {
	c := DefaultCurve()

	tests := []struct {
		level int
		want  int64
	}{
		{0, 0},
		{1, 0},
		{2, 100}, // 100 × 1^1.8
		{3, 348}, // 100 × 2^1.8 = 348.22…
	}

	for _, tt := range tests {
		got := c.XPForLevel(tt.level)
		if got != tt.want {
			t.Errorf("XPForLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestCurve_LevelFromXP(t *testing.T) {
	c := DefaultCurve()

	tests := []struct {
		totalXP int64
		want    int
	}{
		{0, 1},
		{-5, 1},
		{99, 1},
		{100, 2},
		{150, 2},
		{347, 2},
		{348, 3},
	}

	for _, tt := range tests {
		got := c.LevelFromXP(tt.totalXP)
		if got != tt.want {
			t.Errorf("LevelFromXP(%d) = %d, want %d", tt.totalXP, got, tt.want)
		}
	}
}

func TestCurve_LevelFromXP_Monotonic(t *testing.T) {
	c := DefaultCurve()
	prev := 1
	for xp := int64(0); xp <= 50_000; xp += 37 {
		lvl := c.LevelFromXP(xp)
		if lvl < prev {
			t.Fatalf("level decreased: LevelFromXP(%d) = %d, previous %d", xp, lvl, prev)
		}
		prev = lvl
	}
}

func TestCurve_LevelFromXP_MaxLevel(t *testing.T) {
	c := Curve{Base: 100, Exponent: 1.8, MaxLevel: 10}
	if got := c.LevelFromXP(10_000_000); got != 10 {
		t.Errorf("LevelFromXP(10M) = %d, want capped at 10", got)
	}
}

func TestCurve_LevelThresholdRoundTrip(t *testing.T) {
	// At exactly each threshold the derived level must equal that level,
	// and one XP below it must derive the level beneath.
	c := DefaultCurve()
	for lvl := 2; lvl <= 50; lvl++ {
		th := c.XPForLevel(lvl)
		if got := c.LevelFromXP(th); got != lvl {
			t.Errorf("LevelFromXP(threshold(%d)=%d) = %d, want %d", lvl, th, got, lvl)
		}
		if got := c.LevelFromXP(th - 1); got != lvl-1 {
			t.Errorf("LevelFromXP(threshold(%d)−1) = %d, want %d", lvl, got, lvl-1)
		}
	}
}

func TestCurve_Progress(t *testing.T) {
	c := DefaultCurve()

	into, required, ratio := c.Progress(150, 2)
	if into != 50 {
		t.Errorf("into = %d, want 50", into)
	}
	if required != 248 { // 348 − 100
		t.Errorf("required = %d, want 248", required)
	}
	if ratio <= 0 || ratio >= 1 {
		t.Errorf("ratio = %f, want in (0, 1)", ratio)
	}

	// Ratio never exceeds 1 even with stale level input.
	_, _, ratio = c.Progress(100_000, 2)
	if ratio != 1 {
		t.Errorf("ratio = %f, want clamped to 1", ratio)
	}
}
