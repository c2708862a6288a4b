package domain

import "math"

// ─── Leveling Curve ─────────────────────────────────────────────────────────
// The curve maps cumulative experience to a discrete level:
//
//	threshold(level) = floor(base × (level−1)^exponent)
//
// Level 1 is the starting level and requires 0 XP. With the defaults
// (base=100, exponent=1.8) level 2 costs 100 XP and level 3 costs 348 XP
// cumulative. The curve is strictly increasing above level 1, so the
// derived level is monotonic in total XP.

// Curve holds the leveling configuration constants.
type Curve struct {
	Base     int
	Exponent float64
	MaxLevel int
}

// DefaultCurve returns the stock curve parameters.
func DefaultCurve() Curve {
	return Curve{Base: 100, Exponent: 1.8, MaxLevel: 9999}
}

// normalized clamps curve parameters to sane bounds.
func (c Curve) normalized() Curve {
	if c.Base < 1 {
		c.Base = 100
	}
	if c.Exponent < 0.25 {
		c.Exponent = 1.8
	}
	if c.MaxLevel < 1 {
		c.MaxLevel = 9999
	}
	return c
}

// XPForLevel returns the cumulative XP required to be at level.
func (c Curve) XPForLevel(level int) int64 {
	c = c.normalized()
	if level <= 1 {
		return 0
	}
	return int64(math.Floor(float64(c.Base) * math.Pow(float64(level-1), c.Exponent)))
}

// LevelFromXP returns the largest level whose cumulative threshold does not
// exceed totalXP, bounded by MaxLevel. The analytic inverse gives a fast
// starting point; stepping corrects flooring error.
func (c Curve) LevelFromXP(totalXP int64) int {
	c = c.normalized()
	if totalXP <= 0 {
		return 1
	}

	// Invert: tx = base×(L−1)^exp  ⇒  L = 1 + (tx/base)^(1/exp)
	approx := 1 + int(math.Floor(math.Pow(float64(totalXP)/float64(c.Base), 1.0/c.Exponent)))
	lvl := approx
	if lvl < 1 {
		lvl = 1
	}
	if lvl > c.MaxLevel {
		lvl = c.MaxLevel
	}

	for lvl < c.MaxLevel && c.XPForLevel(lvl+1) <= totalXP {
		lvl++
	}
	for lvl > 1 && c.XPForLevel(lvl) > totalXP {
		lvl--
	}
	return lvl
}

// Progress returns how far totalXP has advanced into the given level:
// XP earned past the level's threshold, XP required to reach the next
// level, and the completion ratio in [0, 1].
func (c Curve) Progress(totalXP int64, level int) (into, required int64, ratio float64) {
	c = c.normalized()
	if level < 1 {
		level = 1
	}
	if totalXP < 0 {
		totalXP = 0
	}

	cur := c.XPForLevel(level)
	next := c.XPForLevel(level + 1)
	required = next - cur
	if required < 1 {
		required = 1
	}
	into = totalXP - cur
	if into < 0 {
		into = 0
	}
	ratio = float64(into) / float64(required)
	if ratio > 1 {
		ratio = 1
	}
	return into, required, ratio
}
