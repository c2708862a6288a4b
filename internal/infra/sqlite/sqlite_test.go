package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glimmer-live/glimmer/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "glimmer_test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Subjects ───────────────────────────────────────────────────────────────

func TestEnsureSubject_CreatesOnce(t *testing.T) {
	db := newTestDB(t)

	a, err := db.EnsureSubject("ada")
	if err != nil {
		t.Fatalf("EnsureSubject() error: %v", err)
	}
	if a.ID == 0 || a.Name != "ada" || !a.Active {
		t.Errorf("subject = %+v", a)
	}

	b, err := db.EnsureSubject("ada")
	if err != nil {
		t.Fatalf("EnsureSubject() second call error: %v", err)
	}
	if b.ID != a.ID {
		t.Errorf("second EnsureSubject id = %d, want %d", b.ID, a.ID)
	}

	// Balance and experience rows exist from the start.
	if bal, err := db.GetBalance(a.ID); err != nil || bal != 0 {
		t.Errorf("GetBalance() = (%d, %v), want (0, nil)", bal, err)
	}
	xp, err := db.GetExperience(a.ID)
	if err != nil || xp.TotalXP != 0 || xp.Level != 1 {
		t.Errorf("GetExperience() = (%+v, %v)", xp, err)
	}
}

func TestGetSubject_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSubject("ghost")
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Errorf("err = %v, want ErrSubjectNotFound", err)
	}
}

func TestDeactivateSubject(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")

	if err := db.DeactivateSubject(s.ID); err != nil {
		t.Fatalf("DeactivateSubject() error: %v", err)
	}
	got, _ := db.GetSubject("ada")
	if got.Active {
		t.Error("subject still active after deactivation")
	}
	if err := db.DeactivateSubject(9999); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Errorf("err = %v, want ErrSubjectNotFound", err)
	}
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func TestApplyCurrencyDelta(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")

	bal, err := db.ApplyCurrencyDelta(s.ID, 100, "grant:test", false)
	if err != nil {
		t.Fatalf("ApplyCurrencyDelta() error: %v", err)
	}
	if bal != 100 {
		t.Errorf("balance = %d, want 100", bal)
	}

	bal, err = db.ApplyCurrencyDelta(s.ID, -30, "spend:test", false)
	if err != nil {
		t.Fatalf("ApplyCurrencyDelta() error: %v", err)
	}
	if bal != 70 {
		t.Errorf("balance = %d, want 70", bal)
	}

	sum, err := db.SumTransactionDeltas(s.ID, domain.TxCurrency)
	if err != nil {
		t.Fatal(err)
	}
	if sum != 70 {
		t.Errorf("sum of deltas = %d, want 70", sum)
	}
}

func TestApplyCurrencyDelta_InsufficientLeavesNoTrace(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")
	db.ApplyCurrencyDelta(s.ID, 50, "seed", false)

	_, err := db.ApplyCurrencyDelta(s.ID, -1000, "spend:big", false)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	bal, _ := db.GetBalance(s.ID)
	if bal != 50 {
		t.Errorf("balance = %d, want unchanged 50", bal)
	}
	txs, _ := db.ListTransactions(s.ID, domain.TxCurrency, 10)
	if len(txs) != 1 {
		t.Errorf("transaction count = %d, want 1 (no record for the rejected spend)", len(txs))
	}
}

func TestApplyCurrencyDelta_AllowNegative(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")

	bal, err := db.ApplyCurrencyDelta(s.ID, -25, "admin:correction", true)
	if err != nil {
		t.Fatalf("ApplyCurrencyDelta() error: %v", err)
	}
	if bal != -25 {
		t.Errorf("balance = %d, want -25", bal)
	}
}

func TestApplyExperienceDelta_FloorsAtZero(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")

	total, err := db.ApplyExperienceDelta(s.ID, 120, "chat")
	if err != nil {
		t.Fatalf("ApplyExperienceDelta() error: %v", err)
	}
	if total != 120 {
		t.Errorf("total = %d, want 120", total)
	}

	total, err = db.ApplyExperienceDelta(s.ID, -500, "admin:correction")
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("total = %d, want floored to 0", total)
	}

	// The clamped deduction records only the delta that took effect, so
	// summing experience transactions reproduces the stored total.
	txs, err := db.ListTransactions(s.ID, domain.TxExperience, 10)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, tr := range txs {
		sum += tr.Delta
	}
	if sum != 0 {
		t.Errorf("transaction sum = %d, want 0", sum)
	}
	if txs[0].Delta != -120 {
		t.Errorf("clamped delta = %d, want -120", txs[0].Delta)
	}
}

func TestFormatTime_FixedWidthOrdersAsInstants(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(120 * time.Millisecond),
		base.Add(123 * time.Millisecond),
		base.Add(123456789 * time.Nanosecond),
		base.Add(time.Second),
	}
	width := len(formatTime(base))
	for i := 1; i < len(times); i++ {
		prev, cur := formatTime(times[i-1]), formatTime(times[i])
		if len(cur) != width {
			t.Errorf("formatTime(%v) width = %d, want %d", times[i], len(cur), width)
		}
		if !(prev < cur) {
			t.Errorf("formatTime order broken: %q >= %q", prev, cur)
		}
		if got := parseTime(cur); !got.Equal(times[i]) {
			t.Errorf("parseTime(%q) = %v, want %v", cur, got, times[i])
		}
	}
}

func TestListTransactions_FiltersKind(t *testing.T) {
	db := newTestDB(t)
	s, _ := db.EnsureSubject("ada")
	db.ApplyCurrencyDelta(s.ID, 10, "a", false)
	db.ApplyExperienceDelta(s.ID, 5, "b")

	txs, err := db.ListTransactions(s.ID, domain.TxExperience, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Kind != domain.TxExperience {
		t.Errorf("txs = %+v, want one experience entry", txs)
	}
}

// ─── Queue ──────────────────────────────────────────────────────────────────

func enqueueSpeech(t *testing.T, db *DB, text string) int64 {
	t.Helper()
	raw, err := domain.EncodePayload(domain.KindSpeech, domain.SpeechPayload{Subject: "ada", Text: text})
	if err != nil {
		t.Fatal(err)
	}
	id, err := db.EnqueueItem(domain.KindSpeech, raw)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestQueue_FIFOWithinKind(t *testing.T) {
	db := newTestDB(t)
	first := enqueueSpeech(t, db, "one")
	second := enqueueSpeech(t, db, "two")
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}

	item, err := db.NextPending(domain.KindSpeech)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.ID != first {
		t.Errorf("NextPending() = %+v, want id %d", item, first)
	}
}

func TestQueue_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	id := enqueueSpeech(t, db, "hello")
	now := time.Now()

	if err := db.ClaimItem(id, now, true); err != nil {
		t.Fatalf("ClaimItem() error: %v", err)
	}
	item, _ := db.GetItem(id)
	if item.Status != domain.StatusRunning {
		t.Errorf("status = %s, want running", item.Status)
	}
	if item.PrimedAt == nil || item.StartedAt == nil {
		t.Error("started_at/primed_at not recorded on claim")
	}

	// Double-claim is an illegal transition.
	if err := db.ClaimItem(id, now, true); !errors.Is(err, ErrConflict) {
		t.Errorf("second claim err = %v, want ErrConflict", err)
	}

	if err := db.MarkDone(id, now); err != nil {
		t.Fatalf("MarkDone() error: %v", err)
	}
	item, _ = db.GetItem(id)
	if item.Status != domain.StatusDone || item.FinishedAt == nil {
		t.Errorf("item = %+v, want done with finished_at", item)
	}

	// done → failed is forward-only illegal.
	if err := db.MarkFailed(id, now, "boom"); !errors.Is(err, ErrConflict) {
		t.Errorf("MarkFailed on done err = %v, want ErrConflict", err)
	}
}

func TestQueue_FailStale(t *testing.T) {
	db := newTestDB(t)
	id := enqueueSpeech(t, db, "stuck")
	started := time.Now().Add(-10 * time.Minute)
	if err := db.ClaimItem(id, started, false); err != nil {
		t.Fatal(err)
	}

	n, err := db.FailStale(time.Now().Add(-5 * time.Minute))
	if err != nil {
		t.Fatalf("FailStale() error: %v", err)
	}
	if n != 1 {
		t.Errorf("FailStale() = %d, want 1", n)
	}
	item, _ := db.GetItem(id)
	if item.Status != domain.StatusFailed || item.Error == "" {
		t.Errorf("item = %+v, want failed with error recorded", item)
	}
}

func TestQueue_CountPending(t *testing.T) {
	db := newTestDB(t)
	enqueueSpeech(t, db, "a")
	enqueueSpeech(t, db, "b")
	n, err := db.CountPending(domain.KindSpeech)
	if err != nil || n != 2 {
		t.Errorf("CountPending() = (%d, %v), want (2, nil)", n, err)
	}
}

// ─── Redeems ────────────────────────────────────────────────────────────────

func TestSeedRedeems_DoesNotOverwrite(t *testing.T) {
	db := newTestDB(t)
	if err := db.SeedRedeems(domain.DefaultRedeems()); err != nil {
		t.Fatalf("SeedRedeems() error: %v", err)
	}

	r, err := db.GetRedeem("speech")
	if err != nil {
		t.Fatalf("GetRedeem() error: %v", err)
	}
	r.Cost = 999
	if err := db.UpsertRedeem(r); err != nil {
		t.Fatal(err)
	}

	// Re-seeding must keep the admin-edited cost.
	if err := db.SeedRedeems(domain.DefaultRedeems()); err != nil {
		t.Fatal(err)
	}
	r, _ = db.GetRedeem("speech")
	if r.Cost != 999 {
		t.Errorf("cost = %d, want preserved 999", r.Cost)
	}
}

func TestToggleRedeem(t *testing.T) {
	db := newTestDB(t)
	db.SeedRedeems(domain.DefaultRedeems())

	if err := db.ToggleRedeem("draw", false); err != nil {
		t.Fatalf("ToggleRedeem() error: %v", err)
	}
	r, _ := db.GetRedeem("draw")
	if r.Enabled {
		t.Error("redeem still enabled")
	}

	if err := db.ToggleRedeem("nope", true); !errors.Is(err, domain.ErrRedeemNotFound) {
		t.Errorf("err = %v, want ErrRedeemNotFound", err)
	}
}
