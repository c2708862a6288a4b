package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glimmer-live/glimmer/internal/app/batch"
	"github.com/glimmer-live/glimmer/internal/domain"
)

// ─── Events ─────────────────────────────────────────────────────────────────

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ev.Type == "" || strings.TrimSpace(ev.Subject) == "" {
		writeError(w, http.StatusBadRequest, "type and subject are required")
		return
	}
	if ev.Source == "" {
		ev.Source = "api"
	}

	award, err := s.pipeline.HandleEvent(ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if award == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"awarded": false,
		})
		return
	}
	if !award.Admitted {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"awarded":       false,
			"retry_after_s": award.RetryAfter,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"awarded": true,
		"award":   award,
	})
}

// ─── Subjects ───────────────────────────────────────────────────────────────

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.ledger.ListSubjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subjects": subjects,
	})
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := s.ledger.Subject(chi.URLParam(r, "name"))
	if err != nil {
		writeMappedError(w, err)
		return
	}

	balance, err := s.ledger.Balance(subject.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := s.leveling.Experience(subject.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	into, required, ratio, err := s.leveling.Progress(subject.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject": subject,
		"balance": balance,
		"experience": map[string]interface{}{
			"total_xp":       rec.TotalXP,
			"level":          rec.Level,
			"into_level":     into,
			"required":       required,
			"progress_ratio": ratio,
		},
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	subject, err := s.ledger.Subject(chi.URLParam(r, "name"))
	if err != nil {
		writeMappedError(w, err)
		return
	}

	kind := domain.TransactionKind(r.URL.Query().Get("kind"))
	if kind != "" && kind != domain.TxCurrency && kind != domain.TxExperience {
		writeError(w, http.StatusBadRequest, "kind must be currency or experience")
		return
	}
	limit := queryInt(r, "limit", 50)

	txs, err := s.ledger.Transactions(subject.ID, kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject":      subject.Name,
		"transactions": txs,
	})
}

// ─── Redeems ────────────────────────────────────────────────────────────────

func (s *Server) handleListRedeems(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.redeems.Catalog()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redeems": catalog,
	})
}

func (s *Server) handleUpsertRedeem(w http.ResponseWriter, r *http.Request) {
	var entry domain.Redeem
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.redeems.Upsert(entry); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"key":    entry.Key,
	})
}

func (s *Server) handleToggleRedeem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.redeems.Toggle(chi.URLParam(r, "key"), body.Enabled); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Text    string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	res, err := s.redeems.Redeem(body.Subject, chi.URLParam(r, "key"), body.Text)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Queue ──────────────────────────────────────────────────────────────────

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	status := domain.QueueStatus(r.URL.Query().Get("status"))
	kind := domain.QueueKind(r.URL.Query().Get("kind"))
	limit := queryInt(r, "limit", 50)

	items, err := s.queue.List(status, kind, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject       string `json:"subject"`
		Kind          string `json:"kind"`
		Delta         int64  `json:"delta"`
		Reason        string `json:"reason"`
		AllowNegative bool   `json:"allow_negative"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if body.Reason == "" {
		body.Reason = "admin:adjust"
	}

	subject, err := s.ledger.EnsureSubject(body.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch domain.TransactionKind(body.Kind) {
	case domain.TxCurrency:
		balance, err := s.ledger.Adjust(subject.ID, body.Delta, body.Reason, body.AllowNegative)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"subject": subject.Name,
			"balance": balance,
		})
	case domain.TxExperience:
		res, err := s.leveling.ApplyXP(subject.ID, subject.Name, body.Delta, body.Reason, "admin")
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeError(w, http.StatusBadRequest, "kind must be currency or experience")
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report, err := s.batch.Apply(req)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRulesReload(w http.ResponseWriter, r *http.Request) {
	if s.rulesReload == nil {
		writeError(w, http.StatusBadRequest, "no rules file configured")
		return
	}
	if err := s.rulesReload(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeMappedError translates domain errors to HTTP statuses. Cooldown
// rejections get 429 with the seconds remaining so clients can back off
// precisely.
func writeMappedError(w http.ResponseWriter, err error) {
	remaining, onCooldown := domain.IsCooldown(err)
	switch {
	case onCooldown:
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{
				"message":       err.Error(),
				"type":          "cooldown",
				"retry_after_s": remaining,
			},
		})
	case errors.Is(err, domain.ErrSubjectNotFound), errors.Is(err, domain.ErrRedeemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRedeemDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
