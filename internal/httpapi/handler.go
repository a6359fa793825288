// Package httpapi exposes the reward engine over REST. Handlers translate
// between wire payloads and the app facade; every correctness guarantee
// lives below this layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mendwell/reward-engine/internal/app"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/metrics"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// actionByStreak maps streak check-in routes to their daily action kind.
var actionByStreak = map[streak.Type]reward.ActionKind{
	streak.TypeRitual:    reward.ActionRitual,
	streak.TypeNoContact: reward.ActionNoContactCheckin,
}

type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the REST router.
func NewHandler(application *app.Application, log *logger.Logger, limiter *RateLimiter) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/balance", h.balance)
		r.Get("/daily", h.dailyRecord)
		r.Get("/ledger", h.ledger)
		r.Get("/streaks", h.streaks)
		r.Get("/quota/{resource}", h.quota)
		r.Get("/achievements", h.achievements)
		r.Get("/achievements/progress", h.achievementProgress)

		mutating := r
		if limiter != nil {
			mutating = r.With(limiter.Middleware)
		}
		mutating.Post("/actions", h.recordAction)
		mutating.Post("/streaks/{type}/checkin", h.streakCheckin)
		mutating.Post("/quota/{resource}/consume", h.consumeQuota)
		mutating.Post("/quota/purchase", h.purchaseQuota)
		mutating.Post("/achievements/evaluate", h.evaluateAchievements)
	})

	r.Post("/admin/adjust", h.adminAdjust)
	r.Post("/admin/users/{userID}/tier", h.setTier)

	return metrics.InstrumentHandler(r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) recordAction(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var payload struct {
		Action    string     `json:"action"`
		Timezone  string     `json:"timezone"`
		At        *time.Time `json:"at,omitempty"`
		UseShield bool       `json:"use_shield,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ts := time.Now().UTC()
	if payload.At != nil {
		ts = *payload.At
	}
	res, err := h.app.RecordAction(r.Context(), userID, reward.ActionKind(payload.Action), payload.Timezone, ts, payload.UseShield)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	metrics.RecordClaim(payload.Action, res.Claimed)
	if res.Claimed {
		metrics.RecordCredit(payload.Action, res.Credited)
		for _, b := range res.NewBadges {
			metrics.RecordAward(b.AchievementID)
		}
		if res.Streak != nil && res.Streak.Shielded {
			metrics.RecordShieldUse()
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) streakCheckin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	typ := streak.Type(chi.URLParam(r, "type"))
	kind, ok := actionByStreak[typ]
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown streak type"))
		return
	}

	var payload struct {
		Timezone  string     `json:"timezone"`
		At        *time.Time `json:"at,omitempty"`
		UseShield bool       `json:"use_shield,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ts := time.Now().UTC()
	if payload.At != nil {
		ts = *payload.At
	}
	res, err := h.app.RecordAction(r.Context(), userID, kind, payload.Timezone, ts, payload.UseShield)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	metrics.RecordClaim(string(kind), res.Claimed)
	if res.Streak != nil && res.Streak.Shielded {
		metrics.RecordShieldUse()
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := h.app.Balance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *handler) dailyRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	rec, err := h.app.DailyRecord(r.Context(), userID, r.URL.Query().Get("timezone"), time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) ledger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, err := h.app.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) streaks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	states, err := h.app.StreakStates(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *handler) quota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	resource := quota.ResourceKind(chi.URLParam(r, "resource"))
	st, err := h.app.GetQuota(r.Context(), userID, resource)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) consumeQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	resource := quota.ResourceKind(chi.URLParam(r, "resource"))

	var payload struct {
		N int64 `json:"n"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.N == 0 {
		payload.N = 1
	}

	res, err := h.app.ConsumeQuota(r.Context(), userID, resource, payload.N)
	metrics.RecordQuotaConsume(string(resource), err == nil)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) purchaseQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var payload struct {
		Resource string `json:"resource"`
		Amount   int64  `json:"amount"`
		Cost     int64  `json:"cost"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	st, err := h.app.PurchaseQuota(r.Context(), userID, quota.ResourceKind(payload.Resource), payload.Amount, payload.Cost)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) achievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	awards, err := h.app.Badges(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, awards)
}

func (h *handler) achievementProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	progress, err := h.app.BadgeProgress(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *handler) evaluateAchievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var payload struct {
		SourceEvent string `json:"source_event"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.SourceEvent == "" {
		payload.SourceEvent = "manual"
	}

	awards, err := h.app.EvaluateAchievements(r.Context(), userID, payload.SourceEvent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	for _, a := range awards {
		metrics.RecordAward(a.AchievementID)
	}
	writeJSON(w, http.StatusOK, awards)
}

func (h *handler) adminAdjust(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.app.AdminAdjust(r.Context(), payload.UserID, payload.Amount, payload.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) setTier(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var payload struct {
		Resource string `json:"resource"`
		Tier     string `json:"tier"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Resource == "" {
		payload.Resource = string(quota.ResourceAIMessages)
	}

	st, err := h.app.SetTier(r.Context(), userID, quota.ResourceKind(payload.Resource), reward.Tier(payload.Tier))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeDomainError maps domain failures onto status codes. Idempotent no-ops
// never reach here; they are success responses.
func (h *handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case reward.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, reward.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, quota.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
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

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
