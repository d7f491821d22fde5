// Package api 暴露匹配、调度与候选人管理的 HTTP 接口。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"buddy-match/internal/candidate"
	"buddy-match/internal/matching"
	"buddy-match/internal/model"
	"buddy-match/internal/notifier"
	"buddy-match/internal/scheduler"
	"buddy-match/internal/storage"

	"go.uber.org/zap"
)

// Matcher 抽象匹配编排器。
type Matcher interface {
	RunMatching(ctx context.Context) matching.Summary
	CleanupExpiredMatches(ctx context.Context) (matching.CleanupResult, error)
	RecordAction(ctx context.Context, matchID, candidateID string, action model.Action) (*model.Match, error)
	GetStats(ctx context.Context) (matching.Stats, error)
	Config() matching.Config
	UpdateConfig(u matching.ConfigUpdate) (matching.Config, error)
}

// Scheduler 抽象调度器。
type Scheduler interface {
	Start() error
	Stop() error
	Restart() error
	TriggerManualRun(ctx context.Context) (matching.Summary, error)
	UpdateConfig(u scheduler.ConfigUpdate) (scheduler.Config, error)
	Config() scheduler.Config
	Status() scheduler.Status
}

// MatchStore 查询匹配记录。
type MatchStore interface {
	ListMatches(ctx context.Context, query storage.MatchQuery) ([]model.Match, error)
}

// Dispatcher 为新建匹配投递通知。
type Dispatcher interface {
	DispatchMatches(ctx context.Context, matches []model.Match) notifier.DispatchResult
}

// CandidateService 处理候选人写入。
type CandidateService interface {
	Upsert(ctx context.Context, req candidate.Request) (model.Candidate, error)
}

// Response 统一响应结构。
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ActionRequest 表示 like/pass 请求。
type ActionRequest struct {
	CandidateID string       `json:"candidate_id"`
	Action      model.Action `json:"action"`
}

const maxListLimit = 200

// NewHandler 构造 HTTP 多路复用器，sched 为空时调度相关接口返回 503。
// dispatch 非空时，直接触发的匹配成功后会为新匹配投递通知。
func NewHandler(m Matcher, sched Scheduler, dispatch Dispatcher, matches MatchStore, cands CandidateService, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{matcher: m, sched: sched, dispatch: dispatch, matches: matches, cands: cands, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/matching/run", h.runMatching)
	mux.HandleFunc("GET /api/matching/stats", h.stats)
	mux.HandleFunc("GET /api/matching/config", h.matchingConfig)
	mux.HandleFunc("PUT /api/matching/config", h.updateMatchingConfig)

	mux.HandleFunc("GET /api/matches", h.listMatches)
	mux.HandleFunc("POST /api/matches/cleanup", h.cleanup)
	mux.HandleFunc("POST /api/matches/{id}/action", h.recordAction)

	mux.HandleFunc("POST /api/candidates", h.upsertCandidate)

	mux.HandleFunc("GET /api/scheduler/status", h.schedulerStatus)
	mux.HandleFunc("POST /api/scheduler/start", h.schedulerOp("scheduler started", func(s Scheduler) error { return s.Start() }))
	mux.HandleFunc("POST /api/scheduler/stop", h.schedulerOp("scheduler stopped", func(s Scheduler) error { return s.Stop() }))
	mux.HandleFunc("POST /api/scheduler/restart", h.schedulerOp("scheduler restarted", func(s Scheduler) error { return s.Restart() }))
	mux.HandleFunc("POST /api/scheduler/trigger", h.triggerRun)
	mux.HandleFunc("GET /api/scheduler/config", h.schedulerConfig)
	mux.HandleFunc("PUT /api/scheduler/config", h.updateSchedulerConfig)

	return mux
}

type handler struct {
	matcher  Matcher
	sched    Scheduler
	dispatch Dispatcher
	matches  MatchStore
	cands    CandidateService
	logger   *zap.Logger
}

func (h *handler) runMatching(w http.ResponseWriter, r *http.Request) {
	sum := h.matcher.RunMatching(r.Context())
	if h.dispatch != nil && sum.Success && len(sum.Matches) > 0 {
		res := h.dispatch.DispatchMatches(context.WithoutCancel(r.Context()), sum.Matches)
		h.logger.Info("match notifications dispatched", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	}
	writeSummary(w, sum)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matcher.GetStats(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: stats})
}

func (h *handler) matchingConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.matcher.Config()})
}

func (h *handler) updateMatchingConfig(w http.ResponseWriter, r *http.Request) {
	var u matching.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid payload"})
		return
	}
	cfg, err := h.matcher.UpdateConfig(u)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "matching config updated", Data: cfg})
}

func (h *handler) listMatches(w http.ResponseWriter, r *http.Request) {
	if h.matches == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Message: "match listing disabled"})
		return
	}
	query := storage.MatchQuery{Limit: 50}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			query.Limit = min(v, maxListLimit)
		}
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		status := model.MatchStatus(strings.ToLower(s))
		if !slices.Contains([]model.MatchStatus{
			model.MatchStatusPending, model.MatchStatusMutualLike, model.MatchStatusDeclined, model.MatchStatusExpired,
		}, status) {
			writeJSON(w, http.StatusBadRequest, Response{Message: "unknown status " + s})
			return
		}
		query.Status = status
	}
	list, err := h.matches.ListMatches(r.Context(), query)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []model.Match{}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

func (h *handler) cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.matcher.CleanupExpiredMatches(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: strconv.FormatInt(res.Expired, 10) + " matches expired", Data: res})
}

func (h *handler) recordAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid payload"})
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "candidate_id required"})
		return
	}
	m, err := h.matcher.RecordAction(r.Context(), r.PathValue("id"), req.CandidateID, req.Action)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "match " + string(m.Status), Data: m})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Response{Message: "match not found"})
	case errors.Is(err, model.ErrInvalidAction):
		writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
	case errors.Is(err, model.ErrNotParticipant):
		writeJSON(w, http.StatusForbidden, Response{Message: err.Error()})
	case errors.Is(err, model.ErrMatchClosed):
		writeJSON(w, http.StatusConflict, Response{Message: err.Error()})
	default:
		h.fail(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) upsertCandidate(w http.ResponseWriter, r *http.Request) {
	if h.cands == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Message: "candidate ingestion disabled"})
		return
	}
	var req candidate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid payload"})
		return
	}
	c, err := h.cands.Upsert(r.Context(), req)
	if err != nil {
		if errors.Is(err, candidate.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
			return
		}
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "candidate saved", Data: c})
}

func (h *handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.sched.Status()})
}

func (h *handler) schedulerOp(okMessage string, op func(Scheduler) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireScheduler(w) {
			return
		}
		if err := op(h.sched); err != nil {
			writeJSON(w, schedulerErrorStatus(err), Response{Message: err.Error(), Data: h.sched.Status()})
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Message: okMessage, Data: h.sched.Status()})
	}
}

func (h *handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	sum, err := h.sched.TriggerManualRun(r.Context())
	if err != nil {
		writeJSON(w, schedulerErrorStatus(err), Response{Message: err.Error()})
		return
	}
	writeSummary(w, sum)
}

func (h *handler) schedulerConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.sched.Config()})
}

func (h *handler) updateSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	var u scheduler.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid payload"})
		return
	}
	cfg, err := h.sched.UpdateConfig(u)
	if err != nil {
		writeJSON(w, schedulerErrorStatus(err), Response{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "scheduler config updated", Data: cfg})
}

func (h *handler) requireScheduler(w http.ResponseWriter) bool {
	if h.sched == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Message: "scheduler disabled"})
		return false
	}
	return true
}

func (h *handler) fail(w http.ResponseWriter, status int, err error) {
	h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, Response{Message: err.Error()})
}

func schedulerErrorStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidSchedule), errors.Is(err, scheduler.ErrDisabled):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeSummary 轮次被并发拒绝时返回 409，其它失败返回 500。
func writeSummary(w http.ResponseWriter, sum matching.Summary) {
	resp := Response{Success: sum.Success, Data: sum}
	status := http.StatusOK
	switch {
	case sum.Success:
		resp.Message = strconv.Itoa(sum.MatchesCreated) + " matches created"
	case slices.Contains(sum.Errors, matching.ErrRunInProgress.Error()):
		status = http.StatusConflict
		resp.Message = matching.ErrRunInProgress.Error()
	default:
		status = http.StatusInternalServerError
		resp.Message = "matching run failed"
		if len(sum.Errors) > 0 {
			resp.Message = sum.Errors[len(sum.Errors)-1]
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
