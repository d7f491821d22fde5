// Package matching 驱动一次完整的匹配轮次：拉取候选人、分组、配对、落库。
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"buddy-match/internal/lock"
	"buddy-match/internal/model"
	"buddy-match/internal/pairing"
	"buddy-match/internal/storage"

	"go.uber.org/zap"
)

// ErrRunInProgress 已有匹配任务在执行，新的调用直接拒绝。
var ErrRunInProgress = errors.New("matching run already in progress")

// Store 抽象匹配所需的存储接口，便于测试替换。
type Store interface {
	ListEligibleCandidates(ctx context.Context, cutoff time.Time) ([]model.Candidate, error)
	CreateMatch(ctx context.Context, m *model.Match) error
	ApplyMatchToCandidate(ctx context.Context, candidateID, partnerID string, at time.Time) error
	ExpirePendingMatches(ctx context.Context, now time.Time) (int64, error)
	RecordAction(ctx context.Context, matchID, candidateID string, action model.Action, now time.Time) (*model.Match, error)
	Counts(ctx context.Context, since time.Time) (storage.Counts, error)
}

// Summary 一次匹配轮次的结果。逐对的持久化失败记入 Errors 但不影响 Success。
type Summary struct {
	Success        bool          `json:"success"`
	MatchesCreated int           `json:"matches_created"`
	Candidates     int           `json:"candidates"`
	Groups         int           `json:"groups"`
	Errors         []string      `json:"errors"`
	Matches        []model.Match `json:"matches,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       string        `json:"duration"`
}

// CleanupResult 过期清理结果。
type CleanupResult struct {
	Expired int64 `json:"expired"`
}

// Stats 汇总统计。
type Stats struct {
	TotalCandidates  int64   `json:"total_candidates"`
	ActiveCandidates int64   `json:"active_candidates"`
	TotalMatches     int64   `json:"total_matches"`
	PendingMatches   int64   `json:"pending_matches"`
	MatchesLast24h   int64   `json:"matches_last_24h"`
	AverageScore     float64 `json:"average_score"`
	Running          bool    `json:"running"`
	Config           Config  `json:"config"`
}

// Orchestrator 负责单飞执行匹配轮次。
type Orchestrator struct {
	store   Store
	engine  *pairing.Engine
	guard   lock.Guard
	logger  *zap.Logger
	now     func() time.Time
	running atomic.Bool

	mu  sync.RWMutex
	cfg Config
}

// Option 定制 Orchestrator。
type Option func(*Orchestrator)

// WithGuard 替换单飞保护，多实例部署时传入分布式租约。
func WithGuard(g lock.Guard) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock 替换时钟，便于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator 创建 Orchestrator，配置非法时直接返回错误。
func NewOrchestrator(store Store, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching config: %w", err)
	}
	o := &Orchestrator{
		store:  store,
		engine: pairing.NewEngine(),
		guard:  lock.NewLocal(),
		logger: zap.NewNop(),
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config 返回当前生效配置。
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// UpdateConfig 合并部分更新，下一轮次生效。
func (o *Orchestrator) UpdateConfig(u ConfigUpdate) (Config, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next, err := o.cfg.Apply(u)
	if err != nil {
		return o.cfg, err
	}
	o.cfg = next
	o.logger.Info("matching config updated",
		zap.Float64("min_score", next.MinScore),
		zap.Duration("cooldown", next.Cooldown),
		zap.Strings("small_countries", next.SmallCountries),
	)
	return next, nil
}

// Running 返回本进程是否有匹配在执行。
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunMatching 执行一次匹配轮次。已有轮次在执行时立即返回失败，不排队。
// 轮次一旦开始不会被中途取消，调用方的 ctx 取消不影响写入。
func (o *Orchestrator) RunMatching(ctx context.Context) (sum Summary) {
	ctx = context.WithoutCancel(ctx)
	start := o.now()
	sum = Summary{StartedAt: start.UTC(), Errors: []string{}}

	release, ok, err := o.guard.TryAcquire(ctx)
	if err != nil {
		o.logger.Error("acquire run guard failed", zap.Error(err))
		sum.Errors = append(sum.Errors, err.Error())
		return sum
	}
	if !ok {
		o.logger.Warn("matching rejected", zap.Error(ErrRunInProgress))
		sum.Errors = append(sum.Errors, ErrRunInProgress.Error())
		return sum
	}
	o.running.Store(true)
	defer func() {
		o.running.Store(false)
		release()
		sum.Duration = o.now().Sub(start).String()
	}()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("matching run panicked", zap.Any("panic", r), zap.Int("matches_created", sum.MatchesCreated))
			sum.Success = false
			sum.Errors = append(sum.Errors, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	if err := o.run(ctx, &sum); err != nil {
		o.logger.Error("matching run failed", zap.Error(err), zap.Int("matches_created", sum.MatchesCreated))
		sum.Errors = append(sum.Errors, err.Error())
		return sum
	}
	sum.Success = true
	o.logger.Info("matching run finished",
		zap.Int("candidates", sum.Candidates),
		zap.Int("groups", sum.Groups),
		zap.Int("matches_created", sum.MatchesCreated),
		zap.Int("errors", len(sum.Errors)),
	)
	return sum
}

func (o *Orchestrator) run(ctx context.Context, sum *Summary) error {
	cfg := o.Config()
	now := o.now().UTC()

	cands, err := o.store.ListEligibleCandidates(ctx, now.Add(-cfg.Cooldown))
	if err != nil {
		return fmt.Errorf("fetch eligible candidates: %w", err)
	}
	sum.Candidates = len(cands)

	groups := partition(cands, cfg)
	sum.Groups = len(groups)
	for _, g := range groups {
		pairs := o.engine.Match(g.Members, cfg.MinScore)
		o.logger.Debug("pairing round",
			zap.String("group", g.key()),
			zap.Int("members", len(g.Members)),
			zap.Int("pairs", len(pairs)),
		)
		for _, p := range pairs {
			m, err := o.persist(ctx, p, now, cfg.MatchTTL)
			if m != nil {
				sum.MatchesCreated++
				sum.Matches = append(sum.Matches, *m)
			}
			if err != nil {
				o.logger.Warn("persist pair failed",
					zap.String("group", g.key()),
					zap.String("candidate_a", p.A.ID),
					zap.String("candidate_b", p.B.ID),
					zap.Error(err),
				)
				sum.Errors = append(sum.Errors, err.Error())
			}
		}
	}
	return nil
}

// persist 写入匹配记录并更新双方状态；记录写入成功时返回该记录，即使后续候选人更新失败。
func (o *Orchestrator) persist(ctx context.Context, p pairing.Pair, now time.Time, ttl time.Duration) (*model.Match, error) {
	m := model.NewMatch(p.A.ID, p.B.ID, p.Score, p.Factors, now, ttl)
	if err := o.store.CreateMatch(ctx, &m); err != nil {
		return nil, err
	}
	var errs []error
	if err := o.store.ApplyMatchToCandidate(ctx, m.CandidateA, m.CandidateB, now); err != nil {
		errs = append(errs, err)
	}
	if err := o.store.ApplyMatchToCandidate(ctx, m.CandidateB, m.CandidateA, now); err != nil {
		errs = append(errs, err)
	}
	return &m, errors.Join(errs...)
}

// CleanupExpiredMatches 将过期仍 pending 的记录置为 expired，可重复执行。
func (o *Orchestrator) CleanupExpiredMatches(ctx context.Context) (CleanupResult, error) {
	n, err := o.store.ExpirePendingMatches(ctx, o.now().UTC())
	if err != nil {
		return CleanupResult{}, err
	}
	if n > 0 {
		o.logger.Info("expired pending matches", zap.Int64("count", n))
	}
	return CleanupResult{Expired: n}, nil
}

// RecordAction 记录候选人对匹配的 like/pass。
func (o *Orchestrator) RecordAction(ctx context.Context, matchID, candidateID string, action model.Action) (*model.Match, error) {
	m, err := o.store.RecordAction(ctx, matchID, model.NormalizeID(candidateID), action, o.now().UTC())
	if err != nil {
		return nil, err
	}
	if m.Status == model.MatchStatusMutualLike {
		o.logger.Info("mutual like", zap.String("match_id", m.ID), zap.String("candidate_a", m.CandidateA), zap.String("candidate_b", m.CandidateB))
	}
	return m, nil
}

// GetStats 返回统计信息与当前配置。
func (o *Orchestrator) GetStats(ctx context.Context) (Stats, error) {
	counts, err := o.store.Counts(ctx, o.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return Stats{}, fmt.Errorf("collect stats: %w", err)
	}
	return Stats{
		TotalCandidates:  counts.TotalCandidates,
		ActiveCandidates: counts.ActiveCandidates,
		TotalMatches:     counts.TotalMatches,
		PendingMatches:   counts.PendingMatches,
		MatchesLast24h:   counts.MatchesSince,
		AverageScore:     counts.AverageScore,
		Running:          o.Running(),
		Config:           o.Config(),
	}, nil
}
