// Package scheduler 按调度表达式周期性触发匹配，支持启停、重启、手动触发与在线改配置。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"buddy-match/internal/matching"
	"buddy-match/internal/model"
	"buddy-match/internal/notifier"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrNotRunning      = errors.New("scheduler is not running")
	ErrDisabled        = errors.New("scheduler is disabled")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Config 调度配置。
type Config struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Schedule     string        `yaml:"schedule" json:"schedule"`
	Timezone     string        `yaml:"timezone" json:"timezone"`
	RunOnStartup bool          `yaml:"run_on_startup" json:"run_on_startup"`
	StartupDelay time.Duration `yaml:"startup_delay" json:"-"`
}

// ConfigUpdate 部分更新，nil 字段保持不变。
type ConfigUpdate struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	Schedule     *string `json:"schedule,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
	RunOnStartup *bool   `json:"run_on_startup,omitempty"`
}

// DefaultConfig 每天 09:00 UTC 执行。
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Schedule:     "0 9 * * *",
		Timezone:     "UTC",
		StartupDelay: 5 * time.Second,
	}
}

// Runner 调度触发的匹配入口。
type Runner interface {
	CleanupExpiredMatches(ctx context.Context) (matching.CleanupResult, error)
	RunMatching(ctx context.Context) matching.Summary
}

// Dispatcher 为新匹配投递通知，并补发此前未送达的通知。
type Dispatcher interface {
	DispatchMatches(ctx context.Context, matches []model.Match) notifier.DispatchResult
	DispatchPending(ctx context.Context) notifier.DispatchResult
}

// RunRecord 记录最近一次触发。
type RunRecord struct {
	Trigger        string    `json:"trigger"`
	StartedAt      time.Time `json:"started_at"`
	Success        bool      `json:"success"`
	MatchesCreated int       `json:"matches_created"`
	Expired        int64     `json:"expired"`
	Errors         []string  `json:"errors"`
}

// Status 调度器当前状态。
type Status struct {
	Running            bool       `json:"running"`
	Enabled            bool       `json:"enabled"`
	Schedule           string     `json:"schedule"`
	Timezone           string     `json:"timezone"`
	RunOnStartup       bool       `json:"run_on_startup"`
	MatchingInProgress bool       `json:"matching_in_progress"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	NextRun            *time.Time `json:"next_run,omitempty"`
	LastRun            *RunRecord `json:"last_run,omitempty"`
}

type timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Scheduler 管理周期触发。生命周期：NewScheduler → Start → Stop → Close。
type Scheduler struct {
	runner   Runner
	dispatch Dispatcher
	logger   *zap.Logger
	now      func() time.Time
	newTimer func(time.Duration) timer

	// opMu 串行化 Start/Stop/Restart/UpdateConfig。
	opMu sync.Mutex

	mu        sync.Mutex
	cfg       Config
	running   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time
	nextRun   time.Time
	lastRun   *RunRecord
}

// NewScheduler 创建调度器，不会自动启动。
func NewScheduler(r Runner, d Dispatcher, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultConfig().StartupDelay
	}
	return &Scheduler{
		runner:   r,
		dispatch: d,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newTimer: defaultTimer,
	}
}

// Start 校验调度表达式并启动循环；已在运行时返回 ErrAlreadyRunning。
func (s *Scheduler) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start()
}

// Stop 停止循环并等待进行中的定时轮次结束。
func (s *Scheduler) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop()
}

// Restart 先停后启。未运行时不返回 ErrNotRunning，而是直接启动，
// 便于管理接口在任意状态下应用新配置。
func (s *Scheduler) Restart() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.start()
}

// Close 释放调度器，未运行时不报错。
func (s *Scheduler) Close() error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

func (s *Scheduler) start() error {
	if s.runner == nil {
		return fmt.Errorf("scheduler missing runner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	sched, err := compile(s.cfg, s.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(ctx, sched)
	})
	if s.cfg.RunOnStartup {
		delay := s.cfg.StartupDelay
		g.Go(func() error {
			t := s.newTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C():
				s.runScheduled(ctx, "startup")
				return nil
			}
		})
	}

	s.running = true
	s.cancel = cancel
	s.group = g
	s.startedAt = s.now()
	s.logger.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("timezone", s.cfg.Timezone),
		zap.Bool("run_on_startup", s.cfg.RunOnStartup),
	)
	return nil
}

func (s *Scheduler) stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, g := s.cancel, s.group
	s.running = false
	s.cancel = nil
	s.group = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	cancel()
	if err := g.Wait(); err != nil {
		s.logger.Warn("scheduler loop exited with error", zap.Error(err))
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// compile 解析并试算一次下次触发时间，确保表达式可用。
func compile(cfg Config, now time.Time) (schedule, error) {
	sched, err := parseSchedule(cfg.Schedule, cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if _, err := sched.Next(now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return sched, nil
}

func (s *Scheduler) loop(ctx context.Context, sched schedule) error {
	for {
		now := s.now()
		next, err := sched.Next(now)
		if err != nil {
			return fmt.Errorf("compute next run: %w", err)
		}
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		t := s.newTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C():
			s.runScheduled(ctx, "schedule")
		}
	}
}

// TriggerManualRun 走与定时触发相同的路径；调度器未运行时返回 ErrNotRunning。
func (s *Scheduler) TriggerManualRun(ctx context.Context) (matching.Summary, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return matching.Summary{}, ErrNotRunning
	}
	return s.runScheduled(ctx, "manual"), nil
}

// runScheduled 先清理过期记录，再执行匹配，最后投递新通知并补发积压。
func (s *Scheduler) runScheduled(ctx context.Context, trigger string) matching.Summary {
	ctx = context.WithoutCancel(ctx)
	rec := &RunRecord{Trigger: trigger, StartedAt: s.now()}

	cleanup, err := s.runner.CleanupExpiredMatches(ctx)
	if err != nil {
		s.logger.Warn("cleanup expired matches failed", zap.String("trigger", trigger), zap.Error(err))
	}
	rec.Expired = cleanup.Expired

	sum := s.runner.RunMatching(ctx)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("cleanup expired matches: %v", err))
	}
	rec.Success = sum.Success
	rec.MatchesCreated = sum.MatchesCreated
	rec.Errors = sum.Errors

	if s.dispatch != nil {
		if sum.Success && len(sum.Matches) > 0 {
			res := s.dispatch.DispatchMatches(ctx, sum.Matches)
			s.logger.Info("match notifications dispatched", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		}
		if res := s.dispatch.DispatchPending(ctx); res.Sent+res.Failed > 0 {
			s.logger.Info("pending notifications retried", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		}
	}

	s.mu.Lock()
	s.lastRun = rec
	s.mu.Unlock()

	s.logger.Info("scheduled run finished",
		zap.String("trigger", trigger),
		zap.Bool("success", sum.Success),
		zap.Int("matches_created", sum.MatchesCreated),
		zap.Int64("expired", rec.Expired),
	)
	return sum
}

// UpdateConfig 合并配置；运行中且调度、时区或启用状态变化时重启。
func (s *Scheduler) UpdateConfig(u ConfigUpdate) (Config, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	prev := s.cfg
	running := s.running
	s.mu.Unlock()

	next := prev
	if u.Enabled != nil {
		next.Enabled = *u.Enabled
	}
	if u.Schedule != nil {
		next.Schedule = strings.TrimSpace(*u.Schedule)
	}
	if u.Timezone != nil {
		next.Timezone = strings.TrimSpace(*u.Timezone)
	}
	if u.RunOnStartup != nil {
		next.RunOnStartup = *u.RunOnStartup
	}
	if _, err := compile(next, s.now()); err != nil {
		return prev, err
	}

	s.mu.Lock()
	s.cfg = next
	s.mu.Unlock()

	changed := next.Schedule != prev.Schedule || next.Timezone != prev.Timezone || next.Enabled != prev.Enabled
	if !running || !changed {
		return next, nil
	}

	s.logger.Info("scheduler config changed, restarting",
		zap.String("schedule", next.Schedule),
		zap.String("timezone", next.Timezone),
		zap.Bool("enabled", next.Enabled),
	)
	if err := s.stop(); err != nil {
		return next, err
	}
	if !next.Enabled {
		return next, nil
	}
	return next, s.start()
}

// Config 返回当前配置。
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Running 返回是否在运行。
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRunTime 返回下一次触发时间的估计值，仅供展示。
func (s *Scheduler) NextRunTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}, false
	}
	if !s.nextRun.IsZero() {
		return s.nextRun, true
	}
	sched, err := parseSchedule(s.cfg.Schedule, s.cfg.Timezone)
	if err != nil {
		return time.Time{}, false
	}
	next, err := sched.Next(s.now())
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

// Status 返回状态快照。
func (s *Scheduler) Status() Status {
	next, hasNext := s.NextRunTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:      s.running,
		Enabled:      s.cfg.Enabled,
		Schedule:     s.cfg.Schedule,
		Timezone:     s.cfg.Timezone,
		RunOnStartup: s.cfg.RunOnStartup,
	}
	if r, ok := s.runner.(interface{ Running() bool }); ok {
		st.MatchingInProgress = r.Running()
	}
	if s.running {
		started := s.startedAt
		st.StartedAt = &started
	}
	if hasNext {
		st.NextRun = &next
	}
	if s.lastRun != nil {
		rec := *s.lastRun
		st.LastRun = &rec
	}
	return st
}

func defaultTimer(d time.Duration) timer {
	return timerWrapper{time.NewTimer(d)}
}

type timerWrapper struct {
	*time.Timer
}

func (t timerWrapper) C() <-chan time.Time { return t.Timer.C }
func (t timerWrapper) Stop() bool           { return t.Timer.Stop() }
