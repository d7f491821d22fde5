package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// schedule 计算下一次触发时间。
type schedule interface {
	Next(after time.Time) (time.Time, error)
}

// intervalSchedule 固定间隔，如 "2h" 或 "@every 30m"。
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(after time.Time) (time.Time, error) {
	return after.Add(s.every), nil
}

// cronSchedule 包装标准 5 段 cron 表达式，按 loc 解释。
type cronSchedule struct {
	spec cron.Schedule
}

var errNoNextRun = errors.New("schedule never fires")

func (c cronSchedule) Next(after time.Time) (time.Time, error) {
	next := c.spec.Next(after)
	if next.IsZero() {
		return time.Time{}, errNoNextRun
	}
	return next, nil
}

// parseSchedule 解析调度表达式：Go duration、@every、@daily 等描述符或 5 段 cron（robfig/cron 标准语法）。
// cron 按 timezone 解释，空时区为 UTC。
func parseSchedule(expr, timezone string) (schedule, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if strings.HasPrefix(trimmed, "@every ") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "@every "))
		d, err := time.ParseDuration(trimmed)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid interval %q", trimmed)
		}
		return intervalSchedule{every: d}, nil
	}
	if d, err := time.ParseDuration(trimmed); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", d)
		}
		return intervalSchedule{every: d}, nil
	}

	if strings.HasPrefix(trimmed, "@") {
		trimmed = strings.ToLower(trimmed)
	}
	spec, err := cron.ParseStandard(trimmed)
	if err != nil {
		return nil, err
	}
	s, ok := spec.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("unsupported schedule %q", expr)
	}
	// 表达式自带 CRON_TZ= 时以其为准。
	if !strings.HasPrefix(trimmed, "CRON_TZ=") && !strings.HasPrefix(trimmed, "TZ=") {
		s.Location = loc
	}
	return cronSchedule{spec: s}, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}
