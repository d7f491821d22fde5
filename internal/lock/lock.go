// Package lock 提供匹配任务的单飞保护。
//
// Local 只在单进程内生效；多实例部署时使用 RedisLease，
// 以带 TTL 的运行令牌保证同一时刻最多一个匹配轮次。
package lock

import (
	"context"
	"sync/atomic"
)

// Guard 尝试获取运行权，获取失败时 ok 为 false，不排队。
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Local 基于 atomic.Bool 的进程内保护。
type Local struct {
	running atomic.Bool
}

// NewLocal 创建进程内保护。
func NewLocal() *Local {
	return &Local{}
}

// TryAcquire 实现 Guard。
func (l *Local) TryAcquire(context.Context) (func(), bool, error) {
	if l.running.Swap(true) {
		return nil, false, nil
	}
	return func() { l.running.Store(false) }, true, nil
}

// Held 返回当前是否有运行中的任务。
func (l *Local) Held() bool {
	return l.running.Load()
}
