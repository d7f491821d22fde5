package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig 描述分布式租约配置。
type RedisConfig struct {
	Addr     string        `yaml:"redis_addr" json:"redis_addr"`
	Password string        `yaml:"redis_password" json:"redis_password"`
	DB       int           `yaml:"redis_db" json:"redis_db"`
	Key      string        `yaml:"key" json:"key"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// 仅当值仍是自己的令牌时才删除，避免误删其他实例的新租约。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仅当值仍是自己的令牌时才续期。
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease 以 SET NX PX 获取带 TTL 的运行令牌，持有期间每 TTL/3 续期一次。
type RedisLease struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	renewEvery time.Duration
	logger     *zap.Logger
}

// NewRedisClient 根据配置创建客户端，仅 Addr 必填。
func NewRedisClient(cfg RedisConfig) *redis.Client {
	opts := &redis.Options{Addr: cfg.Addr}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	return redis.NewClient(opts)
}

// NewRedisLease 创建租约。持有者进程存活时租约会自动续期，
// TTL 只决定持有者崩溃后其他实例需要等待多久。
func NewRedisLease(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLease {
	if key == "" {
		key = "buddy-match:run"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	renewEvery := ttl / 3
	if renewEvery < time.Millisecond {
		renewEvery = time.Millisecond
	}
	return &RedisLease{client: client, key: key, ttl: ttl, renewEvery: renewEvery, logger: logger}
}

// TryAcquire 实现 Guard。
func (r *RedisLease) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// 调用方的 ctx 可能已取消，释放使用独立超时。
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
				r.logger.Warn("release lease failed", zap.String("key", r.key), zap.Error(err))
			}
		})
	}
	return release, true, nil
}

func (r *RedisLease) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.renewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
			n, err := renewScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil:
				r.logger.Warn("renew lease failed", zap.String("key", r.key), zap.Error(err))
			case n == 0:
				r.logger.Warn("lease lost before run finished", zap.String("key", r.key))
				return
			}
		}
	}
}

// Ping 检查 Redis 连通性。
func (r *RedisLease) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
