package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL           = 30 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
)

// 仅当值仍为本次加锁的 token 时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仅当值仍为本次加锁的 token 时才续期
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLockLost 释放时锁已过期或被他人持有
var ErrLockLost = errors.New("lock: lost before release")

// RedisLocker 基于 Redis 的跨实例车辆锁
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
	onReleaseErr  func(vehicleID int64, err error)
}

// RedisOption RedisLocker 选项
type RedisOption func(*RedisLocker)

// WithTTL 锁的自动过期时间。持有期间每 ttl/3 续期一次，
// 因此 ttl 只决定实例崩溃后锁多久被释放。
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval 加锁失败后的重试间隔
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithReleaseErrorHandler 释放失败回调（通常用于记录日志）
func WithReleaseErrorHandler(fn func(vehicleID int64, err error)) RedisOption {
	return func(l *RedisLocker) {
		l.onReleaseErr = fn
	}
}

// NewRedisLocker 创建 Redis 车辆锁
func NewRedisLocker(client *redis.Client, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		ttl:           defaultTTL,
		retryInterval: defaultRetryInterval,
		prefix:        "carnote:lock:vehicle:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) key(vehicleID int64) string {
	return fmt.Sprintf("%s%d", l.prefix, vehicleID)
}

// Lock 循环尝试 SET NX，直到成功或 ctx 结束
func (l *RedisLocker) Lock(ctx context.Context, vehicleID int64) (Unlock, error) {
	key := l.key(vehicleID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	w := l.watch(key, token)

	var once sync.Once
	return func() {
		once.Do(func() {
			lost := w.stop()

			// 使用独立 context，调用方的 ctx 可能已取消
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			n, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int()
			if err == nil && (n == 0 || lost) {
				err = ErrLockLost
			}
			if err != nil && l.onReleaseErr != nil {
				l.onReleaseErr(vehicleID, err)
			}
		})
	}, nil
}

// watchdog 持有锁期间定期续期
type watchdog struct {
	done chan struct{}
	exit chan struct{}
	lost bool
}

func (l *RedisLocker) watch(key, token string) *watchdog {
	w := &watchdog{
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	interval := max(l.ttl/3, time.Millisecond)

	go func() {
		defer close(w.exit)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			// 网络错误下次再试；返回 0 说明锁已过期或被他人持有
			if err == nil && n == 0 {
				w.lost = true
				return
			}
		}
	}()
	return w
}

// stop 停止续期，返回持有期间锁是否丢失
func (w *watchdog) stop() bool {
	close(w.done)
	<-w.exit
	return w.lost
}
