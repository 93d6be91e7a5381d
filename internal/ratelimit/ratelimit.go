// Package ratelimit 限制每個客戶端建立房間的頻率
//
// 為何需要限流？
//   - 建立房間會配置模擬狀態與 ID，惡意客戶端可以大量建立空房間
//   - 多個伺服器實例共享 Redis，限制對所有實例生效
//
// 為何使用 Redis + Lua？
//   - Lua 腳本在 Redis 內原子執行，讀取、填充、扣除之間不會有其他請求插入
//
// 檢查在連線的讀取 goroutine 上執行，不會阻塞事件迴圈。
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
)

// Limiter 限流器
type Limiter interface {
	// Allow 是否允許 key 的下一個請求
	//
	// 返回錯誤時第一個返回值表示降級後的決定。
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisBucket 以 Redis 儲存狀態的令牌桶
//
// 每個 key 佔用兩個 Redis 鍵：
//   - {prefix}{key}:tokens      當前令牌數
//   - {prefix}{key}:last_refill 上次填充時間（Unix 秒）
type RedisBucket struct {
	client     *redis.Client
	prefix     string
	capacity   int64
	refillRate float64
	script     *redis.Script
}

// KEYS[1]: 令牌桶 key
// ARGV[1]: 容量
// ARGV[2]: 每秒填充數
// ARGV[3]: 當前時間（Unix 秒）
// ARGV[4]: 過期秒數
//
// 返回 1 允許，0 拒絕。
var tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call('GET', key .. ':tokens') or capacity)
local last_refill = tonumber(redis.call('GET', key .. ':last_refill') or now)

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('SET', key .. ':tokens', tokens, 'EX', ttl)
redis.call('SET', key .. ':last_refill', now, 'EX', ttl)

return allowed
`

// DefaultPrefix Redis key 前綴
const DefaultPrefix = "pong:create:"

// NewRedisBucket 建立 Redis 令牌桶
//
// capacity 是突發上限，refillRate 是每秒補充的令牌數。
func NewRedisBucket(client *redis.Client, capacity int64, refillRate float64) *RedisBucket {
	return &RedisBucket{
		client:     client,
		prefix:     DefaultPrefix,
		capacity:   capacity,
		refillRate: refillRate,
		script:     redis.NewScript(tokenBucketScript),
	}
}

// ttl 桶從空到滿所需時間，至少一分鐘
func (b *RedisBucket) ttl() int64 {
	if b.refillRate <= 0 {
		return 3600
	}
	seconds := int64(float64(b.capacity)/b.refillRate) + 1
	if seconds < 60 {
		return 60
	}
	return seconds
}

// Allow 扣除一個令牌
//
// Redis 錯誤時降級為允許：可用性優先於精確限流。
func (b *RedisBucket) Allow(ctx context.Context, key string) (bool, error) {
	result, err := b.script.Run(
		ctx,
		b.client,
		[]string{b.prefix + key},
		b.capacity,
		b.refillRate,
		time.Now().Unix(),
		b.ttl(),
	).Int()
	if err != nil {
		return true, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis token bucket unavailable")
	}

	return result == 1, nil
}

// AllowAll 不限流，Redis 未設定時使用
type AllowAll struct{}

// Allow 永遠允許
func (AllowAll) Allow(context.Context, string) (bool, error) {
	return true, nil
}
