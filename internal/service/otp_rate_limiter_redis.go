package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Contador por ventana fija: el primer INCR de la ventana fija el TTL
// y los siguientes solo incrementan.
const redisOTPCountScript = `
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return hits
`

const redisOTPKeyPrefix = "otp:limit:"

const redisOTPTimeout = 500 * time.Millisecond

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisOTPRateLimiter reparte el contador entre instancias del servicio
// usando Redis. Ante errores de Redis deja pasar: perder el throttle es
// preferible a bloquear la emisión de códigos.
type redisOTPRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
}

func NewRedisOTPRateLimiter(client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisOTPRateLimiter{
		client: client,
		window: window,
		max:    max,
	}
}

func (l *redisOTPRateLimiter) Allow(channel, email string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := limiterKey(channel, email)
	if key == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOTPTimeout)
	defer cancel()

	ttlSeconds := int(l.window.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	hits, err := l.client.Eval(ctx, redisOTPCountScript, []string{redisOTPKeyPrefix + key}, ttlSeconds).Int()
	if err != nil {
		return true
	}
	return hits <= l.max
}
