package service

import (
	"strings"
	"sync"
	"time"
)

// Canales de OTP: cada uno se limita de forma independiente, igual que
// sus ventanas de expiración.
const (
	otpChannelVerify = "verify"
	otpChannelReset  = "reset"
)

// OTPRateLimiter limita la frecuencia de emisión de OTP por canal y
// dirección de correo.
type OTPRateLimiter interface {
	Allow(channel, email string) bool
}

// limiterKey normaliza la clave compuesta canal+email. Con email vacío
// devuelve "" y el limiter correspondiente rechaza la solicitud.
func limiterKey(channel, email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	return channel + ":" + email
}

type otpRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewOTPRateLimiter crea un rate limiter en memoria.
func NewOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &otpRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *otpRateLimiter) Allow(channel, email string) bool {
	key := limiterKey(channel, email)
	if key == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
