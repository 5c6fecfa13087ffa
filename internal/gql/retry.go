package gql

import (
	"math/rand"
	"time"
)

// RetryConfig mirrors the request layer's backoff policy (§4.1): base
// 350-500ms doubling per attempt, capped at 10s, uniform jitter, 8 attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialBase  time.Duration
	JitterBase   time.Duration
	MaxBackoff   time.Duration
}

// DefaultRetryConfig returns the policy mandated by §4.1.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 8,
		InitialBase: 350 * time.Millisecond,
		JitterBase:  150 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

// calculateBackoff computes the exponential-with-jitter delay before retry
// attempt number `attempt` (0-indexed). doubling per attempt, capped, with
// added uniform jitter in [0, JitterBase).
func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := cfg.InitialBase
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}
	if cfg.JitterBase > 0 {
		backoff += time.Duration(rand.Int63n(int64(cfg.JitterBase)))
	}
	if backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	return backoff
}
