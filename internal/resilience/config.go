package resilience

import "time"

// FromRetryConfig builds a RetryConfig from flat settings as they appear
// in the config file. Zero and negative values keep the defaults, except
// jitterFraction, where zero is meaningful and only negatives fall back.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if d := time.Duration(initialBackoffMs) * time.Millisecond; d > 0 {
		cfg.InitialBackoff = d
	}
	if d := time.Duration(maxBackoffMs) * time.Millisecond; d > 0 {
		cfg.MaxBackoff = d
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from flat settings.
// Zero and negative values keep the defaults.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if d := time.Duration(resetTimeoutSecs) * time.Second; d > 0 {
		cfg.ResetTimeout = d
	}
	return cfg
}
