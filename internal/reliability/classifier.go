package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsCleanCloseCode reports whether a websocket close code represents a
// deliberate, caller-requested shutdown. Clean closes never trigger
// reconnection; everything else counts as an abnormal drop.
func IsCleanCloseCode(code int) bool {
	switch code {
	case 1000, 1001:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// ReconnectDelay returns the delay before reconnect attempt n (1-based):
// base, 2*base, 4*base, ... Attempts below 1 are clamped to 1 so the first
// retry always waits at least the base delay.
func ReconnectDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
