// Package backoff computes redelivery delays for failed job attempts.
package backoff

import "time"

// Exponential doubles the delay after every failed attempt.
// Delay(n) = min(Initial * 2^(n-1), Max), where n is the attempt that failed.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) Exponential {
	return Exponential{Initial: initial, Max: maxDelay}
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
		if d <= 0 { // overflow
			return e.Max
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}
