package devserver

import (
	"sync"
	"time"
)

const (
	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	// rateLimitPruneThreshold is the number of tracked IPs above which
	// expired entries are pruned.
	rateLimitPruneThreshold = 1000
)

// loginRateLimiter tracks failed logins per IP in a sliding window.
// After rateLimitMaxFail failures, logins are refused until the oldest
// failure leaves the window.
type loginRateLimiter struct {
	now func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newLoginRateLimiter(now func() time.Time) *loginRateLimiter {
	return &loginRateLimiter{
		now:      now,
		failures: make(map[string][]time.Time),
	}
}

// check reports how long ip must wait before trying again, or zero when
// it is not limited.
func (rl *loginRateLimiter) check(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rateLimitWindow)

	if len(rl.failures) > rateLimitPruneThreshold {
		for k, times := range rl.failures {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(rl.failures, k)
			}
		}
	}

	recent := rl.failures[ip][:0]
	for _, t := range rl.failures[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(rl.failures, ip)
		return 0
	}

	rl.failures[ip] = recent

	if len(recent) < rateLimitMaxFail {
		return 0
	}

	return recent[len(recent)-rateLimitMaxFail].Add(rateLimitWindow).Sub(now)
}

// record adds a failed attempt for ip.
func (rl *loginRateLimiter) record(ip string) {
	rl.mu.Lock()
	rl.failures[ip] = append(rl.failures[ip], rl.now())
	rl.mu.Unlock()
}

// reset forgets ip after a successful login.
func (rl *loginRateLimiter) reset(ip string) {
	rl.mu.Lock()
	delete(rl.failures, ip)
	rl.mu.Unlock()
}
