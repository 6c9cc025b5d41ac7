package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionCreateRoom  = "create_room"
	ActionCreateQuote = "create_quote"
	ActionPayment     = "payment"
)

// Limit is the sustained rate and burst for one action.
type Limit struct {
	Every rate.Limit
	Burst int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles actions per user. Each user+action pair gets its own
// token bucket, created on first use.
type RateLimiter struct {
	clock   clockwork.Clock
	limits  map[string]Limit
	def     Limit
	buckets map[string]*bucket
	mutex   sync.Mutex
}

func NewRateLimiter(clock clockwork.Clock, messagesPerSecond float64, messageBurst int) *RateLimiter {
	return &RateLimiter{
		clock: clock,
		limits: map[string]Limit{
			ActionSendMessage: {Every: rate.Limit(messagesPerSecond), Burst: messageBurst},
			ActionCreateRoom:  {Every: rate.Every(12 * time.Minute), Burst: 5},
			ActionCreateQuote: {Every: rate.Every(time.Minute), Burst: 10},
			ActionPayment:     {Every: rate.Every(5 * time.Second), Burst: 3},
		},
		def:     Limit{Every: rate.Every(3 * time.Second), Burst: 20},
		buckets: make(map[string]*bucket),
	}
}

// SetLimit overrides the limit for an action. Existing buckets keep theirs.
func (rl *RateLimiter) SetLimit(action string, limit Limit) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.limits[action] = limit
}

// Allow consumes a token for the action. When none is available it reports
// how long until one will be.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.clock.Now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		limit, ok := rl.limits[action]
		if !ok {
			limit = rl.def
		}
		b = &bucket{limiter: rate.NewLimiter(limit.Every, limit.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets that haven't been used for an hour.
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.clock.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > time.Hour {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every 30 minutes until done is closed.
func (rl *RateLimiter) StartCleanupRoutine(done <-chan struct{}) {
	go func() {
		ticker := rl.clock.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				rl.Cleanup()
			case <-done:
				return
			}
		}
	}()
}
