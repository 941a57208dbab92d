package api

import (
	"sync"
	"time"
)

// Rate limit categories. Each category has its own window per credential.
const (
	categorySession = "session"
	categoryMessage = "message"
)

type windowKey struct {
	credential string
	category   string
}

type window struct {
	start time.Time
	count int
}

// rateLimiter enforces a fixed hourly window per (credential, category)
// plus a concurrency cap on voice turns. The window is anchored at the
// first request after expiry, not at wall-clock hour boundaries.
type rateLimiter struct {
	mu       sync.Mutex
	windows  map[windowKey]*window
	limits   map[string]int
	interval time.Duration

	voiceMu    sync.Mutex
	voiceBusy  map[string]int
	voiceLimit int

	lastCleanup time.Time
	now         func() time.Time
}

func newRateLimiter(sessionsPerHour, messagesPerHour, voiceConcurrent int) *rateLimiter {
	return &rateLimiter{
		windows: make(map[windowKey]*window),
		limits: map[string]int{
			categorySession: sessionsPerHour,
			categoryMessage: messagesPerHour,
		},
		interval:   time.Hour,
		voiceBusy:  make(map[string]int),
		voiceLimit: voiceConcurrent,
		now:        time.Now,
	}
}

// Allow reports whether the credential may perform one more operation in
// the category. When denied it returns how long until the window resets.
func (rl *rateLimiter) Allow(credential, category string) (bool, time.Duration) {
	limit, ok := rl.limits[category]
	if !ok || limit <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupLocked(now)

	key := windowKey{credential: credential, category: category}
	win, ok := rl.windows[key]
	if !ok || now.Sub(win.start) >= rl.interval {
		rl.windows[key] = &window{start: now, count: 1}
		return true, 0
	}

	if win.count >= limit {
		return false, win.start.Add(rl.interval).Sub(now)
	}
	win.count++
	return true, 0
}

// AcquireVoice reserves a voice slot for the credential. The caller must
// invoke release exactly once when the turn finishes.
func (rl *rateLimiter) AcquireVoice(credential string) (release func(), ok bool) {
	rl.voiceMu.Lock()
	defer rl.voiceMu.Unlock()

	if rl.voiceLimit > 0 && rl.voiceBusy[credential] >= rl.voiceLimit {
		return nil, false
	}
	rl.voiceBusy[credential]++

	var once sync.Once
	return func() {
		once.Do(func() {
			rl.voiceMu.Lock()
			defer rl.voiceMu.Unlock()
			rl.voiceBusy[credential]--
			if rl.voiceBusy[credential] <= 0 {
				delete(rl.voiceBusy, credential)
			}
		})
	}, true
}

// cleanupLocked drops expired windows. Runs inline at most once per
// interval to keep the map from growing with churned credentials.
func (rl *rateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.interval {
		return
	}
	for key, win := range rl.windows {
		if now.Sub(win.start) >= rl.interval {
			delete(rl.windows, key)
		}
	}
	rl.lastCleanup = now
}
