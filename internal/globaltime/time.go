package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// SetMockTime pins the clock to t until ResetTime is called.
func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	pinned := t
	nowFunc = func() time.Time { return pinned }
}

// Advance moves a pinned clock forward by d. On a live clock it pins the
// current instant plus d.
func Advance(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	pinned := nowFunc().Add(d)
	nowFunc = func() time.Time { return pinned }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
