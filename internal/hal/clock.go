package hal

import (
	"sync"
	"time"
)

// SystemClock is the host's wall clock. SetTime shifts Now by an offset
// instead of touching the system clock.
type SystemClock struct {
	mu     sync.RWMutex
	offset time.Duration
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// LowPowerSleep is a plain sleep on a host; there is no radio to quiesce.
func (c *SystemClock) LowPowerSleep(d time.Duration) {
	time.Sleep(d)
}

func (c *SystemClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Until(t)
}
