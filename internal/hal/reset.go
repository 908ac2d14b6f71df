package hal

import "sync"

// SoftResetter records reset requests. On a host the caller observes the
// controller's ErrReset and restarts it; OnReset is invoked synchronously.
type SoftResetter struct {
	mu      sync.Mutex
	count   int
	OnReset func()
}

func (r *SoftResetter) Reset() {
	r.mu.Lock()
	r.count++
	hook := r.OnReset
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Count returns how many resets were requested.
func (r *SoftResetter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
