package limiter

import (
	"context"
	"sync"
	"time"
)

type attempt struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is the in-process counterpart of PG with the same window and lockout rules.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*attempt
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*attempt),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func key(username string, ipHash []byte) string { return username + "\x00" + string(ipHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.entries[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(username, ipHash))
	return nil
}

// Failure records a failed attempt and blocks once maxFails is reached within window.
func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := key(username, ipHash)
	a, ok := m.entries[k]
	if !ok || now.Sub(a.updatedAt) > m.window {
		a = &attempt{}
		m.entries[k] = a
	}
	a.fails++
	a.updatedAt = now
	if a.fails >= m.maxFails {
		a.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
