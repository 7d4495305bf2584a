// Package ratelimit implements fixed-window request counters keyed by client identity.
package ratelimit

import (
	"sync"
	"time"
)

// Config sets the window length and how many requests a key may make per window.
type Config struct {
	Window time.Duration
	Max    int
}

// window is the counter for one client key.
type window struct {
	mu       sync.Mutex
	start    time.Time
	count    int
	lastSeen time.Time
}

// Limiter is an in-process fixed-window limiter. Bursts at window
// boundaries are accepted; there is no smoothing.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	windows map[string]*window

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithoutSweeper disables the background goroutine that drops idle keys.
func WithoutSweeper() Option {
	return func(l *Limiter) { l.stop = nil }
}

// New creates a Limiter and starts its idle-key sweeper. Call Close to stop it.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if l.stop != nil {
		go l.sweep(sweepInterval(cfg.Window))
	} else {
		close(l.done)
	}
	return l
}

// Allow counts one request for key and reports whether it fits the current window.
func (l *Limiter) Allow(key string) bool {
	w := l.get(key)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = now
	if w.start.IsZero() || now.Sub(w.start) >= l.cfg.Window {
		w.start = now
		w.count = 1
		return w.count <= l.cfg.Max
	}
	w.count++
	return w.count <= l.cfg.Max
}

// Remaining reports how many requests key may still make in its current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if !ok {
		return l.cfg.Max
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if l.now().Sub(w.start) >= l.cfg.Window {
		return l.cfg.Max
	}
	if r := l.cfg.Max - w.count; r > 0 {
		return r
	}
	return 0
}

func (l *Limiter) get(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = &window{}
	l.windows[key] = w
	return w
}

// Close stops the sweeper. It is safe to call more than once.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() {
		if l.stop != nil {
			close(l.stop)
		}
	})
	<-l.done
	return nil
}

func (l *Limiter) sweep(every time.Duration) {
	defer close(l.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.dropIdle()
		}
	}
}

// dropIdle removes keys whose window elapsed at least one window ago.
func (l *Limiter) dropIdle() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		w.mu.Lock()
		idle := now.Sub(w.lastSeen) > 2*l.cfg.Window
		w.mu.Unlock()
		if idle {
			delete(l.windows, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

func sweepInterval(window time.Duration) time.Duration {
	if window < time.Minute {
		return time.Minute
	}
	return window
}
