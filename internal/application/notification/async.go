package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drs-api/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

const sendTimeout = 30 * time.Second

// Async hands notices to a single background worker so callers never wait
// on SMTP or SNS. Delivery failures are logged by the worker.
type Async struct {
	next  Notifier
	log   zerolog.Logger
	queue chan domain.Notice
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, size int, log zerolog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan domain.Notice, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues n. It returns ErrQueueFull instead of blocking.
func (a *Async) Notify(_ context.Context, n domain.Notice) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notices and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := a.next.Notify(ctx, n); err != nil {
			a.log.Warn().Err(err).Str("kind", string(n.Kind())).Msg("notification delivery failed")
		}
		cancel()
	}
}
