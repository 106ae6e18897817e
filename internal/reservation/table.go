package reservation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultWindow is the bookkeeping window used when none is configured.
	DefaultWindow = 120 * time.Second
	// DefaultDeleteTimeout bounds a single reaper delete call.
	DefaultDeleteTimeout = 30 * time.Second
)

// ObjectDeleter removes objects from storage. It is satisfied by storage.Gateway.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// Table is an in-memory, concurrency-safe store of reservations keyed by grant key.
// Every check-then-act on an entry happens inside a single critical section;
// storage calls are made outside of it.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Reservation
	closed  bool

	deleter       ObjectDeleter
	window        time.Duration
	deleteTimeout time.Duration
	clock         clock.WithDelayedExecution
	observer      Observer
	logger        *slog.Logger
}

// Option is a function that configures a Table.
type Option func(*Table)

// WithClock sets the clock used to stamp reservations and schedule the reaper.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(t *Table) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(t *Table) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithDeleteTimeout bounds how long the reaper waits on a delete call.
func WithDeleteTimeout(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.deleteTimeout = d
		}
	}
}

// NewTable creates an empty Table whose reaper deletes through deleter after window.
// A non-positive window falls back to DefaultWindow.
func NewTable(deleter ObjectDeleter, window time.Duration, opts ...Option) *Table {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Table{
		entries:       make(map[string]*Reservation),
		deleter:       deleter,
		window:        window,
		deleteTimeout: DefaultDeleteTimeout,
		clock:         clock.RealClock{},
		observer:      nopObserver{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the bookkeeping window after which unfulfilled reservations are reaped.
func (t *Table) Window() time.Duration {
	return t.window
}

// Reserve records an unfulfilled reservation for grantKey and arms its reaper.
// Returns ErrDuplicateGrant if grantKey is already live.
func (t *Table) Reserve(grantKey, objectKey string) (Reservation, error) {
	if grantKey == "" || objectKey == "" {
		return Reservation{}, ErrInvalidReservation
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Reservation{}, ErrTableClosed
	}
	if _, ok := t.entries[grantKey]; ok {
		return Reservation{}, ErrDuplicateGrant
	}

	now := t.clock.Now()
	res := &Reservation{
		GrantKey:  grantKey,
		ObjectKey: objectKey,
		CreatedAt: now,
		ExpiresAt: now.Add(t.window),
		state:     stateArmed,
	}
	// Clocks may run AfterFunc callbacks while holding their own lock, and
	// reap takes t.mu, so the reaper runs on its own goroutine.
	res.timer = t.clock.AfterFunc(t.window, func() { go t.reap(res) })
	t.entries[grantKey] = res

	t.observer.RecordReserved()
	t.observer.SetLive(len(t.entries))

	return res.snapshot(), nil
}

// Get returns a copy of the reservation for grantKey.
// Returns ErrNotFound if there is none.
func (t *Table) Get(grantKey string) (Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, ok := t.entries[grantKey]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return res.snapshot(), nil
}

// MarkFulfilled flips the reservation to fulfilled, stops its reaper and drops
// the entry, all in one critical section. It returns ErrNotFound when the
// reservation is absent, already fulfilled, or already claimed by the reaper.
func (t *Table) MarkFulfilled(grantKey string) (Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, ok := t.entries[grantKey]
	if !ok || res.state != stateArmed {
		return Reservation{}, ErrNotFound
	}

	res.state = stateFulfilled
	res.Fulfilled = true
	if res.timer != nil {
		res.timer.Stop()
	}
	delete(t.entries, grantKey)

	t.observer.RecordFulfilled()
	t.observer.SetLive(len(t.entries))

	return res.snapshot(), nil
}

// Remove drops the entry for grantKey and stops its timer. It is a no-op when
// the entry is already gone.
func (t *Table) Remove(grantKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, ok := t.entries[grantKey]
	if !ok {
		return
	}
	if res.timer != nil {
		res.timer.Stop()
	}
	delete(t.entries, grantKey)
	t.observer.SetLive(len(t.entries))
}

// Len returns the number of live reservations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Shutdown stops every armed reaper and rejects further reservations.
// Objects behind dropped reservations are left in storage; the number of
// dropped reservations is returned.
func (t *Table) Shutdown() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	dropped := 0
	for key, res := range t.entries {
		if res.state != stateArmed {
			continue
		}
		if res.timer != nil {
			res.timer.Stop()
		}
		delete(t.entries, key)
		dropped++
	}
	t.observer.SetLive(len(t.entries))

	if dropped > 0 {
		t.logger.Warn("dropped unfulfilled reservations on shutdown",
			slog.Int("count", dropped),
		)
	}
	return dropped
}
