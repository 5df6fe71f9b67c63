// Package lease grants per-account exclusive admission to the apply path.
//
// A transaction holds a lease on every account it touches from the moment it
// starts fetching until it commits or rolls back, so at most one apply is in
// flight per account. Keys are taken one at a time in sorted order, which
// makes deadlock impossible between transactions with overlapping key sets;
// if acquisition is cancelled part way, the keys already taken are returned.
//
// Every per-transaction lease also holds one share of a store-wide gate.
// Bulk sync takes the whole gate, waiting for in-flight transactions to
// finish and holding new ones back until it is done.
package lease

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrTimeout reports a lease wait cut short by AcquireWithin's timeout.
var ErrTimeout = fmt.Errorf("lease wait timed out: %w", context.DeadlineExceeded)

// gateWeight is the gate capacity. A shared lease takes 1, an exclusive lease all of it.
const gateWeight = 1 << 30

var _leaseWaitMtc = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "shardstate_lease_wait_seconds",
		Help:    "Time spent waiting for account leases.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	},
	[]string{"mode"},
)

func init() {
	prometheus.MustRegister(_leaseWaitMtc)
}

// IDGenerator produces lease holder ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered UUIDv7 ids.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Lease is held admission to a set of accounts. Release is idempotent.
type Lease struct {
	ID         string
	Keys       []string
	Exclusive  bool
	AcquiredAt time.Time

	once    sync.Once
	release func()
}

// Release returns the lease's accounts and gate share.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Manager tracks which accounts are leased.
type Manager struct {
	gate   *semaphore.Weighted
	ids    IDGenerator
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	held    map[string]string // accountID -> lease id
	changed chan struct{}     // closed and replaced on every release
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator sets the lease id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithClock sets the time source for AcquireWithin timeouts, wait metrics
// and AcquiredAt.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a lease manager with no accounts held.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		gate:    semaphore.NewWeighted(gateWeight),
		ids:     UUIDv7Generator{},
		clock:   clock.New(),
		logger:  zap.NewNop(),
		held:    make(map[string]string),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire leases every key, blocking until all are free or ctx is done.
// Duplicate keys are ignored. On error no key remains held.
func (m *Manager) Acquire(ctx context.Context, keys []string) (*Lease, error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	start := m.clock.Now()
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire store gate: %w", causeOf(ctx, err))
	}

	id := m.ids.Generate()
	taken := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if err := m.acquireKey(ctx, key, id); err != nil {
			m.releaseKeys(taken)
			m.gate.Release(1)
			return nil, fmt.Errorf("acquire lease on %s: %w", key, err)
		}
		taken = append(taken, key)
	}

	now := m.clock.Now()
	_leaseWaitMtc.WithLabelValues("shared").Observe(now.Sub(start).Seconds())

	l := &Lease{ID: id, Keys: sorted, AcquiredAt: now}
	l.release = func() {
		m.releaseKeys(sorted)
		m.gate.Release(1)
	}
	return l, nil
}

// AcquireWithin is Acquire bounded by timeout, measured on the manager's
// clock. A non-positive timeout waits as long as ctx allows. When the
// timeout expires first the error wraps ErrTimeout.
func (m *Manager) AcquireWithin(ctx context.Context, keys []string, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		return m.Acquire(ctx, keys)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := m.clock.AfterFunc(timeout, func() { cancel(ErrTimeout) })
	defer timer.Stop()

	l, err := m.Acquire(ctx, keys)
	if err != nil && errors.Is(err, ErrTimeout) {
		m.logger.Debug("lease wait timed out",
			zap.Strings("keys", keys),
			zap.Duration("timeout", timeout))
	}
	return l, err
}

// AcquireExclusive takes the whole store: it waits for every shared lease to
// be released and blocks new ones until the returned lease is released.
func (m *Manager) AcquireExclusive(ctx context.Context) (*Lease, error) {
	start := m.clock.Now()
	if err := m.gate.Acquire(ctx, gateWeight); err != nil {
		return nil, fmt.Errorf("acquire exclusive store gate: %w", err)
	}
	now := m.clock.Now()
	_leaseWaitMtc.WithLabelValues("exclusive").Observe(now.Sub(start).Seconds())

	l := &Lease{ID: m.ids.Generate(), Exclusive: true, AcquiredAt: now}
	l.release = func() {
		m.gate.Release(gateWeight)
	}
	m.logger.Debug("exclusive lease acquired", zap.String("lease_id", l.ID))
	return l, nil
}

// Holder returns the id of the lease holding key, if any.
func (m *Manager) Holder(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.held[key]
	return id, ok
}

// Held returns the number of leased accounts.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

func (m *Manager) acquireKey(ctx context.Context, key, id string) error {
	for {
		m.mu.Lock()
		if _, busy := m.held[key]; !busy {
			m.held[key] = id
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return causeOf(ctx, ctx.Err())
		case <-wait:
		}
	}
}

func (m *Manager) releaseKeys(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.held, key)
	}
	close(m.changed)
	m.changed = make(chan struct{})
}

// causeOf prefers the cancellation cause over the bare context error.
func causeOf(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}
