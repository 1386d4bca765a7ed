// Package monitor orchestrates quota probes across providers. Each
// provider's refresh runs in its own task against its own state, so a
// hung or broken CLI never blocks or corrupts another provider's data.
package monitor

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/steveyegge/gasgauge/internal/provider"
	"github.com/steveyegge/gasgauge/internal/quota"
)

// EventType tags monitoring-loop events.
type EventType string

// EventRefreshed is emitted after each completed refresh cycle.
const EventRefreshed EventType = "refreshed"

// Event is one monitoring-loop emission.
type Event struct {
	Type EventType
	At   time.Time
}

// Notifier receives status-transition callbacks. Implementations are
// injected; the monitor has no opinion about how changes reach a user.
type Notifier interface {
	StatusChanged(providerID string, from, to quota.Status, snap *quota.UsageSnapshot)
}

// Recorder persists successful snapshots (the usage ledger). Optional.
type Recorder interface {
	Record(snap *quota.UsageSnapshot) error
}

// State is a read-only view of one provider's monitoring state.
type State struct {
	ProviderID  string
	DisplayName string
	Syncing     bool
	Snapshot    *quota.UsageSnapshot
	Err         error
	Status      quota.Status
	RefreshedAt time.Time
}

// providerState is the mutable per-provider record. Only that
// provider's own refresh task writes it; observers take the lock just
// long enough to copy.
type providerState struct {
	mu          sync.Mutex
	probe       provider.Probe
	syncing     bool
	snapshot    *quota.UsageSnapshot
	lastErr     error
	status      quota.Status
	refreshedAt time.Time
}

// Monitor owns per-provider state and the continuous polling loop.
type Monitor struct {
	order    []string
	states   map[string]*providerState
	notifier Notifier
	recorder Recorder
	logger   *log.Logger

	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier wires a status-transition listener.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithRecorder wires a snapshot ledger.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithLogger wires a logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New builds a Monitor over the given probes.
func New(probes []provider.Probe, opts ...Option) *Monitor {
	m := &Monitor{
		states: make(map[string]*providerState, len(probes)),
		logger: log.New(io.Discard, "", 0),
	}
	for _, p := range probes {
		m.order = append(m.order, p.ID())
		m.states[p.ID()] = &providerState{probe: p, status: quota.StatusUnknown}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers returns the monitored provider IDs in registration order.
func (m *Monitor) Providers() []string {
	return append([]string(nil), m.order...)
}

// Refresh probes one provider and updates its state. A refresh request
// for a provider that is already syncing is a no-op (reported by the
// false return); two probes of the same CLI must never interleave.
func (m *Monitor) Refresh(ctx context.Context, providerID string) bool {
	st, ok := m.states[providerID]
	if !ok {
		return false
	}

	st.mu.Lock()
	if st.syncing {
		st.mu.Unlock()
		return false
	}
	st.syncing = true
	prevStatus := st.status
	st.mu.Unlock()

	snap, err := st.probe.Probe(ctx)

	st.mu.Lock()
	st.syncing = false
	st.refreshedAt = time.Now()
	if err != nil {
		// Keep the previous snapshot: stale data beats wiped state on a
		// transient failure.
		st.lastErr = err
		st.mu.Unlock()
		m.logger.Printf("monitor: %s refresh failed: %v", providerID, err)
		return true
	}
	st.snapshot = snap
	st.lastErr = nil
	newStatus := snap.OverallStatus()
	st.status = newStatus
	st.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.Record(snap); err != nil {
			m.logger.Printf("monitor: recording %s snapshot: %v", providerID, err)
		}
	}

	if m.notifier != nil && prevStatus != quota.StatusUnknown && prevStatus != newStatus {
		m.notifier.StatusChanged(providerID, prevStatus, newStatus, snap)
	}
	return true
}

// RefreshAll fans one refresh task out per provider and waits for every
// one of them, whatever their individual outcomes. A slow provider
// delays only the fan-in, never another provider's own refresh.
func (m *Monitor) RefreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range m.order {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.Refresh(ctx, id)
		}(id)
	}
	wg.Wait()
}

// RefreshOthers refreshes every provider except the named one.
func (m *Monitor) RefreshOthers(ctx context.Context, exceptID string) {
	var wg sync.WaitGroup
	for _, id := range m.order {
		if id == exceptID {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.Refresh(ctx, id)
		}(id)
	}
	wg.Wait()
}

// State returns a copy of one provider's monitoring state.
func (m *Monitor) State(providerID string) (State, bool) {
	st, ok := m.states[providerID]
	if !ok {
		return State{}, false
	}
	return st.view(), true
}

// States returns copies of every provider's state, in registration
// order.
func (m *Monitor) States() []State {
	out := make([]State, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.states[id].view())
	}
	return out
}

func (st *providerState) view() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return State{
		ProviderID:  st.probe.ID(),
		DisplayName: st.probe.DisplayName(),
		Syncing:     st.syncing,
		Snapshot:    st.snapshot,
		Err:         st.lastErr,
		Status:      st.status,
		RefreshedAt: st.refreshedAt,
	}
}

// Start launches the continuous monitoring loop: refresh all, emit a
// refreshed event, sleep, repeat. The returned channel closes when the
// loop stops, via Stop or context cancellation. Only one loop runs at a
// time.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) <-chan Event {
	events := make(chan Event, 1)

	m.loopMu.Lock()
	if m.loopStop != nil {
		m.loopMu.Unlock()
		close(events)
		return events
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.loopStop = stop
	m.loopDone = done
	m.loopMu.Unlock()

	go func() {
		defer close(events)
		defer close(done)
		for {
			m.RefreshAll(ctx)

			select {
			case events <- Event{Type: EventRefreshed, At: time.Now()}:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}

			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
	return events
}

// Stop cancels the monitoring loop and waits for the event stream to
// close. Safe to call when no loop is running.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	stop := m.loopStop
	done := m.loopDone
	m.loopStop = nil
	m.loopDone = nil
	m.loopMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Close stops the loop and tears down any long-lived probe sessions.
func (m *Monitor) Close() {
	m.Stop()
	for _, id := range m.order {
		if s, ok := m.states[id].probe.(provider.Stopper); ok {
			s.Stop()
		}
	}
}
