package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/gasgauge/internal/provider"
	"github.com/steveyegge/gasgauge/internal/quota"
)

var errProbeBroken = errors.New("probe broken")

type fakeProbe struct {
	id string

	mu      sync.Mutex
	calls   int
	snap    *quota.UsageSnapshot
	err     error
	block   chan struct{}
	stopped bool
}

func (f *fakeProbe) ID() string          { return f.id }
func (f *fakeProbe) DisplayName() string { return f.id }
func (f *fakeProbe) Available() bool     { return true }

func (f *fakeProbe) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	snap, err := f.snap, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snap, err
}

func (f *fakeProbe) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeProbe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProbe) set(snap *quota.UsageSnapshot, err error) {
	f.mu.Lock()
	f.snap, f.err = snap, err
	f.mu.Unlock()
}

func snapWith(pct float64) *quota.UsageSnapshot {
	return &quota.UsageSnapshot{
		ID:         fmt.Sprintf("snap-%.0f", pct),
		ProviderID: "test",
		Quotas:     []quota.Quota{quota.NewQuota(quota.KindSession, pct)},
		CapturedAt: time.Now(),
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) StatusChanged(id string, from, to quota.Status, snap *quota.UsageSnapshot) {
	n.mu.Lock()
	n.events = append(n.events, fmt.Sprintf("%s:%s->%s", id, from, to))
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newTestMonitor(opts []Option, probes ...*fakeProbe) *Monitor {
	ps := make([]provider.Probe, len(probes))
	for i, p := range probes {
		ps[i] = p
	}
	return New(ps, opts...)
}

func TestMonitor_RefreshUpdatesState(t *testing.T) {
	probe := &fakeProbe{id: "claude", snap: snapWith(65)}
	mon := newTestMonitor(nil, probe)

	if !mon.Refresh(context.Background(), "claude") {
		t.Fatal("Refresh() = false, want true")
	}

	st, ok := mon.State("claude")
	if !ok {
		t.Fatal("State() not found")
	}
	if st.Snapshot == nil || st.Snapshot.ID != "snap-65" {
		t.Errorf("Snapshot = %+v, want snap-65", st.Snapshot)
	}
	if st.Status != quota.StatusHealthy {
		t.Errorf("Status = %s, want %s", st.Status, quota.StatusHealthy)
	}
	if st.Err != nil {
		t.Errorf("Err = %v, want nil", st.Err)
	}
	if st.RefreshedAt.IsZero() {
		t.Error("RefreshedAt should be set")
	}
}

func TestMonitor_RefreshUnknownProvider(t *testing.T) {
	mon := newTestMonitor(nil, &fakeProbe{id: "claude"})
	if mon.Refresh(context.Background(), "nope") {
		t.Error("Refresh() = true for unknown provider")
	}
}

func TestMonitor_ConcurrentRefreshIsNoOp(t *testing.T) {
	block := make(chan struct{})
	probe := &fakeProbe{id: "claude", snap: snapWith(50), block: block}
	mon := newTestMonitor(nil, probe)

	done := make(chan struct{})
	go func() {
		mon.Refresh(context.Background(), "claude")
		close(done)
	}()

	// Wait for the first refresh to be mid-probe.
	deadline := time.After(2 * time.Second)
	for {
		if st, _ := mon.State("claude"); st.Syncing {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first refresh never started syncing")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if mon.Refresh(context.Background(), "claude") {
		t.Error("second Refresh() = true while first still syncing")
	}
	if got := probe.callCount(); got != 1 {
		t.Errorf("probe calls = %d, want 1 (no interleaved probes)", got)
	}

	close(block)
	<-done
}

func TestMonitor_FailureIsolatedAndStaleSnapshotKept(t *testing.T) {
	good := &fakeProbe{id: "claude", snap: snapWith(70)}
	bad := &fakeProbe{id: "codex", err: errProbeBroken}
	mon := newTestMonitor(nil, good, bad)

	mon.RefreshAll(context.Background())

	gs, _ := mon.State("claude")
	if gs.Snapshot == nil || gs.Err != nil {
		t.Errorf("healthy provider: snapshot=%v err=%v", gs.Snapshot, gs.Err)
	}
	bs, _ := mon.State("codex")
	if bs.Err == nil {
		t.Error("broken provider should carry its error")
	}

	// The good provider now fails too; its previous snapshot survives.
	good.set(nil, errProbeBroken)
	mon.RefreshAll(context.Background())

	gs, _ = mon.State("claude")
	if gs.Snapshot == nil || gs.Snapshot.ID != "snap-70" {
		t.Error("stale snapshot should be retained across a failed refresh")
	}
	if gs.Err == nil {
		t.Error("latest error should be recorded alongside the stale snapshot")
	}
}

func TestMonitor_RefreshOthers(t *testing.T) {
	a := &fakeProbe{id: "claude", snap: snapWith(60)}
	b := &fakeProbe{id: "codex", snap: snapWith(60)}
	mon := newTestMonitor(nil, a, b)

	mon.RefreshOthers(context.Background(), "claude")

	if a.callCount() != 0 {
		t.Errorf("excluded provider probed %d times, want 0", a.callCount())
	}
	if b.callCount() != 1 {
		t.Errorf("other provider probed %d times, want 1", b.callCount())
	}
}

func TestMonitor_NotifierFiresOncePerTransition(t *testing.T) {
	n := &recordingNotifier{}
	probe := &fakeProbe{id: "claude", snap: snapWith(80)}
	mon := newTestMonitor([]Option{WithNotifier(n)}, probe)

	ctx := context.Background()

	// First refresh establishes a baseline without notifying.
	mon.Refresh(ctx, "claude")
	if got := n.all(); len(got) != 0 {
		t.Fatalf("events after first refresh = %v, want none", got)
	}

	// Unchanged status stays silent.
	mon.Refresh(ctx, "claude")
	if got := n.all(); len(got) != 0 {
		t.Fatalf("events after unchanged refresh = %v, want none", got)
	}

	// healthy -> critical notifies exactly once.
	probe.set(snapWith(5), nil)
	mon.Refresh(ctx, "claude")
	probe.set(snapWith(4), nil)
	mon.Refresh(ctx, "claude")

	got := n.all()
	if len(got) != 1 || got[0] != "claude:healthy->critical" {
		t.Errorf("events = %v, want [claude:healthy->critical]", got)
	}

	// Recovery notifies again.
	probe.set(snapWith(90), nil)
	mon.Refresh(ctx, "claude")
	got = n.all()
	if len(got) != 2 || got[1] != "claude:critical->healthy" {
		t.Errorf("events = %v, want recovery transition appended", got)
	}
}

func TestMonitor_FailedRefreshDoesNotNotify(t *testing.T) {
	n := &recordingNotifier{}
	probe := &fakeProbe{id: "claude", snap: snapWith(80)}
	mon := newTestMonitor([]Option{WithNotifier(n)}, probe)

	ctx := context.Background()
	mon.Refresh(ctx, "claude")

	probe.set(nil, errProbeBroken)
	mon.Refresh(ctx, "claude")

	if got := n.all(); len(got) != 0 {
		t.Errorf("events = %v, want none (failures are not transitions)", got)
	}
}

func TestMonitor_StartEmitsAndStops(t *testing.T) {
	probe := &fakeProbe{id: "claude", snap: snapWith(60)}
	mon := newTestMonitor(nil, probe)

	events := mon.Start(context.Background(), 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed early")
			}
			if ev.Type != EventRefreshed {
				t.Errorf("event type = %s, want %s", ev.Type, EventRefreshed)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for refresh event")
		}
	}

	mon.Stop()

	select {
	case _, ok := <-events:
		if ok {
			// One buffered event may still be in flight; the next read
			// must observe the close.
			if _, ok := <-events; ok {
				t.Error("event stream not closed after Stop")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream close")
	}

	if probe.callCount() < 2 {
		t.Errorf("probe calls = %d, want at least 2", probe.callCount())
	}
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	mon := newTestMonitor(nil, &fakeProbe{id: "claude"})
	mon.Stop() // must not panic or block
}

func TestMonitor_CloseStopsProbes(t *testing.T) {
	probe := &fakeProbe{id: "claude", snap: snapWith(60)}
	mon := newTestMonitor(nil, probe)

	mon.Close()

	probe.mu.Lock()
	stopped := probe.stopped
	probe.mu.Unlock()
	if !stopped {
		t.Error("Close() should stop long-lived probes")
	}
}

func TestMonitor_ContextCancelClosesStream(t *testing.T) {
	probe := &fakeProbe{id: "claude", snap: snapWith(60)}
	mon := newTestMonitor(nil, probe)

	ctx, cancel := context.WithCancel(context.Background())
	events := mon.Start(ctx, time.Hour)

	// Consume the first cycle's event, then cancel.
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial event")
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed stream after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}
