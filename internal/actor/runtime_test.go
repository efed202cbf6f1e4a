package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"duepoint/internal/scheduler"
)

// recordingProcessor records every Process invocation and detects overlap.
type recordingProcessor struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	block    time.Duration
	result   scheduler.ProcessResult
}

func (p *recordingProcessor) Process(_ context.Context, tenantID string) (scheduler.ProcessResult, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > 1 {
		p.overlap = true
	}
	p.calls = append(p.calls, tenantID)
	block := p.block
	p.mu.Unlock()

	if block > 0 {
		time.Sleep(block)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return p.result, nil
}

func (p *recordingProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestRuntime(mock *clock.Mock) (*Runtime, *recordingProcessor) {
	rt := NewRuntime(Config{IdleEviction: 10 * time.Minute, WakeupTimeout: time.Minute}, mock, nil)
	proc := &recordingProcessor{}
	rt.BindProcessor(proc)
	return rt, proc
}

func TestProgramFiresAtInstant(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	rt.Program("tenant-1", mock.Now().Add(5*time.Minute))

	mock.Add(4 * time.Minute)
	if proc.callCount() != 0 {
		t.Fatal("wakeup fired before its programmed instant")
	}

	mock.Add(time.Minute)
	waitFor(t, func() bool { return proc.callCount() == 1 })
}

func TestProgramOverwritesPreviousSlot(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	rt.Program("tenant-1", mock.Now().Add(2*time.Minute))
	rt.Program("tenant-1", mock.Now().Add(10*time.Minute))

	// The original instant passes without firing.
	mock.Add(5 * time.Minute)
	if proc.callCount() != 0 {
		t.Fatal("overwritten wakeup still fired")
	}

	mock.Add(5 * time.Minute)
	waitFor(t, func() bool { return proc.callCount() == 1 })
}

func TestClearStopsProgrammedWakeup(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	rt.Program("tenant-1", mock.Now().Add(time.Minute))
	rt.Clear("tenant-1")

	mock.Add(10 * time.Minute)
	if proc.callCount() != 0 {
		t.Fatal("cleared wakeup must not fire")
	}
}

func TestProgramPastInstantFiresImmediately(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	rt.Program("tenant-1", mock.Now().Add(-time.Hour))

	mock.Add(time.Millisecond)
	waitFor(t, func() bool { return proc.callCount() == 1 })
}

func TestInvokeSerializesPerTenant(t *testing.T) {
	rt := NewRuntime(Config{}, clock.New(), nil)
	proc := &recordingProcessor{block: 20 * time.Millisecond}
	rt.BindProcessor(proc)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rt.Process(context.Background(), "tenant-1"); err != nil {
				t.Errorf("Process() error: %v", err)
			}
		}()
	}
	wg.Wait()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.overlap {
		t.Fatal("invocations for the same tenant overlapped")
	}
	if len(proc.calls) != 5 {
		t.Errorf("expected 5 serialized invocations, got %d", len(proc.calls))
	}
}

func TestDistinctTenantsAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	rt.Program("tenant-a", mock.Now().Add(time.Minute))
	rt.Program("tenant-b", mock.Now().Add(time.Minute))

	mock.Add(2 * time.Minute)
	waitFor(t, func() bool { return proc.callCount() == 2 })

	proc.mu.Lock()
	defer proc.mu.Unlock()
	seen := map[string]bool{}
	for _, id := range proc.calls {
		seen[id] = true
	}
	if !seen["tenant-a"] || !seen["tenant-b"] {
		t.Errorf("expected both tenants processed, got %v", proc.calls)
	}
}

func TestIdleActorsAreEvicted(t *testing.T) {
	mock := clock.NewMock()
	rt := NewRuntime(Config{IdleEviction: 10 * time.Minute}, mock, nil)
	rt.BindProcessor(&recordingProcessor{})

	// One idle actor, one with a far-future wakeup still programmed.
	_ = rt.Invoke(context.Background(), "idle-tenant", func(context.Context) error { return nil })
	rt.Program("armed-tenant", mock.Now().Add(24*time.Hour))

	if rt.Size() != 2 {
		t.Fatalf("expected 2 resident actors, got %d", rt.Size())
	}

	rt.Start()
	defer rt.Stop()

	mock.Add(30 * time.Minute)
	waitFor(t, func() bool { return rt.Size() == 1 })

	// The armed tenant survives; its durable wakeup is still pending.
	rt.Program("armed-tenant", mock.Now().Add(24*time.Hour))
	if rt.Size() != 1 {
		t.Errorf("armed actor should not have been evicted, size=%d", rt.Size())
	}
}

func TestColdStartAfterEviction(t *testing.T) {
	mock := clock.NewMock()
	rt, proc := newTestRuntime(mock)

	_ = rt.Invoke(context.Background(), "tenant-1", func(context.Context) error { return nil })

	rt.Start()
	defer rt.Stop()
	mock.Add(time.Hour)
	waitFor(t, func() bool { return rt.Size() == 0 })

	// A sweep invocation after eviction recreates the actor and processes it.
	if _, err := rt.Process(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("Process() after eviction error: %v", err)
	}
	if proc.callCount() != 1 {
		t.Errorf("expected one processing pass on the cold-started actor, got %d", proc.callCount())
	}
}
