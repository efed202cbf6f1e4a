// Package actor hosts one in-memory actor per tenant. The runtime serializes
// all invocations against the same tenant, owns each tenant's single wakeup
// timer slot, and evicts idle actors from memory. All scheduling state is
// durable, so eviction is safe at any point; a reloaded actor cold-starts
// from storage on its next invocation.
package actor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"duepoint/internal/scheduler"
)

// Processor runs one tenant's reminder processing pass. Bound after
// construction because the scheduler needs the runtime as its wakeup
// programmer.
type Processor interface {
	Process(ctx context.Context, tenantID string) (scheduler.ProcessResult, error)
}

// Config tunes the runtime.
type Config struct {
	// IdleEviction is how long an actor may sit idle with no programmed
	// wakeup before it is removed from memory.
	IdleEviction time.Duration
	// WakeupTimeout bounds a timer-driven processing pass.
	WakeupTimeout time.Duration
}

// Runtime manages the tenant actors. It implements scheduler.WakeupProgrammer
// and scheduler.ProcessInvoker.
type Runtime struct {
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	processor Processor

	mu     sync.Mutex
	actors map[string]*tenantActor

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// tenantActor is the in-memory representation of one tenant. invokeMu
// serializes invocations; timerMu guards the wakeup slot separately so the
// slot can be reprogrammed from inside an invocation without deadlocking.
type tenantActor struct {
	invokeMu sync.Mutex

	timerMu    sync.Mutex
	timer      *clock.Timer
	lastActive time.Time
}

// NewRuntime constructs a Runtime. A nil clk uses the real clock.
func NewRuntime(cfg Config, clk clock.Clock, logger *slog.Logger) *Runtime {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 15 * time.Minute
	}
	if cfg.WakeupTimeout <= 0 {
		cfg.WakeupTimeout = time.Minute
	}
	return &Runtime{
		cfg:    cfg,
		clock:  clk,
		logger: logger,
		actors: make(map[string]*tenantActor),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// BindProcessor attaches the processing pass invoked on timer fires. Must be
// called once before any wakeup can fire.
func (r *Runtime) BindProcessor(p Processor) {
	r.processor = p
}

// Start launches the idle-eviction janitor. Stop shuts it down. The ticker is
// created before Start returns so a clock advance immediately after Start is
// guaranteed to reach the janitor.
func (r *Runtime) Start() {
	ticker := r.clock.Ticker(r.cfg.IdleEviction / 2)
	go r.janitor(ticker)
}

// Stop terminates the janitor and stops every programmed timer.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.done

		r.mu.Lock()
		defer r.mu.Unlock()
		for _, a := range r.actors {
			a.timerMu.Lock()
			if a.timer != nil {
				a.timer.Stop()
				a.timer = nil
			}
			a.timerMu.Unlock()
		}
	})
}

// Invoke runs op with exclusive access to the tenant's actor. No two
// invocations for the same tenant ever execute concurrently; distinct tenants
// proceed in parallel without coordination.
func (r *Runtime) Invoke(ctx context.Context, tenantID string, op func(ctx context.Context) error) error {
	a := r.actor(tenantID)

	a.invokeMu.Lock()
	defer a.invokeMu.Unlock()

	a.touch(r.clock.Now())
	return op(ctx)
}

// Process runs the bound processor under the tenant's invocation lock. It
// serves both the catch-up sweep and timer-driven wakeups.
func (r *Runtime) Process(ctx context.Context, tenantID string) (scheduler.ProcessResult, error) {
	var result scheduler.ProcessResult
	err := r.Invoke(ctx, tenantID, func(ctx context.Context) error {
		var err error
		result, err = r.processor.Process(ctx, tenantID)
		return err
	})
	return result, err
}

// Program points the tenant's single wakeup slot at the given instant,
// overwriting any previously programmed time. Instants in the past fire
// immediately.
func (r *Runtime) Program(tenantID string, at time.Time) {
	a := r.actor(tenantID)

	a.timerMu.Lock()
	defer a.timerMu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}

	d := at.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	a.timer = r.clock.AfterFunc(d, func() {
		r.onWakeup(tenantID)
	})
}

// Clear drops the tenant's wakeup slot; the actor goes dormant until the next
// explicit invocation or sweep.
func (r *Runtime) Clear(tenantID string) {
	a := r.actor(tenantID)

	a.timerMu.Lock()
	defer a.timerMu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (r *Runtime) onWakeup(tenantID string) {
	a := r.actor(tenantID)
	a.timerMu.Lock()
	a.timer = nil
	a.timerMu.Unlock()

	if r.processor == nil {
		r.logger.Error("wakeup fired with no processor bound", "tenant_id", tenantID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WakeupTimeout)
	defer cancel()

	if _, err := r.Process(ctx, tenantID); err != nil {
		// Delivery self-heals through the catch-up sweep; nothing to do
		// here beyond logging.
		r.logger.Error("wakeup processing failed", "tenant_id", tenantID, "error", err)
	}
}

// actor returns the tenant's actor, creating it on first use.
func (r *Runtime) actor(tenantID string) *tenantActor {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actors[tenantID]
	if !ok {
		a = &tenantActor{lastActive: r.clock.Now()}
		r.actors[tenantID] = a
	}
	return a
}

func (a *tenantActor) touch(now time.Time) {
	a.timerMu.Lock()
	a.lastActive = now
	a.timerMu.Unlock()
}

// janitor periodically evicts actors that have no programmed wakeup and have
// been idle past the configured threshold.
func (r *Runtime) janitor(ticker *clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Runtime) evictIdle() {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for tenantID, a := range r.actors {
		a.timerMu.Lock()
		idle := a.timer == nil && now.Sub(a.lastActive) >= r.cfg.IdleEviction
		a.timerMu.Unlock()
		if idle {
			delete(r.actors, tenantID)
			r.logger.Debug("evicted idle actor", "tenant_id", tenantID)
		}
	}
}

// Size reports how many actors are currently resident, for observability.
func (r *Runtime) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

var _ scheduler.WakeupProgrammer = (*Runtime)(nil)
var _ scheduler.ProcessInvoker = (*Runtime)(nil)
