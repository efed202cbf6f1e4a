package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TenantLister enumerates tenants that still have unpaid, reminder-enabled
// invoices and therefore need a catch-up pass.
type TenantLister interface {
	ListTenantsWithOutstandingInvoices(ctx context.Context) ([]string, error)
}

// ProcessInvoker runs one tenant's processing pass. The actor runtime
// implements this so sweep invocations are serialized against timer-driven
// wakeups for the same tenant.
type ProcessInvoker interface {
	Process(ctx context.Context, tenantID string) (ProcessResult, error)
}

// Sweeper is the periodic backstop against lost wakeups. It enumerates
// tenants with outstanding invoices and invokes Process on each, bounded to
// a fixed number of tenants in flight. Idempotency is guaranteed by Process
// itself, so overlapping a tenant's own timer firing is harmless.
type Sweeper struct {
	tenants     TenantLister
	invoker     ProcessInvoker
	concurrency int
	logger      *slog.Logger
}

// NewSweeper constructs a Sweeper. Concurrency below 1 is clamped to 1.
func NewSweeper(tenants TenantLister, invoker ProcessInvoker, concurrency int, logger *slog.Logger) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tenants:     tenants,
		invoker:     invoker,
		concurrency: concurrency,
		logger:      logger,
	}
}

// SweepResult aggregates one full sweep pass.
type SweepResult struct {
	Tenants   int `json:"tenants"`
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// RunOnce performs a single sweep pass. Per-tenant failures are counted and
// logged but do not abort the pass; only the tenant enumeration itself can
// fail the whole sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	tenantIDs, err := s.tenants.ListTenantsWithOutstandingInvoices(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Tenants: len(tenantIDs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, tenantID := range tenantIDs {
		g.Go(func() error {
			pr, err := s.invoker.Process(gctx, tenantID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				s.logger.Error("sweep processing failed for tenant",
					"tenant_id", tenantID,
					"error", err,
				)
				return nil
			}
			result.Processed += pr.Processed
			result.Sent += pr.Sent
			return nil
		})
	}

	_ = g.Wait()

	s.logger.Info("catch-up sweep complete",
		"tenants", result.Tenants,
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}
