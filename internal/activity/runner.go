/**
 * @description
 * Activity runner: re-runs one user's aggregation + task evaluation on a fixed
 * interval and on explicit invalidation. Each run fully replaces the published
 * bundle; consumers read the latest copy.
 */

package activity

import (
	"context"
	"sync"
	"time"

	"github.com/veristat-project/backend/internal/models"
)

// InstrumentDirectory resolves instrument addresses to display names.
type InstrumentDirectory interface {
	Instruments() []models.Instrument
}

// Runner owns the refresh loop for one user address.
type Runner struct {
	aggregator *Aggregator
	directory  InstrumentDirectory
	ledger     *BadgeLedger
	address    string
	interval   time.Duration

	invalidate chan struct{}

	mu     sync.RWMutex
	bundle models.ActivityBundle
	tasks  []models.Task
	badges []models.Badge
}

// NewRunner creates a runner for one user.
func NewRunner(aggregator *Aggregator, directory InstrumentDirectory, ledger *BadgeLedger, address string, interval time.Duration) *Runner {
	return &Runner{
		aggregator: aggregator,
		directory:  directory,
		ledger:     ledger,
		address:    address,
		interval:   interval,
		invalidate: make(chan struct{}, 1),
	}
}

// Run refreshes immediately, then on every tick or invalidation, until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		case <-r.invalidate:
			r.refresh(ctx)
		}
	}
}

// Invalidate requests an immediate refresh. Coalesces when one is pending.
func (r *Runner) Invalidate() {
	select {
	case r.invalidate <- struct{}{}:
	default:
	}
}

func (r *Runner) refresh(ctx context.Context) {
	instruments := make(map[string]string)
	for _, inst := range r.directory.Instruments() {
		instruments[inst.Address] = inst.Name
	}

	bundle := r.aggregator.Aggregate(ctx, r.address, instruments)
	tasks, badges := Evaluate(bundle.Events, bundle.Summary, bundle.Account)
	if r.ledger != nil {
		badges = r.ledger.Merge(ctx, r.address, badges)
	}

	if ctx.Err() != nil {
		// Session tore down mid-refresh; drop the result instead of
		// publishing into a dead runner.
		return
	}

	r.mu.Lock()
	r.bundle = bundle
	r.tasks = tasks
	r.badges = badges
	r.mu.Unlock()
}

// Bundle returns the latest published activity bundle.
func (r *Runner) Bundle() models.ActivityBundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bundle
}

// Tasks returns the latest task evaluation.
func (r *Runner) Tasks() []models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Task(nil), r.tasks...)
}

// Badges returns the latest badge set.
func (r *Runner) Badges() []models.Badge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Badge(nil), r.badges...)
}
