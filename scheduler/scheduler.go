package scheduler

import (
	"context"
	"log"
	"os"
	"time"

	"islebook/models"
)

// Narrow views of the domain services the sweeps drive. Satisfied by
// *rules.Service, *slots.Generator, *slots.Ledger, *waitlist.Queue.
type ruleLister interface {
	ListActive(ctx context.Context) ([]models.AvailabilityRule, error)
}

type generator interface {
	GenerateAhead(ctx context.Context, ruleID string, daysOverride int) ([]string, error)
}

type completer interface {
	CompletePast(ctx context.Context) (int, error)
}

type sweeper interface {
	ExpireStale(ctx context.Context) ([]string, error)
	RepromoteAfterExpiry(ctx context.Context, slotIDs []string)
}

// Runner drives the three periodic jobs: rolling-horizon slot
// generation, waitlist expiry + re-promotion, and past-slot completion.
// Every sweep is idempotent, so a missed or doubled tick can delay
// fairness or horizon rollout but never corrupt capacity state.
type Runner struct {
	Rules  ruleLister
	Gen    generator
	Ledger completer
	Queue  sweeper

	GenerateEvery time.Duration
	ExpireEvery   time.Duration
	CompleteEvery time.Duration
}

func NewRunner(rules ruleLister, gen generator, ledger completer, queue sweeper) *Runner {
	return &Runner{
		Rules:         rules,
		Gen:           gen,
		Ledger:        ledger,
		Queue:         queue,
		GenerateEvery: envDuration("GENERATE_SWEEP_EVERY", 24*time.Hour),
		ExpireEvery:   envDuration("EXPIRE_SWEEP_EVERY", time.Hour),
		CompleteEvery: envDuration("COMPLETE_SWEEP_EVERY", time.Hour),
	}
}

func (r *Runner) Run(ctx context.Context) {
	genTick := time.NewTicker(r.GenerateEvery)
	expTick := time.NewTicker(r.ExpireEvery)
	cmpTick := time.NewTicker(r.CompleteEvery)
	defer genTick.Stop()
	defer expTick.Stop()
	defer cmpTick.Stop()

	// kick immediately
	r.GenerationSweep(ctx)
	r.ExpirySweep(ctx)
	r.CompletionSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] stopped")
			return
		case <-genTick.C:
			r.GenerationSweep(ctx)
		case <-expTick.C:
			r.ExpirySweep(ctx)
		case <-cmpTick.C:
			r.CompletionSweep(ctx)
		}
	}
}

// GenerationSweep rolls every active rule's slot horizon forward. One
// rule failing never blocks the rest.
func (r *Runner) GenerationSweep(ctx context.Context) {
	active, err := r.Rules.ListActive(ctx)
	if err != nil {
		log.Printf("[Scheduler] generation sweep: listing rules failed: %v", err)
		return
	}

	created := 0
	for _, rule := range active {
		ids, err := r.Gen.GenerateAhead(ctx, rule.ID, 0)
		if err != nil {
			log.Printf("[Scheduler] generation for rule %s: %v", rule.ID, err)
			continue
		}
		created += len(ids)
	}
	if created > 0 {
		log.Printf("[Scheduler] generation sweep created %d slot(s)", created)
	}
}

// ExpirySweep lapses stale notifications, then re-promotes each touched
// queue. The two steps are deliberately separate so re-promotion runs
// outside the expiry pass.
func (r *Runner) ExpirySweep(ctx context.Context) {
	slotIDs, err := r.Queue.ExpireStale(ctx)
	if err != nil {
		log.Printf("[Scheduler] expiry sweep: %v", err)
		return
	}
	if len(slotIDs) > 0 {
		log.Printf("[Scheduler] expired notifications on %d slot(s)", len(slotIDs))
		r.Queue.RepromoteAfterExpiry(ctx, slotIDs)
	}
}

// CompletionSweep marks elapsed slots completed.
func (r *Runner) CompletionSweep(ctx context.Context) {
	n, err := r.Ledger.CompletePast(ctx)
	if err != nil {
		log.Printf("[Scheduler] completion sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Scheduler] completed %d elapsed slot(s)", n)
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
