package scheduler

import (
	"context"
	"errors"
	"testing"

	"islebook/models"
)

type stubRules struct {
	rules []models.AvailabilityRule
	err   error
}

func (s *stubRules) ListActive(context.Context) ([]models.AvailabilityRule, error) {
	return s.rules, s.err
}

type stubGen struct {
	called []string
	errFor string
}

func (s *stubGen) GenerateAhead(_ context.Context, ruleID string, _ int) ([]string, error) {
	s.called = append(s.called, ruleID)
	if ruleID == s.errFor {
		return nil, errors.New("boom")
	}
	return []string{"slot"}, nil
}

type stubCompleter struct {
	n   int
	err error
}

func (s *stubCompleter) CompletePast(context.Context) (int, error) { return s.n, s.err }

type stubSweeper struct {
	stale      []string
	repromoted [][]string
}

func (s *stubSweeper) ExpireStale(context.Context) ([]string, error) { return s.stale, nil }

func (s *stubSweeper) RepromoteAfterExpiry(_ context.Context, slotIDs []string) {
	s.repromoted = append(s.repromoted, slotIDs)
}

func TestGenerationSweepContinuesPastFailures(t *testing.T) {
	gen := &stubGen{errFor: "rule-2"}
	r := &Runner{
		Rules: &stubRules{rules: []models.AvailabilityRule{
			{ID: "rule-1"}, {ID: "rule-2"}, {ID: "rule-3"},
		}},
		Gen:    gen,
		Ledger: &stubCompleter{},
		Queue:  &stubSweeper{},
	}

	r.GenerationSweep(context.Background())

	if len(gen.called) != 3 {
		t.Fatalf("generated for %v, want all three rules", gen.called)
	}
}

func TestExpirySweepRepromotesTouchedSlots(t *testing.T) {
	q := &stubSweeper{stale: []string{"slot-1", "slot-2"}}
	r := &Runner{Rules: &stubRules{}, Gen: &stubGen{}, Ledger: &stubCompleter{}, Queue: q}

	r.ExpirySweep(context.Background())

	if len(q.repromoted) != 1 || len(q.repromoted[0]) != 2 {
		t.Fatalf("repromotions %v, want one batch of two slots", q.repromoted)
	}
}

func TestExpirySweepSkipsRepromoteWhenNothingExpired(t *testing.T) {
	q := &stubSweeper{}
	r := &Runner{Rules: &stubRules{}, Gen: &stubGen{}, Ledger: &stubCompleter{}, Queue: q}

	r.ExpirySweep(context.Background())

	if len(q.repromoted) != 0 {
		t.Fatalf("repromotions %v, want none", q.repromoted)
	}
}
