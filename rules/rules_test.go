package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"islebook/models"
)

type memStore struct {
	mu    sync.Mutex
	rules map[string]models.AvailabilityRule
}

func newMemStore() *memStore {
	return &memStore{rules: map[string]models.AvailabilityRule{}}
}

func (m *memStore) Insert(_ context.Context, rule *models.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = *rule
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cp := r
	return &cp, nil
}

func (m *memStore) Replace(_ context.Context, rule *models.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memStore) ListByListing(_ context.Context, listingID string) ([]models.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AvailabilityRule
	for _, r := range m.rules {
		if r.ListingID == listingID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListActive(_ context.Context) ([]models.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AvailabilityRule
	for _, r := range m.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubTrimmer struct {
	gotRule string
	gotFrom string
	deleted int64
}

func (s *stubTrimmer) DeleteFutureUnbooked(_ context.Context, ruleID, fromDate string) (int64, error) {
	s.gotRule = ruleID
	s.gotFrom = fromDate
	return s.deleted, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)

func validRule() *models.AvailabilityRule {
	return &models.AvailabilityRule{
		ListingID: "listing-1",
		VendorID:  "vendor-1",
		RuleType:  models.RuleRecurring,
		Recurring: &models.Recurrence{
			Frequency: models.FreqWeekly,
			Weekdays:  []int{6, 7},
			StartTime: "10:00",
			Duration:  120,
		},
		Capacity:             10,
		BookingDeadlineHours: 12,
		Active:               true,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.AvailabilityRule)
		ok     bool
	}{
		{"valid weekly", func(r *models.AvailabilityRule) {}, true},
		{"valid daily", func(r *models.AvailabilityRule) {
			r.Recurring = &models.Recurrence{Frequency: models.FreqDaily, StartTime: "08:00", Duration: 30}
		}, true},
		{"valid monthly", func(r *models.AvailabilityRule) {
			r.Recurring = &models.Recurrence{Frequency: models.FreqMonthly, MonthDays: []int{1, 31}, StartTime: "08:00", Duration: 30}
		}, true},
		{"valid one-time", func(r *models.AvailabilityRule) {
			r.RuleType = models.RuleOneTime
			r.Recurring = nil
			r.OneTime = &models.OneTime{Date: "2026-06-01", StartTime: "09:00", Duration: 60}
		}, true},
		{"missing listing", func(r *models.AvailabilityRule) { r.ListingID = "" }, false},
		{"zero capacity", func(r *models.AvailabilityRule) { r.Capacity = 0 }, false},
		{"negative deadline", func(r *models.AvailabilityRule) { r.BookingDeadlineHours = -1 }, false},
		{"unknown rule type", func(r *models.AvailabilityRule) { r.RuleType = "sometimes" }, false},
		{"recurring without payload", func(r *models.AvailabilityRule) { r.Recurring = nil }, false},
		{"both payloads", func(r *models.AvailabilityRule) {
			r.OneTime = &models.OneTime{Date: "2026-06-01", StartTime: "09:00", Duration: 60}
		}, false},
		{"weekly without weekdays", func(r *models.AvailabilityRule) { r.Recurring.Weekdays = nil }, false},
		{"weekday out of range", func(r *models.AvailabilityRule) { r.Recurring.Weekdays = []int{0} }, false},
		{"weekday above seven", func(r *models.AvailabilityRule) { r.Recurring.Weekdays = []int{8} }, false},
		{"monthly without days", func(r *models.AvailabilityRule) {
			r.Recurring = &models.Recurrence{Frequency: models.FreqMonthly, StartTime: "08:00", Duration: 30}
		}, false},
		{"month day out of range", func(r *models.AvailabilityRule) {
			r.Recurring = &models.Recurrence{Frequency: models.FreqMonthly, MonthDays: []int{32}, StartTime: "08:00", Duration: 30}
		}, false},
		{"zero duration", func(r *models.AvailabilityRule) { r.Recurring.Duration = 0 }, false},
		{"one-time without date", func(r *models.AvailabilityRule) {
			r.RuleType = models.RuleOneTime
			r.Recurring = nil
			r.OneTime = &models.OneTime{StartTime: "09:00", Duration: 60}
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)
			err := Validate(rule)
			if tc.ok && err != nil {
				t.Errorf("Validate: %v, want ok", err)
			}
			if !tc.ok {
				if err == nil {
					t.Error("Validate accepted an invalid rule")
				} else if !errors.Is(err, ErrInvalidRule) {
					t.Errorf("err = %v, want ErrInvalidRule", err)
				}
			}
		})
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrimmer{}, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("Create left ID empty")
	}
	if !rule.CreatedAt.Equal(testNow) || !rule.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps %v/%v, want %v", rule.CreatedAt, rule.UpdatedAt, testNow)
	}
	if _, err := store.GetByID(context.Background(), rule.ID); err != nil {
		t.Errorf("rule not persisted: %v", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc := NewService(newMemStore(), &stubTrimmer{}, fixedClock{now: testNow})

	rule := validRule()
	rule.Capacity = 0
	if err := svc.Create(context.Background(), rule); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("err = %v, want ErrInvalidRule", err)
	}
}

func TestUpdatePatchesOnlyGivenFields(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrimmer{}, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatal(err)
	}

	newCap := 25
	updated, err := svc.Update(context.Background(), rule.ID, "vendor-1", Update{Capacity: &newCap})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Capacity != 25 {
		t.Errorf("capacity %d, want 25", updated.Capacity)
	}
	if updated.BookingDeadlineHours != 12 || updated.Recurring.StartTime != "10:00" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
}

func TestUpdateRevalidates(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubTrimmer{}, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatal(err)
	}

	badCap := -1
	if _, err := svc.Update(context.Background(), rule.ID, "vendor-1", Update{Capacity: &badCap}); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("err = %v, want ErrInvalidRule", err)
	}
	// The stored rule is untouched by the rejected patch.
	got, _ := store.GetByID(context.Background(), rule.ID)
	if got.Capacity != 10 {
		t.Errorf("capacity %d after rejected patch, want 10", got.Capacity)
	}
}

func TestUpdateRequiresOwner(t *testing.T) {
	svc := NewService(newMemStore(), &stubTrimmer{}, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatal(err)
	}

	active := false
	if _, err := svc.Update(context.Background(), rule.ID, "vendor-2", Update{Active: &active}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestDeleteTrimsFutureUnbookedSlots(t *testing.T) {
	store := newMemStore()
	trimmer := &stubTrimmer{deleted: 4}
	svc := NewService(store, trimmer, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatal(err)
	}

	n, err := svc.Delete(context.Background(), rule.ID, "vendor-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 4 {
		t.Errorf("trimmed %d slots, want 4", n)
	}
	if trimmer.gotRule != rule.ID {
		t.Errorf("trim targeted rule %q, want %q", trimmer.gotRule, rule.ID)
	}
	if trimmer.gotFrom != "2026-03-02" {
		t.Errorf("trim from %q, want today 2026-03-02", trimmer.gotFrom)
	}
	if _, err := store.GetByID(context.Background(), rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("rule still present after delete: %v", err)
	}
}

func TestDeleteRequiresOwner(t *testing.T) {
	store := newMemStore()
	trimmer := &stubTrimmer{}
	svc := NewService(store, trimmer, fixedClock{now: testNow})

	rule := validRule()
	if err := svc.Create(context.Background(), rule); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Delete(context.Background(), rule.ID, "vendor-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if trimmer.gotRule != "" {
		t.Error("trim ran despite rejected delete")
	}
	if _, err := store.GetByID(context.Background(), rule.ID); err != nil {
		t.Errorf("rule missing after rejected delete: %v", err)
	}
}

func TestGenerationHorizon(t *testing.T) {
	cases := []struct {
		value string
		want  int
	}{
		{"7", 7},
		{"365", 365},
		{"", models.DefaultGenerateDays},
		{"indefinite", models.DefaultGenerateDays},
		{"0", models.DefaultGenerateDays},
		{"-3", models.DefaultGenerateDays},
	}
	for _, tc := range cases {
		rule := validRule()
		rule.GenerateDaysAhead = tc.value
		if got := rule.GenerationHorizon(); got != tc.want {
			t.Errorf("GenerationHorizon(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}
}
