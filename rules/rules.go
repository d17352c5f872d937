package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"islebook/models"
	"islebook/utils"
)

var (
	ErrInvalidRule = errors.New("invalid availability rule")
	ErrNotOwner    = errors.New("rule belongs to another vendor")
)

// slotTrimmer is the one slice of the slot store rule deletion needs.
// Satisfied by slots.Store.
type slotTrimmer interface {
	DeleteFutureUnbooked(ctx context.Context, ruleID, fromDate string) (int64, error)
}

// Service owns availability rule definitions: validated CRUD plus the
// delete cascade to future unbooked slots. Changing a rule never
// retroactively touches slots it already generated; the generator has
// to be re-invoked for that.
type Service struct {
	store Store
	slots slotTrimmer
	clock utils.Clock
}

func NewService(store Store, slots slotTrimmer, clock utils.Clock) *Service {
	return &Service{store: store, slots: slots, clock: clock}
}

func (s *Service) Create(ctx context.Context, rule *models.AvailabilityRule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	now := s.clock.Now()
	rule.ID = utils.GetUUID()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return s.store.Insert(ctx, rule)
}

func (s *Service) Get(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListByListing(ctx context.Context, listingID string) ([]models.AvailabilityRule, error) {
	return s.store.ListByListing(ctx, listingID)
}

func (s *Service) ListActive(ctx context.Context) ([]models.AvailabilityRule, error) {
	return s.store.ListActive(ctx)
}

// Update is a partial replacement: only non-nil fields of patch apply.
// The result is re-validated as a whole so a patch can never leave a
// rule in a shape Create would have rejected.
type Update struct {
	Recurring            *models.Recurrence `json:"recurring,omitempty"`
	OneTime              *models.OneTime    `json:"oneTime,omitempty"`
	Capacity             *int               `json:"capacity,omitempty"`
	BookingDeadlineHours *int               `json:"bookingDeadlineHours,omitempty"`
	GenerateDaysAhead    *string            `json:"generateDaysInAdvance,omitempty"`
	Active               *bool              `json:"active,omitempty"`
}

func (s *Service) Update(ctx context.Context, id, vendorID string, patch Update) (*models.AvailabilityRule, error) {
	rule, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.VendorID != vendorID {
		return nil, ErrNotOwner
	}

	if patch.Recurring != nil {
		rule.Recurring = patch.Recurring
	}
	if patch.OneTime != nil {
		rule.OneTime = patch.OneTime
	}
	if patch.Capacity != nil {
		rule.Capacity = *patch.Capacity
	}
	if patch.BookingDeadlineHours != nil {
		rule.BookingDeadlineHours = *patch.BookingDeadlineHours
	}
	if patch.GenerateDaysAhead != nil {
		rule.GenerateDaysAhead = *patch.GenerateDaysAhead
	}
	if patch.Active != nil {
		rule.Active = *patch.Active
	}

	if err := Validate(rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.clock.Now()
	if err := s.store.Replace(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes the rule and only the future, zero-booking slots it
// generated. Slots with any booking are preserved for historical
// integrity even though their generating rule is gone.
func (s *Service) Delete(ctx context.Context, id, vendorID string) (int64, error) {
	rule, err := s.store.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if rule.VendorID != vendorID {
		return 0, ErrNotOwner
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return 0, err
	}
	today := s.clock.Now().In(time.Local).Format("2006-01-02")
	return s.slots.DeleteFutureUnbooked(ctx, id, today)
}

// Validate checks the mutually-exclusive payload shape: exactly one of
// recurring/one-time, matching ruleType, with a non-empty day selector
// for weekly and monthly patterns.
func Validate(rule *models.AvailabilityRule) error {
	if rule.ListingID == "" || rule.VendorID == "" {
		return fmt.Errorf("%w: missing listing or vendor", ErrInvalidRule)
	}
	if rule.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidRule)
	}
	if rule.BookingDeadlineHours < 0 {
		return fmt.Errorf("%w: bookingDeadlineHours cannot be negative", ErrInvalidRule)
	}

	switch rule.RuleType {
	case models.RuleRecurring:
		if rule.Recurring == nil || rule.OneTime != nil {
			return fmt.Errorf("%w: recurring rule must carry exactly the recurring payload", ErrInvalidRule)
		}
		return validateRecurrence(rule.Recurring)
	case models.RuleOneTime:
		if rule.OneTime == nil || rule.Recurring != nil {
			return fmt.Errorf("%w: one-time rule must carry exactly the one-time payload", ErrInvalidRule)
		}
		ot := rule.OneTime
		if ot.Date == "" || ot.StartTime == "" || ot.Duration <= 0 {
			return fmt.Errorf("%w: one-time rule needs date, startTime and duration", ErrInvalidRule)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown ruleType %q", ErrInvalidRule, rule.RuleType)
	}
}

func validateRecurrence(rec *models.Recurrence) error {
	if rec.StartTime == "" || rec.Duration <= 0 {
		return fmt.Errorf("%w: recurrence needs startTime and duration", ErrInvalidRule)
	}
	switch rec.Frequency {
	case models.FreqDaily:
		return nil
	case models.FreqWeekly:
		if len(rec.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
		}
		for _, wd := range rec.Weekdays {
			if wd < 1 || wd > 7 {
				return fmt.Errorf("%w: weekday %d out of range 1-7", ErrInvalidRule, wd)
			}
		}
		return nil
	case models.FreqMonthly:
		if len(rec.MonthDays) == 0 {
			return fmt.Errorf("%w: monthly rule needs at least one day of month", ErrInvalidRule)
		}
		for _, dom := range rec.MonthDays {
			if dom < 1 || dom > 31 {
				return fmt.Errorf("%w: day of month %d out of range 1-31", ErrInvalidRule, dom)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, rec.Frequency)
	}
}
