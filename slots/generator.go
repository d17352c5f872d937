package slots

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"islebook/models"
	"islebook/utils"
)

const dateLayout = "2006-01-02"

// RuleSource is the slice of the rule store the generator needs.
type RuleSource interface {
	GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error)
}

// Generator expands availability rules into concrete slots. Re-running
// it over the same window is a no-op: the unique (listing, date,
// startTime) key makes every insert idempotent.
type Generator struct {
	store Store
	rules RuleSource
	clock utils.Clock
}

func NewGenerator(store Store, rules RuleSource, clock utils.Clock) *Generator {
	return &Generator{store: store, rules: rules, clock: clock}
}

func genID() string {
	return utils.GenerateRandomDigitString(22)
}

// Generate materializes the rule's slots over [startDate, endDate]
// (inclusive calendar dates) and returns the ids of slots actually
// created. Existing slots are silently skipped.
func (g *Generator) Generate(ctx context.Context, ruleID, startDate, endDate string) ([]string, error) {
	rule, err := g.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, ErrRuleInactive
	}

	start, err1 := time.ParseInLocation(dateLayout, startDate, time.Local)
	end, err2 := time.ParseInLocation(dateLayout, endDate, time.Local)
	if err1 != nil || err2 != nil || start.After(end) {
		return nil, fmt.Errorf("invalid date range %q..%q", startDate, endDate)
	}

	if rule.RuleType == models.RuleOneTime {
		return g.generateOneTime(ctx, rule)
	}
	return g.generateRecurring(ctx, rule, start, end)
}

// GenerateAhead is the vendor/scheduler entry point: a rolling window
// from today, capped at the rule's configured horizon. daysOverride <= 0
// means "use the rule's horizon". Repeated invocation (the daily sweep)
// is what rolls the horizon forward for "indefinite" rules.
func (g *Generator) GenerateAhead(ctx context.Context, ruleID string, daysOverride int) ([]string, error) {
	rule, err := g.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, ErrRuleInactive
	}

	days := rule.GenerationHorizon()
	if daysOverride > 0 && daysOverride < days {
		days = daysOverride
	}

	today := g.clock.Now().In(time.Local)
	start := today.Format(dateLayout)
	end := today.AddDate(0, 0, days-1).Format(dateLayout)
	return g.Generate(ctx, ruleID, start, end)
}

func (g *Generator) generateOneTime(ctx context.Context, rule *models.AvailabilityRule) ([]string, error) {
	ot := rule.OneTime
	if ot == nil {
		return nil, fmt.Errorf("rule %s has no one-time payload", rule.ID)
	}
	slot, err := g.buildSlot(rule, ot.Date, ot.StartTime, ot.Duration)
	if err != nil {
		return nil, err
	}
	if err := g.store.Insert(ctx, slot); err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, nil
		}
		return nil, err
	}
	return []string{slot.ID}, nil
}

func (g *Generator) generateRecurring(ctx context.Context, rule *models.AvailabilityRule, start, end time.Time) ([]string, error) {
	rec := rule.Recurring
	if rec == nil {
		return nil, fmt.Errorf("rule %s has no recurrence payload", rule.ID)
	}

	var created []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !dayQualifies(rec, d) {
			continue
		}
		slot, err := g.buildSlot(rule, d.Format(dateLayout), rec.StartTime, rec.Duration)
		if err != nil {
			return created, err
		}
		if err := g.store.Insert(ctx, slot); err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				continue
			}
			return created, err
		}
		created = append(created, slot.ID)
	}
	return created, nil
}

// dayQualifies reports whether the recurrence pattern covers day d.
// Weekday codes are 1-7 with Sunday mapped to 7, never 0.
func dayQualifies(rec *models.Recurrence, d time.Time) bool {
	switch rec.Frequency {
	case models.FreqDaily:
		return true
	case models.FreqWeekly:
		wd := int(d.Weekday())
		if wd == 0 {
			wd = 7
		}
		return utils.ContainsInt(rec.Weekdays, wd)
	case models.FreqMonthly:
		return utils.ContainsInt(rec.MonthDays, d.Day())
	default:
		return false
	}
}

func (g *Generator) buildSlot(rule *models.AvailabilityRule, date, startTime string, duration int) (*models.Slot, error) {
	endTime, err := AddMinutes(startTime, duration)
	if err != nil {
		return nil, err
	}
	deadline, err := BookingDeadline(date, startTime, rule.BookingDeadlineHours)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	return &models.Slot{
		ID:              genID(),
		ListingID:       rule.ListingID,
		VendorID:        rule.VendorID,
		RuleID:          rule.ID,
		Date:            date,
		StartTime:       startTime,
		EndTime:         endTime,
		Capacity:        rule.Capacity,
		Booked:          0,
		Available:       rule.Capacity,
		BookingDeadline: deadline,
		Status:          models.SlotActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AddMinutes computes "HH:MM" + duration using plain minute arithmetic.
// An activity spanning midnight is not wrapped back into the next day.
func AddMinutes(hhmm string, duration int) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	return utils.MinutesToHHMM(h*60 + m + duration), nil
}

// BookingDeadline is the slot's start instant minus the configured lead
// hours, in the platform's fixed local timezone.
func BookingDeadline(date, startTime string, hours int) (time.Time, error) {
	h, m, err := parseHHMM(startTime)
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	startInstant := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.Local)
	return startInstant.Add(-time.Duration(hours) * time.Hour), nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return h, m, nil
}
