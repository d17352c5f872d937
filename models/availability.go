package models

import (
	"strconv"
	"time"
)

// Rule types
const (
	RuleRecurring = "recurring"
	RuleOneTime   = "one-time"
)

// Recurrence frequencies
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// Slot statuses
const (
	SlotActive    = "active"
	SlotBlocked   = "blocked"
	SlotCancelled = "cancelled"
	SlotCompleted = "completed"
)

// Waitlist entry statuses
const (
	WaitlistWaiting  = "waiting"
	WaitlistNotified = "notified"
	WaitlistExpired  = "expired"
	WaitlistBooked   = "booked"
)

// DefaultGenerateDays caps how far ahead a single generation pass reaches.
// Rules configured "indefinite" roll their horizon forward via the daily
// sweep instead of materializing unbounded slots in one go.
const DefaultGenerateDays = 30

// Recurrence is the repeating-pattern payload of a recurring rule.
// Weekdays carries 1-7 codes (Monday=1 .. Sunday=7) when Frequency is
// weekly; MonthDays carries day-of-month numbers when monthly; both are
// ignored for daily.
type Recurrence struct {
	Frequency string `json:"frequency" bson:"frequency"`
	Weekdays  []int  `json:"daysOfWeek,omitempty" bson:"daysOfWeek,omitempty"`
	MonthDays []int  `json:"daysOfMonth,omitempty" bson:"daysOfMonth,omitempty"`
	StartTime string `json:"startTime" bson:"startTime"` // "HH:MM"
	Duration  int    `json:"duration" bson:"duration"`   // minutes
}

// OneTime is the single-occurrence payload of a one-time rule.
type OneTime struct {
	Date      string `json:"date" bson:"date"` // "YYYY-MM-DD"
	StartTime string `json:"startTime" bson:"startTime"`
	Duration  int    `json:"duration" bson:"duration"`
}

// AvailabilityRule is a vendor-authored template describing when a
// listing is bookable. Exactly one of Recurring/OneTime is set,
// matching RuleType.
type AvailabilityRule struct {
	ID        string `json:"id" bson:"id"`
	ListingID string `json:"listingId" bson:"listingId"`
	VendorID  string `json:"vendorId" bson:"vendorId"`
	RuleType  string `json:"ruleType" bson:"ruleType"`

	Recurring *Recurrence `json:"recurring,omitempty" bson:"recurring,omitempty"`
	OneTime   *OneTime    `json:"oneTime,omitempty" bson:"oneTime,omitempty"`

	Capacity             int    `json:"capacity" bson:"capacity"`
	BookingDeadlineHours int    `json:"bookingDeadlineHours" bson:"bookingDeadlineHours"`
	GenerateDaysAhead    string `json:"generateDaysInAdvance,omitempty" bson:"generateDaysInAdvance,omitempty"` // number or "indefinite"
	Active               bool   `json:"active" bson:"active"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// GenerationHorizon resolves how many days ahead a single generation
// pass may reach. Non-numeric values (including "indefinite") and
// anything below 1 fall back to DefaultGenerateDays.
func (r *AvailabilityRule) GenerationHorizon() int {
	n, err := strconv.Atoi(r.GenerateDaysAhead)
	if err != nil || n < 1 {
		return DefaultGenerateDays
	}
	return n
}

// Slot is a concrete, dated, capacity-bounded bookable instance.
// Invariant: Available = Capacity - Booked and 0 <= Available <= Capacity.
// Version backs the compare-and-swap used by the ledger.
type Slot struct {
	ID        string `json:"id" bson:"id"`
	ListingID string `json:"listingId" bson:"listingId"`
	VendorID  string `json:"vendorId" bson:"vendorId"`
	RuleID    string `json:"ruleId,omitempty" bson:"ruleId,omitempty"` // empty for manually created slots

	Date      string `json:"date" bson:"date"` // "YYYY-MM-DD"
	StartTime string `json:"startTime" bson:"startTime"`
	EndTime   string `json:"endTime" bson:"endTime"`

	Capacity  int `json:"capacity" bson:"capacity"`
	Booked    int `json:"booked" bson:"booked"`
	Available int `json:"available" bson:"available"`

	BookingDeadline time.Time `json:"bookingDeadline" bson:"bookingDeadline"`
	Status          string    `json:"status" bson:"status"`
	Version         int64     `json:"-" bson:"version"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// WaitlistEntry is one customer's place in a full slot's FIFO queue.
// JoinSeq is strictly increasing per process and breaks JoinedAt ties so
// queue order is never ambiguous.
type WaitlistEntry struct {
	ID        string `json:"id" bson:"id"`
	SlotID    string `json:"slotId" bson:"slotId"`
	ListingID string `json:"listingId" bson:"listingId"`
	UserID    string `json:"userId" bson:"userId"`

	Status   string    `json:"status" bson:"status"`
	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
	JoinSeq  int64     `json:"-" bson:"joinSeq"`

	NotifiedAt *time.Time `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`

	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Notification is the fire-and-forget event payload handed to the
// dispatch collaborator after a state transition commits.
type Notification struct {
	Type      string     `json:"type"`
	UserID    string     `json:"userId"`
	SlotID    string     `json:"slotId"`
	ListingID string     `json:"listingId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
}
