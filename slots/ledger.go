package slots

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"islebook/models"
	"islebook/mq"
	"islebook/utils"
)

// casRetries bounds the optimistic-retry loop. Contention on a single
// slot is short-lived; if the CAS still misses after this many rounds
// the caller gets ErrConflict and may retry the whole operation.
const casRetries = 8

// BookingCanceller is the slice of the booking flow the cancellation
// cascade needs: flip every live booking of a slot to cancelled and
// report which customers were affected.
type BookingCanceller interface {
	CancelForSlot(ctx context.Context, slotID, reason string) ([]models.Booking, error)
}

// Ledger owns slot capacity state. Every mutation goes through a
// read-validate-CAS cycle so that two concurrent reservations can never
// both succeed when their combined guest count exceeds availability.
type Ledger struct {
	store    Store
	clock    utils.Clock
	events   mq.Publisher
	bookings BookingCanceller
}

func NewLedger(store Store, clock utils.Clock, events mq.Publisher) *Ledger {
	return &Ledger{store: store, clock: clock, events: events}
}

// SetBookingCanceller wires the cancellation cascade. Kept separate from
// the constructor because the booking flow itself depends on the ledger.
func (l *Ledger) SetBookingCanceller(bc BookingCanceller) {
	l.bookings = bc
}

func (l *Ledger) Get(ctx context.Context, slotID string) (*models.Slot, error) {
	return l.store.GetByID(ctx, slotID)
}

// Reserve atomically consumes guests seats from the slot. Validation
// order matters for the caller-facing error: state, then deadline, then
// capacity.
func (l *Ledger) Reserve(ctx context.Context, slotID string, guests int) (*models.Slot, error) {
	if guests <= 0 {
		return nil, ErrInvalidGuests
	}

	for i := 0; i < casRetries; i++ {
		slot, err := l.store.GetByID(ctx, slotID)
		if err != nil {
			return nil, err
		}
		now := l.clock.Now()

		if slot.Status != models.SlotActive {
			return nil, ErrSlotNotBookable
		}
		if now.After(slot.BookingDeadline) {
			return nil, ErrDeadlinePassed
		}
		if slot.Available < guests {
			return nil, fmt.Errorf("only %d spot(s) remaining: %w", slot.Available, ErrCapacityExceeded)
		}

		version := slot.Version
		slot.Booked += guests
		slot.Available = slot.Capacity - slot.Booked
		slot.UpdatedAt = now

		ok, err := l.store.UpdateCAS(ctx, slot, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return slot, nil
		}
	}
	return nil, ErrConflict
}

// Release returns guests seats to the slot, clamped so duplicate or
// out-of-order releases can never drive booked below zero or available
// above capacity. The second return value reports a zero-to-positive
// availability transition, the trigger for waitlist promotion.
func (l *Ledger) Release(ctx context.Context, slotID string, guests int) (*models.Slot, bool, error) {
	if guests <= 0 {
		return nil, false, ErrInvalidGuests
	}

	for i := 0; i < casRetries; i++ {
		slot, err := l.store.GetByID(ctx, slotID)
		if err != nil {
			return nil, false, err
		}

		wasEmpty := slot.Available == 0
		version := slot.Version
		slot.Booked -= guests
		if slot.Booked < 0 {
			slot.Booked = 0
		}
		slot.Available = slot.Capacity - slot.Booked
		slot.UpdatedAt = l.clock.Now()

		ok, err := l.store.UpdateCAS(ctx, slot, version)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return slot, wasEmpty && slot.Available > 0, nil
		}
	}
	return nil, false, ErrConflict
}

// Block takes an active, zero-booking slot out of circulation. Reversible.
func (l *Ledger) Block(ctx context.Context, slotID string) (*models.Slot, error) {
	return l.transition(ctx, slotID, func(slot *models.Slot) error {
		if slot.Status != models.SlotActive || slot.Booked != 0 {
			return ErrNotBlockable
		}
		slot.Status = models.SlotBlocked
		return nil
	})
}

func (l *Ledger) Unblock(ctx context.Context, slotID string) (*models.Slot, error) {
	return l.transition(ctx, slotID, func(slot *models.Slot) error {
		if slot.Status != models.SlotBlocked {
			return ErrBadTransition
		}
		slot.Status = models.SlotActive
		return nil
	})
}

// CancelSlot is terminal. Every live booking in the slot is flipped to
// cancelled and its customer notified; a failure on one booking never
// stops the rest of the cascade. Outstanding waitlist entries are left
// alone; the slot they were queued for simply no longer accepts
// bookings.
func (l *Ledger) CancelSlot(ctx context.Context, slotID, reason string) (*models.Slot, error) {
	slot, err := l.transition(ctx, slotID, func(slot *models.Slot) error {
		if slot.Status != models.SlotActive {
			return ErrBadTransition
		}
		slot.Status = models.SlotCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.bookings != nil {
		affected, err := l.bookings.CancelForSlot(ctx, slotID, reason)
		if err != nil {
			log.Printf("[Ledger] cancel cascade for slot %s: %v", slotID, err)
		}
		for _, b := range affected {
			l.events.Emit(ctx, models.Notification{
				Type:      mq.EventBookingCancelled,
				UserID:    b.UserID,
				SlotID:    slotID,
				ListingID: slot.ListingID,
				Reason:    reason,
				Message:   "Your booking was cancelled by the vendor.",
			})
		}
	}
	return slot, nil
}

// CompletePast flips every active slot whose end instant has passed to
// completed. Idempotent; a skipped sweep just delays the flip.
func (l *Ledger) CompletePast(ctx context.Context) (int, error) {
	now := l.clock.Now()
	candidates, err := l.store.ActiveOnOrBefore(ctx, now.In(time.Local).Format(dateLayout))
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range candidates {
		slot := candidates[i]
		end, err := endInstant(&slot)
		if err != nil || end.After(now) {
			continue
		}
		version := slot.Version
		slot.Status = models.SlotCompleted
		slot.UpdatedAt = now
		ok, err := l.store.UpdateCAS(ctx, &slot, version)
		if err != nil {
			return completed, err
		}
		if ok {
			completed++
		}
		// CAS misses are left for the next sweep.
	}
	return completed, nil
}

func (l *Ledger) transition(ctx context.Context, slotID string, apply func(*models.Slot) error) (*models.Slot, error) {
	for i := 0; i < casRetries; i++ {
		slot, err := l.store.GetByID(ctx, slotID)
		if err != nil {
			return nil, err
		}
		version := slot.Version
		if err := apply(slot); err != nil {
			return nil, err
		}
		slot.UpdatedAt = l.clock.Now()

		ok, err := l.store.UpdateCAS(ctx, slot, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return slot, nil
		}
	}
	return nil, ErrConflict
}

// endInstant resolves the slot's end as an absolute time. End times past
// midnight ("25:00") spill into the following day here even though slot
// generation itself never splits a slot across days.
func endInstant(slot *models.Slot) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, slot.Date, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	parts := strings.SplitN(slot.EndTime, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid end time %q", slot.EndTime)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, fmt.Errorf("invalid end time %q", slot.EndTime)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.Local), nil
}
