package booking

import (
	"context"
	"errors"
	"log"

	"islebook/models"
	"islebook/utils"
)

var (
	ErrDuplicateBooking = errors.New("you already have a booking for this slot")
	ErrNotOwner         = errors.New("booking belongs to someone else")
)

// ledger is the slice of the slot ledger the flow calls around its own
// record keeping. Satisfied by *slots.Ledger.
type ledger interface {
	Reserve(ctx context.Context, slotID string, guests int) (*models.Slot, error)
	Release(ctx context.Context, slotID string, guests int) (*models.Slot, bool, error)
}

// queue is the slice of the waitlist the flow touches. Satisfied by
// *waitlist.Queue.
type queue interface {
	PromoteNext(ctx context.Context, slotID string) (*models.WaitlistEntry, error)
	MarkBookedFor(ctx context.Context, slotID, userID string) error
}

// Flow is the booking/payment collaborator side of the engine: it calls
// reserve/release around booking records and owns the
// one-live-booking-per-user-per-slot rule. Payment capture itself is
// external and out of scope.
type Flow struct {
	store  Store
	ledger ledger
	queue  queue
	clock  utils.Clock
}

func NewFlow(store Store, l ledger, q queue, clock utils.Clock) *Flow {
	return &Flow{store: store, ledger: l, queue: q, clock: clock}
}

// Create reserves seats first, then records the booking. If the record
// insert fails the seats are released again so capacity is never leaked.
func (f *Flow) Create(ctx context.Context, userID, slotID string, guests int) (*models.Booking, *models.Slot, error) {
	dup, err := f.store.HasLiveForUserSlot(ctx, userID, slotID)
	if err != nil {
		return nil, nil, err
	}
	if dup {
		return nil, nil, ErrDuplicateBooking
	}

	slot, err := f.ledger.Reserve(ctx, slotID, guests)
	if err != nil {
		return nil, nil, err
	}

	now := f.clock.Now()
	b := &models.Booking{
		ID:        utils.GetUUID(),
		SlotID:    slotID,
		ListingID: slot.ListingID,
		VendorID:  slot.VendorID,
		UserID:    userID,
		Guests:    guests,
		Status:    models.BookingConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.Insert(ctx, b); err != nil {
		// Compensate: give the seats back before surfacing the failure.
		// The compensation is a release like any other, so a reopened
		// slot still advances its waitlist.
		relSlot, freed, relErr := f.ledger.Release(ctx, slotID, guests)
		if relErr != nil {
			log.Printf("[Booking] compensating release for slot %s failed: %v", slotID, relErr)
		} else {
			f.promoteIfReopened(ctx, relSlot, freed)
		}
		return nil, nil, err
	}

	// Settle the customer's notified waitlist entry, if any. The
	// reservation stands whether or not this bookkeeping succeeds.
	if err := f.queue.MarkBookedFor(ctx, slotID, userID); err != nil {
		log.Printf("[Booking] waitlist settle for slot %s user %s: %v", slotID, userID, err)
	}
	return b, slot, nil
}

// Cancel flips the booking and releases its seats exactly once; a
// repeat cancel is an idempotent no-op. A release that reopens a full
// slot advances the waitlist.
func (f *Flow) Cancel(ctx context.Context, callerID, bookingID string) (*models.Booking, *models.Slot, error) {
	b, err := f.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.UserID != callerID && b.VendorID != callerID {
		return nil, nil, ErrNotOwner
	}

	flipped, err := f.store.MarkCancelled(ctx, bookingID, f.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	if !flipped {
		// Already cancelled; seats were released back then.
		b.Status = models.BookingCancelled
		return b, nil, nil
	}
	b.Status = models.BookingCancelled

	slot, freed, err := f.ledger.Release(ctx, b.SlotID, b.Guests)
	if err != nil {
		log.Printf("[Booking] release for cancelled booking %s: %v", bookingID, err)
		return b, nil, nil
	}
	f.promoteIfReopened(ctx, slot, freed)
	return b, slot, nil
}

// promoteIfReopened advances the waitlist after a release that took the
// slot from sold out back to open. Non-active slots never promote; a
// notification for a blocked or cancelled slot could never convert.
func (f *Flow) promoteIfReopened(ctx context.Context, slot *models.Slot, freed bool) {
	if !freed || slot == nil || slot.Status != models.SlotActive {
		return
	}
	if _, err := f.queue.PromoteNext(ctx, slot.ID); err != nil {
		log.Printf("[Booking] waitlist promotion for slot %s: %v", slot.ID, err)
	}
}

// CancelForSlot implements the slot-cancellation cascade: every live
// booking in the slot is flipped to cancelled. One booking failing
// never stops the rest. No seats are released; the whole slot is gone.
func (f *Flow) CancelForSlot(ctx context.Context, slotID, reason string) ([]models.Booking, error) {
	live, err := f.store.ListLiveBySlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	var affected []models.Booking
	for _, b := range live {
		flipped, err := f.store.MarkCancelled(ctx, b.ID, f.clock.Now())
		if err != nil {
			log.Printf("[Booking] cascade cancel of booking %s: %v", b.ID, err)
			continue
		}
		if flipped {
			b.Status = models.BookingCancelled
			affected = append(affected, b)
		}
	}
	return affected, nil
}

func (f *Flow) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return f.store.ListByUser(ctx, userID)
}

func (f *Flow) ListLiveBySlot(ctx context.Context, slotID string) ([]models.Booking, error) {
	return f.store.ListLiveBySlot(ctx, slotID)
}
