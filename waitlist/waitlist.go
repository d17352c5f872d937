package waitlist

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"islebook/models"
	"islebook/mq"
	"islebook/utils"
)

// NotifyWindow is how long a promoted customer holds first right to
// book before the queue moves on. Expiry is advisory: the sweep flips
// the entry, but a late booking still goes through normal reservation
// rules if capacity remains.
const NotifyWindow = 24 * time.Hour

var (
	ErrSlotNotFull    = errors.New("slot still has open spots, book directly")
	ErrSlotNotOpen    = errors.New("slot is not open for waitlisting")
	ErrAlreadyWaiting = errors.New("already on this slot's waitlist")
	ErrNotOwner       = errors.New("waitlist entry belongs to another customer")
	ErrNotWaiting     = errors.New("waitlist entry is not in waiting state")
)

// slotReader is the slice of the slot store the queue needs. Satisfied
// by slots.Store.
type slotReader interface {
	GetByID(ctx context.Context, id string) (*models.Slot, error)
}

// Queue is the per-slot FIFO of customers waiting for capacity.
// Ordering is by joinSeq, a strictly increasing stamp, so promotion
// never has to break a tie.
type Queue struct {
	store  Store
	slots  slotReader
	clock  utils.Clock
	events mq.Publisher

	seq atomic.Int64
}

func NewQueue(store Store, slots slotReader, clock utils.Clock, events mq.Publisher) *Queue {
	return &Queue{store: store, slots: slots, clock: clock, events: events}
}

// nextSeq hands out strictly increasing stamps even when two joins land
// on the same nanosecond.
func (q *Queue) nextSeq(now time.Time) int64 {
	for {
		cur := q.seq.Load()
		next := now.UnixNano()
		if next <= cur {
			next = cur + 1
		}
		if q.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Join queues a customer on a full slot. Joining a slot with open
// capacity is an error; the customer should book directly.
func (q *Queue) Join(ctx context.Context, slotID, userID string) (*models.WaitlistEntry, error) {
	slot, err := q.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotActive {
		return nil, ErrSlotNotOpen
	}
	if slot.Available > 0 {
		return nil, ErrSlotNotFull
	}

	// Fast-path duplicate check; the store's unique waiting key is the
	// real guard when two joins race.
	dup, err := q.store.HasWaiting(ctx, slotID, userID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrAlreadyWaiting
	}

	now := q.clock.Now()
	entry := &models.WaitlistEntry{
		ID:        utils.GetUUID(),
		SlotID:    slotID,
		ListingID: slot.ListingID,
		UserID:    userID,
		Status:    models.WaitlistWaiting,
		JoinedAt:  now,
		JoinSeq:   q.nextSeq(now),
		UpdatedAt: now,
	}
	if err := q.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Leave is an owner-only hard delete, valid only from waiting.
func (q *Queue) Leave(ctx context.Context, entryID, userID string) error {
	entry, err := q.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return ErrNotOwner
	}
	if entry.Status != models.WaitlistWaiting {
		return ErrNotWaiting
	}
	return q.store.Delete(ctx, entryID)
}

// PromoteNext notifies the oldest waiting entry for the slot, opening
// its 24-hour first-right-to-book window. It does NOT reserve capacity:
// the customer still goes through normal reserve contention when they
// act. An empty queue is a normal no-op, not an error.
func (q *Queue) PromoteNext(ctx context.Context, slotID string) (*models.WaitlistEntry, error) {
	for {
		entry, err := q.store.OldestWaiting(ctx, slotID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, nil
		}

		now := q.clock.Now()
		expires := now.Add(NotifyWindow)
		ok, err := q.store.MarkNotified(ctx, entry.ID, now, expires)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Someone else moved this entry; take the next oldest.
			continue
		}

		entry.Status = models.WaitlistNotified
		entry.NotifiedAt = &now
		entry.ExpiresAt = &expires
		entry.UpdatedAt = now

		q.events.Emit(ctx, models.Notification{
			Type:      mq.EventWaitlistSpotAvailable,
			UserID:    entry.UserID,
			SlotID:    slotID,
			ListingID: entry.ListingID,
			ExpiresAt: &expires,
			Message:   "A spot opened up. You have 24 hours to book it.",
		})
		return entry, nil
	}
}

// MarkBookedFor settles the notified entry of a customer who just
// reserved successfully. No entry, or an entry the sweep already
// expired, is fine: the reservation stands either way.
func (q *Queue) MarkBookedFor(ctx context.Context, slotID, userID string) error {
	entry, err := q.store.GetNotifiedFor(ctx, slotID, userID)
	if err != nil || entry == nil {
		return err
	}
	_, err = q.store.MarkStatus(ctx, entry.ID, models.WaitlistNotified, models.WaitlistBooked, q.clock.Now())
	return err
}

// ExpireStale flips every notified entry past its window to expired and
// returns the affected slot ids. Re-promotion is a separate step (see
// RepromoteAfterExpiry) so callers can batch it outside the sweep.
func (q *Queue) ExpireStale(ctx context.Context) ([]string, error) {
	return q.store.ExpireNotifiedBefore(ctx, q.clock.Now())
}

// RepromoteAfterExpiry advances the queue for each slot whose
// notification just lapsed, but only while the slot still has open
// capacity and nobody else holds a live notification.
func (q *Queue) RepromoteAfterExpiry(ctx context.Context, slotIDs []string) {
	for _, slotID := range slotIDs {
		slot, err := q.slots.GetByID(ctx, slotID)
		if err != nil || slot.Status != models.SlotActive || slot.Available <= 0 {
			continue
		}
		busy, err := q.store.HasActiveNotified(ctx, slotID, q.clock.Now())
		if err != nil || busy {
			continue
		}
		_, _ = q.PromoteNext(ctx, slotID)
	}
}

// Position reports the 1-based rank of a waiting entry plus the total
// waiting count for its slot.
func (q *Queue) Position(ctx context.Context, entryID, userID string) (int, int, error) {
	entry, err := q.store.GetByID(ctx, entryID)
	if err != nil {
		return 0, 0, err
	}
	if entry.UserID != userID {
		return 0, 0, ErrNotOwner
	}
	if entry.Status != models.WaitlistWaiting {
		return 0, 0, ErrNotWaiting
	}
	return q.store.WaitingRank(ctx, entry.SlotID, entry.JoinSeq)
}
