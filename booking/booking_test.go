package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"islebook/models"
)

type memStore struct {
	mu         sync.Mutex
	bookings   map[string]models.Booking
	failInsert error
}

func newMemBookings() *memStore {
	return &memStore{bookings: map[string]models.Booking{}}
}

func (m *memStore) Insert(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	for _, other := range m.bookings {
		if other.UserID == b.UserID && other.SlotID == b.SlotID && other.Status == models.BookingConfirmed {
			return ErrDuplicateBooking
		}
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := b
	return &cp, nil
}

func (m *memStore) HasLiveForUserSlot(_ context.Context, userID, slotID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.UserID == userID && b.SlotID == slotID && b.Status != models.BookingCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) MarkCancelled(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status == models.BookingCancelled {
		return false, nil
	}
	b.Status = models.BookingCancelled
	b.UpdatedAt = now
	m.bookings[id] = b
	return true, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListLiveBySlot(_ context.Context, slotID string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.SlotID == slotID && b.Status != models.BookingCancelled {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubLedger struct {
	mu         sync.Mutex
	slot       models.Slot
	reserveErr error
	freed      bool
	reserved   []int
	released   []int
}

func (s *stubLedger) Reserve(_ context.Context, _ string, guests int) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return nil, s.reserveErr
	}
	s.reserved = append(s.reserved, guests)
	cp := s.slot
	return &cp, nil
}

func (s *stubLedger) Release(_ context.Context, _ string, guests int) (*models.Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, guests)
	cp := s.slot
	return &cp, s.freed, nil
}

type stubQueue struct {
	mu       sync.Mutex
	promoted []string
	settled  []string
}

func (s *stubQueue) PromoteNext(_ context.Context, slotID string) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, slotID)
	return nil, nil
}

func (s *stubQueue) MarkBookedFor(_ context.Context, slotID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, slotID+"/"+userID)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)

func testSlot() models.Slot {
	return models.Slot{
		ID:        "slot-1",
		ListingID: "listing-1",
		VendorID:  "vendor-1",
		Capacity:  5,
		Booked:    2,
		Available: 3,
		Status:    models.SlotActive,
	}
}

func TestCreateBooking(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	q := &stubQueue{}
	flow := NewFlow(store, l, q, fixedClock{now: testNow})

	b, slot, err := flow.Create(context.Background(), "user-a", "slot-1", 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != models.BookingConfirmed || b.Guests != 2 || b.UserID != "user-a" {
		t.Fatalf("booking %+v, want confirmed 2-guest booking for user-a", b)
	}
	if slot.ID != "slot-1" {
		t.Fatalf("slot %q, want slot-1", slot.ID)
	}
	if len(l.reserved) != 1 || l.reserved[0] != 2 {
		t.Errorf("reserve calls %v, want [2]", l.reserved)
	}
	if len(q.settled) != 1 || q.settled[0] != "slot-1/user-a" {
		t.Errorf("waitlist settle calls %v, want [slot-1/user-a]", q.settled)
	}
	if _, err := store.GetByID(context.Background(), b.ID); err != nil {
		t.Errorf("booking not persisted: %v", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	flow := NewFlow(store, l, &stubQueue{}, fixedClock{now: testNow})

	if _, _, err := flow.Create(context.Background(), "user-a", "slot-1", 1); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, _, err := flow.Create(context.Background(), "user-a", "slot-1", 1); !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("second Create: err = %v, want ErrDuplicateBooking", err)
	}
	if len(l.reserved) != 1 {
		t.Errorf("reserve called %d times, want 1", len(l.reserved))
	}
}

func TestCreatePropagatesReserveError(t *testing.T) {
	wantErr := errors.New("sold out")
	l := &stubLedger{reserveErr: wantErr}
	flow := NewFlow(newMemBookings(), l, &stubQueue{}, fixedClock{now: testNow})

	if _, _, err := flow.Create(context.Background(), "user-a", "slot-1", 1); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if len(l.released) != 0 {
		t.Errorf("release called after failed reserve: %v", l.released)
	}
}

func TestCreateCompensatesOnInsertFailure(t *testing.T) {
	store := newMemBookings()
	store.failInsert = errors.New("write failed")
	l := &stubLedger{slot: testSlot()}
	flow := NewFlow(store, l, &stubQueue{}, fixedClock{now: testNow})

	if _, _, err := flow.Create(context.Background(), "user-a", "slot-1", 3); err == nil {
		t.Fatal("Create succeeded despite insert failure")
	}
	if len(l.released) != 1 || l.released[0] != 3 {
		t.Fatalf("release calls %v, want [3] to compensate the reservation", l.released)
	}
}

func TestCreateCompensationPromotesWhenSlotReopens(t *testing.T) {
	store := newMemBookings()
	store.failInsert = errors.New("write failed")
	l := &stubLedger{slot: testSlot(), freed: true}
	q := &stubQueue{}
	flow := NewFlow(store, l, q, fixedClock{now: testNow})

	if _, _, err := flow.Create(context.Background(), "user-a", "slot-1", 1); err == nil {
		t.Fatal("Create succeeded despite insert failure")
	}
	// The compensating release reopened a sold-out slot, so the
	// waitlist must advance just like on a cancellation.
	if len(q.promoted) != 1 || q.promoted[0] != "slot-1" {
		t.Fatalf("promotions %v, want [slot-1]", q.promoted)
	}
}

func TestConcurrentCreateSingleBooking(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	flow := NewFlow(store, l, &stubQueue{}, fixedClock{now: testNow})

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := flow.Create(context.Background(), "user-a", "slot-1", 1)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateBooking):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("%d creates succeeded, want 1", successes)
	}

	// Every reservation that lost the insert race was compensated, so
	// exactly one party's seats remain held.
	l.mu.Lock()
	held := len(l.reserved) - len(l.released)
	l.mu.Unlock()
	if held != 1 {
		t.Errorf("net reservations %d, want 1", held)
	}
	live, _ := store.ListLiveBySlot(context.Background(), "slot-1")
	if len(live) != 1 {
		t.Errorf("%d live bookings, want 1", len(live))
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	q := &stubQueue{}
	flow := NewFlow(store, l, q, fixedClock{now: testNow})

	b, _, err := flow.Create(context.Background(), "user-a", "slot-1", 2)
	if err != nil {
		t.Fatal(err)
	}

	first, _, err := flow.Cancel(context.Background(), "user-a", b.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if first.Status != models.BookingCancelled {
		t.Fatalf("status %q, want cancelled", first.Status)
	}
	if len(l.released) != 1 || l.released[0] != 2 {
		t.Fatalf("release calls %v, want [2]", l.released)
	}

	second, _, err := flow.Cancel(context.Background(), "user-a", b.ID)
	if err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if second.Status != models.BookingCancelled {
		t.Fatalf("repeat status %q, want cancelled", second.Status)
	}
	if len(l.released) != 1 {
		t.Fatalf("release called %d times after repeat cancel, want 1", len(l.released))
	}
}

func TestCancelPromotesWhenSlotReopens(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot(), freed: true}
	q := &stubQueue{}
	flow := NewFlow(store, l, q, fixedClock{now: testNow})

	b, _, _ := flow.Create(context.Background(), "user-a", "slot-1", 1)
	if _, _, err := flow.Cancel(context.Background(), "user-a", b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(q.promoted) != 1 || q.promoted[0] != "slot-1" {
		t.Fatalf("promotions %v, want [slot-1]", q.promoted)
	}
}

func TestCancelSkipsPromotionOnNonActiveSlot(t *testing.T) {
	store := newMemBookings()
	slot := testSlot()
	slot.Status = models.SlotCancelled
	l := &stubLedger{slot: slot, freed: true}
	q := &stubQueue{}
	flow := NewFlow(store, l, q, fixedClock{now: testNow})

	b, _, _ := flow.Create(context.Background(), "user-a", "slot-1", 1)
	if _, _, err := flow.Cancel(context.Background(), "user-a", b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Nobody gets notified about a spot on a dead slot.
	if len(q.promoted) != 0 {
		t.Fatalf("promotions %v, want none", q.promoted)
	}
}

func TestCancelAuthorization(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	flow := NewFlow(store, l, &stubQueue{}, fixedClock{now: testNow})

	b, _, _ := flow.Create(context.Background(), "user-a", "slot-1", 1)

	if _, _, err := flow.Cancel(context.Background(), "user-z", b.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("stranger cancel: err = %v, want ErrNotOwner", err)
	}
	// The slot's vendor may cancel a customer's booking.
	if _, _, err := flow.Cancel(context.Background(), "vendor-1", b.ID); err != nil {
		t.Errorf("vendor cancel: %v", err)
	}
}

func TestCancelForSlot(t *testing.T) {
	store := newMemBookings()
	l := &stubLedger{slot: testSlot()}
	flow := NewFlow(store, l, &stubQueue{}, fixedClock{now: testNow})

	b1, _, _ := flow.Create(context.Background(), "user-a", "slot-1", 1)
	b2, _, _ := flow.Create(context.Background(), "user-b", "slot-1", 2)
	b3, _, _ := flow.Create(context.Background(), "user-c", "slot-1", 1)
	if _, _, err := flow.Cancel(context.Background(), "user-c", b3.ID); err != nil {
		t.Fatal(err)
	}
	released := len(l.released)

	affected, err := flow.CancelForSlot(context.Background(), "slot-1", "venue closed")
	if err != nil {
		t.Fatalf("CancelForSlot: %v", err)
	}
	if len(affected) != 2 {
		t.Fatalf("affected %d bookings, want 2", len(affected))
	}
	for _, id := range []string{b1.ID, b2.ID} {
		got, _ := store.GetByID(context.Background(), id)
		if got.Status != models.BookingCancelled {
			t.Errorf("booking %s status %q, want cancelled", id, got.Status)
		}
	}
	// The whole slot is gone; the cascade never releases seats.
	if len(l.released) != released {
		t.Errorf("cascade released seats: %v", l.released)
	}
}
