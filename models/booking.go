package models

import "time"

// Booking statuses
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking is one customer's reservation of Guests seats in a slot.
// Seats are consumed from the slot ledger when the booking is created
// and returned exactly once when it is cancelled.
type Booking struct {
	ID        string `json:"id" bson:"id"`
	SlotID    string `json:"slotId" bson:"slotId"`
	ListingID string `json:"listingId" bson:"listingId"`
	VendorID  string `json:"vendorId" bson:"vendorId"`
	UserID    string `json:"userId" bson:"userId"`

	Guests int    `json:"guests" bson:"guests"`
	Status string `json:"status" bson:"status"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
