package slots

import "errors"

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrDuplicateSlot    = errors.New("slot already exists for this listing, date and start time")
	ErrCapacityExceeded = errors.New("not enough spots available")
	ErrDeadlinePassed   = errors.New("booking deadline has passed")
	ErrSlotNotBookable  = errors.New("slot is not open for booking")
	ErrInvalidGuests    = errors.New("guest count must be a positive integer")
	ErrNotBlockable     = errors.New("slot cannot be blocked")
	ErrBadTransition    = errors.New("invalid slot status transition")
	ErrConflict         = errors.New("slot was modified concurrently, retry")
	ErrRuleInactive     = errors.New("availability rule is not active")
)
