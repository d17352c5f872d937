package mq

import (
	"context"
	"encoding/json"
	"log"

	"islebook/models"
	"islebook/rdx"
)

// Notification event types consumed by the dispatch worker.
const (
	EventWaitlistSpotAvailable = "waitlistSpotAvailable"
	EventBookingCancelled      = "bookingCancelled"
)

const notifyChannel = "notification-events"

// Publisher is the fire-and-forget contract the domain packages emit
// through. Delivery failure never reaches the caller of the operation
// that triggered the event.
type Publisher interface {
	Emit(ctx context.Context, event models.Notification)
}

// Emitter publishes notification events to Redis for the dispatch
// worker. Publishing happens after the triggering state transition has
// committed, never inside it.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) Emit(ctx context.Context, event models.Notification) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Emit] Failed to marshal event: %v", err)
		return
	}

	if err := rdx.Conn.Publish(context.Background(), notifyChannel, data).Err(); err != nil {
		log.Printf("[Emit] Failed to publish %s event to Redis: %v", event.Type, err)
		return
	}
}

// StartNotificationWorker consumes notification events and hands them to
// delivery. In-app and email delivery belong to the host system; here
// the worker logs each event it would dispatch.
func StartNotificationWorker() {
	ctx := context.Background()
	sub := rdx.Conn.Subscribe(ctx, notifyChannel)
	ch := sub.Channel()

	log.Println("[NotifyWorker] Listening for notification events...")

	for msg := range ch {
		var event models.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("[NotifyWorker] Failed to parse event: %v", err)
			continue
		}

		switch event.Type {
		case EventWaitlistSpotAvailable:
			log.Printf("[NotifyWorker] spot available: user=%s slot=%s expires=%v", event.UserID, event.SlotID, event.ExpiresAt)
		case EventBookingCancelled:
			log.Printf("[NotifyWorker] booking cancelled: user=%s slot=%s reason=%s", event.UserID, event.SlotID, event.Reason)
		default:
			log.Printf("[NotifyWorker] unknown event type %q", event.Type)
		}
	}
}
