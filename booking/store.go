package booking

import (
	"context"
	"errors"
	"time"

	"islebook/db"
	"islebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrBookingNotFound = errors.New("booking not found")

// Store persists booking records. Insert must fail with
// ErrDuplicateBooking when the customer already holds a confirmed
// booking for the slot (the unique partial index backstops the flow's
// duplicate check under concurrent creates). MarkCancelled is
// conditional on the booking still being live, which is what guarantees
// seats are released exactly once per cancellation no matter how often
// it is retried.
type Store interface {
	Insert(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	HasLiveForUserSlot(ctx context.Context, userID, slotID string) (bool, error)
	MarkCancelled(ctx context.Context, id string, now time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListLiveBySlot(ctx context.Context, slotID string) ([]models.Booking, error)
}

type mongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore() Store {
	return &mongoStore{coll: db.BookingsCollection}
}

func (s *mongoStore) Insert(ctx context.Context, b *models.Booking) error {
	_, err := s.coll.InsertOne(ctx, b)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateBooking
	}
	return err
}

func (s *mongoStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *mongoStore) HasLiveForUserSlot(ctx context.Context, userID, slotID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"userId": userID,
		"slotId": slotID,
		"status": bson.M{"$ne": models.BookingCancelled},
	})
	return n > 0, err
}

func (s *mongoStore) MarkCancelled(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": bson.M{"$ne": models.BookingCancelled}},
		bson.M{"$set": bson.M{"status": models.BookingCancelled, "updatedAt": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *mongoStore) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.list(ctx, bson.M{"userId": userID})
}

func (s *mongoStore) ListLiveBySlot(ctx context.Context, slotID string) ([]models.Booking, error) {
	return s.list(ctx, bson.M{"slotId": slotID, "status": bson.M{"$ne": models.BookingCancelled}})
}

func (s *mongoStore) list(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Booking
	for cur.Next(ctx) {
		var b models.Booking
		if err := cur.Decode(&b); err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, cur.Err()
}
