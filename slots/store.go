package slots

import (
	"context"
	"errors"

	"islebook/db"
	"islebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the slot persistence contract. Insert must fail with
// ErrDuplicateSlot when a slot for the same (listing, date, startTime)
// exists, and UpdateCAS must be an atomic compare-and-swap on the
// version field; those two guarantees are all the ledger and generator
// need to stay correct under concurrent writers.
type Store interface {
	Insert(ctx context.Context, slot *models.Slot) error
	GetByID(ctx context.Context, id string) (*models.Slot, error)
	UpdateCAS(ctx context.Context, slot *models.Slot, expectedVersion int64) (bool, error)
	ListByListing(ctx context.Context, listingID string, opts ListFilter) ([]models.Slot, error)
	ActiveOnOrBefore(ctx context.Context, date string) ([]models.Slot, error)
	DeleteFutureUnbooked(ctx context.Context, ruleID, fromDate string) (int64, error)
}

type ListFilter struct {
	Status   string
	FromDate string
	ToDate   string
	Limit    int64
	Skip     int64
}

type mongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore returns a Store backed by the shared slots collection.
func NewMongoStore() Store {
	return &mongoStore{coll: db.SlotCollection}
}

func (s *mongoStore) Insert(ctx context.Context, slot *models.Slot) error {
	_, err := s.coll.InsertOne(ctx, slot)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateSlot
	}
	return err
}

func (s *mongoStore) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	var slot models.Slot
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// UpdateCAS replaces the document only if the stored version still
// matches expectedVersion. Single-document updates are atomic in Mongo,
// which is the whole serialization story for the ledger.
func (s *mongoStore) UpdateCAS(ctx context.Context, slot *models.Slot, expectedVersion int64) (bool, error) {
	slot.Version = expectedVersion + 1
	res, err := s.coll.ReplaceOne(ctx, bson.M{"id": slot.ID, "version": expectedVersion}, slot)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *mongoStore) ListByListing(ctx context.Context, listingID string, opts ListFilter) ([]models.Slot, error) {
	filter := bson.M{"listingId": listingID}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}
	dateRange := bson.M{}
	if opts.FromDate != "" {
		dateRange["$gte"] = opts.FromDate
	}
	if opts.ToDate != "" {
		dateRange["$lte"] = opts.ToDate
	}
	if len(dateRange) > 0 {
		filter["date"] = dateRange
	}

	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Slot
	for cur.Next(ctx) {
		var slot models.Slot
		if err := cur.Decode(&slot); err != nil {
			continue
		}
		out = append(out, slot)
	}
	return out, cur.Err()
}

func (s *mongoStore) ActiveOnOrBefore(ctx context.Context, date string) ([]models.Slot, error) {
	cur, err := s.coll.Find(ctx, bson.M{
		"status": models.SlotActive,
		"date":   bson.M{"$lte": date},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Slot
	for cur.Next(ctx) {
		var slot models.Slot
		if err := cur.Decode(&slot); err != nil {
			continue
		}
		out = append(out, slot)
	}
	return out, cur.Err()
}

// DeleteFutureUnbooked removes the rule's generated slots from fromDate
// on, but only those nobody has booked. Booked slots outlive their rule.
func (s *mongoStore) DeleteFutureUnbooked(ctx context.Context, ruleID, fromDate string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"ruleId": ruleID,
		"date":   bson.M{"$gte": fromDate},
		"booked": 0,
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
