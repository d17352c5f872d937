package waitlist

import (
	"context"
	"errors"
	"time"

	"islebook/db"
	"islebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrEntryNotFound = errors.New("waitlist entry not found")

// Store is the waitlist persistence contract. Insert must fail with
// ErrAlreadyWaiting when the customer already has a waiting entry for
// the slot; the unique partial index makes two concurrent joins
// impossible to both land. MarkNotified and MarkStatus are conditional
// single-entry updates: they succeed only when the entry is still in
// the expected state, which is what keeps two concurrent promotions
// from notifying the same entry twice.
type Store interface {
	Insert(ctx context.Context, entry *models.WaitlistEntry) error
	GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	Delete(ctx context.Context, id string) error
	HasWaiting(ctx context.Context, slotID, userID string) (bool, error)
	OldestWaiting(ctx context.Context, slotID string) (*models.WaitlistEntry, error)
	GetNotifiedFor(ctx context.Context, slotID, userID string) (*models.WaitlistEntry, error)
	HasActiveNotified(ctx context.Context, slotID string, now time.Time) (bool, error)
	MarkNotified(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (bool, error)
	MarkStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error)
	ExpireNotifiedBefore(ctx context.Context, now time.Time) ([]string, error)
	WaitingRank(ctx context.Context, slotID string, joinSeq int64) (int, int, error)
}

type mongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore() Store {
	return &mongoStore{coll: db.WaitlistCollection}
}

func (s *mongoStore) Insert(ctx context.Context, entry *models.WaitlistEntry) error {
	_, err := s.coll.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyWaiting
	}
	return err
}

func (s *mongoStore) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *mongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *mongoStore) HasWaiting(ctx context.Context, slotID, userID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"slotId": slotID, "userId": userID, "status": models.WaitlistWaiting,
	})
	return n > 0, err
}

func (s *mongoStore) OldestWaiting(ctx context.Context, slotID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := s.coll.FindOne(ctx,
		bson.M{"slotId": slotID, "status": models.WaitlistWaiting},
		options.FindOne().SetSort(bson.D{{Key: "joinSeq", Value: 1}}),
	).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *mongoStore) GetNotifiedFor(ctx context.Context, slotID, userID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := s.coll.FindOne(ctx, bson.M{
		"slotId": slotID, "userId": userID, "status": models.WaitlistNotified,
	}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *mongoStore) HasActiveNotified(ctx context.Context, slotID string, now time.Time) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"slotId":    slotID,
		"status":    models.WaitlistNotified,
		"expiresAt": bson.M{"$gt": now},
	})
	return n > 0, err
}

func (s *mongoStore) MarkNotified(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": models.WaitlistWaiting},
		bson.M{"$set": bson.M{
			"status":     models.WaitlistNotified,
			"notifiedAt": notifiedAt,
			"expiresAt":  expiresAt,
			"updatedAt":  notifiedAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *mongoStore) MarkStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// ExpireNotifiedBefore flips every stale notification to expired and
// returns the distinct slot ids that were touched, so the caller can
// re-promote those queues outside this sweep.
func (s *mongoStore) ExpireNotifiedBefore(ctx context.Context, now time.Time) ([]string, error) {
	filter := bson.M{
		"status":    models.WaitlistNotified,
		"expiresAt": bson.M{"$lt": now},
	}

	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	seen := map[string]bool{}
	var slotIDs []string
	for cur.Next(ctx) {
		var entry models.WaitlistEntry
		if err := cur.Decode(&entry); err != nil {
			continue
		}
		if !seen[entry.SlotID] {
			seen[entry.SlotID] = true
			slotIDs = append(slotIDs, entry.SlotID)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	_, err = s.coll.UpdateMany(ctx, filter,
		bson.M{"$set": bson.M{"status": models.WaitlistExpired, "updatedAt": now}},
	)
	if err != nil {
		return nil, err
	}
	return slotIDs, nil
}

func (s *mongoStore) WaitingRank(ctx context.Context, slotID string, joinSeq int64) (int, int, error) {
	ahead, err := s.coll.CountDocuments(ctx, bson.M{
		"slotId":  slotID,
		"status":  models.WaitlistWaiting,
		"joinSeq": bson.M{"$lte": joinSeq},
	})
	if err != nil {
		return 0, 0, err
	}
	total, err := s.coll.CountDocuments(ctx, bson.M{
		"slotId": slotID,
		"status": models.WaitlistWaiting,
	})
	if err != nil {
		return 0, 0, err
	}
	return int(ahead), int(total), nil
}
