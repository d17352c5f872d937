package rules

import (
	"context"
	"errors"

	"islebook/db"
	"islebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrRuleNotFound = errors.New("availability rule not found")

type Store interface {
	Insert(ctx context.Context, rule *models.AvailabilityRule) error
	GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error)
	Replace(ctx context.Context, rule *models.AvailabilityRule) error
	Delete(ctx context.Context, id string) error
	ListByListing(ctx context.Context, listingID string) ([]models.AvailabilityRule, error)
	ListActive(ctx context.Context) ([]models.AvailabilityRule, error)
}

type mongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore() Store {
	return &mongoStore{coll: db.RulesCollection}
}

func (s *mongoStore) Insert(ctx context.Context, rule *models.AvailabilityRule) error {
	_, err := s.coll.InsertOne(ctx, rule)
	return err
}

func (s *mongoStore) GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	var rule models.AvailabilityRule
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *mongoStore) Replace(ctx context.Context, rule *models.AvailabilityRule) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"id": rule.ID}, rule)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *mongoStore) ListByListing(ctx context.Context, listingID string) ([]models.AvailabilityRule, error) {
	return s.list(ctx, bson.M{"listingId": listingID})
}

func (s *mongoStore) ListActive(ctx context.Context) ([]models.AvailabilityRule, error) {
	return s.list(ctx, bson.M{"active": true})
}

func (s *mongoStore) list(ctx context.Context, filter bson.M) ([]models.AvailabilityRule, error) {
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AvailabilityRule
	for cur.Next(ctx) {
		var rule models.AvailabilityRule
		if err := cur.Decode(&rule); err != nil {
			continue
		}
		out = append(out, rule)
	}
	return out, cur.Err()
}
