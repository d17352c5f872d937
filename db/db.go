package db

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	RulesCollection    *mongo.Collection
	SlotCollection     *mongo.Collection
	WaitlistCollection *mongo.Collection
	BookingsCollection *mongo.Collection
	Client             *mongo.Client
)

// Initialize MongoDB connection
func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ClientOptions := options.Client().ApplyURI(uri)
	var err error
	Client, err = mongo.Connect(context.TODO(), ClientOptions)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	database := Client.Database("isledb")
	RulesCollection = database.Collection("availrules")
	SlotCollection = database.Collection("slots")
	WaitlistCollection = database.Collection("waitlist")
	BookingsCollection = database.Collection("bookings")

	EnsureIndexes()
}

// EnsureIndexes creates the indexes the capacity engine relies on.
// The unique slot key is what makes slot generation idempotent under
// concurrent sweeps; the rest are lookup paths.
func EnsureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := SlotCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "listingId", Value: 1},
				{Key: "date", Value: 1},
				{Key: "startTime", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "ruleId", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
	})
	if err != nil {
		log.Printf("slot index creation failed: %v", err)
	}

	_, err = WaitlistCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slotId", Value: 1}, {Key: "status", Value: 1}, {Key: "joinedAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		{
			// One waiting entry per customer per slot, enforced by the
			// database so concurrent joins cannot both land.
			Keys: bson.D{{Key: "slotId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "waiting"}),
		},
	})
	if err != nil {
		log.Printf("waitlist index creation failed: %v", err)
	}

	_, err = BookingsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slotId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{
			// One confirmed booking per customer per slot.
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "slotId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "confirmed"}),
		},
	})
	if err != nil {
		log.Printf("booking index creation failed: %v", err)
	}

	_, err = RulesCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "listingId", Value: 1}, {Key: "active", Value: 1}},
	})
	if err != nil {
		log.Printf("rule index creation failed: %v", err)
	}
}
