package timedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

// CollectionName is the Mongo collection holding channel values.
const CollectionName = "timedata"

type document struct {
	Component  string    `bson:"component"`
	Channel    string    `bson:"channel"`
	Value      float64   `bson:"value"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// MongoStore keeps channel values in a Mongo collection.
type MongoStore struct {
	coll   *mongo.Collection
	policy RetryPolicy
}

// NewMongoStore returns store on database.
func NewMongoStore(database *mongo.Database, policy RetryPolicy) *MongoStore {
	return &MongoStore{coll: database.Collection(CollectionName), policy: policy}
}

// EnsureIndexes creates the lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "component", Value: 1}, {Key: "channel", Value: 1}, {Key: "recorded_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("timedata: mongo index: %w", err)
	}
	return nil
}

func addressFilter(addr evcs.ChannelAddress) bson.D {
	return bson.D{{Key: "component", Value: addr.Component}, {Key: "channel", Value: string(addr.Channel)}}
}

func latestOptions() *options.FindOneOptions {
	return options.FindOne().SetSort(bson.D{{Key: "recorded_at", Value: -1}})
}

// LatestValue returns the most recent value of addr.
func (s *MongoStore) LatestValue(ctx context.Context, addr evcs.ChannelAddress) (any, bool, error) {
	value, ok, err := retryLookup(ctx, s.policy, func() (any, bool, error) {
		var doc document
		err := s.coll.FindOne(ctx, addressFilter(addr), latestOptions()).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return doc.Value, true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("timedata: mongo latest %s: %w", addr, err)
	}
	return value, ok, nil
}

// Record appends a value.
func (s *MongoStore) Record(ctx context.Context, addr evcs.ChannelAddress, value float64, at time.Time) error {
	doc := document{Component: addr.Component, Channel: string(addr.Channel), Value: value, RecordedAt: at.UTC()}
	err := retryWrite(ctx, s.policy, func() error {
		_, err := s.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("timedata: mongo record %s: %w", addr, err)
	}
	return nil
}
