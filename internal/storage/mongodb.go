package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoCollection = "kv_slots"
	mongoDocumentID = "slots"
)

// MongoDBStore keeps every slot as a field of one document. Single-document
// updates are atomic in MongoDB, so SetMany and RemoveAll need no transaction
// (and no replica set).
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoSlotsDocument struct {
	ID    string            `bson:"_id"`
	Slots map[string][]byte `bson:"slots"`
}

// NewMongoDB creates a new MongoDB store.
func NewMongoDB(ctx context.Context, cfg MongoDBConfig) (*MongoDBStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = DefaultConfig().MongoDB.Database
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDBStore{
		client:     client,
		collection: client.Database(dbName).Collection(mongoCollection),
	}, nil
}

func (s *MongoDBStore) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	field, err := mongoField(slot)
	if err != nil {
		return nil, false, err
	}

	opts := options.FindOne().SetProjection(bson.D{{Key: field, Value: 1}})
	var doc mongoSlotsDocument
	err = s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: mongoDocumentID}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}

	data, ok := doc.Slots[slot]
	return data, ok, nil
}

func (s *MongoDBStore) Set(ctx context.Context, slot string, data []byte) error {
	return s.SetMany(ctx, map[string][]byte{slot: data})
}

func (s *MongoDBStore) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	set := bson.D{}
	for slot, data := range values {
		field, err := mongoField(slot)
		if err != nil {
			return err
		}
		if data == nil {
			data = []byte{}
		}
		set = append(set, bson.E{Key: field, Value: data})
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: mongoDocumentID}},
		bson.D{{Key: "$set", Value: set}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write slots: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Remove(ctx context.Context, slot string) error {
	return s.RemoveAll(ctx, slot)
}

func (s *MongoDBStore) RemoveAll(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}

	unset := bson.D{}
	for _, slot := range slots {
		field, err := mongoField(slot)
		if err != nil {
			return err
		}
		unset = append(unset, bson.E{Key: field, Value: ""})
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: mongoDocumentID}},
		bson.D{{Key: "$unset", Value: unset}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Type() string {
	return TypeMongoDB
}

func (s *MongoDBStore) Close() error {
	if s.client != nil {
		return s.client.Disconnect(context.Background())
	}
	return nil
}

// mongoField maps a slot name to its document field path. Dots and a leading
// dollar would be read as path syntax, so they are rejected.
func mongoField(slot string) (string, error) {
	if slot == "" || strings.Contains(slot, ".") || strings.HasPrefix(slot, "$") {
		return "", fmt.Errorf("invalid MongoDB slot name %q", slot)
	}
	return "slots." + slot, nil
}
