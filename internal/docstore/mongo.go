package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const defaultMongoCollection = "keyserver_documents"

// MongoOption configures a MongoStore.
type MongoOption func(*MongoStore)

// WithCollectionName sets the MongoDB collection name. Default: "keyserver_documents".
func WithCollectionName(name string) MongoOption {
	return func(s *MongoStore) {
		s.collectionName = name
	}
}

// mongoRecord is the stored shape of a document. The payload is kept as the
// raw JSON string so it round-trips byte for byte.
type mongoRecord struct {
	Name    string `bson:"_id"`
	Data    string `bson:"data"`
	Version int64  `bson:"version"`
}

// MongoStore implements Store using one MongoDB document per store document.
type MongoStore struct {
	collection     *mongo.Collection
	collectionName string
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a MongoDB-backed document store.
func NewMongoStore(db *mongo.Database, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validIdentifier.MatchString(s.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.collectionName)
	}
	s.collection = db.Collection(s.collectionName)
	return s, nil
}

func (s *MongoStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var rec mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &Document{Name: name}, nil
		}
		return nil, fmt.Errorf("load document: %w: %w", ErrUnavailable, err)
	}
	return &Document{Name: name, Data: []byte(rec.Data), Version: rec.Version}, nil
}

func (s *MongoStore) Save(ctx context.Context, doc *Document) (int64, error) {
	if err := ValidateName(doc.Name); err != nil {
		return 0, err
	}
	next := doc.Version + 1

	if doc.Version == 0 {
		_, err := s.collection.InsertOne(ctx, mongoRecord{
			Name:    doc.Name,
			Data:    string(doc.Data),
			Version: next,
		})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return 0, ErrVersionConflict
			}
			return 0, fmt.Errorf("save document: %w: %w", ErrUnavailable, err)
		}
		return next, nil
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": doc.Name, "version": doc.Version},
		bson.M{"$set": bson.M{"data": string(doc.Data), "version": next}},
	)
	if err != nil {
		return 0, fmt.Errorf("save document: %w: %w", ErrUnavailable, err)
	}
	if result.MatchedCount == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (s *MongoStore) Close(_ context.Context) error {
	return nil // caller manages the mongo.Client lifecycle
}
