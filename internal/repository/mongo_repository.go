package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// abandoned carts stop being tracked after this long
const refTTL = 30 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("cart_refs"),
	}
}

func (m *MongoRepository) Get(ctx context.Context, sessionID string) (*domain.CartRef, error) {
	var ref domain.CartRef

	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&ref)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRefNotFound
		}
		return nil, fmt.Errorf("failed to get cart reference: %w", err)
	}

	return &ref, nil
}

func (m *MongoRepository) Save(ctx context.Context, ref *domain.CartRef) error {
	ref.UpdatedAt = time.Now()

	filter := bson.M{"session_id": ref.SessionID}
	update := bson.M{"$set": ref}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart reference: %w", err)
	}
	return nil
}

func (m *MongoRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete cart reference: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrRefNotFound
	}
	return nil
}

// DeleteByCartID drops every session reference to the cart, e.g. once it became an order.
func (m *MongoRepository) DeleteByCartID(ctx context.Context, cartID string) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{"cart_id": cartID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart references: %w", err)
	}
	return result.DeletedCount, nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "cart_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(refTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
