package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions locate the cart reference database and size its pool. Cart
// references are tiny single-document lookups, one per request, so the pool
// tracks the HTTP concurrency of one storefront instance.
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(o.URI).
		SetAppName("storefront").
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout / 2)
	if o.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 && o.MinPoolSize <= o.MaxPoolSize {
		opts.SetMinPoolSize(o.MinPoolSize)
	}
	return opts
}

// ConnectMongoDB connects and pings. The client is disconnected again when the
// ping fails so a failed start does not leave the pool behind.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(o.Database), nil
}
