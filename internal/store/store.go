// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_shop_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionUsers        = "users"
	CollectionProducts     = "products"
	CollectionPurchases    = "purchases"
	CollectionConfesses    = "confesses"
	CollectionAdminConfigs = "admin_configs"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Client returns the underlying mongo.Client when available. Tests using fakes
// may receive nil here.
func (m *Manager) Client() *mongo.Client {
	client, ok := m.client.(*mongo.Client)
	if !ok {
		return nil
	}
	return client
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users returns the users collection handle.
func (m *Manager) Users() *mongo.Collection {
	return m.Collection(CollectionUsers)
}

// Products returns the products collection handle.
func (m *Manager) Products() *mongo.Collection {
	return m.Collection(CollectionProducts)
}

// Purchases returns the purchases collection handle.
func (m *Manager) Purchases() *mongo.Collection {
	return m.Collection(CollectionPurchases)
}

// Confesses returns the confesses collection handle.
func (m *Manager) Confesses() *mongo.Collection {
	return m.Collection(CollectionConfesses)
}

// AdminConfigs returns the admin configuration collection handle.
func (m *Manager) AdminConfigs() *mongo.Collection {
	return m.Collection(CollectionAdminConfigs)
}

// Ping verifies connectivity against the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

type collectionIndexes struct {
	collection *mongo.Collection
	models     []mongo.IndexModel
}

// EnsureBaseIndexes creates the indexes the bot queries rely on. Collections
// are created implicitly if they do not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	plan := []collectionIndexes{
		{
			collection: m.Users(),
			models: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "user_id", Value: 1}},
					Options: options.Index().
						SetName("user_id_unique").
						SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "username_key", Value: 1}},
					Options: options.Index().SetName("username_key"),
				},
				{
					Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "stats.last_activity", Value: -1}},
					Options: options.Index().SetName("active_last_activity"),
				},
			},
		},
		{
			collection: m.Products(),
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
					Options: options.Index().SetName("status_created_at"),
				},
			},
		},
		{
			collection: m.Purchases(),
			models: []mongo.IndexModel{
				{
					Keys: bson.D{
						{Key: "buyer_chat_id", Value: 1},
						{Key: "product_title", Value: 1},
						{Key: "status", Value: 1},
						{Key: "created_at", Value: -1},
					},
					Options: options.Index().SetName("buyer_title_status"),
				},
			},
		},
		{
			collection: m.Confesses(),
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "status", Value: 1}},
					Options: options.Index().SetName("status"),
				},
			},
		},
		{
			collection: m.AdminConfigs(),
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "is_active", Value: 1}},
					Options: options.Index().SetName("is_active"),
				},
			},
		},
	}

	for _, entry := range plan {
		if _, err := createIndexes(ctx, entry.collection, entry.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", entry.collection.Name(), err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
