package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type insertFindCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type statusCollection interface {
	insertFindCollection
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

type userCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type configCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// NewID returns a fresh hex identifier for records keyed by string _id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func findOne(result *mongo.SingleResult, what string, out interface{}) error {
	if result == nil {
		return fmt.Errorf("find %s returned no result", what)
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("find %s: %w", what, ErrNotFound)
		}
		return fmt.Errorf("find %s: %w", what, err)
	}
	if err := result.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func findMany[T any](ctx context.Context, cursor *mongo.Cursor, err error, what string) ([]T, error) {
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return out, nil
}

// UserRepository reads users and maintains their purchase totals. Registration
// lives in the user registrar.
type UserRepository struct {
	collection userCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// GetByUsername fetches a user by @username, ignoring a leading "@" and case.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	key := UsernameKey(username)
	if key == "" {
		return User{}, errors.New("username is required")
	}

	var user User
	if err := findOne(r.collection.FindOne(ctx, bson.M{"username_key": key}), "user", &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListActive returns every user flagged active.
func (r *UserRepository) ListActive(ctx context.Context) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}

	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true})
	return findMany[User](ctx, cursor, err, "active users")
}

// Recent returns the most recently active users, newest first.
func (r *UserRepository) Recent(ctx context.Context, limit int64) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "stats.last_activity", Value: -1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	return findMany[User](ctx, cursor, err, "recent users")
}

// AddPurchase increments the running purchase totals of a user.
func (r *UserRepository) AddPurchase(ctx context.Context, userID int64, amount int64) error {
	if r == nil || r.collection == nil {
		return errors.New("user repository is not initialized")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{
				"stats.total_purchases": int64(1),
				"stats.total_spent":     amount,
			},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("add user purchase: %w", err)
	}
	return nil
}

// AdminConfigRepository persists the deployment configuration record.
type AdminConfigRepository struct {
	collection configCollection
}

// NewAdminConfigRepository constructs an AdminConfigRepository.
func NewAdminConfigRepository(collection configCollection) *AdminConfigRepository {
	return &AdminConfigRepository{collection: collection}
}

// GetActive returns the active configuration record.
func (r *AdminConfigRepository) GetActive(ctx context.Context) (AdminConfig, error) {
	if r == nil || r.collection == nil {
		return AdminConfig{}, errors.New("admin config repository is not initialized")
	}

	var cfg AdminConfig
	if err := findOne(r.collection.FindOne(ctx, bson.M{"is_active": true}), "admin config", &cfg); err != nil {
		return AdminConfig{}, err
	}
	return cfg, nil
}

// Save replaces the record by id, creating it when absent.
func (r *AdminConfigRepository) Save(ctx context.Context, cfg AdminConfig) (AdminConfig, error) {
	if r == nil || r.collection == nil {
		return AdminConfig{}, errors.New("admin config repository is not initialized")
	}
	if cfg.ID == "" {
		cfg.ID = NewID()
	}

	ts := now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = ts
	}
	cfg.UpdatedAt = ts

	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": cfg.ID}, cfg, options.Replace().SetUpsert(true)); err != nil {
		return AdminConfig{}, fmt.Errorf("save admin config: %w", err)
	}
	return cfg, nil
}

// ProductRepository persists catalog products.
type ProductRepository struct {
	collection insertFindCollection
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(collection insertFindCollection) *ProductRepository {
	return &ProductRepository{collection: collection}
}

// Create inserts a product, assigning an id and timestamps when missing.
func (r *ProductRepository) Create(ctx context.Context, product Product) (Product, error) {
	if r == nil || r.collection == nil {
		return Product{}, errors.New("product repository is not initialized")
	}
	if strings.TrimSpace(product.Title) == "" {
		return Product{}, errors.New("title is required")
	}
	if product.ID == "" {
		product.ID = NewID()
	}
	if product.Status == "" {
		product.Status = ProductStatusAvailable
	}

	ts := now()
	product.CreatedAt = ts
	product.UpdatedAt = ts

	if _, err := r.collection.InsertOne(ctx, product); err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

// GetByID fetches a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (Product, error) {
	if r == nil || r.collection == nil {
		return Product{}, errors.New("product repository is not initialized")
	}
	if id == "" {
		return Product{}, fmt.Errorf("find product: %w", ErrNotFound)
	}

	var product Product
	if err := findOne(r.collection.FindOne(ctx, bson.M{"_id": id}), "product", &product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// ListAvailable returns up to limit available products, newest first.
func (r *ProductRepository) ListAvailable(ctx context.Context, limit int64) ([]Product, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("product repository is not initialized")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.collection.Find(ctx, bson.M{"status": ProductStatusAvailable}, opts)
	return findMany[Product](ctx, cursor, err, "products")
}

// PurchaseRepository persists purchase attempts and their transitions.
type PurchaseRepository struct {
	collection statusCollection
}

// NewPurchaseRepository constructs a PurchaseRepository.
func NewPurchaseRepository(collection statusCollection) *PurchaseRepository {
	return &PurchaseRepository{collection: collection}
}

// Create inserts a pending purchase.
func (r *PurchaseRepository) Create(ctx context.Context, purchase Purchase) (Purchase, error) {
	if r == nil || r.collection == nil {
		return Purchase{}, errors.New("purchase repository is not initialized")
	}
	if purchase.BuyerChatID == 0 {
		return Purchase{}, errors.New("buyer_chat_id is required")
	}
	if purchase.ProductID == "" {
		return Purchase{}, errors.New("product_id is required")
	}
	if purchase.ID == "" {
		purchase.ID = NewID()
	}
	purchase.Status = StatusPending

	ts := now()
	purchase.CreatedAt = ts
	purchase.UpdatedAt = ts

	if _, err := r.collection.InsertOne(ctx, purchase); err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	return purchase, nil
}

// GetByID fetches a purchase by id.
func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (Purchase, error) {
	if r == nil || r.collection == nil {
		return Purchase{}, errors.New("purchase repository is not initialized")
	}

	var purchase Purchase
	if err := findOne(r.collection.FindOne(ctx, bson.M{"_id": id}), "purchase", &purchase); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// LatestPending returns the newest pending purchase of a buyer for a product title.
func (r *PurchaseRepository) LatestPending(ctx context.Context, buyerChatID int64, productTitle string) (Purchase, error) {
	if r == nil || r.collection == nil {
		return Purchase{}, errors.New("purchase repository is not initialized")
	}

	filter := bson.M{
		"buyer_chat_id": buyerChatID,
		"product_title": productTitle,
		"status":        StatusPending,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var purchase Purchase
	if err := findOne(r.collection.FindOne(ctx, filter, opts), "pending purchase", &purchase); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// MarkProofSubmitted records the payment screenshot on a pending purchase.
func (r *PurchaseRepository) MarkProofSubmitted(ctx context.Context, id string, fileID string) (Purchase, error) {
	if r == nil || r.collection == nil {
		return Purchase{}, errors.New("purchase repository is not initialized")
	}

	ts := now()
	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{
			"proof_file_id":      fileID,
			"proof_submitted_at": ts,
			"updated_at":         ts,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var purchase Purchase
	if err := findOne(result, "pending purchase", &purchase); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// Resolve moves a pending purchase to a terminal status. changed is false when
// the purchase was already resolved; the stored record is returned unchanged.
func (r *PurchaseRepository) Resolve(ctx context.Context, id string, status string) (Purchase, bool, error) {
	if r == nil || r.collection == nil {
		return Purchase{}, false, errors.New("purchase repository is not initialized")
	}
	if !IsTerminalStatus(status) {
		return Purchase{}, false, fmt.Errorf("invalid purchase status %q", status)
	}

	ts := now()
	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{
			"status":      status,
			"resolved_at": ts,
			"updated_at":  ts,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var purchase Purchase
	err := findOne(result, "pending purchase", &purchase)
	if err == nil {
		return purchase, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Purchase{}, false, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return Purchase{}, false, err
	}
	return existing, false, nil
}

// ConfessRepository persists confessions and menfess messages.
type ConfessRepository struct {
	collection statusCollection
}

// NewConfessRepository constructs a ConfessRepository.
func NewConfessRepository(collection statusCollection) *ConfessRepository {
	return &ConfessRepository{collection: collection}
}

// Create inserts a pending confession.
func (r *ConfessRepository) Create(ctx context.Context, confess Confess) (Confess, error) {
	if r == nil || r.collection == nil {
		return Confess{}, errors.New("confess repository is not initialized")
	}
	if strings.TrimSpace(confess.Message) == "" {
		return Confess{}, errors.New("message is required")
	}
	if confess.ID == "" {
		confess.ID = NewID()
	}
	confess.Status = StatusPending

	ts := now()
	confess.CreatedAt = ts
	confess.UpdatedAt = ts

	if _, err := r.collection.InsertOne(ctx, confess); err != nil {
		return Confess{}, fmt.Errorf("insert confess: %w", err)
	}
	return confess, nil
}

// Resolve approves or rejects a pending confession once.
func (r *ConfessRepository) Resolve(ctx context.Context, id string, status string, respondedBy string) (Confess, bool, error) {
	if r == nil || r.collection == nil {
		return Confess{}, false, errors.New("confess repository is not initialized")
	}
	if !IsTerminalStatus(status) {
		return Confess{}, false, fmt.Errorf("invalid confess status %q", status)
	}

	ts := now()
	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{
			"status":       status,
			"responded_by": respondedBy,
			"responded_at": ts,
			"updated_at":   ts,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var confess Confess
	err := findOne(result, "pending confess", &confess)
	if err == nil {
		return confess, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Confess{}, false, err
	}

	existing := Confess{}
	if err := findOne(r.collection.FindOne(ctx, bson.M{"_id": id}), "confess", &existing); err != nil {
		return Confess{}, false, err
	}
	return existing, false, nil
}
