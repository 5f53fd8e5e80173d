package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_shop_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes collection counts for admin summaries and startup
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	users     countCollection
	purchases countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided user and
// purchase collections.
func NewStatsProvider(users, purchases countCollection) *StatsProvider {
	return &StatsProvider{
		users:     users,
		purchases: purchases,
	}
}

// CountUsers returns the number of documents in the users collection.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountPendingPurchases returns the number of purchases awaiting review.
func (p *StatsProvider) CountPendingPurchases(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.purchases == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.purchases.CountDocuments(ctx, bson.D{{Key: "status", Value: domain.StatusPending}})
	if err != nil {
		return 0, fmt.Errorf("count pending purchases: %w", err)
	}

	return count, nil
}
