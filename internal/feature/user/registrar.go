// Package user provides helpers for user registration and lifecycle updates.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_shop_bot/internal/domain"
	"tg_shop_bot/internal/logging"
)

type userCollection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// Registrar ensures users are present in the database and keeps their
// profile and last activity updated on every interaction.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureUser upserts the user keyed by platform id. New users get the default
// role and zeroed totals; existing users keep their role and totals while
// their profile, chat id and last activity are refreshed.
func (r *Registrar) EnsureUser(ctx context.Context, profile domain.UserProfile) (domain.User, bool, error) {
	if r == nil || r.users == nil {
		return domain.User{}, false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return domain.User{}, false, errors.New("context is required")
	}
	if profile.UserID == 0 {
		return domain.User{}, false, errors.New("user id is required")
	}

	chatID := profile.ChatID
	if chatID == 0 {
		chatID = profile.UserID
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"chat_id":             chatID,
			"username":            strings.TrimPrefix(profile.Username, "@"),
			"username_key":        domain.UsernameKey(profile.Username),
			"first_name":          profile.FirstName,
			"last_name":           profile.LastName,
			"is_active":           true,
			"updated_at":          now,
			"stats.last_activity": now,
		},
		"$setOnInsert": bson.M{
			"user_id":               profile.UserID,
			"role":                  domain.RoleUser,
			"created_at":            now,
			"stats.total_purchases": int64(0),
			"stats.total_spent":     int64(0),
		},
	}

	result := r.users.FindOneAndUpdate(ctx,
		bson.M{"user_id": profile.UserID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if result == nil {
		return domain.User{}, false, errors.New("ensure user returned no result")
	}
	if err := result.Err(); err != nil {
		return domain.User{}, false, fmt.Errorf("ensure user: %w", err)
	}

	var stored domain.User
	if err := result.Decode(&stored); err != nil {
		return domain.User{}, false, fmt.Errorf("decode user: %w", err)
	}

	created := stored.CreatedAt.Equal(now)
	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": profile.UserID,
		}).Info("registered new user")
		return stored, true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": profile.UserID,
	}).Debug("updated user last activity")

	return stored, false, nil
}
