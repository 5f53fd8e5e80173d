// Package owner provides startup helpers that make a fresh deployment usable:
// the active admin configuration record and the configured bot owner.
package owner

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
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type configStore interface {
	GetActive(ctx context.Context) (domain.AdminConfig, error)
	Save(ctx context.Context, cfg domain.AdminConfig) (domain.AdminConfig, error)
}

// Seed carries the optional environment values used to fill a fresh or
// still-placeholder admin configuration.
type Seed struct {
	BotToken      string
	AdminChatID   string
	AdminUsername string
}

// Registrar bootstraps the admin configuration and the bot owner record.
type Registrar struct {
	users   userCollection
	configs configStore
	logger  *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided collections.
func NewRegistrar(users userCollection, configs configStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:   users,
		configs: configs,
		logger:  logger,
	}
}

// EnsureOwner upserts the configured owner user_id with role=admin so the
// owner passes the admin gate from any chat.
func (r *Registrar) EnsureOwner(ctx context.Context, ownerID int64) error {
	if r == nil || r.users == nil {
		return errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if ownerID == 0 {
		return errors.New("owner id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{
			"$set": bson.M{
				"role":       domain.RoleAdmin,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"chat_id":               ownerID,
				"is_active":             true,
				"created_at":            now,
				"stats.total_purchases": int64(0),
				"stats.total_spent":     int64(0),
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":          "owner_bootstrap",
		"owner_id":       ownerID,
		"matched_owner":  matchedCount(result),
		"upserted_owner": upsertedCount(result),
	}).Info("ensured bot owner")

	return nil
}

// EnsureAdminConfig returns the active admin configuration, creating the
// default record when none exists. Placeholder token and admin chat id values
// on an existing record are replaced by the seed when it provides them.
func (r *Registrar) EnsureAdminConfig(ctx context.Context, seed Seed) (domain.AdminConfig, error) {
	if r == nil || r.configs == nil {
		return domain.AdminConfig{}, errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return domain.AdminConfig{}, errors.New("context is required")
	}

	seed.BotToken = strings.TrimSpace(seed.BotToken)
	seed.AdminChatID = strings.TrimSpace(seed.AdminChatID)
	seed.AdminUsername = strings.TrimPrefix(strings.TrimSpace(seed.AdminUsername), "@")

	current, err := r.configs.GetActive(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		cfg := domain.AdminConfig{
			BotToken:       valueOr(seed.BotToken, domain.PlaceholderBotToken),
			AdminChatID:    valueOr(seed.AdminChatID, domain.PlaceholderAdminChatID),
			AdminUsername:  seed.AdminUsername,
			BotName:        domain.DefaultBotName,
			BotDescription: domain.DefaultBotDescription,
			IsActive:       true,
		}

		saved, err := r.configs.Save(ctx, cfg)
		if err != nil {
			return domain.AdminConfig{}, fmt.Errorf("seed admin config: %w", err)
		}

		r.logger.WithFields(logging.Fields{
			"event":        "admin_config_seeded",
			"config_id":    saved.ID,
			"usable_token": saved.HasUsableToken(),
		}).Info("created default admin config")
		return saved, nil
	case err != nil:
		return domain.AdminConfig{}, fmt.Errorf("load admin config: %w", err)
	}

	changed := false
	if !current.HasUsableToken() && seed.BotToken != "" {
		current.BotToken = seed.BotToken
		changed = true
	}
	if (current.AdminChatID == "" || current.AdminChatID == domain.PlaceholderAdminChatID) && seed.AdminChatID != "" {
		current.AdminChatID = seed.AdminChatID
		changed = true
	}
	if current.AdminUsername == "" && seed.AdminUsername != "" {
		current.AdminUsername = seed.AdminUsername
		changed = true
	}
	if !changed {
		return current, nil
	}

	saved, err := r.configs.Save(ctx, current)
	if err != nil {
		return domain.AdminConfig{}, fmt.Errorf("fill admin config: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":     "admin_config_filled",
		"config_id": saved.ID,
	}).Info("filled placeholder admin config values from environment")

	return saved, nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
