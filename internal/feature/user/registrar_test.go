package user

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_shop_bot/internal/domain"
)

func TestEnsureUserCreatesNewRecord(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	user, created, err := registrar.EnsureUser(context.Background(), domain.UserProfile{
		UserID:    123,
		Username:  "@buyer",
		FirstName: "Budi",
	})
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected created to be true for new user")
	}

	if user.UserID != 123 || user.ChatID != 123 {
		t.Fatalf("expected ids to default to user id, got user_id=%d chat_id=%d", user.UserID, user.ChatID)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("expected role %s, got %s", domain.RoleUser, user.Role)
	}
	if user.Username != "buyer" || user.UsernameKey != "buyer" {
		t.Fatalf("expected @ to be stripped, got %q / %q", user.Username, user.UsernameKey)
	}
	if !user.IsActive {
		t.Fatalf("expected new user to be active")
	}
	if user.Stats.TotalPurchases != 0 || user.Stats.TotalSpent != 0 {
		t.Fatalf("expected zeroed totals, got %+v", user.Stats)
	}
	if !user.CreatedAt.Equal(user.Stats.LastActivity) {
		t.Fatalf("expected created_at and last_activity to match on insert, got %v and %v", user.CreatedAt, user.Stats.LastActivity)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "user_registered" {
		t.Fatalf("expected user_registered log entry, got %+v", entry)
	}
}

func TestEnsureUserKeepsRoleAndTotals(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)

	createdAt := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	lastActivity := createdAt.Add(time.Hour)

	coll.seed(bson.M{
		"user_id":    int64(777),
		"chat_id":    int64(777),
		"username":   "old_name",
		"role":       domain.RoleAdmin,
		"is_active":  false,
		"created_at": createdAt,
		"updated_at": createdAt,
		"stats": bson.M{
			"total_purchases": int64(3),
			"total_spent":     int64(45000),
			"last_activity":   lastActivity,
		},
	})

	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	user, created, err := registrar.EnsureUser(context.Background(), domain.UserProfile{
		UserID:   777,
		ChatID:   777,
		Username: "New_Name",
	})
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for existing user")
	}

	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected role to be preserved, got %s", user.Role)
	}
	if user.Username != "New_Name" {
		t.Fatalf("expected username to refresh, got %s", user.Username)
	}
	if user.UsernameKey != "new_name" {
		t.Fatalf("expected lowercased lookup key, got %q", user.UsernameKey)
	}
	if !user.IsActive {
		t.Fatalf("expected user to be reactivated")
	}
	if !user.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at to be preserved, got %v", user.CreatedAt)
	}
	if user.Stats.TotalPurchases != 3 || user.Stats.TotalSpent != 45000 {
		t.Fatalf("expected totals to be preserved, got %+v", user.Stats)
	}
	if !user.Stats.LastActivity.After(lastActivity) {
		t.Fatalf("expected last_activity to advance beyond %v, got %v", lastActivity, user.Stats.LastActivity)
	}
}

func TestEnsureUserValidatesInput(t *testing.T) {
	registrar := NewRegistrar(newFakeUserCollection(t), nil)

	if _, _, err := registrar.EnsureUser(context.Background(), domain.UserProfile{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}

	var nilRegistrar *Registrar
	_, _, err := nilRegistrar.EnsureUser(context.Background(), domain.UserProfile{UserID: 1})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

type fakeUserCollection struct {
	t    *testing.T
	docs map[int64]bson.M
}

func newFakeUserCollection(t *testing.T) *fakeUserCollection {
	t.Helper()
	return &fakeUserCollection{
		t:    t,
		docs: make(map[int64]bson.M),
	}
}

func (f *fakeUserCollection) FindOneAndUpdate(_ context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	f.t.Helper()

	filterDoc, ok := filter.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected filter type %T", filter)
	}
	updateDoc, ok := update.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected update type %T", update)
	}

	userID, ok := filterDoc["user_id"].(int64)
	if !ok {
		f.t.Fatalf("expected int64 user_id filter, got %T", filterDoc["user_id"])
	}

	upsert := false
	for _, opt := range opts {
		if opt != nil && opt.Upsert != nil {
			upsert = *opt.Upsert
		}
	}

	doc, found := f.docs[userID]
	if !found {
		if !upsert {
			return mongo.NewSingleResultFromDocument(bson.M{}, mongo.ErrNoDocuments, nil)
		}
		doc = bson.M{}
		merge(doc, asM(updateDoc["$setOnInsert"]))
	}
	merge(doc, asM(updateDoc["$set"]))
	f.docs[userID] = doc

	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakeUserCollection) seed(doc bson.M) {
	f.docs[doc["user_id"].(int64)] = doc
}

func asM(value interface{}) bson.M {
	doc, _ := value.(bson.M)
	return doc
}

// merge applies dotted update keys onto nested documents.
func merge(dst bson.M, updates bson.M) {
	for key, value := range updates {
		parts := strings.Split(key, ".")
		target := dst
		for _, part := range parts[:len(parts)-1] {
			next, ok := target[part].(bson.M)
			if !ok {
				next = bson.M{}
				target[part] = next
			}
			target = next
		}
		target[parts[len(parts)-1]] = value
	}
}
