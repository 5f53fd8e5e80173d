package domain

import (
	"strings"
	"time"
)

// User represents a Telegram user registered with the bot.
type User struct {
	UserID      int64     `bson:"user_id" json:"user_id"`
	ChatID      int64     `bson:"chat_id" json:"chat_id"`
	Username    string    `bson:"username,omitempty" json:"username,omitempty"`
	UsernameKey string    `bson:"username_key,omitempty" json:"-"`
	FirstName   string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName    string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Role        string    `bson:"role" json:"role"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
	Stats       UserStats `bson:"stats" json:"stats"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// UserStats holds running purchase totals and the last interaction time.
type UserStats struct {
	TotalPurchases int64     `bson:"total_purchases" json:"total_purchases"`
	TotalSpent     int64     `bson:"total_spent" json:"total_spent"`
	LastActivity   time.Time `bson:"last_activity" json:"last_activity"`
}

// UserProfile is the sender information observed on an update.
type UserProfile struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
}

// UsernameKey normalizes a Telegram username for lookups: Telegram treats
// usernames case-insensitively and a leading "@" is optional.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// DisplayName prefers the @username and falls back to the first name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin reports whether the stored role grants admin privileges.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
