package domain

import (
	"strings"
	"time"
)

// Placeholder values seeded before the operator configures the bot.
const (
	PlaceholderBotToken    = "YOUR_BOT_TOKEN_HERE"
	PlaceholderAdminChatID = "YOUR_ADMIN_CHAT_ID_HERE"

	DefaultBotName        = "WanzoFC Shop"
	DefaultBotDescription = "| 🚀 Toko Digital Masa Depan\n| ⚡️ Transaksi Cepat & Aman\n| 💯 Produk Berkualitas & Terpercaya"
)

// AdminConfig is the singleton deployment configuration; exactly one record is active.
type AdminConfig struct {
	ID             string    `bson:"_id" json:"id"`
	BotToken       string    `bson:"bot_token" json:"-"`
	AdminChatID    string    `bson:"admin_chat_id" json:"admin_chat_id"`
	AdminUsername  string    `bson:"admin_username" json:"admin_username"`
	BotUsername    string    `bson:"bot_username,omitempty" json:"bot_username,omitempty"`
	BotName        string    `bson:"bot_name" json:"bot_name"`
	BotDescription string    `bson:"bot_description" json:"bot_description"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// HasUsableToken reports whether the token is set and not the seeded placeholder.
func (c AdminConfig) HasUsableToken() bool {
	token := strings.TrimSpace(c.BotToken)
	return token != "" && token != PlaceholderBotToken
}

// SameIdentity reports whether two configs would produce the same bot session.
func (c AdminConfig) SameIdentity(other AdminConfig) bool {
	return c.ID == other.ID &&
		c.BotToken == other.BotToken &&
		c.AdminChatID == other.AdminChatID &&
		c.AdminUsername == other.AdminUsername &&
		c.BotName == other.BotName &&
		c.BotDescription == other.BotDescription
}
