// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken         = "TELEGRAM_TOKEN"
	KeyAdminChatID           = "ADMIN_CHAT_ID"
	KeyAdminUsername         = "ADMIN_USERNAME"
	KeyBotOwner              = "BOT_OWNER"
	KeyMongoURI              = "MONGO_URI"
	KeyMongoDB               = "MONGO_DB"
	KeyAppEnv                = "APP_ENV"
	KeyLogLevel              = "LOG_LEVEL"
	KeyHTTPPort              = "HTTP_PORT"
	KeyDispatchWorkers       = "DISPATCH_WORKERS"
	KeyBroadcastInterval     = "BROADCAST_INTERVAL"
	KeyConfigRefreshInterval = "CONFIG_REFRESH_INTERVAL"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv                = EnvProduction
	DefaultLogLevel              = "info"
	DefaultHTTPPort              = 8080
	DefaultDispatchWorkers       = 4
	DefaultBroadcastInterval     = 100 * time.Millisecond
	DefaultConfigRefreshInterval = time.Minute
	DefaultAdminUsername         = "maverick_dark"

	// Recommended database names by environment.
	DefaultMongoDBProd = "wanzofc_shop"
	DefaultMongoDBDev  = "wanzofc_shop_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Scheme must be mongodb:// or mongodb+srv://.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Description: "Telegram Bot Token used to seed the admin config on first start.",
		Notes:       "The admin config record is authoritative afterwards; change it with /settoken.",
	},
	{
		Key:         KeyAdminChatID,
		Example:     "123456789",
		Description: "Admin chat id used to seed the admin config on first start.",
	},
	{
		Key:         KeyAdminUsername,
		Example:     DefaultAdminUsername,
		Default:     DefaultAdminUsername,
		Description: "Admin Telegram username shown in the contact button.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Description: "Telegram user_id promoted to role=admin at startup.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyDispatchWorkers,
		Example:     strconv.Itoa(DefaultDispatchWorkers),
		Default:     strconv.Itoa(DefaultDispatchWorkers),
		Description: "Number of update workers; updates of one chat always land on the same worker.",
	},
	{
		Key:         KeyBroadcastInterval,
		Example:     DefaultBroadcastInterval.String(),
		Default:     DefaultBroadcastInterval.String(),
		Description: "Minimum delay between two broadcast sends.",
	},
	{
		Key:         KeyConfigRefreshInterval,
		Example:     DefaultConfigRefreshInterval.String(),
		Default:     DefaultConfigRefreshInterval.String(),
		Description: "How often the active admin config is re-read from MongoDB.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken         string
	AdminChatID           string
	AdminUsername         string
	BotOwnerID            int64
	MongoURI              string
	MongoDB               string
	AppEnv                string
	LogLevel              string
	HTTPPort              int
	DispatchWorkers       int
	BroadcastInterval     time.Duration
	ConfigRefreshInterval time.Duration
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:         strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		AdminChatID:           strings.TrimSpace(os.Getenv(KeyAdminChatID)),
		AdminUsername:         firstNonEmpty(strings.TrimPrefix(strings.TrimSpace(os.Getenv(KeyAdminUsername)), "@"), DefaultAdminUsername),
		MongoURI:              strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:               strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:              firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:              DefaultHTTPPort,
		DispatchWorkers:       DefaultDispatchWorkers,
		BroadcastInterval:     DefaultBroadcastInterval,
		ConfigRefreshInterval: DefaultConfigRefreshInterval,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	if ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner)); ownerRaw != "" {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if cfg.AdminChatID != "" {
		if _, parseErr := strconv.ParseInt(cfg.AdminChatID, 10, 64); parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminChatID, parseErr)
		}
	}

	if cfg.HTTPPort, err = positiveInt(KeyHTTPPort, DefaultHTTPPort); err != nil {
		return Config{}, err
	}

	if cfg.DispatchWorkers, err = positiveInt(KeyDispatchWorkers, DefaultDispatchWorkers); err != nil {
		return Config{}, err
	}

	if cfg.BroadcastInterval, err = positiveDuration(KeyBroadcastInterval, DefaultBroadcastInterval); err != nil {
		return Config{}, err
	}

	if cfg.ConfigRefreshInterval, err = positiveDuration(KeyConfigRefreshInterval, DefaultConfigRefreshInterval); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the configuration with secrets masked, one key per line.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"mongo_uri: " + redactMongoURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"telegram_token: " + redactSecret(cfg.TelegramToken),
		"admin_chat_id: " + cfg.AdminChatID,
		"admin_username: " + cfg.AdminUsername,
		"bot_owner: " + strconv.FormatInt(cfg.BotOwnerID, 10),
		"dispatch_workers: " + strconv.Itoa(cfg.DispatchWorkers),
		"broadcast_interval: " + cfg.BroadcastInterval.String(),
		"config_refresh_interval: " + cfg.ConfigRefreshInterval.String(),
	}

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: scheme must be mongodb:// or mongodb+srv://", KeyMongoURI)
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func redactSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}

	return value[:4] + "...redacted"
}

func redactMongoURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}

	parsed.User = nil
	return parsed.String()
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
