package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// Login flow
	VerificationTTL = 5 * time.Minute
	LoginTimeout    = 60 * time.Second

	// Connection supervisor
	ConnectTimeout       = 30 * time.Second
	ReconnectBackoffBase = 2 * time.Second
	ReconnectBackoffMax  = 1 * time.Minute
	MaxReconnectAttempts = 5

	// Dispatch defaults (used when settings are absent)
	DefaultResponseDelayMin  = 1
	DefaultResponseDelayMax  = 5
	DefaultMaxDailyResponses = 1000

	// Activity log paging
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// Config holds the process-wide configuration loaded from the environment.
type Config struct {
	Port          string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPassword string
	UploadsDir    string

	// SessionKey is the AES-256 key used to encrypt session tokens at rest.
	SessionKey []byte

	// Optional operator alert bot.
	AdminBotToken string
	AdminChatID   int64
}

// Load reads configuration from environment variables. SESSION_ENC_KEY must be
// a 64-character hex string (32 bytes).
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "user"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "userbotdb"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		UploadsDir:    getEnv("UPLOADS_DIR", "uploads"),
		AdminBotToken: os.Getenv("ADMIN_BOT_TOKEN"),
	}

	keyHex := os.Getenv("SESSION_ENC_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("SESSION_ENC_KEY is not set")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("SESSION_ENC_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SESSION_ENC_KEY must be 32 bytes, got %d", len(key))
	}
	cfg.SessionKey = key

	if chat := os.Getenv("ADMIN_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_CHAT_ID is not a number: %w", err)
		}
		cfg.AdminChatID = id
	}

	return cfg, nil
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
