/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables (with
 * an optional .env file), providing a centralized way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the aggregator-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	SyncEventExchange      string `mapstructure:"SYNC_EVENT_EXCHANGE"`
	BankAuthBaseURL        string `mapstructure:"BANK_AUTH_BASE_URL"`
	BankDataBaseURL        string `mapstructure:"BANK_DATA_BASE_URL"`
	BankClientID           string `mapstructure:"BANK_CLIENT_ID"`
	BankClientSecret       string `mapstructure:"BANK_CLIENT_SECRET"`
	BankRedirectURI        string `mapstructure:"BANK_REDIRECT_URI"`
	SessionTokenSecret     string `mapstructure:"SESSION_TOKEN_SECRET"`
	TokenSealKeyHex        string `mapstructure:"TOKEN_SEAL_KEY"`
	CacheTTLSeconds        int    `mapstructure:"CACHE_TTL_SECONDS"`
	UpstreamTimeoutSeconds int    `mapstructure:"UPSTREAM_TIMEOUT_SECONDS"`
	DedupTimeoutSeconds    int    `mapstructure:"DEDUP_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SYNC_EVENT_EXCHANGE", "aggregator.events")
	viper.SetDefault("BANK_REDIRECT_URI", "http://localhost:3000/callback")
	viper.SetDefault("CACHE_TTL_SECONDS", 86400)
	viper.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 30)
	viper.SetDefault("DEDUP_TIMEOUT_SECONDS", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SYNC_EVENT_EXCHANGE")
	_ = viper.BindEnv("BANK_AUTH_BASE_URL")
	_ = viper.BindEnv("BANK_DATA_BASE_URL")
	_ = viper.BindEnv("BANK_CLIENT_ID", "BANK_CLIENT_ID", "CLIENT_ID")
	_ = viper.BindEnv("BANK_CLIENT_SECRET", "BANK_CLIENT_SECRET", "CLIENT_SECRET")
	_ = viper.BindEnv("BANK_REDIRECT_URI", "BANK_REDIRECT_URI", "REDIRECT_URI")
	_ = viper.BindEnv("SESSION_TOKEN_SECRET")
	_ = viper.BindEnv("TOKEN_SEAL_KEY")
	_ = viper.BindEnv("CACHE_TTL_SECONDS")
	_ = viper.BindEnv("UPSTREAM_TIMEOUT_SECONDS")
	_ = viper.BindEnv("DEDUP_TIMEOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.SessionTokenSecret = strings.TrimSpace(config.SessionTokenSecret)
	config.TokenSealKeyHex = strings.TrimSpace(config.TokenSealKeyHex)

	if config.CacheTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive cache ttl configured; using default\" ttl_seconds=%d", config.CacheTTLSeconds)
		config.CacheTTLSeconds = 86400
	}
	if config.UpstreamTimeoutSeconds <= 0 {
		config.UpstreamTimeoutSeconds = 30
	}
	if config.DedupTimeoutSeconds <= 0 {
		config.DedupTimeoutSeconds = 5
	}

	return
}

// TokenSealKey decodes the hex-encoded 32-byte sealing key.
func (c Config) TokenSealKey() ([]byte, error) {
	key, err := hex.DecodeString(c.TokenSealKeyHex)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_SEAL_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_SEAL_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
