// Package config loads process configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything needed to open the store.
type Config struct {
	MongoURI        string `env:"MONGODB_URI,required"`
	Database        string `env:"MONGODB_DATABASE" envDefault:"houseye"`
	CredentialsFile string `env:"MONGODB_CREDENTIALS_FILE"`
	Transactions    bool   `env:"MONGODB_TRANSACTIONS" envDefault:"false"`
	ImageBucket     string `env:"IMAGE_BUCKET" envDefault:"images"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`

	// MessageRatePerMinute throttles SendMessage per sender; 0 disables it.
	MessageRatePerMinute int `env:"MESSAGE_RATE_PER_MINUTE" envDefault:"0"`
	MessageBurst         int `env:"MESSAGE_BURST" envDefault:"5"`
}

// Credentials is the service-account style credential file.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	AuthSource string `json:"auth_source"`
	Mechanism  string `json:"mechanism"`
}

// Load reads an optional .env file from the working directory and parses
// the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return ParseEnv()
}

// ParseEnv parses the current environment into a Config.
func ParseEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// LoadCredentials reads the credential file named by CredentialsFile.
// It returns nil when no file is configured.
func (c *Config) LoadCredentials() (*Credentials, error) {
	if c.CredentialsFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("credentials %s: username is empty", c.CredentialsFile)
	}
	return &creds, nil
}
