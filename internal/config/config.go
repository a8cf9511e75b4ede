package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// StoreDriver selects the durable store: "sqlite" or "mongo".
	StoreDriver   string `mapstructure:"store_driver" yaml:"store_driver"`
	DatabasePath  string `mapstructure:"database_path" yaml:"database_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	PresenceTimeout time.Duration `mapstructure:"presence_timeout" yaml:"presence_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`

	// InboundRateLimit caps websocket events per connection per minute; 0 disables.
	InboundRateLimit int `mapstructure:"inbound_rate_limit" yaml:"inbound_rate_limit"`

	BlobDir        string `mapstructure:"blob_dir" yaml:"blob_dir"`
	BlobBaseURL    string `mapstructure:"blob_base_url" yaml:"blob_base_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`

	FCMServerKey string `mapstructure:"fcm_server_key" yaml:"fcm_server_key"`
	FCMEndpoint  string `mapstructure:"fcm_endpoint" yaml:"fcm_endpoint"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		StoreDriver:       "sqlite",
		DatabasePath:      "securechat.db",
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "securechat",
		JWTSecret:         "change-me",
		JWTIssuer:         "securechat",
		JWTAudience:       "securechat",
		JWTTTL:            15 * time.Minute,
		CORSOrigins:       []string{"*"},
		MaxMessageBytes:   1 << 20,
		SendBuffer:        64,
		PresenceTimeout:   5 * time.Second,
		PingInterval:      25 * time.Second,
		InboundRateLimit:  600,
		BlobDir:           "uploads",
		BlobBaseURL:       "/media",
		MaxUploadBytes:    20 << 20,
		FCMEndpoint:       "https://fcm.googleapis.com/fcm/send",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.StoreDriver != "" {
		c.StoreDriver = other.StoreDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "", "sqlite":
		if c.DatabasePath == "" {
			return errors.New("config: database_path is required for the sqlite store")
		}
	case "mongo", "mongodb":
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("config: mongo_uri and mongo_database are required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown store_driver %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("config: jwt_secret is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("config: jwt_ttl must be positive")
	}
	return nil
}
