package server

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds HTTP server settings
type Config struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// MaxUploadMB bounds the whole multipart body
	MaxUploadMB int64 `json:"max_upload_mb" mapstructure:"max_upload_mb"`

	// MaxDocuments bounds the number of PDFs in one match request
	MaxDocuments int `json:"max_documents" mapstructure:"max_documents"`

	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            10000,
		MaxUploadMB:     50,
		MaxDocuments:    10,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadMB)
	}
	if c.MaxDocuments <= 0 {
		return fmt.Errorf("max documents must be positive, got %d", c.MaxDocuments)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
