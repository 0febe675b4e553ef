package app

import (
	"time"

	"secretportal/cmd/internal/tunnel"
)

// Config is the full runtime configuration for one portal run. Environment
// variables supply defaults; CLI flags override them.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration

	// EnvFile is the expanded target path; EnvFileDisplay is what the
	// operator typed, shown on the page and in logs.
	EnvFile        string
	EnvFileDisplay string

	// Single-key mode and page presentation.
	KeyName      string
	Instructions string
	Link         string
	LinkText     string

	Tunnel tunnel.Provider

	// PublicHost overrides the displayed hostname (PORTAL_HOST).
	PublicHost string

	LogLevel  string
	LogFormat string

	MetricsEnabled bool
}

// LoadConfig loads defaults from environment variables.
func LoadConfig() Config {
	return Config{
		Host:    EnvString("PORTAL_BIND_HOST", "0.0.0.0"),
		Port:    EnvInt("PORTAL_PORT", 0),
		Timeout: EnvDuration("PORTAL_TIMEOUT", 300*time.Second),

		EnvFileDisplay: EnvString("PORTAL_ENV_FILE", "~/.env"),

		LinkText: "Open console →",
		Tunnel:   tunnel.ProviderNone,

		PublicHost: EnvString("PORTAL_HOST", ""),

		LogLevel:  EnvString("PORTAL_LOG_LEVEL", "info"),
		LogFormat: EnvString("PORTAL_LOG_FORMAT", "pretty"),

		MetricsEnabled: EnvBool("PORTAL_METRICS", false),
	}
}
