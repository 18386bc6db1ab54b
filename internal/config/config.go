package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Server
	ServerPort int
	Host       string

	// PublicBaseURL is the externally visible base URL of this instance.
	// Rewritten manifest entries point back at it.
	PublicBaseURL string

	// Capability tokens
	TokenSecret     string
	TokenTTLMinutes int

	// Upstream fetch budgets
	ManifestTimeoutSeconds int
	SegmentTimeoutSeconds  int

	// Secondary hop proxy for origins that block direct requests
	HTTPProxy    string
	UseHTTPProxy bool

	// Entitlement defaults
	FreePreviewEpisodes int

	// Debug
	Debug bool
}

// Load returns configuration from environment variables with defaults.
// APP_SECRET should always be set in production; when empty the auth
// package generates an ephemeral secret and tokens die with the process.
func Load() *Config {
	return &Config{
		// Server defaults
		ServerPort: getEnvInt("PORT", 8080),
		Host:       getEnv("HOST", "0.0.0.0"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		// Short TTL bounds the blast radius of a leaked token while
		// outliving any realistic manifest refresh cycle.
		TokenSecret:     getEnv("APP_SECRET", ""),
		TokenTTLMinutes: getEnvInt("TOKEN_TTL_MINUTES", 10),

		// Segments are larger than manifests and get a longer budget
		ManifestTimeoutSeconds: getEnvInt("MANIFEST_TIMEOUT_SECONDS", 20),
		SegmentTimeoutSeconds:  getEnvInt("SEGMENT_TIMEOUT_SECONDS", 30),

		// Secondary hop - disabled by default
		HTTPProxy:    getEnv("HTTP_PROXY_URL", ""),
		UseHTTPProxy: getEnvBool("USE_HTTP_PROXY", false),

		// First N episodes of a title play in full without entitlement
		FreePreviewEpisodes: getEnvInt("FREE_PREVIEW_EPISODES", 3),

		// Debug - disabled by default
		Debug: getEnvBool("DEBUG", false),
	}
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
