package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EndpointUS is the default LangSmith API endpoint.
	EndpointUS = "https://api.smith.langchain.com"
	// EndpointEU serves workspaces homed in the EU region.
	EndpointEU = "https://eu.api.smith.langchain.com"
	// DefaultControlPlaneURL is the deployments control-plane base URL.
	DefaultControlPlaneURL = "https://gtm.smith.langchain.dev/api-host"
)

type Config struct {
	// LangSmith API
	Endpoint        string
	APIKey          string
	ControlPlaneURL string
	// Uploader
	BatchSize      int
	MaxRetries     int
	BackoffInitial time.Duration
	MaxBufferBytes int
	InFlight       int
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load reads configuration from the environment. A .env file in the working
// directory is folded in first, without overriding variables already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Endpoint:        env("LANGSMITH_ENDPOINT", env("LANGCHAIN_ENDPOINT", EndpointUS)),
		APIKey:          env("LANGSMITH_API_KEY", ""),
		ControlPlaneURL: env("LANGSMITH_CONTROL_PLANE_URL", DefaultControlPlaneURL),
		BatchSize:       envInt("BATCH_SIZE", 100),
		MaxRetries:      envInt("MAX_RETRIES", 3),
		BackoffInitial:  time.Duration(envInt("RETRY_BACKOFF_MS", 100)) * time.Millisecond,
		MaxBufferBytes:  envInt("MAX_BUFFER_BYTES", 10*1024*1024),
		InFlight:        envInt("MAX_IN_FLIGHT", 4),
	}
}

// EndpointForRegion maps a region flag to its API endpoint. Unknown regions
// fall back to the US endpoint.
func EndpointForRegion(region string) string {
	if region == "eu" {
		return EndpointEU
	}
	return EndpointUS
}
