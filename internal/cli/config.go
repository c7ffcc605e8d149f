package cli

import (
	"os"
)

// Config holds CLI configuration
type Config struct {
	AdminURL string
	Password string
	Output   string
	Verbose  bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		AdminURL: getEnvOrDefault("RELAY_ADMIN_URL", "http://localhost:4280"),
		Password: os.Getenv("RELAY_ADMIN_PASSWORD"),
		Output:   "text",
		Verbose:  false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
