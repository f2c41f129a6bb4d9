// Package config resolves configuration for the Monzo tools from the
// environment and an optional .env file.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Default Monzo endpoints.
const (
	DefaultAPIURL  = "https://api.monzo.com"
	DefaultAuthURL = "https://auth.monzo.com"
)

// Config holds everything the CLI needs: OAuth client credentials,
// endpoint URLs, and the local files the pipeline reads and writes.
type Config struct {
	ClientID     string
	ClientSecret string

	APIURL  string
	AuthURL string

	// RedirectURL must match the redirect URI registered for the OAuth
	// client; ListenAddr is where the callback listener binds.
	RedirectURL string
	ListenAddr  string

	TokenFile string
	CacheFile string
	DBFile    string
}

// Load reads configuration from the environment, loading a .env file first
// if one is present. Missing values fall back to defaults; credentials are
// validated where they are used, not here.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getEnv("MONZO_DATA_DIR", ".")

	return Config{
		ClientID:     getEnv("MONZO_CLIENT_ID", ""),
		ClientSecret: getEnv("MONZO_CLIENT_SECRET", ""),
		APIURL:       getEnv("MONZO_API_URL", DefaultAPIURL),
		AuthURL:      getEnv("MONZO_AUTH_URL", DefaultAuthURL),
		RedirectURL:  getEnv("MONZO_REDIRECT_URL", "http://localhost:8080/callback"),
		ListenAddr:   getEnv("MONZO_CALLBACK_ADDR", ":8080"),
		TokenFile:    filepath.Join(dataDir, ".monzo_token.json"),
		CacheFile:    filepath.Join(dataDir, ".monzo_data.json"),
		DBFile:       filepath.Join(dataDir, ".monzo.db"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
