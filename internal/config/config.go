package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	AnkiConnectURL string
	DefaultDeck    string
	Database       string
	SessionDir     string
	HistoryFile    string
	UploadDir      string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnkiConnectURL: getEnv("ANKI_CONNECT_URL", "http://127.0.0.1:8765"),
		DefaultDeck:    getEnv("DEFAULT_DECK", "Lectures"),
		Database:       getEnv("DATABASE_PATH", "./data/drafts.db"),
		SessionDir:     getEnv("SESSION_DIR", "./data/sessions"),
		HistoryFile:    getEnv("HISTORY_PATH", "./data/history.json"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
	}

	for _, dir := range []string{cfg.UploadDir, cfg.SessionDir, filepath.Dir(cfg.Database), filepath.Dir(cfg.HistoryFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to ensure dir %s: %v", dir, err)
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
