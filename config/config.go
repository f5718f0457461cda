package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	DatabaseURL          string
	OpenAIAPIKey         string
	AnthropicAPIKey      string
	LLMProvider          string
	MaxGenerationRetries int
	LLMTimeoutSeconds    int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file found, using environment variables")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DB_URL"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		LLMProvider:          getEnv("LLM_PROVIDER", "openai"),
		MaxGenerationRetries: getEnvInt("MAX_GENERATION_RETRIES", 3),
		LLMTimeoutSeconds:    getEnvInt("LLM_TIMEOUT_SECONDS", 60),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[ERROR] Invalid value for %s: %q, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}
