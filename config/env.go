package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds settings read from the process environment
type Env struct {
	ConfigPath string
	Output     string
	RedisAddr  string
	Port       string
}

// LoadEnv loads .env files (when present) and reads the FUNDHOLDINGS_* variables.
// Variables already set in the environment win over .env values.
func LoadEnv(files ...string) Env {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000" // fallback for local development
	}

	return Env{
		ConfigPath: os.Getenv("FUNDHOLDINGS_CONFIG"),
		Output:     os.Getenv("FUNDHOLDINGS_OUTPUT"),
		RedisAddr:  os.Getenv("FUNDHOLDINGS_REDIS_ADDR"),
		Port:       port,
	}
}
