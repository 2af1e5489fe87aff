// Package config resolves runtime settings from defaults, an optional
// .env file, and TABTRIAGE_* environment variables. Command-line flags
// override on top, per subcommand.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds resolved settings for all subcommands.
type Config struct {
	Port    int
	DBPath  string
	LogDir  string
	Rules   string // path to the rules file; empty disables the rule stage
	Profile string // Firefox profile name for import/classify

	Provider string // "ollama", "openai", or "none"
	Host     string // Ollama server URL
	Model    string // provider model name; empty uses the provider default
	APIKey   string // OpenAI-compatible API key
	BaseURL  string // OpenAI-compatible base URL override

	UseLearned    bool
	MinConfidence float64

	ResolveTitles bool
	TitleWorkers  int
}

// Load resolves the configuration. A .env file in the working directory
// is applied first if present; real environment variables win over it.
func Load() *Config {
	godotenv.Load()

	home, _ := os.UserHomeDir()

	cfg := &Config{
		Port:          envInt("TABTRIAGE_PORT", 19191),
		DBPath:        os.Getenv("TABTRIAGE_DB"),
		LogDir:        envStr("TABTRIAGE_LOG_DIR", filepath.Join(home, ".local", "share", "tabtriage")),
		Rules:         envStr("TABTRIAGE_RULES", filepath.Join(home, ".config", "tabtriage", "rules.yaml")),
		Profile:       os.Getenv("TABTRIAGE_PROFILE"),
		Provider:      envStr("TABTRIAGE_PROVIDER", "ollama"),
		Host:          envStr("OLLAMA_HOST", "http://localhost:11434"),
		Model:         os.Getenv("TABTRIAGE_MODEL"),
		APIKey:        os.Getenv("OPENAI_API_KEY"),
		BaseURL:       os.Getenv("OPENAI_BASE_URL"),
		UseLearned:    envBool("TABTRIAGE_LEARNED", true),
		MinConfidence: envFloat("TABTRIAGE_MIN_CONFIDENCE", 0.6),
		ResolveTitles: envBool("TABTRIAGE_RESOLVE_TITLES", false),
		TitleWorkers:  envInt("TABTRIAGE_TITLE_WORKERS", 4),
	}
	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
