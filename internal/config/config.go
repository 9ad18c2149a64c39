// Package config centralizes environment-driven settings with defaults.
// Values come from the process environment; main loads a .env file first
// via godotenv so a plain key=value file works as well.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envListenAddr        = "LISTEN_ADDR"
	envHeadless          = "HEADLESS"
	envScrapeScrollSteps = "SCRAPE_SCROLL_STEPS"
	envScrapeTimeoutMS   = "SCRAPE_TIMEOUT_MS"
	envCacheDir          = "SCRAPE_CACHE_DIR"
	envOllamaHost        = "OLLAMA_HOST"
	envOllamaModel       = "OLLAMA_MODEL"
	envManualDataDir     = "MANUAL_DATA_DIR"
	envAutoLabelsDir     = "AUTO_LABELS_DIR"
	envMergedOutput      = "MERGED_OUTPUT"
	envSpeechCommand     = "SPEECH_COMMAND"
)

type Config struct {
	ListenAddr        string
	Headless          bool
	ScrapeScrollSteps int
	ScrapeTimeout     time.Duration
	CacheDir          string
	OllamaHost        string
	OllamaModel       string
	ManualDataDir     string
	AutoLabelsDir     string
	MergedOutput      string
	SpeechCommand     string
}

// Load reads the full configuration from the environment.
func Load() Config {
	return Config{
		ListenAddr:        stringEnv(envListenAddr, ":5000"),
		Headless:          boolEnv(envHeadless, true),
		ScrapeScrollSteps: intEnv(envScrapeScrollSteps, 20),
		ScrapeTimeout:     time.Duration(intEnv(envScrapeTimeoutMS, 60000)) * time.Millisecond,
		CacheDir:          stringEnv(envCacheDir, "scrape_cache"),
		OllamaHost:        stringEnv(envOllamaHost, "http://127.0.0.1:11434"),
		OllamaModel:       stringEnv(envOllamaModel, "llama3"),
		ManualDataDir:     stringEnv(envManualDataDir, "training_data"),
		AutoLabelsDir:     stringEnv(envAutoLabelsDir, "llm_labels"),
		MergedOutput:      stringEnv(envMergedOutput, "merged_dataset.jsonl"),
		SpeechCommand:     stringEnv(envSpeechCommand, "espeak"),
	}
}

func stringEnv(name, def string) string {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	return val
}

func boolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func intEnv(name string, def int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
