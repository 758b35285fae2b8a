package concursoprep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment
type Config struct {
	GroqAPIKey     string `json:"-"`
	GroqModel      string `json:"groq_model"`
	DeepSeekAPIKey string `json:"-"`
	DeepSeekModel  string `json:"deepseek_model"`
	GeminiAPIKey   string `json:"-"`
	GeminiModel    string `json:"gemini_model"`

	DBPath        string `json:"db_path"`
	Port          string `json:"port"`
	SessionSecret string `json:"-"`
	RedisURL      string `json:"redis_url,omitempty"`
	LogDir        string `json:"log_dir"`

	LLMTimeout    time.Duration `json:"llm_timeout"`
	SearchTimeout time.Duration `json:"search_timeout"`

	SimilarityThreshold float64       `json:"similarity_threshold"`
	Checker             CheckerConfig `json:"checker"`
	RequestMultiplier   int           `json:"request_multiplier"`
	Verbose             bool          `json:"verbose"`
}

// LoadConfig reads an optional .env file and then the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return ConfigFromEnv(), nil
}

// ConfigFromEnv builds a Config from the current environment only
func ConfigFromEnv() *Config {
	checker := DefaultCheckerConfig()
	checker.MinStatementLen = getEnvInt("MIN_STATEMENT_LEN", checker.MinStatementLen)
	checker.MinExplanationLen = getEnvInt("MIN_EXPLANATION_LEN", checker.MinExplanationLen)
	checker.MinOptionLen = getEnvInt("MIN_OPTION_LEN", checker.MinOptionLen)
	checker.RequireCitation = getEnvBool("REQUIRE_CITATION", checker.RequireCitation)

	return &Config{
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqModel:      getEnvOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile"),
		DeepSeekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekModel:  getEnvOrDefault("DEEPSEEK_MODEL", "deepseek-chat"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),

		DBPath:        getEnvOrDefault("SIMULADO_DB", "simulado.db"),
		Port:          getEnvOrDefault("PORT", "8080"),
		SessionSecret: getEnvOrDefault("SESSION_SECRET", "concursoprep-dev-secret"),
		RedisURL:      os.Getenv("REDIS_URL"),
		LogDir:        getEnvOrDefault("SIMULADO_LOG_DIR", "log"),

		LLMTimeout:    getEnvDuration("LLM_TIMEOUT", 90*time.Second),
		SearchTimeout: getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),

		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", DefaultSimilarityThreshold),
		Checker:             checker,
		RequestMultiplier:   getEnvInt("REQUEST_MULTIPLIER", DefaultRequestMultiplier),
		Verbose:             getEnvBool("SIMULADO_VERBOSE", false),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "sim", "on":
		return true
	case "0", "false", "no", "nao", "não", "off":
		return false
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
