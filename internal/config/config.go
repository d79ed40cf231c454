package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultShareableIntents may be promoted from private to global memory.
var DefaultShareableIntents = []string{
	"application.workAuthorization",
	"application.sponsorship",
	"application.salaryExpectation",
	"application.startDate",
	"application.noticePeriod",
	"application.relocation",
	"application.referralSource",
	"work.yearsExperience",
	"education.degree",
}

// RedisConfig configures the optional shared search cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// OpenAIConfig configures the optional language model stage.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Config is the resolved service configuration.
type Config struct {
	Port                    string
	DBPath                  string
	SilentDB                bool
	APIKey                  string
	AllowedOrigins          []string
	RulesPath               string
	FuzzyMatchThreshold     float64
	PatternMemoryConfidence float64
	LearnThreshold          float64
	ShareableIntents        []string
	LocalCacheSize          int
	Redis                   RedisConfig
	OpenAI                  OpenAIConfig
	DisableAI               bool
	LogLevel                string
	LogFormat               string
}

// Load reads .env, an optional config.yaml and the environment, in increasing
// order of precedence.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file := strings.TrimSpace(os.Getenv("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8001")
	v.SetDefault("db_path", "data/autofill.db")
	v.SetDefault("silent_db", false)
	v.SetDefault("app_api_key", "")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("rules_path", "")
	v.SetDefault("fuzzy_match_threshold", 0.8)
	v.SetDefault("pattern_memory_confidence", 0.9)
	v.SetDefault("learn_threshold", 0.70)
	v.SetDefault("shareable_intents", strings.Join(DefaultShareableIntents, ","))
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("local_cache_size", 4096)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4.1-mini")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("openai_temperature", 0.2)
	v.SetDefault("openai_max_tokens", 300)
	v.SetDefault("disable_ai", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:                    strings.TrimSpace(v.GetString("port")),
		DBPath:                  strings.TrimSpace(v.GetString("db_path")),
		SilentDB:                v.GetBool("silent_db"),
		APIKey:                  strings.TrimSpace(v.GetString("app_api_key")),
		AllowedOrigins:          splitList(v.Get("allowed_origins")),
		RulesPath:               strings.TrimSpace(v.GetString("rules_path")),
		FuzzyMatchThreshold:     v.GetFloat64("fuzzy_match_threshold"),
		PatternMemoryConfidence: v.GetFloat64("pattern_memory_confidence"),
		LearnThreshold:          v.GetFloat64("learn_threshold"),
		ShareableIntents:        splitList(v.Get("shareable_intents")),
		LocalCacheSize:          v.GetInt("local_cache_size"),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("redis_addr")),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			CacheTTL: v.GetDuration("cache_ttl"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      strings.TrimSpace(v.GetString("openai_api_key")),
			Model:       strings.TrimSpace(v.GetString("openai_model")),
			BaseURL:     strings.TrimSpace(v.GetString("openai_base_url")),
			Temperature: v.GetFloat64("openai_temperature"),
			MaxTokens:   v.GetInt("openai_max_tokens"),
		},
		DisableAI: v.GetBool("disable_ai"),
		LogLevel:  strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
	}
}

// splitList accepts a comma separated string (environment) or a YAML list.
func splitList(raw any) []string {
	var items []string
	switch value := raw.(type) {
	case string:
		items = strings.Split(value, ",")
	case []any:
		for _, item := range value {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = value
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DBPath == "" {
		return errors.New("db path is required")
	}
	thresholds := []struct {
		name  string
		value float64
	}{
		{"FUZZY_MATCH_THRESHOLD", cfg.FuzzyMatchThreshold},
		{"PATTERN_MEMORY_CONFIDENCE", cfg.PatternMemoryConfidence},
		{"LEARN_THRESHOLD", cfg.LearnThreshold},
	}
	for _, th := range thresholds {
		if th.value <= 0 || th.value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", th.name, th.value)
		}
	}
	if cfg.LocalCacheSize <= 0 {
		return fmt.Errorf("LOCAL_CACHE_SIZE must be positive, got %d", cfg.LocalCacheSize)
	}
	if cfg.Redis.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", cfg.Redis.CacheTTL)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}

func loadEnvFile() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("load .env file")
			continue
		}
		logrus.WithField("path", path).Debug("loaded .env file")
		return
	}
}

// ConfigureLogging applies the log level and format to the package logger.
func ConfigureLogging(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
