package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"autofill-service/internal/api"
	"autofill-service/internal/config"
	"autofill-service/internal/memory"
	"autofill-service/internal/predict"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load configuration: %v", err)
	}
	config.ConfigureLogging(cfg)

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logrus.Fatalf("create data directory: %v", err)
		}
	}

	server, err := api.NewServer(api.Config{
		DBPath:                  cfg.DBPath,
		SilentDB:                cfg.SilentDB,
		APIKey:                  cfg.APIKey,
		AllowedOrigins:          cfg.AllowedOrigins,
		RulesPath:               cfg.RulesPath,
		FuzzyMatchThreshold:     cfg.FuzzyMatchThreshold,
		PatternMemoryConfidence: cfg.PatternMemoryConfidence,
		LearnThreshold:          cfg.LearnThreshold,
		ShareableIntents:        cfg.ShareableIntents,
		LocalCacheSize:          cfg.LocalCacheSize,
		Redis: memory.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		},
		AIConfig: predict.ClientConfig{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			BaseURL:     cfg.OpenAI.BaseURL,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		},
		DisableAI: cfg.DisableAI,
		Version:   version,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"db":      cfg.DBPath,
		"version": version,
	}).Info("starting autofill service")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
