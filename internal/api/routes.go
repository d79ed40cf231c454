package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"autofill-service/internal/intent"
	"autofill-service/internal/memory"
	"autofill-service/internal/metrics"
	"autofill-service/internal/predict"
	"autofill-service/internal/store"
)

const (
	serviceName  = "autofill-service"
	apiKeyHeader = "X-API-Key"
)

// Config defines server dependencies.
type Config struct {
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
	Redis                   memory.RedisConfig
	AIConfig                predict.ClientConfig
	DisableAI               bool
	Version                 string
}

// Server wires HTTP handlers with the detector, pattern memory and persistence.
type Server struct {
	db             *store.Database
	detector       *intent.Detector
	memory         *memory.Service
	predictor      *predict.Service
	notifier       *PatternNotifier
	redisCache     *memory.RedisCache
	apiKey         string
	allowedOrigins []string
	version        string
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}

	table := intent.DefaultTable()
	if path := strings.TrimSpace(cfg.RulesPath); path != "" {
		loaded, err := intent.LoadTable(path)
		if err != nil {
			return nil, fmt.Errorf("load rule table: %w", err)
		}
		table = loaded
		logrus.WithFields(logrus.Fields{
			"path":    path,
			"intents": table.Len(),
		}).Info("loaded rule table override")
	}
	detector := intent.NewDetector(table)

	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:             db,
		detector:       detector,
		notifier:       NewPatternNotifier(),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		allowedOrigins: cfg.AllowedOrigins,
		version:        cfg.Version,
	}
	if server.version == "" {
		server.version = "dev"
	}
	if server.apiKey == "" {
		logrus.Warn("API authentication is disabled (no APP_API_KEY configured)")
	}

	var cache memory.Cache
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := memory.NewRedisCache(ctx, cfg.Redis)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("addr", addr).Warn("redis cache unavailable, using in-process cache")
		} else {
			server.redisCache = redisCache
			cache = redisCache
			logrus.WithFields(logrus.Fields{
				"addr": addr,
				"ttl":  cfg.Redis.TTL,
			}).Info("pattern search cache backed by redis")
		}
	}

	if cache == nil {
		cache = memory.NewLocalCache(cfg.LocalCacheSize, cfg.Redis.TTL)
	}

	server.memory = memory.NewService(db, memory.Options{
		FuzzyThreshold:   cfg.FuzzyMatchThreshold,
		ShareableIntents: cfg.ShareableIntents,
		IsProtected:      detector.IsProtected,
		Cache:            cache,
		OnChange:         server.notifier.Broadcast,
	})

	var answerer predict.Answerer
	if cfg.DisableAI {
		logrus.Info("AI answer stage disabled via configuration")
	} else if client, err := predict.NewClient(cfg.AIConfig, table.Intents()); err == nil {
		answerer = client
		logrus.WithField("model", cfg.AIConfig.Model).Info("AI answer stage enabled")
	} else if errors.Is(err, predict.ErrDisabled) {
		logrus.Info("AI answer stage disabled - no API key configured")
	} else {
		_ = server.Close()
		return nil, fmt.Errorf("ai client: %w", err)
	}

	server.predictor = predict.NewService(detector, server.memory, db, answerer, predict.Config{
		MemoryConfidence: cfg.PatternMemoryConfidence,
		LearnThreshold:   cfg.LearnThreshold,
	})
	return server, nil
}

// Close releases the database and cache connections.
func (s *Server) Close() error {
	s.notifier.Close()
	var errs []error
	if s.redisCache != nil {
		errs = append(errs, s.redisCache.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", apiKeyHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.handleHealth)

	authed := r.Group("", s.requireAPIKey())
	authed.GET("/metrics", gin.WrapH(promhttp.Handler()))
	authed.POST("/predict", s.handlePredict)

	api := authed.Group("/api")
	{
		api.POST("/intent/detect", s.handleDetect)
		api.POST("/intent/batch", s.handleDetectBatch)
		api.GET("/intent/rules", s.handleRules)

		api.POST("/patterns/upload", s.handlePatternUpload)
		api.GET("/patterns/search", s.handlePatternSearch)
		api.GET("/patterns/stats", s.handlePatternStats)
		api.GET("/patterns/sync", s.handlePatternSync)
		api.GET("/patterns/user/:email", s.handleUserPatterns)
		api.GET("/patterns/stream", s.handlePatternStream)

		api.POST("/user-data/save", s.handleSaveUserData)
		api.GET("/user-data/:email", s.handleGetUserData)
		api.POST("/users/restore", s.handleRestoreUser)

		api.GET("/stats/summary", s.handleStatsSummary)
		api.POST("/feedback/track", s.handleTrackFeedback)
	}

	return r, nil
}

// requireAPIKey checks X-API-Key (or api_key for websocket clients) when a key
// is configured.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(apiKeyHeader))
		if provided == "" {
			provided = strings.TrimSpace(c.Query("api_key"))
		}
		if provided == "" {
			logrus.WithField("path", c.FullPath()).Warn("unauthorized request: missing API key")
			s.renderError(c, http.StatusUnauthorized, errors.New("missing X-API-Key header"))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
			logrus.WithField("path", c.FullPath()).Warn("unauthorized request: invalid API key")
			s.renderError(c, http.StatusForbidden, errors.New("could not validate credentials"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": s.version,
	})
}

func (s *Server) handleDetect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	result := s.detector.Detect(req.Question)
	metrics.IntentDetections.WithLabelValues(string(result.Method)).Inc()
	c.JSON(http.StatusOK, DetectionFromResult(req.Question, result, s.detector))
}

func (s *Server) handleDetectBatch(c *gin.Context) {
	var req BatchDetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Questions) > maxBatchQuestions {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("at most %d questions per batch", maxBatchQuestions))
		return
	}
	results := make([]DetectionDTO, 0, len(req.Questions))
	for _, question := range req.Questions {
		result := s.detector.Detect(question)
		metrics.IntentDetections.WithLabelValues(string(result.Method)).Inc()
		results = append(results, DetectionFromResult(question, result, s.detector))
	}
	c.JSON(http.StatusOK, BatchDetectResponse{Results: results, Total: len(results)})
}

func (s *Server) handleRules(c *gin.Context) {
	entries := s.detector.Entries()
	rules := make([]RuleDTO, 0, len(entries))
	for _, entry := range entries {
		rules = append(rules, RuleFromEntry(entry))
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

func (s *Server) handlePredict(c *gin.Context) {
	var req predict.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	pred, err := s.predictor.Predict(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, memory.ErrEmptyQuestion) {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
