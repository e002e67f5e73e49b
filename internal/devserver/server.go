// Package devserver is a reference implementation of the recipe API used for
// local development and end-to-end tests of the client.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pageza/pantrycam/internal/observability"
)

type Option func(*Server)

// WithDetector replaces the file name based detector.
func WithDetector(d Detector) Option {
	return func(s *Server) {
		s.detector = d
	}
}

// WithCatalog seeds recipes instead of DefaultCatalog.
func WithCatalog(recipes []CatalogRecipe) Option {
	return func(s *Server) {
		s.catalog = recipes
	}
}

// WithRateLimiter limits detection per user.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// Server serves the recipe API.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	db       *gorm.DB
	auth     *Auth
	detector Detector
	catalog  []CatalogRecipe
	limiter  *RateLimiter
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	tokenTTL time.Duration
	log      zerolog.Logger
}

// OpenDB opens the sqlite database at dsn, e.g. "file::memory:?cache=shared".
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps a shared
	// in-memory database alive and free of table locks.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// New migrates db, seeds the catalog and builds the router.
func New(db *gorm.DB, jwtSecret string, opts ...Option) (*Server, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &Server{
		db:       db,
		detector: FilenameDetector{},
		catalog:  DefaultCatalog,
		tokenTTL: 24 * time.Hour,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.auth = NewAuth(db, jwtSecret, s.tokenTTL)

	if err := db.AutoMigrate(&User{}, &CatalogRecipe{}, &SavedRecipe{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	if err := SeedCatalog(db, s.catalog); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	s.router = s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://frontend:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))

	router.GET("/health", s.health)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
	}

	v1 := router.Group("/api/v1")
	v1.Use(RequireAuth(s.auth))
	{
		detect := []gin.HandlerFunc{}
		if s.limiter != nil {
			detect = append(detect, s.limiter.Middleware())
		}
		v1.POST("/detect", append(detect, s.detect)...)

		recipes := v1.Group("/recipes")
		{
			recipes.POST("/recommend", s.recommend)
			recipes.GET("/saved", s.listSaved)
			recipes.POST("/saved", s.saveRecipe)
			recipes.DELETE("/saved/:id", s.removeSaved)
			recipes.GET("/:id", s.getRecipe)
		}
	}
	return router
}

// observe logs every request and records it in the metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		s.metrics.ObserveHTTP(c.Request.Method, path, status, elapsed)
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request")
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("dev server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}
