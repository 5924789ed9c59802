// Package server assembles the service: database, stores, engine,
// predictor, optional cache and event publisher, and the HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/api"
	"github.com/tabml/automl-backend/internal/cache"
	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/database"
	"github.com/tabml/automl-backend/internal/events"
	"github.com/tabml/automl-backend/internal/monitoring"
	"github.com/tabml/automl-backend/internal/oracle"
	"github.com/tabml/automl-backend/internal/predict"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/training"
)

// Server owns every long-lived component of the service.
type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *database.Database
	httpServer *http.Server
	publisher  *events.Publisher
	status     *cache.StatusCache
}

// New connects the database, runs migrations and wires the full stack.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if err := database.RunMigrations(&cfg.Database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	repos := database.NewRepositories(db)

	uploads, err := storage.NewStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}
	processed, err := storage.NewStore(cfg.Storage.ProcessedDir)
	if err != nil {
		return nil, err
	}
	modelDir, err := storage.NewStore(cfg.Storage.ModelsDir)
	if err != nil {
		return nil, err
	}

	var advisor *oracle.Advisor
	if cfg.Oracle.Enabled {
		advisor = oracle.NewAdvisor(oracle.NewHTTPClient(&cfg.Oracle), log)
	}
	publisher := events.NewPublisher(&cfg.Kafka, log)
	status := cache.NewStatusCache(&cfg.Redis, log)

	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		metrics = monitoring.New()
	}

	engine := training.NewEngine(cfg, log, repos, uploads, processed, modelDir,
		advisor, publisher, status, metrics)
	predictor := predict.New(log, processed, modelDir)

	handler := api.NewHandler(cfg, log, db, repos, engine, predictor,
		uploads, processed, modelDir, status, metrics)
	router := api.SetupRouter(cfg, log, handler, metrics)

	return &Server{
		cfg: cfg,
		log: log,
		db:  db,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		publisher: publisher,
		status:    status,
	}, nil
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes every component.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	err := s.httpServer.Shutdown(ctx)

	if cerr := s.publisher.Close(); cerr != nil {
		s.log.Warn("close event publisher", zap.Error(cerr))
	}
	if cerr := s.status.Close(); cerr != nil {
		s.log.Warn("close status cache", zap.Error(cerr))
	}
	if cerr := s.db.Close(); cerr != nil {
		s.log.Warn("close database", zap.Error(cerr))
	}
	return err
}
