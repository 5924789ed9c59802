package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/monitoring"
)

// SetupRouter builds the gin engine with middleware and every route.
func SetupRouter(cfg *config.Config, log *zap.Logger, handler *Handler, metrics *monitoring.Metrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.EnableCORS {
		router.Use(CORSMiddleware())
	}
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(log))
	router.Use(MetricsMiddleware(metrics))

	router.GET("/health", handler.Health)
	if cfg.Monitoring.Enabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		datasets := v1.Group("/datasets")
		{
			datasets.POST("/upload", handler.UploadDataset)
			datasets.GET("", handler.ListDatasets)
			datasets.GET("/:id", handler.GetDataset)
			datasets.GET("/:id/preview", handler.PreviewDataset)
			datasets.DELETE("/:id", handler.DeleteDataset)
		}

		projects := v1.Group("/projects")
		{
			projects.POST("", handler.CreateProject)
			projects.GET("", handler.ListProjects)
			projects.GET("/stats/summary", handler.ProjectsSummary)
			projects.GET("/:id", handler.GetProject)
			projects.PATCH("/:id", handler.UpdateProject)
			projects.DELETE("/:id", handler.DeleteProject)
			projects.POST("/:id/link-dataset", handler.LinkDataset)

			projects.POST("/:id/analyze", handler.Analyze)
			projects.GET("/:id/analysis", handler.GetAnalysis)
			projects.POST("/:id/target", handler.SetTarget)

			projects.POST("/:id/preprocess/auto", handler.AutoPreprocess)
			projects.POST("/:id/preprocess", handler.CustomPreprocess)
			projects.GET("/:id/preprocess/config", handler.GetPreprocessConfig)
			projects.GET("/:id/preprocess/results", handler.GetPreprocessResults)
			projects.GET("/:id/preprocess/preview", handler.PreprocessPreview)

			projects.POST("/:id/select-models", handler.SelectModels)
			projects.GET("/:id/model-selection", handler.GetModelSelection)
			projects.PUT("/:id/model-selection", handler.UpdateModelSelection)
			projects.POST("/:id/train", handler.Train)
			projects.GET("/:id/training-status", handler.TrainingStatus)
			projects.GET("/:id/training-results", handler.TrainingResults)
			projects.GET("/:id/models/:model_id/download", handler.DownloadModel)

			projects.POST("/:id/predict", handler.Predict)
			projects.POST("/:id/predict-file", handler.PredictFile)
			projects.GET("/:id/predictions/download", handler.DownloadPredictions)

			projects.POST("/:id/auto-build", handler.AutoBuild)
			projects.GET("/:id/workflow-status", handler.WorkflowStatus)
		}

		v1.GET("/catalog/:task_type", handler.GetCatalog)
	}

	return router
}

// CORSMiddleware handles CORS headers for browser clients.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware attaches a request id to every request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs every request with latency and status.
func LoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		requestID, _ := c.Get("request_id")
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Any("request_id", requestID),
			zap.String("ip", c.ClientIP()))
	}
}

// MetricsMiddleware records request counters and latency histograms. The
// route template is used as the path label to keep cardinality bounded.
func MetricsMiddleware(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
