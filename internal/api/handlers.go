// Package api exposes the service over HTTP with gin: dataset and project
// management plus the pipeline operations (analysis, preprocessing, model
// selection, training, prediction and automated builds).
package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/cache"
	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/database"
	"github.com/tabml/automl-backend/internal/models"
	"github.com/tabml/automl-backend/internal/monitoring"
	"github.com/tabml/automl-backend/internal/predict"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/tabular"
	"github.com/tabml/automl-backend/internal/training"
)

// Handler carries the dependencies behind every route.
type Handler struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *database.Database
	repos     *database.Repositories
	engine    *training.Engine
	predictor *predict.Predictor
	uploads   *storage.Store
	processed *storage.Store
	modelDir  *storage.Store
	status    *cache.StatusCache
	metrics   *monitoring.Metrics
}

// NewHandler wires the API handler.
func NewHandler(
	cfg *config.Config,
	log *zap.Logger,
	db *database.Database,
	repos *database.Repositories,
	engine *training.Engine,
	predictor *predict.Predictor,
	uploads, processed, modelDir *storage.Store,
	status *cache.StatusCache,
	metrics *monitoring.Metrics,
) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log,
		db:        db,
		repos:     repos,
		engine:    engine,
		predictor: predictor,
		uploads:   uploads,
		processed: processed,
		modelDir:  modelDir,
		status:    status,
		metrics:   metrics,
	}
}

// respondError maps the error taxonomy onto HTTP codes. Unclassified errors
// become opaque 500s; the detail goes to the log only.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation, apperr.KindPrecondition:
		status = http.StatusBadRequest
	case apperr.KindExecution:
		status = http.StatusInternalServerError
	default:
		kind = apperr.KindExecution
		message = "internal error"
		h.log.Error("unclassified error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{"error": gin.H{
		"kind":    string(kind),
		"message": message,
	}})
}

// Health reports liveness plus the database connection state.
func (h *Handler) Health(c *gin.Context) {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := h.db.Health(); err != nil {
		dbStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    dbStatus,
		"timestamp": time.Now().UTC(),
		"services":  gin.H{"database": dbStatus},
	})
}

func pagination(c *gin.Context) (limit, skip int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}

// categorize maps an upload filename extension to a dataset category.
func categorize(filename string) models.DatasetCategory {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return models.CategoryTabular
	case ".json":
		return models.CategoryJSON
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp":
		return models.CategoryImage
	case ".txt", ".md":
		return models.CategoryText
	default:
		return models.CategoryOther
	}
}

// UploadDataset stores a multipart file and registers it.
func (h *Handler) UploadDataset(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.respondError(c, apperr.Validation("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	maxBytes := h.cfg.Storage.MaxUploadMB << 20
	if header.Size > maxBytes {
		h.respondError(c, apperr.Validation("file exceeds the %dMB upload limit", h.cfg.Storage.MaxUploadMB))
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	id, path, err := h.uploads.Save(file, ext)
	if err != nil {
		h.respondError(c, apperr.Execution(err, "store uploaded file"))
		return
	}

	ds := &models.Dataset{
		ID:             uuid.MustParse(id),
		Filename:       header.Filename,
		StoredFilename: id + ext,
		FilePath:       path,
		Size:           header.Size,
		Category:       categorize(header.Filename),
		Status:         "uploaded",
		UploadedAt:     time.Now().UTC(),
	}
	if err := h.repos.Dataset.Create(ds); err != nil {
		h.uploads.Delete(ds.StoredFilename)
		h.respondError(c, err)
		return
	}

	h.log.Info("dataset uploaded",
		zap.String("dataset_id", id),
		zap.String("filename", ds.Filename),
		zap.Int64("size", ds.Size))
	c.JSON(http.StatusOK, ds)
}

// ListDatasets returns datasets newest-first.
func (h *Handler) ListDatasets(c *gin.Context) {
	limit, skip := pagination(c)
	items, total, err := h.repos.Dataset.List(limit, skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
		"limit": limit,
		"skip":  skip,
	})
}

// GetDataset returns one dataset record.
func (h *Handler) GetDataset(c *gin.Context) {
	ds, err := h.repos.Dataset.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// PreviewDataset returns the first rows of a tabular dataset.
func (h *Handler) PreviewDataset(c *gin.Context) {
	ds, err := h.repos.Dataset.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	t, err := h.loadDatasetTable(ds)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":    t.Columns,
		"rows":       t.Head(h.cfg.Pipeline.PreviewRows),
		"total_rows": t.NumRows(),
	})
}

// DeleteDataset removes the record and its backing blob.
func (h *Handler) DeleteDataset(c *gin.Context) {
	ds, err := h.repos.Dataset.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.repos.Dataset.Delete(ds.ID.String()); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.uploads.Delete(ds.StoredFilename); err != nil {
		h.log.Warn("remove dataset blob", zap.String("dataset_id", ds.ID.String()), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ds.ID})
}

func (h *Handler) loadDatasetTable(ds *models.Dataset) (*tabular.Table, error) {
	f, err := h.uploads.Open(ds.StoredFilename)
	if err != nil {
		return nil, apperr.Execution(err, "open dataset file")
	}
	defer f.Close()

	switch ds.Category {
	case models.CategoryTabular:
		return tabular.ReadCSV(f)
	case models.CategoryJSON:
		return tabular.ReadJSON(f)
	default:
		return nil, apperr.Validation("dataset category %q cannot be previewed as a table", ds.Category)
	}
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	DataSource  string `json:"data_source"`
}

// CreateProject registers an empty project.
func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	now := time.Now().UTC()
	p := &models.Project{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		DataSource:  req.DataSource,
		Status:      models.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repos.Project.Create(p); err != nil {
		h.respondError(c, err)
		return
	}
	h.log.Info("project created", zap.String("project_id", p.ID.String()), zap.String("name", p.Name))
	c.JSON(http.StatusOK, p)
}

// ListProjects returns projects newest-first, optionally filtered by status.
func (h *Handler) ListProjects(c *gin.Context) {
	limit, skip := pagination(c)
	items, total, err := h.repos.Project.List(c.Query("status"), limit, skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
		"limit": limit,
		"skip":  skip,
	})
}

// GetProject returns one project record.
func (h *Handler) GetProject(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	DataSource  *string `json:"data_source"`
}

// UpdateProject patches mutable project fields.
func (h *Handler) UpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	fields := map[string]interface{}{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		if *req.Name == "" {
			h.respondError(c, apperr.Validation("name cannot be empty"))
			return
		}
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.DataSource != nil {
		fields["data_source"] = *req.DataSource
	}

	if err := h.repos.Project.UpdateFields(c.Param("id"), fields); err != nil {
		h.respondError(c, err)
		return
	}
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProject removes a project record.
func (h *Handler) DeleteProject(c *gin.Context) {
	id := c.Param("id")
	if err := h.repos.Project.Delete(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type linkDatasetRequest struct {
	DatasetID string `json:"dataset_id" binding:"required"`
}

// LinkDataset attaches an uploaded dataset to a project.
func (h *Handler) LinkDataset(c *gin.Context) {
	var req linkDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	ds, err := h.repos.Dataset.GetByID(req.DatasetID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	err = h.repos.Project.UpdateFields(c.Param("id"), map[string]interface{}{
		"dataset_id": ds.ID,
		"status":     models.StatusDatasetLinked,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ProjectsSummary aggregates project counts by status and task type.
func (h *Handler) ProjectsSummary(c *gin.Context) {
	byStatus, err := h.repos.Project.CountByStatus()
	if err != nil {
		h.respondError(c, err)
		return
	}
	byTask, err := h.repos.Project.CountByTaskType()
	if err != nil {
		h.respondError(c, err)
		return
	}

	var total int64
	statuses := map[string]int64{}
	for _, row := range byStatus {
		statuses[row.Key] = row.Count
		total += row.Count
	}
	tasks := map[string]int64{}
	for _, row := range byTask {
		tasks[row.Key] = row.Count
	}
	c.JSON(http.StatusOK, gin.H{
		"total_projects": total,
		"by_status":      statuses,
		"by_task_type":   tasks,
	})
}
