package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/cache"
	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/models"
	"github.com/tabml/automl-backend/internal/predict"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/tabular"
	"github.com/tabml/automl-backend/internal/training"
)

// Analyze starts dataset analysis in the background.
func (h *Handler) Analyze(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.StartAnalysis(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"project_id": id,
		"status":     models.StatusAnalyzing,
	})
}

// GetAnalysis returns the stored analysis report.
func (h *Handler) GetAnalysis(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !p.HasAnalysis() {
		h.respondError(c, apperr.NotFound("analysis results for project", p.ID.String()))
		return
	}
	c.JSON(http.StatusOK, p.AnalysisResults)
}

type setTargetRequest struct {
	TargetColumn string `json:"target_column" binding:"required"`
}

// SetTarget records the target column for a project.
func (h *Handler) SetTarget(c *gin.Context) {
	var req setTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if err := h.engine.SetTarget(c.Param("id"), req.TargetColumn); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id":    c.Param("id"),
		"target_column": req.TargetColumn,
	})
}

type autoPreprocessRequest struct {
	TestSize       float64  `json:"test_size"`
	ValidationSize *float64 `json:"validation_size"`
}

// AutoPreprocess generates a plan from the analysis and runs it.
func (h *Handler) AutoPreprocess(c *gin.Context) {
	var req autoPreprocessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperr.Validation("invalid request body: %v", err))
			return
		}
	}
	validationSize := -1.0
	if req.ValidationSize != nil {
		validationSize = *req.ValidationSize
	}

	plan, err := h.engine.StartAutoPreprocess(c.Param("id"), req.TestSize, validationSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"project_id": c.Param("id"),
		"status":     models.StatusPreprocessing,
		"config":     plan,
	})
}

// CustomPreprocess runs a caller-supplied preprocessing plan.
func (h *Handler) CustomPreprocess(c *gin.Context) {
	plan := &preprocess.Plan{}
	if err := c.ShouldBindJSON(plan); err != nil {
		h.respondError(c, apperr.Validation("invalid preprocessing plan: %v", err))
		return
	}
	if err := h.engine.StartCustomPreprocess(c.Param("id"), plan); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"project_id": c.Param("id"),
		"status":     models.StatusPreprocessing,
	})
}

// GetPreprocessConfig returns the stored plan, or generates one from the
// analysis when no run has happened yet. Generating does not persist.
func (h *Handler) GetPreprocessConfig(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(p.PreprocessingConfig) > 0 {
		c.JSON(http.StatusOK, gin.H{"config": p.PreprocessingConfig, "generated": false})
		return
	}
	plan, err := h.engine.AutoPlan(p.ID.String())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": plan, "generated": true})
}

// GetPreprocessResults returns the stored preprocessing document.
func (h *Handler) GetPreprocessResults(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !p.HasPreprocessing() {
		h.respondError(c, apperr.NotFound("preprocessing results for project", p.ID.String()))
		return
	}
	c.JSON(http.StatusOK, p.PreprocessingResults)
}

// PreprocessPreview returns the post-transform sample rows.
func (h *Handler) PreprocessPreview(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	doc := &training.PreprocessingDoc{}
	ok, err := p.PreprocessingResults.Decode(doc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.respondError(c, apperr.NotFound("preprocessing results for project", p.ID.String()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feature_names": doc.FeatureNames,
		"rows":          doc.SampleData.XTrainPreview,
		"train_shape":   doc.SampleData.XTrainShape,
	})
}

// SelectModels runs model selection synchronously.
func (h *Handler) SelectModels(c *gin.Context) {
	doc, err := h.engine.SelectModels(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetModelSelection returns the stored selection document.
func (h *Handler) GetModelSelection(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !p.HasModelSelection() {
		h.respondError(c, apperr.NotFound("model selection for project", p.ID.String()))
		return
	}
	c.JSON(http.StatusOK, p.ModelSelection)
}

type updateSelectionRequest struct {
	RecommendedModels []catalog.Selection `json:"recommended_models" binding:"required"`
}

// UpdateModelSelection replaces the candidate list with the caller's edit.
func (h *Handler) UpdateModelSelection(c *gin.Context) {
	var req updateSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	doc, err := h.engine.UpdateSelection(c.Param("id"), req.RecommendedModels)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetCatalog lists the catalog entries for a task type.
func (h *Handler) GetCatalog(c *gin.Context) {
	entries, err := catalog.Models(c.Param("task_type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_type": c.Param("task_type"),
		"models":    entries,
	})
}

// Train starts training the selected candidates in the background.
func (h *Handler) Train(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.StartTraining(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"project_id": id,
		"status":     models.StatusTraining,
	})
}

// TrainingStatus returns the live status and progress, served from the
// cache when warm.
func (h *Handler) TrainingStatus(c *gin.Context) {
	id := c.Param("id")
	if entry := h.status.Get(c.Request.Context(), id); entry != nil {
		c.JSON(http.StatusOK, entry)
		return
	}

	p, err := h.repos.Project.GetByID(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	entry := &cache.StatusEntry{
		Status:   string(p.Status),
		TaskType: string(p.TaskType),
		Progress: []byte(p.TrainingProgress),
	}
	h.status.Set(c.Request.Context(), id, entry)
	c.JSON(http.StatusOK, entry)
}

// TrainingResults returns the stored training document.
func (h *Handler) TrainingResults(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !p.HasTrainingResults() {
		h.respondError(c, apperr.NotFound("training results for project", p.ID.String()))
		return
	}
	c.JSON(http.StatusOK, p.TrainingResults)
}

// DownloadModel serves a trained model file.
func (h *Handler) DownloadModel(c *gin.Context) {
	projectID := c.Param("id")
	modelID := c.Param("model_id")
	name := fmt.Sprintf("%s_%s.json", projectID, modelID)
	if !h.modelDir.Exists(name) {
		h.respondError(c, apperr.NotFound("trained model", modelID))
		return
	}
	c.FileAttachment(h.modelDir.Path(name), name)
}

type predictRequest struct {
	Records []map[string]interface{} `json:"records" binding:"required"`
	ModelID string                   `json:"model_id"`
}

// Predict scores JSON records with a trained model.
func (h *Handler) Predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if len(req.Records) == 0 {
		h.respondError(c, apperr.Validation("records must not be empty"))
		return
	}
	t := tabular.FromRecords(req.Records)
	h.predictTable(c, t, req.ModelID)
}

// PredictFile scores the rows of an uploaded CSV file.
func (h *Handler) PredictFile(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		h.respondError(c, apperr.Validation("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	t, err := tabular.ReadCSV(file)
	if err != nil {
		h.respondError(c, apperr.Validation("parse csv: %v", err))
		return
	}
	h.predictTable(c, t, c.Query("model_id"))
}

func (h *Handler) predictTable(c *gin.Context, t *tabular.Table, modelID string) {
	projectID := c.Param("id")
	p, err := h.repos.Project.GetByID(projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	prep := &training.PreprocessingDoc{}
	if ok, err := p.PreprocessingResults.Decode(prep); err != nil || !ok {
		h.respondError(c, apperr.Precondition("project has no preprocessing artifact"))
		return
	}
	modelID, err = h.resolveModelID(p, modelID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.predictor.Run(projectID, prep.ProcessedID, modelID, t)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.ObservePredictions(resp.RowCount)

	if err := h.savePredictions(projectID, t, resp); err != nil {
		h.log.Warn("save predictions file", zap.String("project_id", projectID), zap.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}

// resolveModelID validates an explicit model id against the training
// results, or falls back to the best model.
func (h *Handler) resolveModelID(p *models.Project, modelID string) (string, error) {
	doc := &training.TrainingDoc{}
	if ok, err := p.TrainingResults.Decode(doc); err != nil || !ok {
		return "", apperr.Precondition("project has no trained models")
	}
	if modelID == "" {
		if doc.BestModel == nil {
			return "", apperr.Precondition("project has no successfully trained model")
		}
		return doc.BestModel.ModelID, nil
	}
	for _, r := range doc.AllResults {
		if r.ModelID == modelID && r.Status == "completed" {
			return modelID, nil
		}
	}
	return "", apperr.NotFound("trained model", modelID)
}

func predictionsName(projectID string) string { return projectID + "_predictions.csv" }

func (h *Handler) savePredictions(projectID string, t *tabular.Table, resp *predict.Response) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(predict.PredictionsCSV(t, resp)); err != nil {
		return err
	}
	return h.processed.WriteBytes(predictionsName(projectID), buf.Bytes())
}

// DownloadPredictions serves the most recent prediction output as CSV.
func (h *Handler) DownloadPredictions(c *gin.Context) {
	projectID := c.Param("id")
	name := predictionsName(projectID)
	if !h.processed.Exists(name) {
		h.respondError(c, apperr.NotFound("predictions for project", projectID))
		return
	}
	c.FileAttachment(h.processed.Path(name), name)
}

type autoBuildRequest struct {
	Prompt string `json:"prompt"`
}

// AutoBuild runs the whole pipeline end to end in the background.
func (h *Handler) AutoBuild(c *gin.Context) {
	var req autoBuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperr.Validation("invalid request body: %v", err))
			return
		}
	}
	id := c.Param("id")
	if err := h.engine.StartAutoBuild(id, req.Prompt); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"project_id": id,
		"status":     models.StatusAnalyzing,
	})
}

// WorkflowStatus returns the automated build log and current state.
func (h *Handler) WorkflowStatus(c *gin.Context) {
	p, err := h.repos.Project.GetByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id":        p.ID,
		"status":            p.Status,
		"task_type":         p.TaskType,
		"target_column":     p.TargetColumn,
		"workflow_log":      p.WorkflowLog,
		"training_progress": p.TrainingProgress,
	})
}
