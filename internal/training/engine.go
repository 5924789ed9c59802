package training

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/cache"
	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/database"
	"github.com/tabml/automl-backend/internal/events"
	"github.com/tabml/automl-backend/internal/models"
	"github.com/tabml/automl-backend/internal/monitoring"
	"github.com/tabml/automl-backend/internal/oracle"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/profile"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/tabular"
)

// Engine coordinates the pipeline stages. Stages run as background
// goroutines; at most one stage runs per project at a time.
type Engine struct {
	cfg       *config.Config
	log       *zap.Logger
	repos     *database.Repositories
	uploads   *storage.Store
	processed *storage.Store
	modelDir  *storage.Store
	profiler  *profile.Profiler
	executor  *preprocess.Executor
	advisor   *oracle.Advisor
	events    *events.Publisher
	status    *cache.StatusCache
	metrics   *monitoring.Metrics

	mu      sync.Mutex
	running map[string]string
}

// NewEngine wires the engine. Advisor, publisher, cache and metrics may be
// nil; the engine degrades to a database-only pipeline.
func NewEngine(
	cfg *config.Config,
	log *zap.Logger,
	repos *database.Repositories,
	uploads, processed, modelDir *storage.Store,
	advisor *oracle.Advisor,
	publisher *events.Publisher,
	status *cache.StatusCache,
	metrics *monitoring.Metrics,
) *Engine {
	return &Engine{
		cfg:       cfg,
		log:       log,
		repos:     repos,
		uploads:   uploads,
		processed: processed,
		modelDir:  modelDir,
		profiler:  profile.New(log),
		executor:  preprocess.NewExecutor(log),
		advisor:   advisor,
		events:    publisher,
		status:    status,
		metrics:   metrics,
		running:   map[string]string{},
	}
}

// acquire claims the per-project stage slot.
func (e *Engine) acquire(projectID, stage string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, busy := e.running[projectID]; busy {
		return apperr.Precondition("project is busy running stage %q", current)
	}
	e.running[projectID] = stage
	return nil
}

func (e *Engine) release(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, projectID)
}

// runStage executes fn in a goroutine under the stage slot. Errors and
// panics mark the project with failStatus and store the error message in
// resultColumn.
func (e *Engine) runStage(projectID, stage string, failStatus models.ProjectStatus, resultColumn string, fn func(ctx context.Context) error) {
	go func() {
		start := time.Now()
		defer e.release(projectID)

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("stage %s panicked: %v", stage, r)
				}
			}()
			err = fn(context.Background())
		}()

		e.metrics.ObserveStage(stage, start, err)
		if err == nil {
			return
		}

		e.log.Error("pipeline stage failed",
			zap.String("project_id", projectID),
			zap.String("stage", stage),
			zap.Error(err))

		fields := map[string]interface{}{
			"status":     failStatus,
			"updated_at": time.Now().UTC(),
		}
		if resultColumn != "" {
			fields[resultColumn] = models.MustJSON(map[string]string{"error": err.Error()})
		}
		if dbErr := e.repos.Project.UpdateFields(projectID, fields); dbErr != nil {
			e.log.Error("record stage failure", zap.String("project_id", projectID), zap.Error(dbErr))
		}
		e.status.Invalidate(context.Background(), projectID)
		e.events.Publish(context.Background(), events.StageEvent{
			ProjectID: projectID,
			Stage:     stage,
			Status:    "failed",
			Detail:    err.Error(),
		})
	}()
}

func (e *Engine) setStatus(projectID string, status models.ProjectStatus, extra map[string]interface{}) error {
	fields := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err := e.repos.Project.UpdateFields(projectID, fields); err != nil {
		return err
	}
	e.status.Invalidate(context.Background(), projectID)
	return nil
}

func (e *Engine) publish(projectID, stage, status, detail string) {
	e.events.Publish(context.Background(), events.StageEvent{
		ProjectID: projectID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
	})
}

// loadTable reads a linked dataset's blob into memory.
func (e *Engine) loadTable(ds *models.Dataset) (*tabular.Table, error) {
	f, err := e.uploads.Open(ds.StoredFilename)
	if err != nil {
		return nil, apperr.Execution(err, "open dataset file")
	}
	defer f.Close()

	switch ds.Category {
	case models.CategoryTabular:
		t, err := tabular.ReadCSV(f)
		if err != nil {
			return nil, apperr.Execution(err, "parse csv dataset")
		}
		return t, nil
	case models.CategoryJSON:
		t, err := tabular.ReadJSON(f)
		if err != nil {
			return nil, apperr.Execution(err, "parse json dataset")
		}
		return t, nil
	default:
		return nil, apperr.Validation("dataset category %q cannot be loaded as a table", ds.Category)
	}
}

func (e *Engine) projectAndDataset(projectID string) (*models.Project, *models.Dataset, error) {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return nil, nil, err
	}
	if project.DatasetID == nil {
		return nil, nil, apperr.Precondition("no dataset linked to this project")
	}
	ds, err := e.repos.Dataset.GetByID(project.DatasetID.String())
	if err != nil {
		return nil, nil, err
	}
	return project, ds, nil
}

// StartAnalysis profiles the linked dataset in the background.
func (e *Engine) StartAnalysis(projectID string) error {
	project, ds, err := e.projectAndDataset(projectID)
	if err != nil {
		return err
	}
	if err := e.acquire(projectID, "analysis"); err != nil {
		return err
	}
	if err := e.setStatus(projectID, models.StatusAnalyzing, nil); err != nil {
		e.release(projectID)
		return err
	}
	e.publish(projectID, "analysis", "started", "")

	description := project.Description
	e.runStage(projectID, "analysis", models.StatusAnalysisFailed, "analysis_results", func(ctx context.Context) error {
		return e.runAnalysis(ctx, projectID, ds, description)
	})
	return nil
}

func (e *Engine) runAnalysis(ctx context.Context, projectID string, ds *models.Dataset, description string) error {
	table, err := e.loadTable(ds)
	if err != nil {
		return err
	}
	report := e.profiler.Analyze(table, description)

	if err := e.setStatus(projectID, models.StatusAnalyzed, map[string]interface{}{
		"task_type":        report.TaskType,
		"analysis_results": models.MustJSON(report),
	}); err != nil {
		return err
	}
	e.publish(projectID, "analysis", "completed", report.TaskType)
	return nil
}

// SetTarget records the target column, validated against the analysis when
// one exists.
func (e *Engine) SetTarget(projectID, targetColumn string) error {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return err
	}
	if project.HasAnalysis() {
		report := &profile.Report{}
		if _, err := project.AnalysisResults.Decode(report); err != nil {
			return err
		}
		found := false
		for _, c := range report.ColumnAnalysis {
			if c.Name == targetColumn {
				found = true
				break
			}
		}
		if !found {
			return apperr.Validation("column %q not found in dataset", targetColumn)
		}
	}
	return e.repos.Project.UpdateFields(projectID, map[string]interface{}{
		"target_column": targetColumn,
		"updated_at":    time.Now().UTC(),
	})
}

// AutoPlan builds the generated preprocessing plan for a project without
// executing it.
func (e *Engine) AutoPlan(projectID string) (*preprocess.Plan, error) {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasAnalysis() {
		return nil, apperr.Precondition("project must be analyzed first")
	}
	if project.TargetColumn == "" {
		return nil, apperr.Precondition("target column must be selected first")
	}
	report := &profile.Report{}
	if _, err := project.AnalysisResults.Decode(report); err != nil {
		return nil, err
	}
	return preprocess.AutoPlan(report, project.TargetColumn), nil
}

// StartAutoPreprocess generates a plan from the analysis and runs it.
// Negative validationSize keeps the generated value.
func (e *Engine) StartAutoPreprocess(projectID string, testSize, validationSize float64) (*preprocess.Plan, error) {
	plan, err := e.AutoPlan(projectID)
	if err != nil {
		return nil, err
	}
	if testSize > 0 {
		plan.Split.TestSize = testSize
	}
	if validationSize >= 0 {
		plan.Split.ValidationSize = validationSize
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := e.startPreprocess(projectID, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// StartCustomPreprocess runs a caller-supplied plan.
func (e *Engine) StartCustomPreprocess(projectID string, plan *preprocess.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return e.startPreprocess(projectID, plan)
}

func (e *Engine) startPreprocess(projectID string, plan *preprocess.Plan) error {
	project, ds, err := e.projectAndDataset(projectID)
	if err != nil {
		return err
	}
	if err := e.acquire(projectID, "preprocessing"); err != nil {
		return err
	}
	if err := e.setStatus(projectID, models.StatusPreprocessing, nil); err != nil {
		e.release(projectID)
		return err
	}
	e.publish(projectID, "preprocessing", "started", "")

	taskType := string(project.TaskType)
	e.runStage(projectID, "preprocessing", models.StatusPreprocessingFailed, "preprocessing_results", func(ctx context.Context) error {
		return e.runPreprocess(ctx, projectID, ds, plan, taskType)
	})
	return nil
}

func (e *Engine) runPreprocess(ctx context.Context, projectID string, ds *models.Dataset, plan *preprocess.Plan, taskType string) error {
	table, err := e.loadTable(ds)
	if err != nil {
		return err
	}
	result, err := e.executor.Execute(table, plan, taskType)
	if err != nil {
		return err
	}

	processedID := uuid.New().String()
	if err := preprocess.SaveArtifact(e.processed, processedID, result.Artifact); err != nil {
		return err
	}

	doc := PreprocessingDoc{
		ProcessedAt:  time.Now().UTC(),
		ProcessedID:  processedID,
		Config:       plan,
		Stats:        result.Stats,
		FeatureNames: result.Artifact.FeatureNames,
		SampleData: SampleData{
			XTrainShape:   shape(result.Artifact.XTrain, result.Stats.TotalFeatures),
			XTestShape:    shape(result.Artifact.XTest, result.Stats.TotalFeatures),
			XValShape:     shape(result.Artifact.XVal, result.Stats.TotalFeatures),
			XTrainPreview: result.Preview,
		},
	}

	if err := e.setStatus(projectID, models.StatusPreprocessed, map[string]interface{}{
		"preprocessing_config":  models.MustJSON(plan),
		"preprocessing_results": models.MustJSON(doc),
	}); err != nil {
		return err
	}
	e.publish(projectID, "preprocessing", "completed", processedID)
	return nil
}

func shape(x [][]float64, features int) []int {
	if x == nil {
		return nil
	}
	return []int{len(x), features}
}

// SelectModels runs the catalog heuristic against the project's analysis
// and preprocessing outputs and stores the selection. Runs synchronously.
func (e *Engine) SelectModels(projectID string) (*SelectionDoc, error) {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasAnalysis() {
		return nil, apperr.Precondition("project must be analyzed first")
	}
	if !project.HasPreprocessing() {
		return nil, apperr.Precondition("project must be preprocessed first")
	}

	report := &profile.Report{}
	if _, err := project.AnalysisResults.Decode(report); err != nil {
		return nil, err
	}
	prep := &PreprocessingDoc{}
	if _, err := project.PreprocessingResults.Decode(prep); err != nil {
		return nil, err
	}

	taskType := string(project.TaskType)
	if taskType == "" {
		taskType = report.TaskType
	}
	dataSize := prep.Stats.TrainSamples + prep.Stats.TestSamples

	hasCategorical, hasMissing := false, false
	for _, c := range report.ColumnAnalysis {
		if c.SemanticType == profile.SemanticCategorical {
			hasCategorical = true
		}
		if c.MissingPct > 0 {
			hasMissing = true
		}
	}

	selections, err := catalog.Select(taskType, dataSize, prep.Stats.TotalFeatures, report.DataQualityScore)
	if err != nil {
		return nil, err
	}

	doc := &SelectionDoc{
		ProjectID:          projectID,
		TaskType:           taskType,
		RecommendedModels:  selections,
		SelectionReasoning: catalog.Reasoning(taskType, dataSize, prep.Stats.TotalFeatures, report.DataQualityScore),
		DataCharacteristics: catalog.DataCharacteristics{
			TrainSamples:   prep.Stats.TrainSamples,
			TestSamples:    prep.Stats.TestSamples,
			TotalFeatures:  prep.Stats.TotalFeatures,
			HasCategorical: hasCategorical,
			HasMissing:     hasMissing,
			QualityScore:   report.DataQualityScore,
		},
		UpdatedAt: time.Now().UTC(),
	}

	err = e.repos.Project.UpdateFields(projectID, map[string]interface{}{
		"model_selection": models.MustJSON(doc),
		"updated_at":      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateSelection replaces the recommended model list with the caller's
// customization. Every entry must name a catalog model for the task.
func (e *Engine) UpdateSelection(projectID string, selections []catalog.Selection) (*SelectionDoc, error) {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasModelSelection() {
		return nil, apperr.Precondition("no model selection available; run model selection first")
	}
	doc := &SelectionDoc{}
	if _, err := project.ModelSelection.Decode(doc); err != nil {
		return nil, err
	}
	for _, s := range selections {
		if _, err := catalog.Lookup(doc.TaskType, s.ModelID); err != nil {
			return nil, err
		}
	}
	doc.RecommendedModels = selections
	doc.UpdatedAt = time.Now().UTC()
	err = e.repos.Project.UpdateFields(projectID, map[string]interface{}{
		"model_selection": models.MustJSON(doc),
		"updated_at":      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// StartTraining trains every selected candidate in the background.
func (e *Engine) StartTraining(projectID string) error {
	project, err := e.repos.Project.GetByID(projectID)
	if err != nil {
		return err
	}
	if !project.HasPreprocessing() {
		return apperr.Precondition("project must be preprocessed first")
	}
	if !project.HasModelSelection() {
		return apperr.Precondition("models must be selected first")
	}

	selection := &SelectionDoc{}
	if _, err := project.ModelSelection.Decode(selection); err != nil {
		return err
	}
	var toTrain []catalog.Selection
	for _, s := range selection.RecommendedModels {
		if s.Selected {
			toTrain = append(toTrain, s)
		}
	}
	if len(toTrain) == 0 {
		return apperr.Validation("no models selected for training")
	}

	prep := &PreprocessingDoc{}
	if _, err := project.PreprocessingResults.Decode(prep); err != nil {
		return err
	}

	if err := e.acquire(projectID, "training"); err != nil {
		return err
	}
	err = e.setStatus(projectID, models.StatusTraining, map[string]interface{}{
		"training_progress": models.MustJSON(Progress{
			TotalModels: len(toTrain),
			Status:      "starting",
		}),
	})
	if err != nil {
		e.release(projectID)
		return err
	}
	e.publish(projectID, "training", "started", fmt.Sprintf("%d candidates", len(toTrain)))

	taskType := selection.TaskType
	processedID := prep.ProcessedID
	e.runStage(projectID, "training", models.StatusTrainingFailed, "training_results", func(ctx context.Context) error {
		return e.runTraining(ctx, projectID, processedID, taskType, toTrain)
	})
	return nil
}

// StartAutoBuild runs the whole pipeline end to end in the background.
func (e *Engine) StartAutoBuild(projectID, userPrompt string) error {
	_, ds, err := e.projectAndDataset(projectID)
	if err != nil {
		return err
	}
	if err := e.acquire(projectID, "auto_build"); err != nil {
		return err
	}
	if err := e.setStatus(projectID, models.StatusAnalyzing, map[string]interface{}{
		"workflow_log": models.MustJSON([]WorkflowEntry{}),
	}); err != nil {
		e.release(projectID)
		return err
	}
	e.publish(projectID, "auto_build", "started", "")

	e.runStage(projectID, "auto_build", models.StatusFailed, "", func(ctx context.Context) error {
		return e.runAutoBuild(ctx, projectID, ds, userPrompt)
	})
	return nil
}
