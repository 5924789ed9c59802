package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/models"
	"github.com/tabml/automl-backend/internal/oracle"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/profile"
	"github.com/tabml/automl-backend/internal/tabular"
)

// workflowLog accumulates automated build steps and persists them after
// every entry so the client can follow progress live.
type workflowLog struct {
	engine    *Engine
	projectID string
	entries   []WorkflowEntry
}

func (w *workflowLog) add(step, status, detail, errMsg string) {
	w.entries = append(w.entries, WorkflowEntry{
		Step:      step,
		Status:    status,
		Detail:    detail,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
	err := w.engine.repos.Project.UpdateFields(w.projectID, map[string]interface{}{
		"workflow_log": models.MustJSON(w.entries),
		"updated_at":   time.Now().UTC(),
	})
	if err != nil {
		w.engine.log.Warn("persist workflow log", zap.String("project_id", w.projectID), zap.Error(err))
	}
}

// runAutoBuild drives the whole pipeline without user intervention:
// analysis, preprocessing, model selection, training and a bounded
// improvement loop. The advisor guides the loop when configured; otherwise
// untried catalog models are tried in catalog order.
func (e *Engine) runAutoBuild(ctx context.Context, projectID string, ds *models.Dataset, userPrompt string) error {
	wf := &workflowLog{engine: e, projectID: projectID}
	wf.add("initialization", "completed", fmt.Sprintf("dataset %s", ds.Filename), "")

	// Analysis.
	wf.add("analysis", "started", "", "")
	table, err := e.loadTable(ds)
	if err != nil {
		wf.add("analysis", "failed", "", err.Error())
		return err
	}
	report := e.profiler.Analyze(table, userPrompt)

	taskType, target, reasoning := e.resolveAnalysis(ctx, table, report, userPrompt)
	if target == "" {
		err := apperr.Precondition("no target column could be determined from the dataset")
		wf.add("analysis", "failed", "", err.Error())
		return err
	}
	if err := e.setStatus(projectID, models.StatusAnalyzed, map[string]interface{}{
		"task_type":        taskType,
		"target_column":    target,
		"analysis_results": models.MustJSON(report),
	}); err != nil {
		return err
	}
	wf.add("analysis", "completed", fmt.Sprintf("task %s, target %s. %s", taskType, target, reasoning), "")

	// Preprocessing.
	if err := e.setStatus(projectID, models.StatusPreprocessing, nil); err != nil {
		return err
	}
	wf.add("preprocessing", "started", "", "")
	plan := preprocess.AutoPlan(report, target)
	plan.Split.TestSize = e.cfg.Pipeline.DefaultTestSize
	plan.Split.ValidationSize = e.cfg.Pipeline.DefaultValidationSize
	plan.Split.RandomState = e.cfg.Pipeline.RandomState

	result, err := e.executor.Execute(table, plan, taskType)
	if err != nil {
		wf.add("preprocessing", "failed", "", err.Error())
		return err
	}
	processedID := uuid.New().String()
	if err := preprocess.SaveArtifact(e.processed, processedID, result.Artifact); err != nil {
		wf.add("preprocessing", "failed", "", err.Error())
		return err
	}
	prepDoc := PreprocessingDoc{
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
		"preprocessing_results": models.MustJSON(prepDoc),
	}); err != nil {
		return err
	}
	wf.add("preprocessing", "completed",
		fmt.Sprintf("%d features, %d train / %d test samples",
			result.Stats.TotalFeatures, result.Stats.TrainSamples, result.Stats.TestSamples), "")

	// Model selection and initial training round.
	if err := e.setStatus(projectID, models.StatusModelGeneration, nil); err != nil {
		return err
	}
	wf.add("model_generation", "started", "", "")

	dataSize := result.Stats.TrainSamples + result.Stats.TestSamples
	selections, err := catalog.Select(taskType, dataSize, result.Stats.TotalFeatures, report.DataQualityScore)
	if err != nil {
		wf.add("model_generation", "failed", "", err.Error())
		return err
	}
	selDoc := &SelectionDoc{
		ProjectID:          projectID,
		TaskType:           taskType,
		RecommendedModels:  selections,
		SelectionReasoning: catalog.Reasoning(taskType, dataSize, result.Stats.TotalFeatures, report.DataQualityScore),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := e.repos.Project.UpdateFields(projectID, map[string]interface{}{
		"model_selection": models.MustJSON(selDoc),
		"updated_at":      time.Now().UTC(),
	}); err != nil {
		return err
	}

	var candidates []catalog.Selection
	for _, s := range selections {
		if s.Selected {
			candidates = append(candidates, s)
		}
	}
	results := make([]ModelResult, 0, len(candidates))
	for i, sel := range candidates {
		e.updateProgress(projectID, Progress{
			TotalModels:     len(candidates),
			CompletedModels: i,
			CurrentModel:    sel.ModelID,
			Status:          "training",
		})
		results = append(results, e.trainCandidate(projectID, result.Artifact, taskType, sel, 0))
	}
	best := bestResult(results, taskType)
	if best == nil {
		wf.add("model_generation", "failed", "no candidate trained successfully", "")
	} else {
		wf.add("model_generation", "completed",
			fmt.Sprintf("%d candidates trained, best %s (%.4f)",
				len(results), best.ModelID, PrimaryMetric(best.Metrics, taskType)), "")
	}

	// Improvement loop.
	rounds := e.cfg.Pipeline.IterationRounds
	iterations := 0
	if rounds > 0 && best != nil {
		if err := e.setStatus(projectID, models.StatusIterating, nil); err != nil {
			return err
		}
		for round := 1; round <= rounds; round++ {
			sel, detail := e.nextCandidate(ctx, taskType, results, best)
			if sel == nil {
				wf.add("iteration", "completed", detail, "")
				break
			}
			iterations = round
			wf.add("iteration", "started", fmt.Sprintf("round %d: trying %s. %s", round, sel.ModelID, detail), "")

			r := e.trainCandidate(projectID, result.Artifact, taskType, *sel, round)
			results = append(results, r)

			switch {
			case r.Status != "completed":
				wf.add("iteration", "failed", fmt.Sprintf("round %d: %s did not train", round, sel.ModelID), r.Error)
			case PrimaryMetric(r.Metrics, taskType) > PrimaryMetric(best.Metrics, taskType):
				best = &results[len(results)-1]
				wf.add("iteration", "completed",
					fmt.Sprintf("round %d: %s improved to %.4f", round, r.ModelID, PrimaryMetric(r.Metrics, taskType)), "")
			default:
				wf.add("iteration", "completed",
					fmt.Sprintf("round %d: %s scored %.4f, keeping %s",
						round, r.ModelID, PrimaryMetric(r.Metrics, taskType), best.ModelID), "")
			}
		}
	}

	doc := e.finishTraining(projectID, taskType, results, iterations)
	if doc.BestModel == nil {
		wf.add("finalization", "failed", "no model trained successfully", "")
		e.publish(projectID, "auto_build", "failed", "no model trained successfully")
		return nil
	}
	wf.add("finalization", "completed",
		fmt.Sprintf("best model %s (%.4f) after %d iterations",
			doc.BestModel.ModelID, PrimaryMetric(doc.BestModel.Metrics, taskType), iterations), "")
	e.publish(projectID, "auto_build", "completed", doc.BestModel.ModelID)
	return nil
}

// resolveAnalysis decides task type and target column. The advisor is asked
// first when configured; failures and unusable answers fall back to the
// profiler's top candidate.
func (e *Engine) resolveAnalysis(ctx context.Context, table *tabular.Table, report *profile.Report, userPrompt string) (taskType, target, reasoning string) {
	taskType = report.TaskType
	if len(report.TargetCandidates) > 0 {
		target = report.TargetCandidates[0].Column
		if report.TargetCandidates[0].SuggestedTask != "" {
			taskType = report.TargetCandidates[0].SuggestedTask
		}
	}
	reasoning = "selected by dataset heuristics"

	if !e.advisor.Enabled() {
		return taskType, target, reasoning
	}

	summary := oracle.DataSummary{
		Rows:          table.NumRows(),
		Columns:       table.Columns,
		DTypes:        make(map[string]string, len(report.ColumnAnalysis)),
		MissingCounts: make(map[string]int, len(report.ColumnAnalysis)),
	}
	for _, c := range report.ColumnAnalysis {
		summary.DTypes[c.Name] = c.DType
		summary.MissingCounts[c.Name] = c.MissingCount
	}

	advice, err := e.advisor.AdviseAnalysis(ctx, summary, userPrompt)
	if err != nil {
		e.log.Warn("analysis advice unavailable, using heuristics", zap.Error(err))
		return taskType, target, reasoning
	}
	if _, ok := table.Column(advice.TargetColumn); !ok {
		e.log.Warn("advised target column not in dataset, using heuristics",
			zap.String("column", advice.TargetColumn))
		return taskType, target, reasoning
	}
	return advice.TaskType, advice.TargetColumn, advice.Reasoning
}

// nextCandidate picks the model to try in an improvement round. With an
// advisor the full catalog is offered so it may also re-tune a tried model;
// without one the first untried catalog model is taken. A nil selection
// means the loop should stop, with detail saying why.
func (e *Engine) nextCandidate(ctx context.Context, taskType string, results []ModelResult, best *ModelResult) (*catalog.Selection, string) {
	entries, err := catalog.Models(taskType)
	if err != nil {
		return nil, err.Error()
	}
	tried := map[string]bool{}
	for _, r := range results {
		tried[r.ModelID] = true
	}

	if e.advisor.Enabled() {
		ids := make([]string, 0, len(entries))
		for _, m := range entries {
			ids = append(ids, m.ID)
		}
		proposal, err := e.advisor.ProposeModel(ctx, taskType, ids, best.ModelID,
			PrimaryMetric(best.Metrics, taskType), best.Metrics)
		if err == nil {
			return &catalog.Selection{
				ModelID: proposal.ModelID,
				Params:  proposal.Params,
			}, proposal.Reason
		}
		e.log.Warn("model proposal unavailable, using catalog fallback", zap.Error(err))
	}

	for _, m := range entries {
		if !tried[m.ID] {
			return &catalog.Selection{ModelID: m.ID}, "next untried catalog model"
		}
	}
	return nil, "all catalog models tried"
}

func bestResult(results []ModelResult, taskType string) *ModelResult {
	var best *ModelResult
	for i := range results {
		if results[i].Status != "completed" {
			continue
		}
		if best == nil || PrimaryMetric(results[i].Metrics, taskType) > PrimaryMetric(best.Metrics, taskType) {
			best = &results[i]
		}
	}
	return best
}
