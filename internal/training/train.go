package training

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/estimator"
	"github.com/tabml/automl-backend/internal/models"
	"github.com/tabml/automl-backend/internal/preprocess"
)

// runTraining trains every candidate against the processed artifact,
// evaluates on the held-out test split and stores the ranked results. A
// failing candidate is recorded and skipped, never fatal.
func (e *Engine) runTraining(ctx context.Context, projectID, processedID, taskType string, candidates []catalog.Selection) error {
	artifact, err := preprocess.LoadArtifact(e.processed, processedID)
	if err != nil {
		return err
	}

	results := make([]ModelResult, 0, len(candidates))
	for i, sel := range candidates {
		e.updateProgress(projectID, Progress{
			TotalModels:     len(candidates),
			CompletedModels: i,
			CurrentModel:    sel.ModelID,
			Status:          "training",
		})
		results = append(results, e.trainCandidate(projectID, artifact, taskType, sel, 0))
	}

	doc := e.finishTraining(projectID, taskType, results, 0)
	e.publish(projectID, "training", "completed", bestModelID(doc))
	return nil
}

// trainCandidate fits one catalog model and evaluates it. Failures come
// back as a failed ModelResult with the error message.
func (e *Engine) trainCandidate(projectID string, artifact *preprocess.Artifact, taskType string, sel catalog.Selection, iteration int) ModelResult {
	result := ModelResult{
		ModelID:   sel.ModelID,
		Iteration: iteration,
		TrainedAt: time.Now().UTC(),
	}

	info, err := catalog.Lookup(taskType, sel.ModelID)
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		e.metrics.ObserveModel(sel.ModelID, false)
		return result
	}
	result.ModelName = info.Name
	params := info.MergeParams(sel.Params)
	result.ParamsUsed = params

	est, err := estimator.New(taskType, sel.ModelID, estimator.Params(params))
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		e.metrics.ObserveModel(sel.ModelID, false)
		return result
	}

	start := time.Now()
	if err := est.Fit(artifact.XTrain, artifact.YTrain); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		e.metrics.ObserveModel(sel.ModelID, false)
		return result
	}

	metrics, err := e.evaluate(est, artifact, taskType)
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		e.metrics.ObserveModel(sel.ModelID, false)
		return result
	}
	metrics["training_time_seconds"] = round4(time.Since(start).Seconds())

	classify := taskType == "classification"
	folds := e.cfg.Pipeline.CrossValidationFolds
	if folds > 1 && len(artifact.XTrain) >= 2 {
		build := func() (estimator.Estimator, error) {
			return estimator.New(taskType, sel.ModelID, estimator.Params(params))
		}
		cvMean, cvStd, cvErr := CrossValidate(build, artifact.XTrain, artifact.YTrain, folds, classify)
		if cvErr != nil {
			e.log.Warn("cross validation failed",
				zap.String("project_id", projectID),
				zap.String("model_id", sel.ModelID),
				zap.Error(cvErr))
		} else {
			metrics["cv_mean"] = round4(cvMean)
			metrics["cv_std"] = round4(cvStd)
		}
	}
	result.Metrics = metrics

	name := fmt.Sprintf("%s_%s.json", projectID, sel.ModelID)
	if err := estimator.Save(e.modelDir, name, taskType, sel.ModelID, estimator.Params(params), est); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		e.metrics.ObserveModel(sel.ModelID, false)
		return result
	}
	result.ModelPath = e.modelDir.Path(name)

	result.Status = "completed"
	e.metrics.ObserveModel(sel.ModelID, true)
	e.log.Info("model trained",
		zap.String("project_id", projectID),
		zap.String("model_id", sel.ModelID),
		zap.Float64("score", PrimaryMetric(metrics, taskType)))
	return result
}

// evaluate scores a fitted estimator on the test split.
func (e *Engine) evaluate(est estimator.Estimator, artifact *preprocess.Artifact, taskType string) (map[string]float64, error) {
	pred, err := est.Predict(artifact.XTest)
	if err != nil {
		return nil, err
	}

	metrics := map[string]float64{}
	if taskType == "classification" {
		precision, recall, f1 := WeightedPRF(artifact.YTest, pred)
		metrics["accuracy"] = round4(Accuracy(artifact.YTest, pred))
		metrics["precision"] = round4(precision)
		metrics["recall"] = round4(recall)
		metrics["f1_score"] = round4(f1)

		if classes := artifact.TargetClasses(); len(classes) == 2 {
			if pe, ok := est.(estimator.ProbaEstimator); ok {
				proba, err := pe.PredictProba(artifact.XTest)
				if err == nil && len(proba) == len(artifact.YTest) {
					scores := make([]float64, len(proba))
					for i := range proba {
						scores[i] = proba[i][1]
					}
					if auc, ok := AUCROC(artifact.YTest, scores); ok {
						metrics["auc_roc"] = round4(auc)
					}
				}
			}
		}
		return metrics, nil
	}

	mse := MSE(artifact.YTest, pred)
	metrics["mse"] = round4(mse)
	metrics["rmse"] = round4(math.Sqrt(mse))
	metrics["mae"] = round4(MAE(artifact.YTest, pred))
	metrics["r2_score"] = round4(R2(artifact.YTest, pred))
	return metrics, nil
}

// buildTrainingDoc ranks results by primary metric and picks the best
// completed candidate. Failed candidates rank last and are never best.
func buildTrainingDoc(taskType string, results []ModelResult, iterations int) *TrainingDoc {
	sort.SliceStable(results, func(a, b int) bool {
		return PrimaryMetric(results[a].Metrics, taskType) > PrimaryMetric(results[b].Metrics, taskType)
	})

	doc := &TrainingDoc{
		CompletedAt:   time.Now().UTC(),
		ModelsTrained: len(results),
		Iterations:    iterations,
		AllResults:    results,
	}
	for i := range results {
		if results[i].Status == "completed" {
			doc.ModelsSuccessful++
			if doc.BestModel == nil {
				doc.BestModel = &results[i]
			}
		}
	}
	return doc
}

// finishTraining ranks results, stores the training document and marks the
// project trained (or failed when nothing completed).
func (e *Engine) finishTraining(projectID, taskType string, results []ModelResult, iterations int) *TrainingDoc {
	doc := buildTrainingDoc(taskType, results, iterations)

	status := models.StatusTrained
	progressStatus := "completed"
	if doc.ModelsSuccessful == 0 {
		status = models.StatusTrainingFailed
		progressStatus = "failed"
	}

	if err := e.setStatus(projectID, status, map[string]interface{}{
		"training_results": models.MustJSON(doc),
		"training_progress": models.MustJSON(Progress{
			TotalModels:     len(results),
			CompletedModels: len(results),
			Status:          progressStatus,
		}),
	}); err != nil {
		e.log.Error("store training results", zap.String("project_id", projectID), zap.Error(err))
	}
	return doc
}

func (e *Engine) updateProgress(projectID string, p Progress) {
	err := e.repos.Project.UpdateFields(projectID, map[string]interface{}{
		"training_progress": models.MustJSON(p),
		"updated_at":        time.Now().UTC(),
	})
	if err != nil {
		e.log.Warn("update training progress", zap.String("project_id", projectID), zap.Error(err))
	}
	e.status.Invalidate(context.Background(), projectID)
}

func bestModelID(doc *TrainingDoc) string {
	if doc == nil || doc.BestModel == nil {
		return ""
	}
	return doc.BestModel.ModelID
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}
