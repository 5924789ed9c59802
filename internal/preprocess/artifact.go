package preprocess

import (
	"fmt"

	"github.com/tabml/automl-backend/internal/storage"
)

// Artifact is the persisted outcome of a preprocessing run: the numeric
// splits, the feature schema and every fitted transformer. It replaces the
// raw dataset as the input to training and lets prediction replay the exact
// transformations on incoming rows.
type Artifact struct {
	TaskType     string        `json:"task_type"`
	FeatureNames []string      `json:"feature_names"`
	XTrain       [][]float64   `json:"x_train"`
	XTest        [][]float64   `json:"x_test,omitempty"`
	XVal         [][]float64   `json:"x_val,omitempty"`
	YTrain       []float64     `json:"y_train,omitempty"`
	YTest        []float64     `json:"y_test,omitempty"`
	YVal         []float64     `json:"y_val,omitempty"`
	Transformers *Transformers `json:"transformers"`
}

// TargetClasses returns the class labels of an encoded classification
// target, or nil for regression.
func (a *Artifact) TargetClasses() []string {
	if a.Transformers == nil || a.Transformers.Target == nil {
		return nil
	}
	return a.Transformers.Target.Classes
}

func artifactName(id string) string { return id + ".json" }

// SaveArtifact writes an artifact to the processed-data store under its id.
func SaveArtifact(store *storage.Store, id string, a *Artifact) error {
	if err := store.WriteJSON(artifactName(id), a); err != nil {
		return fmt.Errorf("save preprocessing artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact from the processed-data store.
func LoadArtifact(store *storage.Store, id string) (*Artifact, error) {
	a := &Artifact{}
	if err := store.ReadJSON(artifactName(id), a); err != nil {
		return nil, fmt.Errorf("load preprocessing artifact: %w", err)
	}
	return a, nil
}
