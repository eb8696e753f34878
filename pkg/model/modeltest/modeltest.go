// Package modeltest provides small hand-built model artifacts for tests.
package modeltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/stretchr/testify/require"
)

var (
	UFs       = []string{"MG", "PR", "RJ", "SC", "SP"}
	Weathers  = []string{"chuvoso", "claro", "neblina", "nublado", "vento"}
	DayPhases = []string{"amanhecer", "anoitecer", "dia", "noite"}
	RoadTypes = []string{"dupla", "multipla", "simples"}
)

// Encoders returns encoders fitted on the test vocabulary.
func Encoders(t testing.TB) model.Encoders {
	t.Helper()
	out := model.Encoders{}
	for name, classes := range map[string][]string{
		model.EncoderUF:       UFs,
		model.EncoderWeather:  Weathers,
		model.EncoderDayPhase: DayPhases,
		model.EncoderRoadType: RoadTypes,
	} {
		e, err := model.NewEncoder(name, classes)
		require.NoError(t, err)
		out[name] = e
	}
	return out
}

// Forest returns a two tree forest. The first tree splits on hour at 17.5, the
// second on the weather code at 0.5 (chuvoso on the left).
//
//	hour 12, claro   -> [0.45 0.30 0.25]
//	hour 22, claro   -> [0.15 0.45 0.40]
//	hour 12, chuvoso -> [0.70 0.25 0.05]
func Forest() *model.Ensemble {
	return &model.Ensemble{
		Kind:      model.KindForest,
		ModelType: "RandomForestClassifier",
		Classes:   []string{"0", "1", "2"},
		Features:  model.FeatureNames,
		Accuracy:  0.71,
		TrainedAt: "2024-01-01T00:00:00Z",
		Trees: []model.Tree{
			{Nodes: []model.Node{
				{Feature: 3, Threshold: 17.5, Left: 1, Right: 2},
				{Value: []float64{8, 2, 0}},
				{Value: []float64{2, 5, 3}},
			}},
			{Nodes: []model.Node{
				{Feature: 6, Threshold: 0.5, Left: 1, Right: 2},
				{Value: []float64{6, 3, 1}},
				{Value: []float64{1, 4, 5}},
			}},
		},
	}
}

// Boosting returns a one round softmax booster that favours the fatal class at night.
func Boosting() *model.Ensemble {
	return &model.Ensemble{
		Kind:      model.KindBoosting,
		ModelType: "LGBMClassifier",
		Classes:   []string{"0", "1", "2"},
		Features:  model.FeatureNames,
		BaseScore: []float64{0, 0, 0},
		Trees: []model.Tree{
			{Class: 0, Nodes: []model.Node{
				{Feature: 3, Threshold: 17.5, Left: 1, Right: 2},
				{Value: []float64{2}},
				{Value: []float64{0}},
			}},
			{Class: 2, Nodes: []model.Node{
				{Feature: 3, Threshold: 17.5, Left: 1, Right: 2},
				{Value: []float64{0}},
				{Value: []float64{2}},
			}},
		},
	}
}

// WriteArtifacts writes encoders, the forest as classifier and the booster as
// risk model into dir and returns their paths.
func WriteArtifacts(t testing.TB, dir string) model.Paths {
	t.Helper()
	p := model.Paths{
		RiskModel:  filepath.Join(dir, "risk_model.json"),
		Classifier: filepath.Join(dir, "classifier.json"),
		Encoders:   filepath.Join(dir, "encoders.json"),
	}
	writeJSON(t, p.Encoders, Encoders(t))
	writeJSON(t, p.RiskModel, Boosting())
	writeJSON(t, p.Classifier, Forest())
	return p
}

// Bundle returns an in-memory bundle with both models.
func Bundle(t testing.TB) *model.Bundle {
	t.Helper()
	return &model.Bundle{
		Risk:       Forest(),
		Classifier: Forest(),
		Encoders:   Encoders(t),
	}
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0600))
}
