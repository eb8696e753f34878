package ensemble

import (
	"context"
	"testing"

	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/model/modeltest"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(hour int, weather string) *predict.Input {
	br := predict.Highway(116)
	km := 525.0
	return &predict.Input{UF: "SP", BR: &br, KM: &km, Hour: &hour, WeatherCondition: weather}
}

func lookupTable() *risk.Table {
	return &risk.Table{Scores: map[string]risk.Scores{
		"SP_116_520": {"dia_claro": 85},
	}}
}

func TestPredict_BothModels(t *testing.T) {
	e := New(predict.NewPredictor(modeltest.Bundle(t), predict.Options{}), lookupTable())

	r, err := e.Predict(context.Background(), input(12, "claro"))
	require.NoError(t, err)

	require.NotNil(t, r.Models.RiskModel)
	require.NotNil(t, r.Models.Classifier)
	assert.Equal(t, SourceModel, r.Models.RiskModel.Source)
	assert.Equal(t, 40.0, r.Models.RiskModel.Score)
	assert.Equal(t, 0, r.Models.RiskModel.PredictedClass)
	assert.Equal(t, "Sem Vítimas", r.AccidentClassification)
	assert.Equal(t, 0.45, r.ClassificationConfidence)

	assert.True(t, r.Ensemble.ModelsAgree)
	assert.Equal(t, 100.0, r.Ensemble.AgreementScore)
	assert.Equal(t, 42.5, r.RiskScore)
	assert.Equal(t, predict.LevelModerate, r.RiskLevel)
	assert.Equal(t, ConfidenceHigh, r.Ensemble.ConfidenceLevel)
	assert.Empty(t, r.Ensemble.Inconsistencies)
	assert.Equal(t, []string{"risk_model (model)", "classification_model"}, r.Metadata.ModelsUsed)
	assert.False(t, r.Metadata.FallbackUsed)
	assert.Equal(t, "SP-BR116 KM 525", r.Metadata.Location)
	assert.Contains(t, r.Recommendations, "Ambos os modelos concordam - alta confiabilidade")
}

func TestPredict_Night(t *testing.T) {
	e := New(predict.NewPredictor(modeltest.Bundle(t), predict.Options{}), nil)

	r, err := e.Predict(context.Background(), input(22, "claro"))
	require.NoError(t, err)
	assert.Equal(t, 62.5, r.Models.RiskModel.Score)
	assert.Equal(t, "Com Vítimas Feridas", r.AccidentClassification)
	assert.Equal(t, 53.75, r.RiskScore)
	assert.Contains(t, r.Recommendations, "Período noturno: use farol alto quando apropriado")
	assert.Contains(t, r.Recommendations, "Risco de ferimentos graves")
}

func TestPredict_LookupOnly(t *testing.T) {
	e := New(nil, lookupTable())

	r, err := e.Predict(context.Background(), input(14, ""))
	require.NoError(t, err)
	require.NotNil(t, r.Models.RiskModel)
	assert.Nil(t, r.Models.Classifier)
	assert.Equal(t, SourceLookup, r.Models.RiskModel.Source)
	assert.Equal(t, 2, r.Models.RiskModel.PredictedClass)
	assert.Equal(t, 50.0, r.Models.RiskModel.Probabilities.Fatal)

	assert.Equal(t, 50.0, r.Ensemble.AgreementScore)
	assert.Equal(t, 51.0, r.RiskScore)
	assert.Equal(t, ConfidenceLow, r.Ensemble.ConfidenceLevel)
	assert.Equal(t, unknownClassification, r.AccidentClassification)
	assert.True(t, r.Metadata.FallbackUsed)
	assert.False(t, r.Ensemble.ModelsAgree)
}

func TestPredict_ClassifierOnlyBundle(t *testing.T) {
	b := &model.Bundle{Classifier: modeltest.Forest(), Encoders: modeltest.Encoders(t)}
	e := New(predict.NewPredictor(b, predict.Options{}), nil)

	r, err := e.Predict(context.Background(), input(12, "claro"))
	require.NoError(t, err)
	require.NotNil(t, r.Models.RiskModel)
	assert.Equal(t, SourceLookup, r.Models.RiskModel.Source)
	assert.Equal(t, risk.FallbackScore, r.Models.RiskModel.Score)
	require.NotNil(t, r.Models.Classifier)
	assert.Equal(t, []string{"risk_model (lookup)", "classification_model"}, r.Metadata.ModelsUsed)
}

func TestPredict_NoModels(t *testing.T) {
	r, err := New(nil, nil).Predict(context.Background(), input(12, ""))
	require.NoError(t, err)

	require.NotNil(t, r.Models.RiskModel)
	assert.Nil(t, r.Models.Classifier)
	assert.Equal(t, SourceLookup, r.Models.RiskModel.Source)
	assert.Equal(t, 0, r.Models.RiskModel.PredictedClass)
	assert.Equal(t, 50.0, r.Ensemble.AgreementScore)
	assert.InDelta(t, risk.FallbackScore*0.6, r.RiskScore, 1e-9)
	assert.Equal(t, predict.LevelLow, r.RiskLevel)
	assert.True(t, r.Metadata.FallbackUsed)
	assert.Equal(t, []string{"risk_model (lookup)"}, r.Metadata.ModelsUsed)
	assert.Empty(t, r.Ensemble.Inconsistencies)
}

func TestPredict_InvalidInput(t *testing.T) {
	_, err := New(nil, nil).Predict(context.Background(), &predict.Input{UF: "SP"})
	assert.ErrorIs(t, err, predict.ErrMissingField)
}

func TestBatch(t *testing.T) {
	e := New(predict.NewPredictor(modeltest.Bundle(t), predict.Options{Concurrency: 2}), nil)

	s, err := e.Batch(context.Background(), []predict.Input{*input(12, "claro"), {UF: "SP"}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.NotNil(t, s.Results[0].Result)
	assert.NotEmpty(t, s.Results[1].Error)

	_, err = New(nil, nil).Batch(context.Background(), nil)
	assert.ErrorIs(t, err, predict.ErrEmptyBatch)
}

func TestStatus(t *testing.T) {
	s := New(nil, nil).Status()
	assert.False(t, s.Operational)

	s = New(predict.NewPredictor(modeltest.Bundle(t), predict.Options{}), nil).Status()
	assert.True(t, s.RiskModel)
	assert.True(t, s.Classifier)
	assert.False(t, s.LookupTable)
	assert.True(t, s.Operational)
}

func TestScoring(t *testing.T) {
	assert.Equal(t, 0, ScoreToClass(39.9))
	assert.Equal(t, 1, ScoreToClass(40))
	assert.Equal(t, 2, ScoreToClass(70))

	r := &RiskModelResult{Score: 80, PredictedClass: 2}
	c := &ClassifierResult{SeverityIndex: 0, Confidence: 0.9}
	assert.Equal(t, 30.0, AgreementScore(r, c))
	assert.Equal(t, 65.0, AgreementScore(r, &ClassifierResult{SeverityIndex: 1}))
	assert.Equal(t, 50.0, AgreementScore(nil, c))
	assert.Len(t, Inconsistencies(r, c), 2)
	assert.Empty(t, Inconsistencies(nil, c))

	rw, cw := Weights(30)
	assert.Equal(t, 0.75, rw)
	assert.Equal(t, 0.25, cw)
	assert.InDelta(t, 82.5, WeightedScore(80, 0.9, 30), 1e-9)
	assert.Equal(t, 100.0, WeightedScore(150, 1, 100))

	assert.Equal(t, ConfidenceVeryHigh, ConfidenceLevel(100, 0.9))
	assert.Equal(t, ConfidenceMedium, ConfidenceLevel(65, 0.4))
}
