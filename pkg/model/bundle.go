package model

import (
	"errors"
	"fmt"
	"time"
)

// SeverityClasses is the number of accident severity classes every model predicts.
const SeverityClasses = 3

// FeatureNames is the fixed order of the feature vector both models were trained on.
var FeatureNames = []string{
	"uf_encoded",
	"br",
	"km",
	"hora",
	"dia_semana",
	"mes",
	"clima_categoria_encoded",
	"fase_dia_categoria_encoded",
	"tipo_pista_categoria_encoded",
}

// Paths locates the model artifacts on disk. An empty model path means that model is not used.
type Paths struct {
	RiskModel  string `json:"risk_model" yaml:"risk_model"`
	Classifier string `json:"classifier" yaml:"classifier"`
	Encoders   string `json:"encoders" yaml:"encoders"`
}

// Bundle is the read-only set of loaded artifacts.
type Bundle struct {
	Risk       *Ensemble
	Classifier *Ensemble
	Encoders   Encoders
	Paths      Paths
	LoadedAt   time.Time
}

// LoadBundle loads the encoders and every configured model.
func LoadBundle(p Paths) (*Bundle, error) {
	if p.Encoders == "" {
		return nil, errors.New("encoders path required")
	}
	if p.RiskModel == "" && p.Classifier == "" {
		return nil, errors.New("at least one model path required")
	}

	enc, err := LoadEncoders(p.Encoders)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Encoders: enc,
		Paths:    p,
		LoadedAt: time.Now().UTC(),
	}

	if p.RiskModel != "" {
		if b.Risk, err = loadSeverityModel(p.RiskModel); err != nil {
			return nil, err
		}
	}
	if p.Classifier != "" {
		if b.Classifier, err = loadSeverityModel(p.Classifier); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func loadSeverityModel(path string) (*Ensemble, error) {
	m, err := LoadEnsemble(path)
	if err != nil {
		return nil, err
	}
	if err := CheckSeverityModel(m); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// CheckSeverityModel verifies the model matches the feature layout and class count used here.
func CheckSeverityModel(m *Ensemble) error {
	if len(m.Classes) != SeverityClasses {
		return fmt.Errorf("%w: expected %d classes, got %d", ErrInvalidModel, SeverityClasses, len(m.Classes))
	}
	if len(m.Features) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidModel, len(FeatureNames), len(m.Features))
	}
	return nil
}

// RiskModel returns the risk model or ErrModelNotLoaded.
func (b *Bundle) RiskModel() (*Ensemble, error) {
	if b == nil || b.Risk == nil {
		return nil, fmt.Errorf("%w: risk model", ErrModelNotLoaded)
	}
	return b.Risk, nil
}

// ClassifierModel returns the classification model or ErrModelNotLoaded.
func (b *Bundle) ClassifierModel() (*Ensemble, error) {
	if b == nil || b.Classifier == nil {
		return nil, fmt.Errorf("%w: classification model", ErrModelNotLoaded)
	}
	return b.Classifier, nil
}
