package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roadrisk/roadrisk/pkg/config"
	"github.com/roadrisk/roadrisk/pkg/ensemble"
	"github.com/roadrisk/roadrisk/pkg/highway"
	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
)

// state is the read-only set of artifacts a server or query works against.
// Any part may be missing; a present but unreadable file is an error.
type state struct {
	bundle    *model.Bundle
	predictor *predict.Predictor
	table     *risk.Table
	catalog   highway.Catalog
	ensemble  *ensemble.Ensemble
	loadedAt  time.Time
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func loadState(a config.Artifacts, opts predict.Options) (*state, error) {
	s := &state{
		catalog:  make(highway.Catalog),
		loadedAt: time.Now().UTC(),
	}

	paths := model.Paths{Encoders: a.Path(a.Encoders)}
	if p := a.Path(a.RiskModel); exists(p) {
		paths.RiskModel = p
	}
	if p := a.Path(a.Classifier); exists(p) {
		paths.Classifier = p
	}

	switch {
	case paths.RiskModel == "" && paths.Classifier == "":
		slog.Warn("no model artifacts found", "dir", a.Dir)
	case !exists(paths.Encoders):
		slog.Warn("encoders not found, models not loaded", "path", paths.Encoders)
	default:
		b, err := model.LoadBundle(paths)
		if err != nil {
			return nil, fmt.Errorf("loading models: %w", err)
		}
		s.bundle = b
		s.predictor = predict.NewPredictor(b, opts)
	}

	if p := a.Path(a.RiskTable); exists(p) {
		t, err := risk.Load(p)
		if err != nil {
			return nil, err
		}
		s.table = t
	} else {
		slog.Warn("risk table not found, lookups use fallback scores", "path", p)
	}

	if p := a.Path(a.Highways); exists(p) {
		c, err := highway.Load(p)
		if err != nil {
			return nil, err
		}
		s.catalog = c
	}

	s.ensemble = ensemble.New(s.predictor, s.table)

	slog.Debug("artifacts loaded",
		"risk_model", s.bundle != nil && s.bundle.Risk != nil,
		"classifier", s.bundle != nil && s.bundle.Classifier != nil,
		"risk_table", s.table != nil,
		"highways", len(s.catalog))
	return s, nil
}

func (s *state) modelLoaded() bool {
	return s != nil && s.bundle != nil
}

// requirePredictor returns the predictor or model.ErrModelNotLoaded.
func (s *state) requirePredictor() (*predict.Predictor, error) {
	if s == nil || s.predictor == nil {
		return nil, fmt.Errorf("%w: no model artifacts", model.ErrModelNotLoaded)
	}
	return s.predictor, nil
}

var errNoTable = errors.New("risk table not loaded")
