package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/roadrisk/roadrisk/pkg/ensemble"
	"github.com/roadrisk/roadrisk/pkg/highway"
	"github.com/roadrisk/roadrisk/pkg/mid"
	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/notify"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
)

const (
	serviceName = "roadrisk-api"
)

var (
	errInvalidBody = errors.New("invalid request body")

	// classKeys name the severity classes in model metadata responses.
	classKeys = []string{"sem_vitimas", "com_feridos", "com_mortos"}
)

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Error: msg})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var verr *predict.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, errInvalidBody),
		errors.Is(err, model.ErrUnseenCategory),
		errors.Is(err, predict.ErrEmptyBatch),
		errors.Is(err, predict.ErrBatchTooLarge),
		errors.Is(err, risk.ErrEmptyRoute):
		return http.StatusBadRequest
	case errors.Is(err, highway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrModelNotLoaded), errors.Is(err, errNoTable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "id", mid.GetRequestID(r.Context()), "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	slog.Debug("request rejected", "id", mid.GetRequestID(r.Context()), "status", status, "error", err)
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, serverMaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var verr *predict.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Debug("invalid int query param", "key", key, "value", v, "error", err)
		return def
	}
	return i
}

// current returns the loaded artifacts or an empty set before the first load.
func (s *server) current() *state {
	if st := s.state.Load(); st != nil {
		return st
	}
	return &state{
		catalog:  make(highway.Catalog),
		ensemble: ensemble.New(nil, nil),
	}
}

// publishCritical sends an alert for critico predictions. Failures are logged.
func (s *server) publishCritical(ctx context.Context, in *predict.Input, score float64, level predict.Level, source string) {
	if level != predict.LevelCritical || in.BR == nil || in.KM == nil {
		return
	}
	br, km := int(*in.BR), *in.KM
	a := notify.NewAlert(notify.Alert{
		SegmentKey: risk.SegmentKey(in.UF, br, risk.KMSegment(km)),
		UF:         in.UF,
		BR:         br,
		KM:         km,
		RiskScore:  score,
		RiskLevel:  string(level),
		Source:     source,
	})
	if err := s.alerts.Publish(ctx, a); err != nil {
		s.log.Warn("failed to publish alert", "segment", a.SegmentKey, "error", err)
	}
}

type batchRequest struct {
	Predictions []predict.Input `json:"predictions"`
}

type healthResponse struct {
	Status      string          `json:"status"`
	Service     string          `json:"service"`
	ModelLoaded bool            `json:"model_loaded"`
	LoadedAt    *time.Time      `json:"loaded_at,omitempty"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Components  map[string]bool `json:"components"`
}

func healthAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := s.current()
		res := &healthResponse{
			Status:      "error",
			Service:     serviceName,
			ModelLoaded: st.modelLoaded(),
			Version:     version,
			Timestamp:   time.Now().UTC(),
			Components: map[string]bool{
				"risk_model":           st.bundle != nil && st.bundle.Risk != nil,
				"classification_model": st.bundle != nil && st.bundle.Classifier != nil,
				"risk_table":           st.table != nil,
				"highway_catalog":      len(st.catalog) > 0,
				"weather":              s.weather.Enabled(),
			},
		}
		if res.ModelLoaded {
			res.Status = "ok"
			res.LoadedAt = &st.bundle.LoadedAt
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type modelDescription struct {
	Kind      model.Kind `json:"kind"`
	ModelType string     `json:"model_type"`
	Classes   []string   `json:"classes"`
	Trees     int        `json:"trees"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	TrainedAt string     `json:"trained_at,omitempty"`
	Path      string     `json:"path"`
}

func describeModel(m *model.Ensemble, path string) *modelDescription {
	if m == nil {
		return nil
	}
	return &modelDescription{
		Kind:      m.Kind,
		ModelType: m.ModelType,
		Classes:   m.Classes,
		Trees:     len(m.Trees),
		Accuracy:  m.Accuracy,
		TrainedAt: m.TrainedAt,
		Path:      path,
	}
}

type modelInfoResponse struct {
	RiskModel      *modelDescription `json:"risk_model,omitempty"`
	Classifier     *modelDescription `json:"classification_model,omitempty"`
	Features       []string          `json:"features"`
	Encoders       []string          `json:"encoders"`
	Classes        []string          `json:"classes"`
	SeverityLabels []string          `json:"severity_labels"`
	LoadedAt       time.Time         `json:"loaded_at"`
}

func modelInfoAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.current()
		if !st.modelLoaded() {
			writeErr(w, r, fmt.Errorf("%w: no model artifacts", model.ErrModelNotLoaded))
			return
		}
		b := st.bundle
		writeJSON(w, http.StatusOK, &modelInfoResponse{
			RiskModel:      describeModel(b.Risk, b.Paths.RiskModel),
			Classifier:     describeModel(b.Classifier, b.Paths.Classifier),
			Features:       model.FeatureNames,
			Encoders:       b.Encoders.Names(),
			Classes:        classKeys,
			SeverityLabels: predict.SeverityLabels,
			LoadedAt:       b.LoadedAt,
		})
	}
}

func predictAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.current()
		if _, err := st.bundle.RiskModel(); err != nil {
			writeErr(w, r, err)
			return
		}

		var in predict.Input
		if err := decodeJSON(w, r, &in); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := st.predictor.Predict(r.Context(), &in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		s.publishCritical(r.Context(), &in, res.RiskScore, res.RiskLevel, riskSourceModel)
		writeData(w, res)
	}
}

func predictBatchAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.current().requirePredictor()
		if err != nil {
			writeErr(w, r, err)
			return
		}

		var req batchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := p.PredictBatch(r.Context(), req.Predictions)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeData(w, res)
	}
}

func classifyAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.current()
		if _, err := st.bundle.ClassifierModel(); err != nil {
			writeErr(w, r, err)
			return
		}

		var in predict.Input
		if err := decodeJSON(w, r, &in); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := st.predictor.Classify(r.Context(), &in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func classifyBatchAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.current().requirePredictor()
		if err != nil {
			writeErr(w, r, err)
			return
		}

		var req batchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := p.ClassifyBatch(r.Context(), req.Predictions)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
