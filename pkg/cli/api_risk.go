package cli

import (
	"net/http"

	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
)

const (
	riskSourceLookup   = "lookup"
	riskSourceModel    = "ml"
	riskSourceFallback = "fallback"

	highRiskLimitDefault = 50
)

type riskRequest struct {
	predict.Input
	UseRealTimeML bool `json:"useRealTimeML"`
}

type riskResponse struct {
	*risk.Prediction
	Source             string                      `json:"source"`
	ClassProbabilities *predict.ClassProbabilities `json:"class_probabilities,omitempty"`
}

func riskPredictAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req riskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		in := &req.Input
		if err := in.Validate(); err != nil {
			writeErr(w, r, err)
			return
		}

		var weatherSource string
		if in.WeatherCondition == "" && s.weather.Enabled() {
			wr := s.weather.ByLocation(r.Context(), in.UF, int(*in.BR), *in.KM)
			in.WeatherCondition = wr.Condition
			weatherSource = wr.Source
		}

		st := s.current()
		p, err := st.table.Predict(in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if weatherSource != "" {
			p.WeatherSource = weatherSource
			p.WeatherUsed = in.WeatherCondition
		}

		res := &riskResponse{Prediction: p, Source: riskSourceLookup}
		if p.ContextUsed == risk.ContextFallback {
			res.Source = riskSourceFallback
		}

		if req.UseRealTimeML && st.predictor != nil {
			ml, err := st.predictor.Predict(r.Context(), in)
			if err != nil {
				s.log.Warn("real time model failed, using lookup score", "error", err)
			} else {
				p.RiskScore = ml.RiskScore
				p.RiskLevel = ml.RiskLevel
				p.Recommendations = ml.Recommendations
				res.Source = riskSourceModel
				res.ClassProbabilities = &ml.ClassProbabilities
			}
		}

		s.publishCritical(r.Context(), in, p.RiskScore, p.RiskLevel, res.Source)
		writeData(w, res)
	}
}

type routeRequest struct {
	Segments []predict.Input `json:"segments"`
}

func riskRouteAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := s.current().table.PredictRoute(req.Segments)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeData(w, res)
	}
}

type segmentsResponse struct {
	Segments []risk.SegmentSummary `json:"segments"`
	Total    int                   `json:"total"`
}

func highRiskSegmentsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := s.current().table.HighRiskSegments(queryParamInt(r, "limit", highRiskLimitDefault))
		writeData(w, &segmentsResponse{Segments: list, Total: len(list)})
	}
}

func riskStatisticsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, s.current().table.Statistics())
	}
}

type riskStatus struct {
	LookupLoaded   bool   `json:"lookup_loaded"`
	TotalSegments  int    `json:"total_segments"`
	GeneratedAt    string `json:"generated_at,omitempty"`
	ModelType      string `json:"model_type,omitempty"`
	ModelLoaded    bool   `json:"model_loaded"`
	WeatherEnabled bool   `json:"weather_enabled"`
	WeatherCached  int    `json:"weather_cached"`
}

func riskStatusAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := s.current()
		res := &riskStatus{
			ModelLoaded:    st.modelLoaded(),
			WeatherEnabled: s.weather.Enabled(),
		}
		if s.weather != nil {
			res.WeatherCached = s.weather.CacheStats().Size
		}
		if st.table != nil {
			res.LookupLoaded = true
			res.TotalSegments = len(st.table.Scores)
			res.GeneratedAt = st.table.Metadata.GeneratedAt
			res.ModelType = st.table.Metadata.ModelType
		}
		writeData(w, res)
	}
}
