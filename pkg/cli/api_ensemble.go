package cli

import (
	"net/http"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

func ensemblePredictAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in predict.Input
		if err := decodeJSON(w, r, &in); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := s.current().ensemble.Predict(r.Context(), &in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		s.publishCritical(r.Context(), &in, res.RiskScore, res.RiskLevel, "ensemble")
		writeData(w, res)
	}
}

func ensembleBatchAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}

		res, err := s.current().ensemble.Batch(r.Context(), req.Predictions)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeData(w, res)
	}
}

func ensembleStatusAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, s.current().ensemble.Status())
	}
}
