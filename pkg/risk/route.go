package risk

import (
	"errors"
	"fmt"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

var ErrEmptyRoute = errors.New("route has no segments")

type RouteSummary struct {
	TotalSegments    int           `json:"total_segments" yaml:"total_segments"`
	AverageRiskScore float64       `json:"average_risk_score" yaml:"average_risk_score"`
	MaxRiskScore     float64       `json:"max_risk_score" yaml:"max_risk_score"`
	OverallRiskLevel predict.Level `json:"overall_risk_level" yaml:"overall_risk_level"`
	CriticalSegments int           `json:"critical_segments" yaml:"critical_segments"`
	HighRiskSegments int           `json:"high_risk_segments" yaml:"high_risk_segments"`
}

type RouteResult struct {
	Summary         RouteSummary  `json:"route_summary" yaml:"route_summary"`
	Segments        []*Prediction `json:"segments" yaml:"segments"`
	Recommendations []string      `json:"recommendations" yaml:"recommendations"`
}

// PredictRoute looks up every segment of a route and summarizes the overall risk.
// A single critico segment makes the whole route critico.
func (t *Table) PredictRoute(route []predict.Input) (*RouteResult, error) {
	if len(route) == 0 {
		return nil, ErrEmptyRoute
	}

	res := &RouteResult{Segments: make([]*Prediction, 0, len(route))}
	total := 0.0
	for i := range route {
		p, err := t.Predict(&route[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		res.Segments = append(res.Segments, p)

		total += p.RiskScore
		if p.RiskScore > res.Summary.MaxRiskScore {
			res.Summary.MaxRiskScore = p.RiskScore
		}
		switch p.RiskLevel {
		case predict.LevelCritical:
			res.Summary.CriticalSegments++
		case predict.LevelHigh:
			res.Summary.HighRiskSegments++
		}
	}

	avg := total / float64(len(route))
	res.Summary.TotalSegments = len(route)
	res.Summary.AverageRiskScore = predict.Round2(avg)
	res.Summary.MaxRiskScore = predict.Round2(res.Summary.MaxRiskScore)

	switch {
	case res.Summary.CriticalSegments > 0 || avg >= 80:
		res.Summary.OverallRiskLevel = predict.LevelCritical
		res.Recommendations = []string{
			"Rota com risco CRÍTICO detectado",
			"Considere fortemente uma rota alternativa",
			"Se seguir, mantenha atenção máxima",
		}
	case res.Summary.HighRiskSegments > 0 || avg >= 60:
		res.Summary.OverallRiskLevel = predict.LevelHigh
		res.Recommendations = []string{
			"Rota com alto risco",
			"Reforce medidas de segurança",
			"Considere evitar horários de pico",
		}
	case avg >= 40:
		res.Summary.OverallRiskLevel = predict.LevelModerate
		res.Recommendations = []string{"Rota com risco aceitável", "Mantenha direção defensiva"}
	default:
		res.Summary.OverallRiskLevel = predict.LevelLow
		res.Recommendations = []string{"Rota com risco aceitável", "Mantenha direção defensiva"}
	}
	return res, nil
}
