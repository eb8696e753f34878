package predict

import (
	"math"
)

// Level is the qualitative band of a risk score.
type Level string

const (
	LevelLow      Level = "baixo"
	LevelModerate Level = "moderado"
	LevelHigh     Level = "alto"
	LevelCritical Level = "critico"

	MinScore = 0.0
	MaxScore = 100.0
)

// LevelFor returns the band for a 0-100 score.
func LevelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Rank orders levels from baixo (0) to critico (3).
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelModerate:
		return 1
	default:
		return 0
	}
}

// RiskScore converts class probabilities (no victims, injured, fatal) into a
// 0-100 score: injured counts half, fatal counts full.
func RiskScore(proba []float64) float64 {
	var injured, fatal float64
	if len(proba) > 1 {
		injured = proba[1]
	}
	if len(proba) > 2 {
		fatal = proba[2]
	}
	return Round2(Clamp(injured*50 + fatal*100))
}

// Clamp bounds v to the score range.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Recommendations returns driving advice for the level and conditions.
func Recommendations(level Level, hour int, weather string) []string {
	var out []string
	switch level {
	case LevelCritical:
		out = append(out,
			"RISCO CRÍTICO: considere rota alternativa urgentemente",
			"Reduza velocidade em pelo menos 30%")
	case LevelHigh:
		out = append(out,
			"ALTO RISCO: atenção redobrada necessária",
			"Reduza velocidade em 20%")
	case LevelModerate:
		out = append(out, "RISCO MODERADO: mantenha atenção")
	default:
		out = append(out, "Risco relativamente baixo")
	}

	if IsNight(hour) {
		out = append(out, "Período noturno: use farol alto quando apropriado")
	}
	switch weather {
	case WeatherRain:
		out = append(out, "Chuva: reduza velocidade e aumente distância")
	case WeatherFog:
		out = append(out, "Neblina: velocidade reduzida e farol baixo")
	}
	return out
}
