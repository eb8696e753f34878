package dataset

import (
	"strings"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

// WeatherCategory maps the DATATRAN condicao_metereologica value into the model
// vocabulary. Unlisted values such as Granizo or Neve count as claro.
func WeatherCategory(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(v, "chuv"), strings.Contains(v, "garoa"):
		return predict.WeatherRain
	case strings.Contains(v, "nevoeiro"), strings.Contains(v, "neblina"):
		return predict.WeatherFog
	case strings.Contains(v, "nublado"):
		return predict.WeatherCloudy
	case strings.Contains(v, "vento"):
		return predict.WeatherWind
	default:
		return predict.WeatherClear
	}
}

// DayPhaseCategory maps the DATATRAN fase_dia value.
func DayPhaseCategory(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(v, "anoitecer"):
		return predict.PhaseDusk
	case strings.Contains(v, "amanhecer"):
		return predict.PhaseDawn
	case strings.Contains(v, "noite"):
		return predict.PhaseNight
	default:
		return predict.PhaseDay
	}
}

// RoadTypeCategory maps the DATATRAN tipo_pista value.
func RoadTypeCategory(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(v, "dupla"):
		return predict.RoadDouble
	case strings.HasPrefix(v, "m"):
		return predict.RoadMultiple
	default:
		return predict.RoadSingle
	}
}
