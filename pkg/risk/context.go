package risk

import (
	"strings"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

const (
	DefaultContext = "dia_claro"
)

// Context is a named combination of conditions the table is scored for.
type Context struct {
	Name      string
	Weather   string
	DayPhase  string
	Hour      int
	DayOfWeek int
}

// Weekend reports whether the context falls on Saturday or Sunday.
func (c Context) Weekend() bool {
	return c.DayOfWeek == 5 || c.DayOfWeek == 6
}

// Contexts are scored for every segment. Day of week is 0 for Monday.
var Contexts = []Context{
	{Name: "dia_claro", Weather: predict.WeatherClear, DayPhase: predict.PhaseDay, Hour: 14, DayOfWeek: 2},
	{Name: "dia_nublado", Weather: predict.WeatherCloudy, DayPhase: predict.PhaseDay, Hour: 14, DayOfWeek: 2},
	{Name: "dia_chuvoso", Weather: predict.WeatherRain, DayPhase: predict.PhaseDay, Hour: 14, DayOfWeek: 2},
	{Name: "noite_claro", Weather: predict.WeatherClear, DayPhase: predict.PhaseNight, Hour: 22, DayOfWeek: 2},
	{Name: "noite_chuvoso", Weather: predict.WeatherRain, DayPhase: predict.PhaseNight, Hour: 22, DayOfWeek: 2},
	{Name: "amanhecer_claro", Weather: predict.WeatherClear, DayPhase: predict.PhaseDawn, Hour: 6, DayOfWeek: 1},
	{Name: "anoitecer_claro", Weather: predict.WeatherClear, DayPhase: predict.PhaseDusk, Hour: 18, DayOfWeek: 5},
	{Name: "fds_noite_claro", Weather: predict.WeatherClear, DayPhase: predict.PhaseNight, Hour: 23, DayOfWeek: 6},
}

// ContextNames returns the names of Contexts in order.
func ContextNames() []string {
	out := make([]string, len(Contexts))
	for i, c := range Contexts {
		out[i] = c.Name
	}
	return out
}

// ContextFor picks the lookup context for an hour and free text weather.
// Only day and night are distinguished; fog is looked up as rain.
func ContextFor(hour int, weather string) string {
	phase := predict.PhaseDay
	if predict.IsNight(hour) {
		phase = predict.PhaseNight
	}

	return phase + "_" + lookupWeather(weather)
}

// lookupWeather matches free text like "Chuva forte" or "Nevoeiro/Neblina"
// by substring, falling back to the exact vocabulary words.
func lookupWeather(weather string) string {
	w := strings.ToLower(strings.TrimSpace(weather))
	switch {
	case strings.Contains(w, "chuva"), strings.Contains(w, "garoa"):
		return predict.WeatherRain
	case strings.Contains(w, "nublado"):
		return predict.WeatherCloudy
	case strings.Contains(w, "neblina"), strings.Contains(w, "nevoeiro"):
		return predict.WeatherRain
	}

	switch predict.NormalizeWeather(w) {
	case predict.WeatherRain, predict.WeatherFog:
		return predict.WeatherRain
	case predict.WeatherCloudy:
		return predict.WeatherCloudy
	}
	return predict.WeatherClear
}
