package predict

import (
	"strings"
)

const (
	WeatherClear  = "claro"
	WeatherCloudy = "nublado"
	WeatherRain   = "chuvoso"
	WeatherFog    = "neblina"
	WeatherWind   = "vento"

	PhaseDay   = "dia"
	PhaseNight = "noite"
	PhaseDawn  = "amanhecer"
	PhaseDusk  = "anoitecer"

	RoadSingle   = "simples"
	RoadDouble   = "dupla"
	RoadMultiple = "multipla"
)

var (
	weatherVocab = map[string]string{
		"claro":    WeatherClear,
		"clear":    WeatherClear,
		"sol":      WeatherClear,
		"nublado":  WeatherCloudy,
		"cloudy":   WeatherCloudy,
		"chuva":    WeatherRain,
		"chuvoso":  WeatherRain,
		"rain":     WeatherRain,
		"garoa":    WeatherRain,
		"neblina":  WeatherFog,
		"nevoeiro": WeatherFog,
		"fog":      WeatherFog,
		"vento":    WeatherWind,
		"wind":     WeatherWind,
	}

	phaseVocab = map[string]string{
		"dia":       PhaseDay,
		"noite":     PhaseNight,
		"amanhecer": PhaseDawn,
		"anoitecer": PhaseDusk,
	}

	roadVocab = map[string]string{
		"simples":  RoadSingle,
		"dupla":    RoadDouble,
		"multipla": RoadMultiple,
		"múltipla": RoadMultiple,
	}
)

func lookup(vocab map[string]string, v, def string) string {
	if m, ok := vocab[strings.ToLower(strings.TrimSpace(v))]; ok {
		return m
	}
	return def
}

// NormalizeWeather maps free text weather into the model vocabulary, claro when unknown.
func NormalizeWeather(v string) string {
	return lookup(weatherVocab, v, WeatherClear)
}

// NormalizeDayPhase maps a day phase into the model vocabulary, dia when unknown.
func NormalizeDayPhase(v string) string {
	return lookup(phaseVocab, v, PhaseDay)
}

// NormalizeRoadType maps a road type into the model vocabulary, simples when unknown.
func NormalizeRoadType(v string) string {
	return lookup(roadVocab, v, RoadSingle)
}

// DayPhaseForHour derives the day phase from the hour of day.
func DayPhaseForHour(hour int) string {
	switch {
	case hour >= 6 && hour < 8:
		return PhaseDawn
	case hour >= 8 && hour < 18:
		return PhaseDay
	case hour >= 18 && hour < 20:
		return PhaseDusk
	default:
		return PhaseNight
	}
}
