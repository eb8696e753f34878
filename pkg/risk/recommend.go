package risk

import (
	"strings"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

var levelAdvice = map[predict.Level][]string{
	predict.LevelCritical: {
		"RISCO CRÍTICO: considere rota alternativa urgentemente",
		"Reduza velocidade em pelo menos 30%",
		"Aumente distância de segurança significativamente",
		"Evite ultrapassagens",
		"Mantenha atenção máxima",
	},
	predict.LevelHigh: {
		"ALTO RISCO: atenção redobrada necessária",
		"Reduza velocidade em 20%",
		"Mantenha distância de segurança aumentada",
		"Evite dirigir cansado",
	},
	predict.LevelModerate: {
		"RISCO MODERADO: mantenha atenção",
		"Siga velocidade recomendada",
		"Mantenha distância de segurança",
	},
	predict.LevelLow: {
		"Risco relativamente baixo",
		"Mantenha direção defensiva padrão",
	},
}

// Recommendations returns the driving advice for a looked up segment. The
// weather is the caller's free text.
func Recommendations(level predict.Level, hour int, weather string) []string {
	out := append([]string{}, levelAdvice[level]...)
	if len(out) == 0 {
		out = append(out, levelAdvice[predict.LevelLow]...)
	}

	if predict.IsNight(hour) {
		out = append(out, "Período noturno: use farol alto quando apropriado")
	}
	w := strings.ToLower(weather)
	if strings.Contains(w, "chuva") || (lookupWeather(w) == predict.WeatherRain && !isFog(w)) {
		out = append(out, "Chuva: reduza velocidade e aumente distância")
	}
	if isFog(w) {
		out = append(out, "Neblina: velocidade reduzida e farol baixo")
	}
	return out
}

func isFog(w string) bool {
	return strings.Contains(w, "neblina") || strings.Contains(w, "nevoeiro") || w == "fog"
}
