package predict

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/model/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput(uf string, hour int, weather string) *Input {
	br := Highway(116)
	return &Input{
		UF:               uf,
		BR:               &br,
		KM:               Ptr(100.0),
		Hour:             Ptr(hour),
		WeatherCondition: weather,
	}
}

func TestInput_Validate(t *testing.T) {
	br := Highway(116)
	tests := []struct {
		name  string
		in    Input
		field string
		err   error
	}{
		{"missing uf", Input{BR: &br, KM: Ptr(1.0)}, "uf", ErrMissingField},
		{"missing br", Input{UF: "SP", KM: Ptr(1.0)}, "br", ErrMissingField},
		{"missing km", Input{UF: "SP", BR: &br}, "km", ErrMissingField},
		{"negative km", Input{UF: "SP", BR: &br, KM: Ptr(-1.0)}, "km", ErrInvalidField},
		{"hour", Input{UF: "SP", BR: &br, KM: Ptr(1.0), Hour: Ptr(24)}, "hour", ErrInvalidField},
		{"day of week", Input{UF: "SP", BR: &br, KM: Ptr(1.0), DayOfWeek: Ptr(7)}, "dayOfWeek", ErrInvalidField},
		{"month", Input{UF: "SP", BR: &br, KM: Ptr(1.0), Month: Ptr(0)}, "month", ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	ok := Input{UF: "SP", BR: &br, KM: Ptr(0.0)}
	assert.NoError(t, ok.Validate())
}

func TestInput_UnmarshalHighway(t *testing.T) {
	for _, raw := range []string{`{"br":116}`, `{"br":"116"}`, `{"br":"BR-116"}`, `{"br":116.0}`} {
		var in Input
		require.NoError(t, json.Unmarshal([]byte(raw), &in), raw)
		require.NotNil(t, in.BR)
		assert.Equal(t, Highway(116), *in.BR, raw)
	}

	var in Input
	assert.Error(t, json.Unmarshal([]byte(`{"br":"abc"}`), &in))
}

func TestInput_ResolveDefaults(t *testing.T) {
	br := Highway(101)
	in := Input{UF: " sc ", BR: &br, KM: Ptr(12.5), WeatherCondition: "Chuva", RoadType: "DUPLA"}
	q, err := in.Resolve(false)
	require.NoError(t, err)
	assert.Equal(t, "SC", q.UF)
	assert.Equal(t, DefaultHour, q.Hour)
	assert.Equal(t, DefaultDayOfWeek, q.DayOfWeek)
	assert.Equal(t, DefaultMonth, q.Month)
	assert.Equal(t, WeatherRain, q.Weather)
	assert.Equal(t, PhaseDay, q.DayPhase)
	assert.Equal(t, RoadDouble, q.RoadType)

	in.Hour = Ptr(19)
	q, err = in.Resolve(true)
	require.NoError(t, err)
	assert.Equal(t, PhaseDusk, q.DayPhase)
}

func TestVocabulary(t *testing.T) {
	assert.Equal(t, WeatherClear, NormalizeWeather("sol"))
	assert.Equal(t, WeatherCloudy, NormalizeWeather("cloudy"))
	assert.Equal(t, WeatherRain, NormalizeWeather("rain"))
	assert.Equal(t, WeatherFog, NormalizeWeather("Nevoeiro"))
	assert.Equal(t, WeatherWind, NormalizeWeather("wind"))
	assert.Equal(t, WeatherClear, NormalizeWeather("granizo"))
	assert.Equal(t, PhaseNight, NormalizeDayPhase("NOITE"))
	assert.Equal(t, PhaseDay, NormalizeDayPhase(""))
	assert.Equal(t, RoadMultiple, NormalizeRoadType("múltipla"))
	assert.Equal(t, RoadSingle, NormalizeRoadType("?"))

	hours := map[int]string{0: PhaseNight, 5: PhaseNight, 6: PhaseDawn, 7: PhaseDawn, 8: PhaseDay,
		17: PhaseDay, 18: PhaseDusk, 19: PhaseDusk, 20: PhaseNight, 23: PhaseNight}
	for h, want := range hours {
		assert.Equal(t, want, DayPhaseForHour(h), "hour %d", h)
	}
}

func TestQuery_Features(t *testing.T) {
	enc := modeltest.Encoders(t)
	q, err := testInput("SP", 12, "claro").Resolve(false)
	require.NoError(t, err)

	x, err := q.Features(enc)
	require.NoError(t, err)
	require.Len(t, x, len(model.FeatureNames))
	assert.Equal(t, []float64{4, 116, 100, 12, 2, 6, 1, 2, 2}, x)

	q.UF = "XX"
	_, err = q.Features(enc)
	assert.ErrorIs(t, err, model.ErrUnseenCategory)
}

func TestRiskScoreAndLevel(t *testing.T) {
	assert.Equal(t, 0.0, RiskScore([]float64{1, 0, 0}))
	assert.Equal(t, 50.0, RiskScore([]float64{0, 1, 0}))
	assert.Equal(t, 100.0, RiskScore([]float64{0, 0, 1}))
	assert.Equal(t, 100.0, RiskScore([]float64{0, 1, 1}))
	assert.Equal(t, 0.0, Clamp(-5))

	assert.Equal(t, LevelCritical, LevelFor(80))
	assert.Equal(t, LevelHigh, LevelFor(79.99))
	assert.Equal(t, LevelModerate, LevelFor(40))
	assert.Equal(t, LevelLow, LevelFor(39.9))
	assert.Greater(t, LevelCritical.Rank(), LevelHigh.Rank())
}

func TestRecommendations(t *testing.T) {
	r := Recommendations(LevelCritical, 22, WeatherRain)
	assert.Len(t, r, 4)
	r = Recommendations(LevelLow, 12, WeatherClear)
	assert.Equal(t, []string{"Risco relativamente baixo"}, r)
	r = Recommendations(LevelModerate, 10, WeatherFog)
	assert.Len(t, r, 2)
}

func TestPredictor_Predict(t *testing.T) {
	p := NewPredictor(modeltest.Bundle(t), Options{})
	ctx := context.Background()

	r, err := p.Predict(ctx, testInput("SP", 12, "claro"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, r.RiskScore)
	assert.Equal(t, LevelModerate, r.RiskLevel)
	assert.Equal(t, 0, r.PredictedClass)
	assert.InDelta(t, 100.0, r.ClassProbabilities.NoVictims+r.ClassProbabilities.Injured+r.ClassProbabilities.Fatal, 0.01)
	assert.Equal(t, "SP", r.Input.UF)
	assert.Equal(t, 116, r.Input.BR)

	r, err = p.Predict(ctx, testInput("SP", 22, "claro"))
	require.NoError(t, err)
	assert.Equal(t, 62.5, r.RiskScore)
	assert.Equal(t, LevelHigh, r.RiskLevel)
	assert.Contains(t, r.Recommendations, "Período noturno: use farol alto quando apropriado")

	_, err = p.Predict(ctx, testInput("XX", 12, "claro"))
	assert.ErrorIs(t, err, model.ErrUnseenCategory)

	_, err = p.Predict(ctx, &Input{UF: "SP"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestPredictor_ModelNotLoaded(t *testing.T) {
	b := modeltest.Bundle(t)
	b.Risk = nil
	p := NewPredictor(b, Options{})

	_, err := p.Predict(context.Background(), testInput("SP", 12, "claro"))
	assert.ErrorIs(t, err, model.ErrModelNotLoaded)
	_, err = p.PredictBatch(context.Background(), []Input{*testInput("SP", 12, "claro")})
	assert.ErrorIs(t, err, model.ErrModelNotLoaded)
}

func TestPredictor_Classify(t *testing.T) {
	p := NewPredictor(modeltest.Bundle(t), Options{})
	c, err := p.Classify(context.Background(), testInput("MG", 22, "sol"))
	require.NoError(t, err)

	assert.Equal(t, 1, c.SeverityIndex)
	assert.Equal(t, "Com Vítimas Feridas", c.Classification)
	assert.InDelta(t, 0.45, c.Confidence, 1e-9)
	assert.Equal(t, "claro", c.InputSummary.Weather)
	sum := 0.0
	for _, v := range c.Probabilities {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, "MG-BR116 KM 100", c.InputSummary.Location)
	assert.Equal(t, "22:00", c.InputSummary.Time)
}

func TestPredictor_Batches(t *testing.T) {
	p := NewPredictor(modeltest.Bundle(t), Options{Concurrency: 2, MaxBatch: 3})
	ctx := context.Background()

	inputs := []Input{
		*testInput("SP", 12, "claro"),
		*testInput("XX", 12, "claro"),
		{UF: "PR"},
	}
	s, err := p.PredictBatch(ctx, inputs)
	require.NoError(t, err)
	assert.NotEmpty(t, s.BatchID)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 2, s.Failed)
	for i, r := range s.Results {
		assert.Equal(t, i, r.Index)
	}
	require.NotNil(t, s.Results[0].Result)
	assert.NotEmpty(t, s.Results[1].Error)

	c, err := p.ClassifyBatch(ctx, inputs[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, c.Successful)

	_, err = p.PredictBatch(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	_, err = p.ClassifyBatch(ctx, append(inputs, inputs...))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestPredictor_CanceledContext(t *testing.T) {
	p := NewPredictor(modeltest.Bundle(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Predict(ctx, testInput("SP", 12, "claro"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = p.PredictBatch(ctx, []Input{*testInput("SP", 12, "claro")})
	assert.ErrorIs(t, err, context.Canceled)
}
