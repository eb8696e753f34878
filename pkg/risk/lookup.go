package risk

import (
	"sort"
	"strings"

	"github.com/roadrisk/roadrisk/pkg/predict"
)

const (
	// NoDataScore is used for segments without any nearby history.
	NoDataScore = 30.0
	// FallbackScore is used when no table is loaded at all.
	FallbackScore = 35.0

	ContextFallback = "fallback"

	neighbourRangeKM  = 20
	nearbyRangeKM     = 50
	nearbyLimit       = 3
	highRiskThreshold = 70.0
	highRiskLimit     = 50
)

// Nearby is a neighbouring segment with a score in the same context.
type Nearby struct {
	SegmentKey string  `json:"segment_key" yaml:"segment_key"`
	RiskScore  float64 `json:"risk_score" yaml:"risk_score"`
	DistanceKM int     `json:"distance_km" yaml:"distance_km"`
}

// Prediction is a table lookup result.
type Prediction struct {
	SegmentKey      string        `json:"segment_key" yaml:"segment_key"`
	RiskScore       float64       `json:"risk_score" yaml:"risk_score"`
	RiskLevel       predict.Level `json:"risk_level" yaml:"risk_level"`
	ContextUsed     string        `json:"context_used" yaml:"context_used"`
	Found           bool          `json:"found" yaml:"found"`
	Recommendations []string      `json:"recommendations" yaml:"recommendations"`
	WeatherSource   string        `json:"weather_source,omitempty" yaml:"weather_source,omitempty"`
	WeatherUsed     string        `json:"weather_used,omitempty" yaml:"weather_used,omitempty"`
	NearbySegments  []Nearby      `json:"nearby_segments" yaml:"nearby_segments"`
}

// Predict looks up the score of the input's segment. When the exact context
// is missing it falls back to the default context, then to neighbouring
// segments within 20 km, then to NoDataScore. A nil table yields Fallback.
func (t *Table) Predict(in *predict.Input) (*Prediction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return Fallback(in), nil
	}

	uf := strings.ToUpper(strings.TrimSpace(in.UF))
	br := int(*in.BR)
	seg := KMSegment(*in.KM)
	hour := hourOf(in)
	ctx := ContextFor(hour, in.WeatherCondition)
	key := SegmentKey(uf, br, seg)

	score, found := t.score(key, ctx)
	if !found {
		score, found = t.score(key, DefaultContext)
	}
	if !found {
		score, found = t.neighbourScore(uf, br, seg, ctx)
	}
	if !found {
		score = NoDataScore
	}

	score = predict.Round2(predict.Clamp(score))
	level := predict.LevelFor(score)

	return &Prediction{
		SegmentKey:      key,
		RiskScore:       score,
		RiskLevel:       level,
		ContextUsed:     ctx,
		Found:           found,
		Recommendations: Recommendations(level, hour, in.WeatherCondition),
		NearbySegments:  t.nearby(uf, br, seg, ctx),
	}, nil
}

// Fallback is the prediction served when no table is loaded. It is always
// moderado regardless of the score band.
func Fallback(in *predict.Input) *Prediction {
	key := ""
	if in.BR != nil && in.KM != nil {
		key = SegmentKey(in.UF, int(*in.BR), KMSegment(*in.KM))
	}
	return &Prediction{
		SegmentKey:  key,
		RiskScore:   FallbackScore,
		RiskLevel:   predict.LevelModerate,
		ContextUsed: ContextFallback,
		Recommendations: []string{
			"Sistema operando em modo fallback",
			"Dados de risco não disponíveis",
			"Mantenha atenção padrão",
		},
		NearbySegments: []Nearby{},
	}
}

func hourOf(in *predict.Input) int {
	if in.Hour == nil {
		return predict.DefaultHour
	}
	return *in.Hour
}

func (t *Table) score(key, ctx string) (float64, bool) {
	s, ok := t.Scores[key]
	if !ok {
		return 0, false
	}
	v, ok := s[ctx]
	return v, ok
}

func (t *Table) neighbourScore(uf string, br, seg int, ctx string) (float64, bool) {
	for offset := SegmentSizeKM; offset <= neighbourRangeKM; offset += SegmentSizeKM {
		if v, ok := t.score(SegmentKey(uf, br, seg-offset), ctx); ok {
			return v, true
		}
		if v, ok := t.score(SegmentKey(uf, br, seg+offset), ctx); ok {
			return v, true
		}
	}
	return 0, false
}

func (t *Table) nearby(uf string, br, seg int, ctx string) []Nearby {
	out := make([]Nearby, 0, nearbyLimit)
	for offset := SegmentSizeKM; offset <= nearbyRangeKM && len(out) < nearbyLimit; offset += SegmentSizeKM {
		for _, km := range []int{seg - offset, seg + offset} {
			if len(out) >= nearbyLimit {
				break
			}
			key := SegmentKey(uf, br, km)
			if v, ok := t.score(key, ctx); ok {
				out = append(out, Nearby{SegmentKey: key, RiskScore: v, DistanceKM: offset})
			}
		}
	}
	return out
}

// SegmentSummary aggregates the scores of one segment across contexts.
type SegmentSummary struct {
	SegmentKey   string        `json:"segment_key" yaml:"segment_key"`
	UF           string        `json:"uf" yaml:"uf"`
	BR           int           `json:"br" yaml:"br"`
	KM           int           `json:"km" yaml:"km"`
	AvgRiskScore float64       `json:"avg_risk_score" yaml:"avg_risk_score"`
	MaxRiskScore float64       `json:"max_risk_score" yaml:"max_risk_score"`
	RiskLevel    predict.Level `json:"risk_level" yaml:"risk_level"`
}

// HighRiskSegments returns segments averaging at least 70, highest first.
func (t *Table) HighRiskSegments(limit int) []SegmentSummary {
	if limit <= 0 {
		limit = highRiskLimit
	}
	out := make([]SegmentSummary, 0)
	if t == nil {
		return out
	}

	for key, s := range t.Scores {
		avg := s.Average()
		if avg < highRiskThreshold {
			continue
		}
		uf, br, km, err := ParseSegmentKey(key)
		if err != nil {
			continue
		}
		out = append(out, SegmentSummary{
			SegmentKey:   key,
			UF:           uf,
			BR:           br,
			KM:           km,
			AvgRiskScore: predict.Round2(avg),
			MaxRiskScore: predict.Round2(s.Max()),
			RiskLevel:    predict.LevelFor(avg),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgRiskScore == out[j].AvgRiskScore {
			return out[i].SegmentKey < out[j].SegmentKey
		}
		return out[i].AvgRiskScore > out[j].AvgRiskScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Statistics summarizes the table.
type Statistics struct {
	Loaded        bool                  `json:"loaded" yaml:"loaded"`
	TotalSegments int                   `json:"total_segments" yaml:"total_segments"`
	Metadata      *Metadata             `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Distribution  map[predict.Level]int `json:"risk_distribution" yaml:"risk_distribution"`
}

// Statistics counts segments per level of their average score.
func (t *Table) Statistics() *Statistics {
	st := &Statistics{
		Distribution: map[predict.Level]int{
			predict.LevelLow:      0,
			predict.LevelModerate: 0,
			predict.LevelHigh:     0,
			predict.LevelCritical: 0,
		},
	}
	if t == nil {
		return st
	}

	st.Loaded = true
	st.TotalSegments = len(t.Scores)
	md := t.Metadata
	st.Metadata = &md
	for _, s := range t.Scores {
		st.Distribution[predict.LevelFor(s.Average())]++
	}
	return st
}
