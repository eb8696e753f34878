package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/predict"
)

const (
	modelWeight   = 0.6
	historyWeight = 0.4

	nightFactor   = 1.3
	rainFactor    = 1.4
	fogFactor     = 1.5
	weekendFactor = 1.2

	buildMonth       = 6
	modelTypeStats   = "Statistical"
	accuracyNotKnown = "N/A"
)

// Scorer scores a resolved query, typically with the risk model.
type Scorer interface {
	Score(q *predict.Query) (float64, error)
}

// BuildOptions configures Build. Without a Scorer the table is statistical only.
type BuildOptions struct {
	Scorer    Scorer
	ModelType string
	Accuracy  float64
	Now       time.Time
}

// BaseScore is the historical score of a segment: volume contributes up to 30
// points per 10 accidents and mean severity (0-2) up to 70, capped at 100.
func BaseScore(accidents int, meanSeverity float64) float64 {
	return math.Min(float64(accidents)/10*30+meanSeverity/2*70, predict.MaxScore)
}

// StatisticalScore adjusts a base score for the context conditions.
func StatisticalScore(base float64, c Context) float64 {
	s := base
	if c.DayPhase == predict.PhaseNight {
		s *= nightFactor
	}
	switch c.Weather {
	case predict.WeatherRain:
		s *= rainFactor
	case predict.WeatherFog:
		s *= fogFactor
	}
	if c.Weekend() {
		s *= weekendFactor
	}
	return math.Min(s, predict.MaxScore)
}

// Build scores every segment for every context.
func Build(ctx context.Context, stats []*data.SegmentStats, opts BuildOptions) (*Table, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	t := &Table{
		Scores: make(map[string]Scores, len(stats)),
		Metadata: Metadata{
			GeneratedAt: opts.Now.UTC().Format(time.RFC3339),
			ModelType:   modelTypeStats,
			Accuracy:    accuracyNotKnown,
			Contexts:    ContextNames(),
			ScoreRange:  scoreRange,
		},
	}
	if opts.Scorer != nil {
		t.Metadata.ModelType = opts.ModelType
		if opts.Accuracy > 0 {
			t.Metadata.Accuracy = fmt.Sprintf("%.2f%%", opts.Accuracy*100)
		}
	}

	total := len(stats)
	logEvery := total / 10
	if logEvery < 1 {
		logEvery = 1
	}

	modelErrors := 0
	for i, s := range stats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base := BaseScore(s.Accidents, s.MeanSeverity)
		scores := make(Scores, len(Contexts))
		for _, c := range Contexts {
			var v float64
			if opts.Scorer != nil {
				ml, err := opts.Scorer.Score(&predict.Query{
					UF:        s.UF,
					BR:        s.BR,
					KM:        float64(s.KMSegment),
					Hour:      c.Hour,
					DayOfWeek: c.DayOfWeek,
					Month:     buildMonth,
					Weather:   c.Weather,
					DayPhase:  c.DayPhase,
					RoadType:  predict.RoadSingle,
				})
				if err != nil {
					modelErrors++
					v = base
				} else {
					v = ml*modelWeight + base*historyWeight
				}
			} else {
				v = StatisticalScore(base, c)
			}
			scores[c.Name] = predict.Round2(predict.Clamp(v))
		}

		t.Scores[SegmentKey(s.UF, s.BR, s.KMSegment)] = scores
		t.Metadata.TotalAccidentsAnalyzed += s.Accidents

		if (i+1)%logEvery == 0 {
			slog.Info("risk table progress", "scored", i+1, "total", total)
		}
	}

	if modelErrors > 0 {
		slog.Warn("model could not score some segments, used historical score", "count", modelErrors)
	}

	t.Metadata.TotalSegments = len(t.Scores)
	return t, nil
}
