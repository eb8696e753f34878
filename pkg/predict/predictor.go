package predict

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/lucsky/cuid"
	"github.com/roadrisk/roadrisk/pkg/model"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxBatch = 500
)

var (
	ErrEmptyBatch    = errors.New("empty batch")
	ErrBatchTooLarge = errors.New("batch too large")

	// SeverityLabels are the display labels of the severity classes.
	SeverityLabels = []string{"Sem Vítimas", "Com Vítimas Feridas", "Com Vítimas Fatais"}
)

// Options tunes batch behavior.
type Options struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	MaxBatch    int `json:"max_batch" yaml:"max_batch"`
}

// Predictor serves predictions from a loaded bundle. It never mutates the bundle.
type Predictor struct {
	bundle *model.Bundle
	opts   Options
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = DefaultMaxBatch
	}
	return o
}

func NewPredictor(b *model.Bundle, opts Options) *Predictor {
	return &Predictor{bundle: b, opts: opts.withDefaults()}
}

func (p *Predictor) Bundle() *model.Bundle {
	return p.bundle
}

func (p *Predictor) Options() Options {
	return p.opts
}

// ClassProbabilities are percentages (0-100) per severity class.
type ClassProbabilities struct {
	NoVictims float64 `json:"sem_vitimas" yaml:"sem_vitimas"`
	Injured   float64 `json:"com_feridos" yaml:"com_feridos"`
	Fatal     float64 `json:"com_mortos" yaml:"com_mortos"`
}

type PredictionContext struct {
	Hour     int    `json:"hour" yaml:"hour"`
	Weather  string `json:"weather" yaml:"weather"`
	DayPhase string `json:"day_phase" yaml:"day_phase"`
	RoadType string `json:"road_type" yaml:"road_type"`
}

type PredictionInput struct {
	UF      string            `json:"uf" yaml:"uf"`
	BR      int               `json:"br" yaml:"br"`
	KM      float64           `json:"km" yaml:"km"`
	Context PredictionContext `json:"context" yaml:"context"`
}

// RiskPrediction is the risk model output for one location and context.
type RiskPrediction struct {
	RiskScore          float64            `json:"risk_score" yaml:"risk_score"`
	RiskLevel          Level              `json:"risk_level" yaml:"risk_level"`
	PredictedClass     int                `json:"predicted_class" yaml:"predicted_class"`
	ClassProbabilities ClassProbabilities `json:"class_probabilities" yaml:"class_probabilities"`
	Recommendations    []string           `json:"recommendations" yaml:"recommendations"`
	Input              PredictionInput    `json:"input" yaml:"input"`
}

// Predict scores a single input with the risk model.
func (p *Predictor) Predict(ctx context.Context, in *Input) (*RiskPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := in.Resolve(false)
	if err != nil {
		return nil, err
	}
	return p.PredictQuery(q)
}

// PredictQuery scores an already resolved query with the risk model.
func (p *Predictor) PredictQuery(q *Query) (*RiskPrediction, error) {
	m, err := p.bundle.RiskModel()
	if err != nil {
		return nil, err
	}
	x, err := q.Features(p.bundle.Encoders)
	if err != nil {
		return nil, err
	}
	class, proba, err := m.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("predicting: %w", err)
	}

	score := RiskScore(proba)
	level := LevelFor(score)

	return &RiskPrediction{
		RiskScore:      score,
		RiskLevel:      level,
		PredictedClass: class,
		ClassProbabilities: ClassProbabilities{
			NoVictims: Round2(proba[0] * 100),
			Injured:   Round2(proba[1] * 100),
			Fatal:     Round2(proba[2] * 100),
		},
		Recommendations: Recommendations(level, q.Hour, q.Weather),
		Input: PredictionInput{
			UF: q.UF,
			BR: q.BR,
			KM: q.KM,
			Context: PredictionContext{
				Hour:     q.Hour,
				Weather:  q.Weather,
				DayPhase: q.DayPhase,
				RoadType: q.RoadType,
			},
		},
	}, nil
}

// Score returns only the risk score of a resolved query.
func (p *Predictor) Score(q *Query) (float64, error) {
	r, err := p.PredictQuery(q)
	if err != nil {
		return 0, err
	}
	return r.RiskScore, nil
}

type InputSummary struct {
	Location string `json:"location" yaml:"location"`
	Time     string `json:"time" yaml:"time"`
	Weather  string `json:"weather" yaml:"weather"`
}

// Classification is the classification model output.
type Classification struct {
	Classification string             `json:"classification" yaml:"classification"`
	Confidence     float64            `json:"confidence" yaml:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities" yaml:"probabilities"`
	SeverityIndex  int                `json:"severity_index" yaml:"severity_index"`
	InputSummary   InputSummary       `json:"input_summary" yaml:"input_summary"`
	Timestamp      time.Time          `json:"timestamp" yaml:"timestamp"`
}

// Classify predicts the most likely accident severity class. The day phase is
// derived from the hour unless given.
func (p *Predictor) Classify(ctx context.Context, in *Input) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := p.bundle.ClassifierModel()
	if err != nil {
		return nil, err
	}
	q, err := in.Resolve(true)
	if err != nil {
		return nil, err
	}
	x, err := q.Features(p.bundle.Encoders)
	if err != nil {
		return nil, err
	}
	class, proba, err := m.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("classifying: %w", err)
	}

	probs := make(map[string]float64, len(SeverityLabels))
	for i, l := range SeverityLabels {
		probs[l] = proba[i]
	}

	return &Classification{
		Classification: SeverityLabels[class],
		Confidence:     proba[class],
		Probabilities:  probs,
		SeverityIndex:  class,
		InputSummary: InputSummary{
			Location: fmt.Sprintf("%s-BR%d KM %g", q.UF, q.BR, q.KM),
			Time:     fmt.Sprintf("%02d:00", q.Hour),
			Weather:  q.Weather,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// BatchResult holds the outcome of one batch item; exactly one of Result or Error is set.
type BatchResult[T any] struct {
	Index  int    `json:"index" yaml:"index"`
	Result *T     `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	Input  Input  `json:"input" yaml:"input"`
}

type BatchSummary[T any] struct {
	BatchID    string           `json:"batch_id" yaml:"batch_id"`
	Total      int              `json:"total" yaml:"total"`
	Successful int              `json:"successful" yaml:"successful"`
	Failed     int              `json:"failed" yaml:"failed"`
	Results    []BatchResult[T] `json:"results" yaml:"results"`
}

// PredictBatch runs Predict for every input. Item failures are recorded, not returned.
func (p *Predictor) PredictBatch(ctx context.Context, inputs []Input) (*BatchSummary[RiskPrediction], error) {
	if _, err := p.bundle.RiskModel(); err != nil {
		return nil, err
	}
	return RunBatch(ctx, p.opts, inputs, p.Predict)
}

// ClassifyBatch runs Classify for every input. Item failures are recorded, not returned.
func (p *Predictor) ClassifyBatch(ctx context.Context, inputs []Input) (*BatchSummary[Classification], error) {
	if _, err := p.bundle.ClassifierModel(); err != nil {
		return nil, err
	}
	return RunBatch(ctx, p.opts, inputs, p.Classify)
}

// RunBatch applies fn to every input with bounded concurrency. Results keep
// the input order; item errors are recorded on the item.
func RunBatch[T any](ctx context.Context, opts Options, inputs []Input, fn func(context.Context, *Input) (*T, error)) (*BatchSummary[T], error) {
	opts = opts.withDefaults()
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(inputs) > opts.MaxBatch {
		return nil, fmt.Errorf("%w: %d items, max %d", ErrBatchTooLarge, len(inputs), opts.MaxBatch)
	}

	results := make([]BatchResult[T], len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := BatchResult[T]{Index: i, Input: inputs[i]}
			res, err := fn(ctx, &inputs[i])
			if err != nil {
				r.Error = err.Error()
			} else {
				r.Result = res
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running batch: %w", err)
	}

	s := &BatchSummary[T]{
		BatchID: cuid.New(),
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		if r.Error != "" {
			s.Failed++
		} else {
			s.Successful++
		}
	}
	return s, nil
}
