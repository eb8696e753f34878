package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
)

// Source tells where the risk side of a combined prediction came from.
type Source string

const (
	SourceModel  Source = "model"
	SourceLookup Source = "lookup"

	ConfidenceVeryHigh = "muito_alta"
	ConfidenceHigh     = "alta"
	ConfidenceMedium   = "média"
	ConfidenceLow      = "baixa"

	unknownClassification = "Desconhecido"
	defaultScore          = 50.0
)

type RiskModelResult struct {
	Score          float64                    `json:"score" yaml:"score"`
	PredictedClass int                        `json:"predicted_class" yaml:"predicted_class"`
	Probabilities  predict.ClassProbabilities `json:"probabilities" yaml:"probabilities"`
	Source         Source                     `json:"source" yaml:"source"`
}

type ClassifierResult struct {
	Classification string             `json:"classification" yaml:"classification"`
	Confidence     float64            `json:"confidence" yaml:"confidence"`
	SeverityIndex  int                `json:"severity_index" yaml:"severity_index"`
	Probabilities  map[string]float64 `json:"probabilities" yaml:"probabilities"`
}

type Models struct {
	RiskModel  *RiskModelResult  `json:"risk_model,omitempty" yaml:"risk_model,omitempty"`
	Classifier *ClassifierResult `json:"classification_model,omitempty" yaml:"classification_model,omitempty"`
}

// Analysis describes how well the two models agree.
type Analysis struct {
	ModelsAgree     bool     `json:"models_agree" yaml:"models_agree"`
	AgreementScore  float64  `json:"agreement_score" yaml:"agreement_score"`
	ConfidenceLevel string   `json:"confidence_level" yaml:"confidence_level"`
	WeightedScore   float64  `json:"weighted_score" yaml:"weighted_score"`
	Inconsistencies []string `json:"inconsistencies" yaml:"inconsistencies"`
}

type Metadata struct {
	Location     string    `json:"location" yaml:"location"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	ModelsUsed   []string  `json:"models_used" yaml:"models_used"`
	FallbackUsed bool      `json:"fallback_used" yaml:"fallback_used"`
}

// Result is a combined prediction.
type Result struct {
	RiskScore                float64       `json:"risk_score" yaml:"risk_score"`
	RiskLevel                predict.Level `json:"risk_level" yaml:"risk_level"`
	AccidentClassification   string        `json:"accident_classification" yaml:"accident_classification"`
	ClassificationConfidence float64       `json:"classification_confidence" yaml:"classification_confidence"`
	Models                   Models        `json:"models" yaml:"models"`
	Ensemble                 Analysis      `json:"ensemble" yaml:"ensemble"`
	Recommendations          []string      `json:"recommendations" yaml:"recommendations"`
	Metadata                 Metadata      `json:"metadata" yaml:"metadata"`
}

// Ensemble combines the risk model, or the risk table when the model is not
// available, with the classification model. Both may be nil; the risk side
// then falls back to the moderate lookup score.
type Ensemble struct {
	predictor *predict.Predictor
	table     *risk.Table
}

func New(p *predict.Predictor, t *risk.Table) *Ensemble {
	return &Ensemble{predictor: p, table: t}
}

// Status reports which sources are available.
type Status struct {
	RiskModel   bool `json:"risk_model" yaml:"risk_model"`
	Classifier  bool `json:"classification_model" yaml:"classification_model"`
	LookupTable bool `json:"lookup_table" yaml:"lookup_table"`
	Operational bool `json:"operational" yaml:"operational"`
}

func (e *Ensemble) Status() *Status {
	s := &Status{LookupTable: e.table != nil}
	if e.predictor != nil {
		b := e.predictor.Bundle()
		_, err := b.RiskModel()
		s.RiskModel = err == nil
		_, err = b.ClassifierModel()
		s.Classifier = err == nil
	}
	s.Operational = s.RiskModel || s.Classifier || s.LookupTable
	return s
}

// Predict runs both sides and combines them. Only invalid input fails; a
// failing side is left out of the result.
func (e *Ensemble) Predict(ctx context.Context, in *predict.Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := in.Resolve(true)
	if err != nil {
		return nil, err
	}

	r := e.riskSide(ctx, in)
	c := e.classifierSide(ctx, in)
	return combine(q, r, c), nil
}

// Batch runs Predict for every input.
func (e *Ensemble) Batch(ctx context.Context, inputs []predict.Input) (*predict.BatchSummary[Result], error) {
	var opts predict.Options
	if e.predictor != nil {
		opts = e.predictor.Options()
	}
	return predict.RunBatch(ctx, opts, inputs, e.Predict)
}

func (e *Ensemble) riskSide(ctx context.Context, in *predict.Input) *RiskModelResult {
	if e.predictor != nil {
		p, err := e.predictor.Predict(ctx, in)
		if err == nil {
			return &RiskModelResult{
				Score:          p.RiskScore,
				PredictedClass: p.PredictedClass,
				Probabilities:  p.ClassProbabilities,
				Source:         SourceModel,
			}
		}
		if !errors.Is(err, model.ErrModelNotLoaded) {
			slog.Warn("risk model failed, using lookup", "error", err)
		}
	}

	// without a table the lookup still contributes its fallback score
	p := risk.Fallback(in)
	if e.table != nil {
		var err error
		if p, err = e.table.Predict(in); err != nil {
			slog.Warn("risk lookup failed", "error", err)
			return nil
		}
	}
	return &RiskModelResult{
		Score:          p.RiskScore,
		PredictedClass: ScoreToClass(p.RiskScore),
		Probabilities:  EstimateProbabilities(p.RiskScore),
		Source:         SourceLookup,
	}
}

func (e *Ensemble) classifierSide(ctx context.Context, in *predict.Input) *ClassifierResult {
	if e.predictor == nil {
		return nil
	}
	c, err := e.predictor.Classify(ctx, in)
	if err != nil {
		if !errors.Is(err, model.ErrModelNotLoaded) {
			slog.Warn("classification failed", "error", err)
		}
		return nil
	}
	return &ClassifierResult{
		Classification: c.Classification,
		Confidence:     c.Confidence,
		SeverityIndex:  c.SeverityIndex,
		Probabilities:  c.Probabilities,
	}
}

// ScoreToClass maps a 0-100 score to a severity class.
func ScoreToClass(score float64) int {
	switch {
	case score < 40:
		return 0
	case score < 70:
		return 1
	default:
		return 2
	}
}

// EstimateProbabilities gives class percentages typical of a score band.
func EstimateProbabilities(score float64) predict.ClassProbabilities {
	switch ScoreToClass(score) {
	case 0:
		return predict.ClassProbabilities{NoVictims: 70, Injured: 25, Fatal: 5}
	case 1:
		return predict.ClassProbabilities{NoVictims: 30, Injured: 50, Fatal: 20}
	default:
		return predict.ClassProbabilities{NoVictims: 10, Injured: 40, Fatal: 50}
	}
}

// AgreementScore is 100 when both models predict the same class, 65 when they
// are one class apart and 30 otherwise. A missing side gives 50.
func AgreementScore(r *RiskModelResult, c *ClassifierResult) float64 {
	if r == nil || c == nil {
		return 50
	}
	switch d := r.PredictedClass - c.SeverityIndex; {
	case d == 0:
		return 100
	case d == 1 || d == -1:
		return 65
	default:
		return 30
	}
}

// Weights returns the risk and classifier weights for an agreement score.
func Weights(agreement float64) (riskW, classW float64) {
	switch {
	case agreement > 80:
		return 0.5, 0.5
	case agreement < 50:
		return 0.75, 0.25
	default:
		return 0.6, 0.4
	}
}

// WeightedScore blends the risk score with the classifier confidence (0-1).
func WeightedScore(riskScore, confidence, agreement float64) float64 {
	rw, cw := Weights(agreement)
	return predict.Clamp(riskScore*rw + confidence*100*cw)
}

// ConfidenceLevel rates the ensemble from agreement and classifier confidence (0-1).
func ConfidenceLevel(agreement, confidence float64) string {
	avg := (agreement + confidence*100) / 2
	switch {
	case avg >= 85:
		return ConfidenceVeryHigh
	case avg >= 70:
		return ConfidenceHigh
	case avg >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Inconsistencies lists contradictions between the two sides.
func Inconsistencies(r *RiskModelResult, c *ClassifierResult) []string {
	out := make([]string, 0)
	if r == nil || c == nil {
		return out
	}
	if r.PredictedClass != c.SeverityIndex {
		out = append(out, fmt.Sprintf(
			"Modelos divergem na severidade: modelo de risco prevê classe %d, classificação prevê classe %d",
			r.PredictedClass, c.SeverityIndex))
	}
	if r.Score > 70 && c.SeverityIndex == 0 {
		out = append(out, `Alto score de risco mas classificação indica "Sem Vítimas" - revisar contexto`)
	}
	if r.Score < 40 && c.SeverityIndex == 2 {
		out = append(out, `Baixo score de risco mas classificação indica "Com Vítimas Fatais" - revisar dados`)
	}
	return out
}

func recommendations(level predict.Level, classification string, agree bool, q *predict.Query) []string {
	var out []string
	switch level {
	case predict.LevelCritical:
		out = append(out,
			"RISCO CRÍTICO: Considere rota alternativa urgentemente",
			"Reduza velocidade em pelo menos 30%",
			"Ative monitoramento intensivo")
	case predict.LevelHigh:
		out = append(out, "Alto risco: Atenção redobrada necessária", "Reduza velocidade em 20%")
	case predict.LevelModerate:
		out = append(out, "Risco moderado: Mantenha atenção")
	default:
		out = append(out, "Risco relativamente baixo")
	}

	switch classification {
	case predict.SeverityLabels[2]:
		out = append(out,
			"Alta probabilidade de fatalidade neste trecho",
			"Mantenha kit de emergência e primeiros socorros")
	case predict.SeverityLabels[1]:
		out = append(out, "Risco de ferimentos graves", "Verifique equipamentos de segurança")
	}

	if q.Weather == predict.WeatherRain {
		out = append(out, "Chuva: aumente distância de segurança")
	}
	if q.Hour >= 20 || q.Hour <= 6 {
		out = append(out, "Período noturno: use farol alto quando apropriado")
	}
	if q.DayOfWeek >= 5 {
		out = append(out, "Fim de semana: tráfego e comportamento diferentes")
	}

	if agree {
		out = append(out, "Ambos os modelos concordam - alta confiabilidade")
	} else {
		out = append(out, "Modelos divergem - considere análise adicional")
	}
	return out
}

func location(q *predict.Query) string {
	return fmt.Sprintf("%s-BR%d KM %g", q.UF, q.BR, q.KM)
}

func combine(q *predict.Query, r *RiskModelResult, c *ClassifierResult) *Result {
	now := time.Now().UTC()
	if r == nil && c == nil {
		return &Result{
			RiskScore:              defaultScore,
			RiskLevel:              predict.LevelModerate,
			AccidentClassification: unknownClassification,
			Ensemble: Analysis{
				ConfidenceLevel: ConfidenceLow,
				WeightedScore:   defaultScore,
				Inconsistencies: []string{"Nenhum modelo disponível para predição"},
			},
			Recommendations: []string{
				"Modelos de ML não disponíveis",
				"Use análise manual para avaliar risco",
			},
			Metadata: Metadata{
				Location:     location(q),
				Timestamp:    now,
				ModelsUsed:   []string{},
				FallbackUsed: true,
			},
		}
	}

	riskScore, riskClass := defaultScore, 1
	if r != nil {
		riskScore, riskClass = r.Score, r.PredictedClass
	}
	classification, confidence, classIndex := unknownClassification, 0.0, 1
	if c != nil {
		classification, confidence, classIndex = c.Classification, c.Confidence, c.SeverityIndex
	}

	agree := riskClass == classIndex
	agreement := AgreementScore(r, c)
	weighted := WeightedScore(riskScore, confidence, agreement)
	level := predict.LevelFor(weighted)

	used := make([]string, 0, 2)
	if r != nil {
		used = append(used, fmt.Sprintf("risk_model (%s)", r.Source))
	}
	if c != nil {
		used = append(used, "classification_model")
	}

	return &Result{
		RiskScore:                predict.Round2(weighted),
		RiskLevel:                level,
		AccidentClassification:   classification,
		ClassificationConfidence: predict.Round2(confidence),
		Models:                   Models{RiskModel: r, Classifier: c},
		Ensemble: Analysis{
			ModelsAgree:     agree,
			AgreementScore:  predict.Round2(agreement),
			ConfidenceLevel: ConfidenceLevel(agreement, confidence),
			WeightedScore:   predict.Round2(weighted),
			Inconsistencies: Inconsistencies(r, c),
		},
		Recommendations: recommendations(level, classification, agree, q),
		Metadata: Metadata{
			Location:     location(q),
			Timestamp:    now,
			ModelsUsed:   used,
			FallbackUsed: r != nil && r.Source == SourceLookup,
		},
	}
}
