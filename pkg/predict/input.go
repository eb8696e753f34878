package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roadrisk/roadrisk/pkg/model"
)

const (
	DefaultHour      = 12
	DefaultDayOfWeek = 2
	DefaultMonth     = 6
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Err, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &ValidationError{Field: field, Err: ErrMissingField}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, Err: ErrInvalidField}
}

// Highway is a BR number that decodes from 116, "116" or "BR-116".
type Highway int

func (h *Highway) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := ParseHighway(s)
	if err != nil {
		return err
	}
	*h = Highway(v)
	return nil
}

// ParseHighway parses a BR designator such as "116", "BR-116" or "116.0".
func ParseHighway(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "BR")
	s = strings.TrimLeft(s, "- ")
	if s == "" {
		return 0, invalid("br", "empty")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, invalid("br", fmt.Sprintf("not a number: %q", s))
	}
	return int(f), nil
}

// Input is a single prediction request as it arrives over the wire.
// Pointer fields tell "absent" from zero.
type Input struct {
	UF               string   `json:"uf" yaml:"uf"`
	BR               *Highway `json:"br" yaml:"br"`
	KM               *float64 `json:"km" yaml:"km"`
	Hour             *int     `json:"hour,omitempty" yaml:"hour,omitempty"`
	DayOfWeek        *int     `json:"dayOfWeek,omitempty" yaml:"dayOfWeek,omitempty"`
	Month            *int     `json:"month,omitempty" yaml:"month,omitempty"`
	WeatherCondition string   `json:"weatherCondition,omitempty" yaml:"weatherCondition,omitempty"`
	DayPhase         string   `json:"dayPhase,omitempty" yaml:"dayPhase,omitempty"`
	RoadType         string   `json:"roadType,omitempty" yaml:"roadType,omitempty"`
}

// Validate checks required fields and value ranges.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.UF) == "" {
		return missing("uf")
	}
	if in.BR == nil {
		return missing("br")
	}
	if in.KM == nil {
		return missing("km")
	}
	if *in.BR <= 0 {
		return invalid("br", "must be positive")
	}
	if *in.KM < 0 {
		return invalid("km", "must not be negative")
	}
	if in.Hour != nil && (*in.Hour < 0 || *in.Hour > 23) {
		return invalid("hour", "must be 0-23")
	}
	if in.DayOfWeek != nil && (*in.DayOfWeek < 0 || *in.DayOfWeek > 6) {
		return invalid("dayOfWeek", "must be 0-6")
	}
	if in.Month != nil && (*in.Month < 1 || *in.Month > 12) {
		return invalid("month", "must be 1-12")
	}
	return nil
}

// Query is a validated input with defaults applied and every categorical
// field mapped into the model vocabulary.
type Query struct {
	UF        string  `json:"uf" yaml:"uf"`
	BR        int     `json:"br" yaml:"br"`
	KM        float64 `json:"km" yaml:"km"`
	Hour      int     `json:"hour" yaml:"hour"`
	DayOfWeek int     `json:"day_of_week" yaml:"day_of_week"`
	Month     int     `json:"month" yaml:"month"`
	Weather   string  `json:"weather" yaml:"weather"`
	DayPhase  string  `json:"day_phase" yaml:"day_phase"`
	RoadType  string  `json:"road_type" yaml:"road_type"`
}

// Resolve validates the input and builds the query. When phaseFromHour is set
// and no day phase was given, the phase is derived from the hour.
func (in *Input) Resolve(phaseFromHour bool) (*Query, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	q := &Query{
		UF:        strings.ToUpper(strings.TrimSpace(in.UF)),
		BR:        int(*in.BR),
		KM:        *in.KM,
		Hour:      intOr(in.Hour, DefaultHour),
		DayOfWeek: intOr(in.DayOfWeek, DefaultDayOfWeek),
		Month:     intOr(in.Month, DefaultMonth),
		Weather:   NormalizeWeather(in.WeatherCondition),
		RoadType:  NormalizeRoadType(in.RoadType),
	}

	if phaseFromHour && strings.TrimSpace(in.DayPhase) == "" {
		q.DayPhase = DayPhaseForHour(q.Hour)
	} else {
		q.DayPhase = NormalizeDayPhase(in.DayPhase)
	}
	return q, nil
}

// Features encodes the query into the model feature vector.
func (q *Query) Features(enc model.Encoders) ([]float64, error) {
	codes := make(map[string]int, 4)
	for name, v := range map[string]string{
		model.EncoderUF:       q.UF,
		model.EncoderWeather:  q.Weather,
		model.EncoderDayPhase: q.DayPhase,
		model.EncoderRoadType: q.RoadType,
	} {
		e, err := enc.Get(name)
		if err != nil {
			return nil, err
		}
		c, err := e.Transform(v)
		if err != nil {
			return nil, err
		}
		codes[name] = c
	}

	return []float64{
		float64(codes[model.EncoderUF]),
		float64(q.BR),
		q.KM,
		float64(q.Hour),
		float64(q.DayOfWeek),
		float64(q.Month),
		float64(codes[model.EncoderWeather]),
		float64(codes[model.EncoderDayPhase]),
		float64(codes[model.EncoderRoadType]),
	}, nil
}

// IsNight reports whether the hour falls in the night window used for advice.
func IsNight(hour int) bool {
	return hour >= 18 || hour < 6
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
