package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	EncoderUF       = "uf"
	EncoderWeather  = "clima_categoria"
	EncoderDayPhase = "fase_dia_categoria"
	EncoderRoadType = "tipo_pista_categoria"
)

var (
	// ErrUnseenCategory is returned when a value was not part of the encoder's fitted classes.
	ErrUnseenCategory = errors.New("unseen category value")

	errEncoderNotFound = errors.New("encoder not found")

	requiredEncoders = []string{EncoderUF, EncoderWeather, EncoderDayPhase, EncoderRoadType}
)

// Encoder maps categorical values to the integer codes a model was trained with.
// The code of a value is its position in the fitted class list.
type Encoder struct {
	name    string
	classes []string
	index   map[string]int
}

func NewEncoder(name string, classes []string) (*Encoder, error) {
	if name == "" {
		return nil, errors.New("encoder name required")
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder %s has no classes", name)
	}

	e := &Encoder{
		name:    name,
		classes: make([]string, len(classes)),
		index:   make(map[string]int, len(classes)),
	}
	for i, c := range classes {
		if _, ok := e.index[c]; ok {
			return nil, fmt.Errorf("encoder %s has duplicate class %q", name, c)
		}
		e.classes[i] = c
		e.index[c] = i
	}
	return e, nil
}

func (e *Encoder) Name() string {
	return e.name
}

// Transform returns the code for v or ErrUnseenCategory.
func (e *Encoder) Transform(v string) (int, error) {
	i, ok := e.index[v]
	if !ok {
		return 0, fmt.Errorf("%w: %s=%q", ErrUnseenCategory, e.name, v)
	}
	return i, nil
}

func (e *Encoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

func (e *Encoder) Len() int {
	return len(e.classes)
}

// Encoders is the set of fitted encoders keyed by the column they encode.
type Encoders map[string]*Encoder

func (e Encoders) Get(name string) (*Encoder, error) {
	enc, ok := e[name]
	if !ok || enc == nil {
		return nil, fmt.Errorf("%w: %s", errEncoderNotFound, name)
	}
	return enc, nil
}

// Names returns the encoder names in sorted order.
func (e Encoders) Names() []string {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e Encoders) MarshalJSON() ([]byte, error) {
	m := make(map[string][]string, len(e))
	for k, v := range e {
		m[k] = v.classes
	}
	return json.Marshal(m)
}

// ParseEncoders decodes a JSON object of column name to class list.
func ParseEncoders(r io.Reader) (Encoders, error) {
	var m map[string][]string
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding encoders: %w", err)
	}

	out := make(Encoders, len(m))
	for name, classes := range m {
		enc, err := NewEncoder(name, classes)
		if err != nil {
			return nil, err
		}
		out[name] = enc
	}

	for _, name := range requiredEncoders {
		if _, err := out.Get(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadEncoders reads the encoders artifact from path.
func LoadEncoders(path string) (Encoders, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening encoders %s: %w", path, err)
	}
	defer f.Close()

	enc, err := ParseEncoders(f)
	if err != nil {
		return nil, fmt.Errorf("loading encoders %s: %w", path, err)
	}
	return enc, nil
}
