package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	// SegmentSizeKM is the length of a highway segment.
	SegmentSizeKM = 10

	scoreRange = "0-100 (0=baixo risco, 100=alto risco)"
)

var errInvalidSegmentKey = errors.New("invalid segment key")

// Metadata describes how a table was generated.
type Metadata struct {
	GeneratedAt            string   `json:"generated_at" yaml:"generated_at"`
	TotalSegments          int      `json:"total_segments" yaml:"total_segments"`
	TotalAccidentsAnalyzed int      `json:"total_accidents_analyzed" yaml:"total_accidents_analyzed"`
	ModelType              string   `json:"model_type" yaml:"model_type"`
	Accuracy               string   `json:"accuracy" yaml:"accuracy"`
	Contexts               []string `json:"contexts" yaml:"contexts"`
	ScoreRange             string   `json:"score_range" yaml:"score_range"`
}

// Scores maps a context name to a 0-100 score.
type Scores map[string]float64

// Average returns the mean score across contexts.
func (s Scores) Average() float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

// Max returns the highest score across contexts.
func (s Scores) Max() float64 {
	m := 0.0
	for _, v := range s {
		m = math.Max(m, v)
	}
	return m
}

// Table is the precomputed risk lookup, keyed by segment key then context.
type Table struct {
	Metadata Metadata          `json:"metadata" yaml:"metadata"`
	Scores   map[string]Scores `json:"scores" yaml:"scores"`
}

// KMSegment returns the start of the segment containing km.
func KMSegment(km float64) int {
	return int(math.Floor(km/SegmentSizeKM)) * SegmentSizeKM
}

// SegmentKey builds the UF_BBB_KM key, e.g. SP_116_520.
func SegmentKey(uf string, br int, kmSegment int) string {
	return fmt.Sprintf("%s_%03d_%d", strings.ToUpper(uf), br, kmSegment)
}

// ParseSegmentKey splits a segment key into its parts.
func ParseSegmentKey(key string) (uf string, br int, km int, err error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: %s", errInvalidSegmentKey, key)
	}
	if br, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %s", errInvalidSegmentKey, key)
	}
	if km, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %s", errInvalidSegmentKey, key)
	}
	return parts[0], br, km, nil
}

// Parse decodes a table.
func Parse(r io.Reader) (*Table, error) {
	var t Table
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding risk table: %w", err)
	}
	if t.Scores == nil {
		return nil, errors.New("risk table has no scores")
	}
	return &t, nil
}

// Load reads the table from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening risk table %s: %w", path, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading risk table %s: %w", path, err)
	}
	return t, nil
}

// Write encodes the table as indented JSON.
func (t *Table) Write(w io.Writer) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	e.SetEscapeHTML(false)
	return e.Encode(t)
}

// Save writes the table to path.
func (t *Table) Save(path string) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	return t.Write(f)
}

// Row is a flattened table entry.
type Row struct {
	SegmentKey string  `json:"segment_key" yaml:"segment_key" parquet:"name=segment_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	UF         string  `json:"uf" yaml:"uf" parquet:"name=uf, type=BYTE_ARRAY, convertedtype=UTF8"`
	BR         int32   `json:"br" yaml:"br" parquet:"name=br, type=INT32"`
	KM         int32   `json:"km" yaml:"km" parquet:"name=km, type=INT32"`
	Context    string  `json:"context" yaml:"context" parquet:"name=context, type=BYTE_ARRAY, convertedtype=UTF8"`
	Score      float64 `json:"score" yaml:"score" parquet:"name=score, type=DOUBLE"`
}

// Rows flattens the table ordered by segment key and context.
func (t *Table) Rows() []Row {
	keys := make([]string, 0, len(t.Scores))
	for k := range t.Scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, 0, len(keys)*len(Contexts))
	for _, k := range keys {
		uf, br, km, err := ParseSegmentKey(k)
		if err != nil {
			continue
		}
		scores := t.Scores[k]
		ctxs := make([]string, 0, len(scores))
		for c := range scores {
			ctxs = append(ctxs, c)
		}
		sort.Strings(ctxs)
		for _, c := range ctxs {
			rows = append(rows, Row{
				SegmentKey: k,
				UF:         uf,
				BR:         int32(br),
				KM:         int32(km),
				Context:    c,
				Score:      scores[c],
			})
		}
	}
	return rows
}
