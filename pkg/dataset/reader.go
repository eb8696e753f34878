package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const (
	DefaultDelimiter = ';'
	defaultHour      = 12
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingColumn     = errors.New("missing required column")

	dateColumns = []string{"data_inversa", "data"}
	dateLayouts = []string{"2006-01-02", "02/01/2006", "02/01/06", "2006/01/02"}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// Options controls how a source file is read.
type Options struct {
	// Delimiter of CSV files, ';' when zero.
	Delimiter rune
	// Latin1 decodes CSV input from ISO-8859-1.
	Latin1 bool
	// Source is stored with each record.
	Source string
	// MaxRecords stops reading after that many valid records when positive.
	MaxRecords int
}

// Result holds the records read and the number of rows skipped.
type Result struct {
	Records []*data.Accident `json:"-" yaml:"-"`
	Total   int              `json:"total" yaml:"total"`
	Skipped int              `json:"skipped" yaml:"skipped"`
}

// ReadFile reads a .csv or .xlsx file.
func ReadFile(path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, opts)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadCSV reads DATATRAN style CSV records.
func ReadCSV(r io.Reader, opts Options) (*Result, error) {
	if opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = DefaultDelimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	return readRows(header, cr.Read, opts)
}

// ReadXLSX reads records from the first sheet of an Excel workbook.
func ReadXLSX(path string, opts Options) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	next := func() ([]string, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return rows.Columns()
	}

	header, err := next()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return readRows(header, next, opts)
}

type columns map[string]int

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) first(row []string, names ...string) string {
	for _, n := range names {
		if v := c.get(row, n); v != "" {
			return v
		}
	}
	return ""
}

func indexHeader(header []string) (columns, error) {
	c := make(columns, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		c[h] = i
	}

	for _, req := range []string{"uf", "br", "km"} {
		if _, ok := c[req]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, req)
		}
	}
	for _, d := range dateColumns {
		if _, ok := c[d]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(dateColumns, " or "))
}

func readRows(header []string, next func() ([]string, error), opts Options) (*Result, error) {
	cols, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	res := &Result{Records: make([]*data.Accident, 0)}
	for {
		row, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", res.Total+2, err)
		}
		res.Total++

		a, err := parseRow(cols, row)
		if err != nil {
			slog.Debug("skipping row", "row", res.Total+1, "error", err)
			res.Skipped++
			continue
		}
		a.Source = opts.Source
		res.Records = append(res.Records, a)

		if opts.MaxRecords > 0 && len(res.Records) >= opts.MaxRecords {
			break
		}
	}
	return res, nil
}

func parseRow(c columns, row []string) (*data.Accident, error) {
	uf := strings.ToUpper(c.get(row, "uf"))
	if uf == "" {
		return nil, errors.New("empty uf")
	}

	br, err := parseDecimal(c.get(row, "br"))
	if err != nil || br <= 0 {
		return nil, fmt.Errorf("invalid br %q", c.get(row, "br"))
	}

	km, err := parseDecimal(c.get(row, "km"))
	if err != nil || km < 0 {
		return nil, fmt.Errorf("invalid km %q", c.get(row, "km"))
	}

	at, err := parseTimestamp(c.first(row, dateColumns...), c.get(row, "horario"))
	if err != nil {
		return nil, err
	}

	a := &data.Accident{
		ID:              c.get(row, "id"),
		UF:              uf,
		BR:              int(br),
		KM:              km,
		OccurredAt:      at,
		Weather:         WeatherCategory(c.get(row, "condicao_metereologica")),
		DayPhase:        DayPhaseCategory(c.get(row, "fase_dia")),
		RoadType:        RoadTypeCategory(c.get(row, "tipo_pista")),
		Deaths:          parseCount(c.get(row, "mortos")),
		SeriousInjuries: parseCount(c.get(row, "feridos_graves")),
		MinorInjuries:   parseCount(c.get(row, "feridos_leves")),
	}

	if lat, err := parseDecimal(c.get(row, "latitude")); err == nil {
		a.Latitude = &lat
	}
	if lon, err := parseDecimal(c.get(row, "longitude")); err == nil {
		a.Longitude = &lon
	}
	return a, nil
}

// parseDecimal accepts both "523.4" and "523,4".
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func parseCount(s string) int {
	v, err := parseDecimal(s)
	if err != nil || v < 0 {
		return 0
	}
	return int(v)
}

// parseTimestamp combines a date and an optional time, defaulting to noon.
func parseTimestamp(date, clock string) (time.Time, error) {
	var d time.Time
	var err error
	for _, l := range dateLayouts {
		if d, err = time.Parse(l, date); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}

	for _, l := range timeLayouts {
		if t, err := time.Parse(l, clock); err == nil {
			return d.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
		}
	}
	return d.Add(defaultHour * time.Hour), nil
}
