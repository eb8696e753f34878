package highway

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

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/predict"
)

const (
	// DefaultMinAccidents drops highways with too little history to bound.
	DefaultMinAccidents = 5

	statisticsTop = 10
)

var ErrNotFound = errors.New("highway not found")

// names of well known federal highways, keyed by zero padded number.
var names = map[string]string{
	"010": "BR-010 (Belém-Brasília)",
	"020": "BR-020 (Brasília-Fortaleza)",
	"040": "BR-040 (Rio-Brasília)",
	"070": "BR-070 (Mato Grosso)",
	"101": "BR-101 (Rio-Santos)",
	"116": "BR-116 (Régis Bittencourt)",
	"135": "BR-135 (Maranhão)",
	"153": "BR-153 (Transbrasiliana)",
	"163": "BR-163 (Santarém-Cuiabá)",
	"222": "BR-222 (Maranhão-Piauí)",
	"230": "BR-230 (Transamazônica)",
	"232": "BR-232 (Pernambuco)",
	"251": "BR-251 (Conectividade Regional)",
	"262": "BR-262 (Litoral Sudeste)",
	"277": "BR-277 (Paraná)",
	"282": "BR-282 (Santa Catarina)",
	"287": "BR-287 (Rio Grande do Sul)",
	"290": "BR-290 (Transbrasiliana Sul)",
	"356": "BR-356 (Rio de Janeiro)",
	"364": "BR-364 (Cuiabá-Porto Velho)",
	"365": "BR-365 (Minas Gerais)",
	"369": "BR-369 (Paraná Interior)",
	"376": "BR-376 (Paraná)",
	"381": "BR-381 (Fernão Dias)",
	"386": "BR-386 (Rio Grande do Sul)",
	"393": "BR-393 (Rio de Janeiro)",
	"405": "BR-405 (Paraíba)",
	"407": "BR-407 (Pernambuco)",
	"429": "BR-429 (Rondônia)",
}

// Name returns the display name of a highway.
func Name(br int) string {
	if n, ok := names[fmt.Sprintf("%03d", br)]; ok {
		return n
	}
	return fmt.Sprintf("BR-%d", br)
}

// Info describes the observed extent of a highway within one state.
type Info struct {
	BR        string  `json:"br" yaml:"br"`
	Name      string  `json:"name" yaml:"name"`
	MinKM     float64 `json:"min_km" yaml:"min_km"`
	MaxKM     float64 `json:"max_km" yaml:"max_km"`
	Accidents int     `json:"accidents" yaml:"accidents"`
	LengthKM  float64 `json:"length_km" yaml:"length_km"`
}

// Located is an Info with its state.
type Located struct {
	UF string `json:"uf" yaml:"uf"`
	Info
}

// Catalog lists highways per state, most accidents first.
type Catalog map[string][]Info

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// normalizeBR accepts 116, "116", "BR-116" or "040" and returns "116" or "40".
func normalizeBR(br string) string {
	n, err := predict.ParseHighway(br)
	if err != nil {
		return strings.TrimSpace(br)
	}
	return strconv.Itoa(n)
}

// Build creates the catalog from per highway stats, keeping highways with
// at least minAccidents records.
func Build(stats []*data.HighwayStats, minAccidents int) Catalog {
	if minAccidents <= 0 {
		minAccidents = DefaultMinAccidents
	}

	c := make(Catalog)
	for _, s := range stats {
		if s == nil || s.UF == "" || s.BR <= 0 || s.Accidents < minAccidents {
			continue
		}
		uf := strings.ToUpper(s.UF)
		c[uf] = append(c[uf], Info{
			BR:        strconv.Itoa(s.BR),
			Name:      Name(s.BR),
			MinKM:     round1(s.MinKM),
			MaxKM:     round1(s.MaxKM),
			Accidents: s.Accidents,
			LengthKM:  round1(s.MaxKM - s.MinKM),
		})
	}

	for uf := range c {
		list := c[uf]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Accidents > list[j].Accidents
		})
	}
	return c
}

// Parse decodes a catalog.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding highway catalog: %w", err)
	}
	if c == nil {
		c = make(Catalog)
	}
	return c, nil
}

// Load reads the catalog from path.
func Load(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening highway catalog %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Save writes the catalog to path as indented JSON.
func (c Catalog) Save(path string) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	e := json.NewEncoder(f)
	e.SetIndent("", "  ")
	e.SetEscapeHTML(false)
	return e.Encode(c)
}

// ByUF returns the highways of a state, never nil.
func (c Catalog) ByUF(uf string) []Info {
	if list, ok := c[strings.ToUpper(strings.TrimSpace(uf))]; ok {
		return list
	}
	return []Info{}
}

// Get returns a single highway of a state.
func (c Catalog) Get(uf, br string) (*Info, error) {
	want := normalizeBR(br)
	for _, hw := range c.ByUF(uf) {
		if normalizeBR(hw.BR) == want {
			v := hw
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%w: BR-%s in %s", ErrNotFound, want, strings.ToUpper(uf))
}

// Validation is the result of ValidateKM.
type Validation struct {
	Valid   bool   `json:"valid" yaml:"valid"`
	Highway *Info  `json:"highway,omitempty" yaml:"highway,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ValidateKM checks the km falls within the observed extent of the highway.
func (c Catalog) ValidateKM(uf, br string, km float64) *Validation {
	hw, err := c.Get(uf, br)
	if err != nil {
		return &Validation{
			Message: fmt.Sprintf("Rodovia BR-%s não encontrada no estado %s", normalizeBR(br), strings.ToUpper(uf)),
		}
	}
	if km < hw.MinKM || km > hw.MaxKM {
		return &Validation{
			Highway: hw,
			Message: fmt.Sprintf("KM %g está fora dos limites da %s (KM %g-%g)", km, hw.Name, hw.MinKM, hw.MaxKM),
		}
	}
	return &Validation{Valid: true, Highway: hw}
}

// UFs returns the states in the catalog, sorted.
func (c Catalog) UFs() []string {
	out := make([]string, 0, len(c))
	for uf := range c {
		out = append(out, uf)
	}
	sort.Strings(out)
	return out
}

func (c Catalog) all(uf string) []Located {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	out := make([]Located, 0)
	for _, state := range c.UFs() {
		if uf != "" && state != uf {
			continue
		}
		for _, hw := range c[state] {
			out = append(out, Located{UF: state, Info: hw})
		}
	}
	return out
}

func byAccidents(list []Located) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Accidents > list[j].Accidents
	})
}

// Search matches the query against highway names and numbers, optionally
// within one state.
func (c Catalog) Search(query, uf string) []Located {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Located, 0)
	for _, hw := range c.all(uf) {
		if strings.Contains(strings.ToLower(hw.Name), q) || strings.Contains(hw.BR, q) {
			out = append(out, hw)
		}
	}
	byAccidents(out)
	return out
}

// Option is a select list entry.
type Option struct {
	Value     string  `json:"value" yaml:"value"`
	Label     string  `json:"label" yaml:"label"`
	BR        string  `json:"br" yaml:"br"`
	MinKM     float64 `json:"min_km" yaml:"min_km"`
	MaxKM     float64 `json:"max_km" yaml:"max_km"`
	Accidents int     `json:"accidents" yaml:"accidents"`
}

// DropdownOptions lists the highways of a state as select options.
func (c Catalog) DropdownOptions(uf string) []Option {
	list := c.ByUF(uf)
	out := make([]Option, 0, len(list))
	for _, hw := range list {
		out = append(out, Option{
			Value:     hw.BR,
			Label:     fmt.Sprintf("%s (KM %g-%g)", hw.Name, hw.MinKM, hw.MaxKM),
			BR:        hw.BR,
			MinKM:     hw.MinKM,
			MaxKM:     hw.MaxKM,
			Accidents: hw.Accidents,
		})
	}
	return out
}

// Statistics summarizes the catalog.
type Statistics struct {
	TotalUFs      int       `json:"total_ufs" yaml:"total_ufs"`
	TotalHighways int       `json:"total_highways" yaml:"total_highways"`
	MostDangerous []Located `json:"most_dangerous_highways" yaml:"most_dangerous_highways"`
}

// Statistics counts states and highways and lists the ten with most accidents.
func (c Catalog) Statistics() *Statistics {
	list := c.all("")
	byAccidents(list)
	if len(list) > statisticsTop {
		list = list[:statisticsTop]
	}

	total := 0
	for _, hws := range c {
		total += len(hws)
	}
	return &Statistics{
		TotalUFs:      len(c),
		TotalHighways: total,
		MostDangerous: list,
	}
}
