package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/urfave/cli/v3"
)

const (
	demoRecordsDefault = 1000
	demoSource         = "demo"
)

var (
	recordsFlag = &cli.IntFlag{
		Name:  "records",
		Usage: "Number of synthetic accidents to generate",
		Value: demoRecordsDefault,
	}

	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed (0: time based)",
	}

	demoCmd = &cli.Command{
		Name:   "demo",
		Usage:  "Populate the store with synthetic accidents",
		Action: cmdDemo,
		Flags: []cli.Flag{
			recordsFlag,
			seedFlag,
			freshFlag,
		},
	}

	demoHighways = []struct {
		uf     string
		br     int
		minKM  int
		maxKM  int
		weight int
	}{
		{"SP", 116, 0, 610, 5},
		{"SP", 381, 0, 94, 3},
		{"MG", 381, 0, 480, 4},
		{"MG", 40, 480, 780, 3},
		{"RJ", 101, 0, 590, 3},
		{"PR", 277, 0, 730, 2},
		{"SC", 101, 0, 465, 3},
		{"RS", 290, 0, 725, 2},
		{"BA", 116, 0, 940, 2},
		{"GO", 153, 0, 650, 1},
	}

	demoWeather = []string{
		predict.WeatherClear, predict.WeatherClear, predict.WeatherClear,
		predict.WeatherCloudy, predict.WeatherRain, predict.WeatherFog,
	}
	demoRoads = []string{predict.RoadSingle, predict.RoadSingle, predict.RoadDouble, predict.RoadMultiple}
)

func cmdDemo(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)

	n := c.Int(recordsFlag.Name)
	if n <= 0 {
		return fmt.Errorf("invalid number of records: %d", n)
	}

	seed := c.Int64(seedFlag.Name)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	list := generateAccidents(faker.NewWithSeed(rand.NewSource(seed)), n, time.Now().UTC())

	db, err := cfg.getDB()
	if err != nil {
		return err
	}

	save := data.SaveAccidents
	if c.Bool(freshFlag.Name) {
		save = data.ReplaceAccidents
	}
	res, err := save(db, list, nil)
	if err != nil {
		return fmt.Errorf("saving demo records: %w", err)
	}
	summary := &ImportResult{File: demoSource, Rows: n, Inserted: res.Inserted, Deleted: res.Deleted}

	slog.Info("demo records generated", "records", n, "seed", seed)
	return encode(summary)
}

// generateAccidents returns n accidents spread over the last year. Night,
// rain and fog make injuries and deaths more likely.
func generateAccidents(fake faker.Faker, n int, now time.Time) []*data.Accident {
	total := 0
	for _, h := range demoHighways {
		total += h.weight
	}

	list := make([]*data.Accident, 0, n)
	for range n {
		pick := fake.IntBetween(0, total-1)
		h := demoHighways[0]
		for _, v := range demoHighways {
			if pick < v.weight {
				h = v
				break
			}
			pick -= v.weight
		}

		at := fake.Time().TimeBetween(now.AddDate(-1, 0, 0), now).Truncate(time.Minute)
		weather := fake.RandomStringElement(demoWeather)

		risk := 10
		if predict.IsNight(at.Hour()) {
			risk += 15
		}
		if weather == predict.WeatherRain || weather == predict.WeatherFog {
			risk += 15
		}

		a := &data.Accident{
			UF:         h.uf,
			BR:         h.br,
			KM:         fake.Float64(1, h.minKM, h.maxKM),
			OccurredAt: at,
			Weather:    weather,
			DayPhase:   predict.DayPhaseForHour(at.Hour()),
			RoadType:   fake.RandomStringElement(demoRoads),
			Source:     demoSource,
		}

		switch roll := fake.IntBetween(0, 99); {
		case roll < risk/4:
			a.Deaths = fake.IntBetween(1, 3)
		case roll < risk*2:
			a.MinorInjuries = fake.IntBetween(1, 4)
			if fake.Boolean().Bool() {
				a.SeriousInjuries = 1
			}
		}
		list = append(list, a)
	}
	return list
}
