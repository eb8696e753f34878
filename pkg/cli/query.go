package cli

import (
	"context"
	"fmt"

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
	"github.com/urfave/cli/v3"
)

const (
	queryLimitDefault = 20
)

var (
	ufFlag = &cli.StringFlag{
		Name:  "uf",
		Usage: "State abbreviation (e.g. SP)",
	}

	brFlag = &cli.StringFlag{
		Name:  "br",
		Usage: "Federal highway number (e.g. 116 or BR-116)",
	}

	kmFlag = &cli.FloatFlag{
		Name:  "km",
		Usage: "Kilometer marker",
	}

	hourFlag = &cli.IntFlag{
		Name:  "hour",
		Usage: "Hour of day 0-23",
		Value: predict.DefaultHour,
	}

	dayOfWeekFlag = &cli.IntFlag{
		Name:  "day-of-week",
		Usage: "Day of week, Monday is 0",
		Value: predict.DefaultDayOfWeek,
	}

	weatherFlag = &cli.StringFlag{
		Name:  "weather",
		Usage: "Weather condition (claro, nublado, chuva, neblina...)",
	}

	modelScoreFlag = &cli.BoolFlag{
		Name:  "ml",
		Usage: "Score with the risk and classification models instead of the table",
	}

	queryLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of results",
		Value: queryLimitDefault,
	}

	searchFlag = &cli.StringFlag{
		Name:     "query",
		Aliases:  []string{"q"},
		Usage:    "Highway name or number to search for",
		Required: true,
	}

	queryCmd = &cli.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "Query risk scores, segments and highways from local artifacts",
		Commands: []*cli.Command{
			{
				Name:   "risk",
				Usage:  "Risk score of a highway location",
				Action: cmdQueryRisk,
				Flags: []cli.Flag{
					ufFlag,
					brFlag,
					kmFlag,
					hourFlag,
					dayOfWeekFlag,
					weatherFlag,
					modelScoreFlag,
				},
			},
			{
				Name:   "segments",
				Usage:  "List high risk segments",
				Action: cmdQuerySegments,
				Flags:  []cli.Flag{queryLimitFlag},
			},
			{
				Name:   "stats",
				Usage:  "Risk table and record statistics",
				Action: cmdQueryStats,
			},
			{
				Name:  "highway",
				Usage: "Highway catalog lookups",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List the highways of a state, or the states",
						Action: cmdQueryHighwayList,
						Flags:  []cli.Flag{ufFlag},
					},
					{
						Name:   "validate",
						Usage:  "Check a km marker is within a highway",
						Action: cmdQueryHighwayValidate,
						Flags:  []cli.Flag{ufFlag, brFlag, kmFlag},
					},
					{
						Name:   "search",
						Usage:  "Search highways by name or number",
						Action: cmdQueryHighwaySearch,
						Flags:  []cli.Flag{searchFlag, ufFlag},
					},
				},
			},
		},
	}
)

func artifacts(ctx context.Context) (*state, error) {
	cfg := getConfig(ctx).Config
	return loadState(cfg.Artifacts, predict.Options{
		Concurrency: cfg.Server.Concurrency,
		MaxBatch:    cfg.Server.MaxBatch,
	})
}

func inputFromFlags(c *cli.Command) (*predict.Input, error) {
	br, err := predict.ParseHighway(c.String(brFlag.Name))
	if err != nil {
		return nil, err
	}
	h := predict.Highway(br)
	in := &predict.Input{
		UF:               c.String(ufFlag.Name),
		BR:               &h,
		KM:               predict.Ptr(c.Float(kmFlag.Name)),
		Hour:             predict.Ptr(c.Int(hourFlag.Name)),
		DayOfWeek:        predict.Ptr(c.Int(dayOfWeekFlag.Name)),
		WeatherCondition: c.String(weatherFlag.Name),
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func cmdQueryRisk(ctx context.Context, c *cli.Command) error {
	in, err := inputFromFlags(c)
	if err != nil {
		return err
	}
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}

	if c.Bool(modelScoreFlag.Name) {
		res, err := s.ensemble.Predict(ctx, in)
		if err != nil {
			return err
		}
		return encode(res)
	}

	p, err := s.table.Predict(in)
	if err != nil {
		return err
	}
	return encode(p)
}

func cmdQuerySegments(ctx context.Context, c *cli.Command) error {
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}
	if s.table == nil {
		return errNoTable
	}
	return encode(s.table.HighRiskSegments(c.Int(queryLimitFlag.Name)))
}

// QueryStats combines the risk table and the record store statistics.
type QueryStats struct {
	RiskTable *risk.Statistics `json:"risk_table" yaml:"risk_table"`
	Records   map[string]int64 `json:"records,omitempty" yaml:"records,omitempty"`
}

func cmdQueryStats(ctx context.Context, _ *cli.Command) error {
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}
	res := &QueryStats{RiskTable: s.table.Statistics()}

	cfg := getConfig(ctx)
	if exists(cfg.DBPath) || data.IsPostgresDSN(cfg.DBPath) {
		db, err := cfg.getDB()
		if err != nil {
			return err
		}
		if res.Records, err = data.GetDataState(db); err != nil {
			return fmt.Errorf("getting record stats: %w", err)
		}
	}
	return encode(res)
}

func cmdQueryHighwayList(ctx context.Context, c *cli.Command) error {
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}
	uf := c.String(ufFlag.Name)
	if uf == "" {
		return encode(s.catalog.UFs())
	}
	return encode(s.catalog.ByUF(uf))
}

func cmdQueryHighwayValidate(ctx context.Context, c *cli.Command) error {
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}
	return encode(s.catalog.ValidateKM(c.String(ufFlag.Name), c.String(brFlag.Name), c.Float(kmFlag.Name)))
}

func cmdQueryHighwaySearch(ctx context.Context, c *cli.Command) error {
	s, err := artifacts(ctx)
	if err != nil {
		return err
	}
	return encode(s.catalog.Search(c.String(searchFlag.Name), c.String(ufFlag.Name)))
}
