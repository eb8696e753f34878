package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/dataset"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

var (
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "DATATRAN accident file (.csv or .xlsx)",
		Required: true,
	}

	delimiterFlag = &cli.StringFlag{
		Name:  "delimiter",
		Usage: "CSV field delimiter",
		Value: string(dataset.DefaultDelimiter),
	}

	latin1Flag = &cli.BoolFlag{
		Name:  "latin1",
		Usage: "Decode CSV input from ISO-8859-1",
	}

	freshFlag = &cli.BoolFlag{
		Name:  "fresh",
		Usage: "Delete previously imported records first",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Stop after that many valid records (0: no limit)",
	}

	importCmd = &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import historical accident records",
		UsageText: `roadrisk import --file datatran2024.csv --latin1         # import a DATATRAN CSV export
   roadrisk import --file acidentes.xlsx --fresh             # replace all records with an Excel sheet`,
		Action: cmdImport,
		Flags: []cli.Flag{
			fileFlag,
			delimiterFlag,
			latin1Flag,
			freshFlag,
			limitFlag,
		},
	}
)

// ImportResult summarizes an import.
type ImportResult struct {
	File     string `json:"file" yaml:"file"`
	Rows     int    `json:"rows" yaml:"rows"`
	Skipped  int    `json:"skipped" yaml:"skipped"`
	Inserted int    `json:"inserted" yaml:"inserted"`
	Deleted  int64  `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

func cmdImport(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)
	path := c.String(fileFlag.Name)

	opts := dataset.Options{
		Latin1:     c.Bool(latin1Flag.Name),
		Source:     filepath.Base(path),
		MaxRecords: c.Int(limitFlag.Name),
	}
	if d := c.String(delimiterFlag.Name); d != "" {
		r, _ := utf8.DecodeRuneInString(d)
		opts.Delimiter = r
	}

	res, err := dataset.ReadFile(path, opts)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	slog.Debug("file read", "file", path, "records", len(res.Records), "skipped", res.Skipped)

	db, err := cfg.getDB()
	if err != nil {
		return err
	}

	summary := &ImportResult{
		File:    path,
		Rows:    res.Total,
		Skipped: res.Skipped,
	}

	bar := progressbar.NewOptions(len(res.Records),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	save := data.SaveAccidents
	if c.Bool(freshFlag.Name) {
		save = data.ReplaceAccidents
	}
	saved, err := save(db, res.Records, func(int) {
		_ = bar.Add(1)
	})
	if err != nil {
		return fmt.Errorf("saving records: %w", err)
	}
	_ = bar.Finish()

	summary.Inserted, summary.Deleted = saved.Inserted, saved.Deleted
	if summary.Deleted > 0 {
		slog.Info("previous records deleted", "count", summary.Deleted)
	}
	slog.Info("import complete", "file", path, "inserted", summary.Inserted, "skipped", summary.Skipped)

	return encode(summary)
}
