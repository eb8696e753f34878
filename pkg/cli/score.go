package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roadrisk/roadrisk/pkg/config"
	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/export"
	"github.com/roadrisk/roadrisk/pkg/highway"
	"github.com/roadrisk/roadrisk/pkg/model"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
	"github.com/urfave/cli/v3"
)

var (
	outFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Output file (default: configured artifact path)",
	}

	minAccidentsFlag = &cli.IntFlag{
		Name:  "min-accidents",
		Usage: "Minimum accidents for a highway to be listed",
		Value: highway.DefaultMinAccidents,
	}

	highwaysCmd = &cli.Command{
		Name:   "highways",
		Usage:  "Build the highway catalog from the imported records",
		Action: cmdHighways,
		Flags: []cli.Flag{
			outFlag,
			minAccidentsFlag,
		},
	}

	modelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Risk model used to score segments (default: configured artifact path)",
	}

	encodersFlag = &cli.StringFlag{
		Name:  "encoders",
		Usage: "Encoders of the risk model (default: configured artifact path)",
	}

	statisticalFlag = &cli.BoolFlag{
		Name:  "statistical",
		Usage: "Score from history only, even when a model is available",
	}

	parquetFlag = &cli.StringFlag{
		Name:  "parquet",
		Usage: "Also write the table rows to this parquet file",
	}

	s3BucketFlag = &cli.StringFlag{
		Name:  "s3-bucket",
		Usage: "Upload the generated files to this S3 bucket",
	}

	scoreCmd = &cli.Command{
		Name:   "score",
		Usage:  "Build the per segment risk score table",
		Action: cmdScore,
		Flags: []cli.Flag{
			outFlag,
			modelFlag,
			encodersFlag,
			statisticalFlag,
			parquetFlag,
			s3BucketFlag,
		},
	}
)

func cmdHighways(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)
	db, err := cfg.getDB()
	if err != nil {
		return err
	}

	stats, err := data.GetHighwayStats(db)
	if err != nil {
		return fmt.Errorf("getting highway stats: %w", err)
	}

	cat := highway.Build(stats, c.Int(minAccidentsFlag.Name))

	path := outputPath(c, cfg.Config, cfg.Config.Artifacts.Highways)
	if err := cat.Save(path); err != nil {
		return fmt.Errorf("saving highway catalog: %w", err)
	}
	slog.Info("highway catalog saved", "path", path)

	return encode(cat.Statistics())
}

// ScoreResult summarizes a generated risk table.
type ScoreResult struct {
	Path     string        `json:"path" yaml:"path"`
	Parquet  string        `json:"parquet,omitempty" yaml:"parquet,omitempty"`
	Uploaded []string      `json:"uploaded,omitempty" yaml:"uploaded,omitempty"`
	Metadata risk.Metadata `json:"metadata" yaml:"metadata"`
}

func cmdScore(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)
	db, err := cfg.getDB()
	if err != nil {
		return err
	}

	stats, err := data.GetSegmentStats(db, data.SegmentSizeKM)
	if err != nil {
		return fmt.Errorf("getting segment stats: %w", err)
	}
	if len(stats) == 0 {
		return errors.New("no accident records, run import or demo first")
	}

	opts := risk.BuildOptions{}
	if !c.Bool(statisticalFlag.Name) {
		if err := scorerOptions(c, cfg.Config, &opts); err != nil {
			return err
		}
	}

	tbl, err := risk.Build(ctx, stats, opts)
	if err != nil {
		return fmt.Errorf("building risk table: %w", err)
	}

	res := &ScoreResult{
		Path:     outputPath(c, cfg.Config, cfg.Config.Artifacts.RiskTable),
		Parquet:  c.String(parquetFlag.Name),
		Metadata: tbl.Metadata,
	}
	if err := tbl.Save(res.Path); err != nil {
		return fmt.Errorf("saving risk table: %w", err)
	}
	slog.Info("risk table saved", "path", res.Path, "segments", tbl.Metadata.TotalSegments)

	if res.Parquet != "" {
		if err := export.WriteParquetFile(res.Parquet, tbl.Rows()); err != nil {
			return fmt.Errorf("writing parquet: %w", err)
		}
		slog.Info("risk table rows written", "path", res.Parquet)
	}

	bucket := c.String(s3BucketFlag.Name)
	if bucket == "" {
		bucket = cfg.Config.S3.Bucket
	}
	if bucket != "" {
		up, err := export.NewS3Uploader(ctx, cfg.Config.S3.Region, bucket, cfg.Config.S3.Prefix)
		if err != nil {
			return err
		}
		for _, f := range []string{res.Path, res.Parquet} {
			if f == "" {
				continue
			}
			uri, err := up.UploadFile(ctx, f)
			if err != nil {
				return err
			}
			res.Uploaded = append(res.Uploaded, uri)
		}
	}

	return encode(res)
}

// scorerOptions loads the risk model when one is available. A model set
// explicitly must load; the configured default is optional.
func scorerOptions(c *cli.Command, cfg *config.Config, opts *risk.BuildOptions) error {
	explicit := c.String(modelFlag.Name) != ""

	paths := model.Paths{
		RiskModel: c.String(modelFlag.Name),
		Encoders:  c.String(encodersFlag.Name),
	}
	if paths.RiskModel == "" {
		paths.RiskModel = cfg.Artifacts.Path(cfg.Artifacts.RiskModel)
	}
	if paths.Encoders == "" {
		paths.Encoders = cfg.Artifacts.Path(cfg.Artifacts.Encoders)
	}

	if err := requireArtifact(paths.RiskModel); err != nil {
		if explicit {
			return err
		}
		slog.Info("risk model not found, scoring from history only", "path", paths.RiskModel)
		return nil
	}

	b, err := model.LoadBundle(paths)
	if err != nil {
		return fmt.Errorf("loading risk model: %w", err)
	}

	opts.Scorer = predict.NewPredictor(b, predict.Options{})
	opts.ModelType = b.Risk.ModelType
	opts.Accuracy = b.Risk.Accuracy
	slog.Info("scoring with risk model", "path", paths.RiskModel, "type", b.Risk.ModelType)
	return nil
}

func outputPath(c *cli.Command, cfg *config.Config, name string) string {
	if p := c.String(outFlag.Name); p != "" {
		return p
	}
	if dir := cfg.Artifacts.Dir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Debug("error creating artifact dir", "path", dir, "error", err)
		}
	}
	return cfg.Artifacts.Path(name)
}
