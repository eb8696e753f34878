package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roadrisk/roadrisk/pkg/config"
	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "roadrisk"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat           = formatJSON
	out          io.Writer = os.Stdout

	debugFlag = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Prints verbose logs (optional, default: false)",
		Sources: cli.EnvVars("ROADRISK_DEBUG"),
	}

	dbFlag = &cli.StringFlag{
		Name:    "db",
		Usage:   "Path to the sqlite database file or a postgres:// DSN",
		Sources: cli.EnvVars("ROADRISK_DB"),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the config file (default: ~/.roadrisk/config.yaml)",
		Sources: cli.EnvVars("ROADRISK_CONFIG"),
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfigKey struct{}

// appConfig is shared by all commands. The database is opened on first use
// so commands that only read artifacts never touch it.
type appConfig struct {
	HomeDir string
	DBPath  string
	Debug   bool
	Config  *config.Config

	db *sql.DB
}

func (a *appConfig) getDB() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	if err := data.Init(a.DBPath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(a.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *appConfig) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		slog.Debug("error closing database", "error", err)
	}
	a.db = nil
}

func getConfig(ctx context.Context) *appConfig {
	if cfg, ok := ctx.Value(appConfigKey{}).(*appConfig); ok {
		return cfg
	}
	return &appConfig{Config: config.Default()}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Accident severity risk scoring for Brazilian federal highways",
		Flags: []cli.Flag{
			debugFlag,
			dbFlag,
			formatFlag,
			configFlag,
		},
		Commands: []*cli.Command{
			importCmd,
			demoCmd,
			highwaysCmd,
			scoreCmd,
			queryCmd,
			pullCmd,
			authCmd,
			serverCmd,
			resetCmd,
		},
		Before: before,
		After: func(ctx context.Context, _ *cli.Command) error {
			getConfig(ctx).closeDB()
			return nil
		},
	}
}

func before(ctx context.Context, c *cli.Command) (context.Context, error) {
	debug := c.Bool(debugFlag.Name)
	if debug {
		logging.SetDefaultCLILogger("debug")
	}

	switch f := c.String(formatFlag.Name); f {
	case formatYAML, "yml":
		outputFormat = formatYAML
	case formatJSON, "":
		outputFormat = formatJSON
	default:
		return ctx, fmt.Errorf("unsupported output format: %s", f)
	}

	home := getHomeDir()

	var cfg *config.Config
	var err error
	if p := c.String(configFlag.Name); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.ReadOrCreate(home)
	}
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return ctx, fmt.Errorf("applying environment: %w", err)
	}

	dbPath := c.String(dbFlag.Name)
	if dbPath == "" {
		dbPath = filepath.Join(home, data.DataFileName)
	}

	return context.WithValue(ctx, appConfigKey{}, &appConfig{
		HomeDir: home,
		DBPath:  dbPath,
		Debug:   debug,
		Config:  cfg,
	}), nil
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created home dir", "path", dir)
	}
	return dir
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(out).Encode(v)
	}
	e := json.NewEncoder(out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// requireArtifact fails with a readable message when an input artifact is missing.
func requireArtifact(path string) error {
	if path == "" {
		return errors.New("artifact path not set")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("artifact %s not available: %w", path, err)
	}
	return nil
}
