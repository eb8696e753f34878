package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/urfave/cli/v3"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}

	resetCmd = &cli.Command{
		Name:   "reset",
		Usage:  "Delete all imported records and start fresh",
		Action: cmdReset,
		Flags:  []cli.Flag{yesFlag},
	}
)

func cmdReset(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)

	if !c.Bool(yesFlag.Name) {
		fmt.Printf("This will permanently delete all records in %s\n", cfg.DBPath)
		fmt.Print("Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if data.IsPostgresDSN(cfg.DBPath) {
		db, err := cfg.getDB()
		if err != nil {
			return err
		}
		n, err := data.ClearAccidents(db)
		if err != nil {
			return fmt.Errorf("clearing records: %w", err)
		}
		slog.Info("records deleted", "count", n)
		fmt.Println("Reset complete.")
		return nil
	}

	// close the DB before deleting the file
	cfg.closeDB()

	if err := os.Remove(cfg.DBPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting database: %w", err)
	}
	slog.Info("database deleted", "path", cfg.DBPath)

	if err := data.Init(cfg.DBPath); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}
	slog.Info("database re-initialized", "path", cfg.DBPath)

	fmt.Println("Reset complete.")
	return nil
}
