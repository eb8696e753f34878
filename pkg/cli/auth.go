package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	keyFileName    = "weather_api_key"
	keyringService = "roadrisk"
	keyringUser    = "weather_api_key"
)

var (
	keyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "OpenWeatherMap API key (prompted when not set)",
	}

	authCmd = &cli.Command{
		Name:   "auth",
		Usage:  "Store the weather API key in the OS keychain",
		Action: cmdAuth,
		Flags:  []cli.Flag{keyFlag},
	}

	stdin io.Reader = os.Stdin
)

func cmdAuth(ctx context.Context, c *cli.Command) error {
	key := strings.TrimSpace(c.String(keyFlag.Name))
	if key == "" {
		fmt.Print("OpenWeatherMap API key: ")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading user input: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return errors.New("empty API key")
	}

	if err := saveWeatherKey(getConfig(ctx).HomeDir, key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}

	fmt.Println("Weather API key saved")
	return nil
}

func saveWeatherKey(dir, key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(filepath.Join(dir, keyFileName), []byte(key), 0600)
	}

	// drop the file copy once the keychain holds the key
	_ = os.Remove(filepath.Join(dir, keyFileName))
	return nil
}

// getWeatherKey reads the key from the keychain, then from the file fallback.
// A key found in the file is migrated to the keychain when possible.
func getWeatherKey(dir string) (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if err == nil && key != "" {
		return key, nil
	}

	p := filepath.Join(dir, keyFileName)
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("reading key file %s: %w", p, err)
	}
	key = strings.TrimSpace(string(b))

	if migrateErr := keyring.Set(keyringService, keyringUser, key); migrateErr == nil {
		slog.Info("migrated weather key from file to OS keychain")
		_ = os.Remove(p)
	}
	return key, nil
}
