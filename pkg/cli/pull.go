package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"

	"github.com/roadrisk/roadrisk/pkg/net"
	"github.com/urfave/cli/v3"
)

var (
	urlFlag = &cli.StringFlag{
		Name:     "url",
		Usage:    "Artifact URL",
		Required: true,
	}

	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token sent with the request (optional)",
		Sources: cli.EnvVars("ROADRISK_ARTIFACT_TOKEN"),
	}

	pullCmd = &cli.Command{
		Name:  "pull",
		Usage: "Download a model or table artifact into the artifact directory",
		UsageText: `roadrisk pull --url https://example.com/models/risk_model.json
   roadrisk pull --url https://example.com/risk_scores.json --out /tmp/risk.json --token $TOKEN`,
		Action: cmdPull,
		Flags: []cli.Flag{
			urlFlag,
			outFlag,
			tokenFlag,
		},
	}
)

// PullResult describes a downloaded artifact.
type PullResult struct {
	URL  string `json:"url" yaml:"url"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

func cmdPull(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx).Config
	src := c.String(urlFlag.Name)

	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid url: %s", src)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return fmt.Errorf("url has no file name: %s", src)
	}

	dst := outputPath(c, cfg, name)
	if err := net.Download(ctx, src, dst, c.String(tokenFlag.Name)); err != nil {
		return err
	}

	st, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("checking %s: %w", dst, err)
	}
	slog.Info("artifact downloaded", "url", src, "path", dst)

	return encode(&PullResult{URL: src, Path: dst, Size: st.Size()})
}
