package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

var ErrorURLNotFound = errors.New("URL not found")

func getResp(ctx context.Context, url, token string) (*http.Response, error) {
	var (
		c   *http.Client
		err error
	)
	if token != "" {
		c, err = GetOAuthClient(ctx, token)
	} else {
		c, err = GetHTTPClient()
	}
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // URL comes from config or flags
	if err != nil {
		return nil, err
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		PrintHTTPResponse(resp)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrorURLNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d from %s%s", resp.StatusCode, resp.Request.URL.Host, resp.Request.URL.Path)
	}
	return nil
}

// Download saves the content at url into path. When token is set it is sent
// as a bearer token. The file is only replaced once the download completes.
func Download(ctx context.Context, url, path, token string) (retErr error) {
	resp, err := getResp(ctx, url, token)
	if err != nil {
		return fmt.Errorf("error downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return os.Rename(tmp, path)
}
