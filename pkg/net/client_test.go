package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client, err := GetHTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, client.Jar)
}

func TestGetOAuthClient(t *testing.T) {
	client, err := GetOAuthClient(context.Background(), "test-token")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestPrintHTTPResponse_Nil(t *testing.T) {
	// should not panic
	PrintHTTPResponse(nil)
}

func TestPrintHTTPResponse_WithResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	// should not panic
	PrintHTTPResponse(resp)
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /scores.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "scores", "count": 3}`))
	})
	mux.HandleFunc("GET /private.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestGetJSON(t *testing.T) {
	s := testServer(t)

	var v struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, GetJSON(context.Background(), s.URL+"/scores.json", &v))
	assert.Equal(t, "scores", v.Name)
	assert.Equal(t, 3, v.Count)

	err := GetJSON(context.Background(), s.URL+"/missing.json", &v)
	assert.ErrorIs(t, err, ErrorURLNotFound)
}

func TestDownload(t *testing.T) {
	s := testServer(t)
	dir := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(dir, "scores.json")
	require.NoError(t, Download(ctx, s.URL+"/scores.json", path, ""))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "scores")

	private := filepath.Join(dir, "private.json")
	assert.Error(t, Download(ctx, s.URL+"/private.json", private, ""))
	assert.NoFileExists(t, private)
	assert.NoFileExists(t, private+".part")

	require.NoError(t, Download(ctx, s.URL+"/private.json", private, "secret"))
	assert.FileExists(t, private)
}
