package cli

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/roadrisk/roadrisk/pkg/config"
	"github.com/roadrisk/roadrisk/pkg/data"
	"github.com/roadrisk/roadrisk/pkg/highway"
	"github.com/roadrisk/roadrisk/pkg/model/modeltest"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func captureOutput(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFormat := out, outputFormat
	out, outputFormat = &buf, format
	t.Cleanup(func() {
		out, outputFormat = prevOut, prevFormat
	})
	return &buf
}

func TestEncode(t *testing.T) {
	v := &PullResult{URL: "https://example.com/m.json", Path: "m.json", Size: 12}

	buf := captureOutput(t, formatJSON)
	require.NoError(t, encode(v))
	assert.JSONEq(t, `{"url": "https://example.com/m.json", "path": "m.json", "size": 12}`, buf.String())

	buf = captureOutput(t, formatYAML)
	require.NoError(t, encode(v))
	assert.Contains(t, buf.String(), "path: m.json")
	assert.Contains(t, buf.String(), "size: 12")
}

func TestRequireArtifact(t *testing.T) {
	assert.Error(t, requireArtifact(""))
	assert.Error(t, requireArtifact(filepath.Join(t.TempDir(), "missing.json")))

	p := filepath.Join(t.TempDir(), "present.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0600))
	assert.NoError(t, requireArtifact(p))
}

func TestGetConfig_Default(t *testing.T) {
	cfg := getConfig(context.Background())
	require.NotNil(t, cfg.Config)
	assert.Equal(t, config.Default().Server.Port, cfg.Config.Server.Port)
}

func TestGenerateAccidents(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	a := generateAccidents(faker.NewWithSeed(rand.NewSource(7)), 200, now)
	b := generateAccidents(faker.NewWithSeed(rand.NewSource(7)), 200, now)
	require.Len(t, a, 200)
	require.Len(t, b, 200)

	for i := range a {
		assert.Equal(t, a[i].UF, b[i].UF)
		assert.Equal(t, a[i].KM, b[i].KM)
		assert.Equal(t, a[i].OccurredAt, b[i].OccurredAt)

		assert.NotEmpty(t, a[i].UF)
		assert.Positive(t, a[i].BR)
		assert.GreaterOrEqual(t, a[i].KM, 0.0)
		assert.False(t, a[i].OccurredAt.After(now))
		assert.Equal(t, predict.DayPhaseForHour(a[i].OccurredAt.Hour()), a[i].DayPhase)
		assert.Equal(t, demoSource, a[i].Source)
	}
}

// demo records scored into a table and catalog, then served back.
func TestDemoPipeline(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, data.DataFileName)
	require.NoError(t, data.Init(dbPath))
	db, err := data.GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	list := generateAccidents(faker.NewWithSeed(rand.NewSource(42)), 500, time.Now().UTC())
	res, err := data.SaveAccidents(db, list, nil)
	require.NoError(t, err)
	assert.Equal(t, 500, res.Inserted)

	segs, err := data.GetSegmentStats(db, risk.SegmentSizeKM)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	table, err := risk.Build(context.Background(), segs, risk.BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, table.Scores, len(segs))

	hws, err := data.GetHighwayStats(db)
	require.NoError(t, err)
	catalog := highway.Build(hws, 1)
	assert.Contains(t, catalog.UFs(), "SP")

	conf := config.Default()
	conf.Artifacts.Dir = dir
	require.NoError(t, table.Save(conf.Artifacts.Path(conf.Artifacts.RiskTable)))
	require.NoError(t, catalog.Save(conf.Artifacts.Path(conf.Artifacts.Highways)))

	st, err := loadState(conf.Artifacts, predict.Options{})
	require.NoError(t, err)
	assert.False(t, st.modelLoaded())
	require.NotNil(t, st.table)

	p, err := st.table.Predict(&predict.Input{UF: "SP", BR: predict.Ptr(predict.Highway(116)), KM: predict.Ptr(100.0)})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.RiskScore, predict.MinScore)
	assert.LessOrEqual(t, p.RiskScore, predict.MaxScore)
}

func TestLoadState(t *testing.T) {
	dir := t.TempDir()
	conf := config.Default()
	conf.Artifacts.Dir = dir

	st, err := loadState(conf.Artifacts, predict.Options{})
	require.NoError(t, err)
	assert.False(t, st.modelLoaded())
	_, err = st.requirePredictor()
	assert.Error(t, err)
	assert.False(t, st.ensemble.Status().Operational)

	modeltest.WriteArtifacts(t, dir)
	st, err = loadState(conf.Artifacts, predict.Options{})
	require.NoError(t, err)
	require.True(t, st.modelLoaded())
	p, err := st.requirePredictor()
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, "LGBMClassifier", st.bundle.Risk.ModelType)

	// models without encoders are not loaded
	require.NoError(t, os.Remove(conf.Artifacts.Path(conf.Artifacts.Encoders)))
	st, err = loadState(conf.Artifacts, predict.Options{})
	require.NoError(t, err)
	assert.False(t, st.modelLoaded())

	require.NoError(t, os.WriteFile(conf.Artifacts.Path(conf.Artifacts.Highways), []byte("["), 0600))
	_, err = loadState(conf.Artifacts, predict.Options{})
	assert.Error(t, err)
}

func TestWeatherKey(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	_, err := getWeatherKey(dir)
	assert.Error(t, err)

	require.NoError(t, saveWeatherKey(dir, "secret"))
	key, err := getWeatherKey(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
	assert.NoFileExists(t, filepath.Join(dir, keyFileName))
}

func TestWeatherKey_FileMigration(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	p := filepath.Join(dir, keyFileName)
	require.NoError(t, os.WriteFile(p, []byte("from-file\n"), 0600))

	key, err := getWeatherKey(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", key)
	assert.NoFileExists(t, p)

	stored, err := keyring.Get(keyringService, keyringUser)
	require.NoError(t, err)
	assert.Equal(t, "from-file", stored)
}

func TestApp_QueryHighwayList(t *testing.T) {
	home := t.TempDir()
	artifactDir := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvArtifactDir, artifactDir)

	conf := config.Default()
	require.NoError(t, testCatalog().Save(filepath.Join(artifactDir, conf.Artifacts.Highways)))

	buf := captureOutput(t, formatJSON)
	err := newApp().Run(context.Background(), []string{appName, "--format", "yaml", "query", "highway", "list", "--uf", "SP"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "br: \"116\"")
	assert.Contains(t, buf.String(), "BR-381 (Fernão Dias)")
	assert.FileExists(t, filepath.Join(home, "."+appName, "config.yaml"))
}
