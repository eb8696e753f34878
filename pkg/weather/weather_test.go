package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, main string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if r.URL.Path != "/weather" || q.Get("appid") != "key" || q.Get("units") != "metric" || q.Get("lang") != "pt_br" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"weather": [{"main": "` + main + `", "description": "x"}], "main": {"temp": 21.5, "humidity": 80}, "name": "São Paulo"}`))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestMapCondition(t *testing.T) {
	tests := map[string]string{
		"Rain":         predict.WeatherRain,
		"Drizzle":      predict.WeatherRain,
		"Thunderstorm": predict.WeatherRain,
		"Clouds":       predict.WeatherCloudy,
		"Mist":         predict.WeatherCloudy,
		"Fog":          predict.WeatherCloudy,
		"Clear":        predict.WeatherClear,
		"Snow":         predict.WeatherClear,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, MapCondition(in))
		})
	}
}

func TestCurrent_APIThenCache(t *testing.T) {
	var calls atomic.Int32
	s := testServer(t, "Rain", &calls)
	c := New(Options{Enabled: true, APIKey: "key", BaseURL: s.URL})
	ctx := context.Background()

	r := c.Current(ctx, -23.5505, -46.6333)
	assert.Equal(t, predict.WeatherRain, r.Condition)
	assert.Equal(t, SourceAPI, r.Source)
	assert.Equal(t, "São Paulo", r.Location)
	require.NotNil(t, r.Temperature)
	assert.Equal(t, 21.5, *r.Temperature)

	r = c.Current(ctx, -23.5505, -46.6333)
	assert.Equal(t, SourceCache, r.Source)
	assert.Equal(t, predict.WeatherRain, r.Condition)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.CacheStats().Size)
}

func TestCurrent_Expired(t *testing.T) {
	var calls atomic.Int32
	s := testServer(t, "Clear", &calls)
	c := New(Options{Enabled: true, APIKey: "key", BaseURL: s.URL, CacheTTL: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Current(context.Background(), 1, 1)
	now = now.Add(2 * time.Minute)
	r := c.Current(context.Background(), 1, 1)
	assert.Equal(t, SourceAPI, r.Source)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCurrent_Eviction(t *testing.T) {
	var calls atomic.Int32
	s := testServer(t, "Clouds", &calls)
	c := New(Options{Enabled: true, APIKey: "key", BaseURL: s.URL, CacheSize: 2})
	ctx := context.Background()

	c.Current(ctx, 1, 1)
	c.Current(ctx, 2, 2)
	c.Current(ctx, 3, 3)
	assert.Equal(t, 2, c.CacheStats().Size)

	r := c.Current(ctx, 1, 1)
	assert.Equal(t, SourceAPI, r.Source)

	c.ClearCache()
	assert.Equal(t, 0, c.CacheStats().Size)
}

func TestCache_ExpireReinsertOverflow(t *testing.T) {
	c := New(Options{CacheSize: 2, CacheTTL: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put("a", entry{condition: predict.WeatherClear, at: now})
	now = now.Add(30 * time.Second)
	c.put("b", entry{condition: predict.WeatherCloudy, at: now})
	now = now.Add(45 * time.Second)

	_, ok := c.get("a")
	require.False(t, ok)
	assert.Equal(t, 1, c.CacheStats().Size)

	c.put("a", entry{condition: predict.WeatherRain, at: now})
	c.put("c", entry{condition: predict.WeatherClear, at: now})

	_, ok = c.get("b")
	assert.False(t, ok)
	e, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, predict.WeatherRain, e.condition)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.order.Len())
}

func TestCurrent_Fallbacks(t *testing.T) {
	ctx := context.Background()

	r := New(Options{APIKey: "key"}).Current(ctx, 1, 1)
	assert.Equal(t, SourceFallback, r.Source)
	assert.Equal(t, predict.WeatherClear, r.Condition)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	r = New(Options{Enabled: true, APIKey: "key", BaseURL: failing.URL}).Current(ctx, 1, 1)
	assert.Equal(t, SourceFallback, r.Source)
}

func TestByLocation(t *testing.T) {
	var calls atomic.Int32
	s := testServer(t, "Drizzle", &calls)
	c := New(Options{Enabled: true, APIKey: "key", BaseURL: s.URL})

	r := c.ByLocation(context.Background(), "sp", 116, 525)
	assert.Equal(t, predict.WeatherRain, r.Condition)

	r = c.ByLocation(context.Background(), "XX", 116, 525)
	assert.Equal(t, SourceFallback, r.Source)

	_, _, ok := Coordinates("to")
	assert.True(t, ok)
}
