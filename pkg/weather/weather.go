package weather

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/roadrisk/roadrisk/pkg/net"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"golang.org/x/time/rate"
)

const (
	SourceAPI      = "api"
	SourceCache    = "cache"
	SourceFallback = "fallback"

	DefaultBaseURL  = "https://api.openweathermap.org/data/2.5"
	DefaultCacheTTL = 30 * time.Minute
	DefaultCacheMax = 100
	defaultPerMin   = 60
)

// Result is the current condition in the risk vocabulary.
type Result struct {
	Condition   string   `json:"condition" yaml:"condition"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty" yaml:"humidity,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Source      string   `json:"source" yaml:"source"`
}

// Fallback is returned whenever the current weather can't be fetched.
func Fallback() *Result {
	return &Result{Condition: predict.WeatherClear, Source: SourceFallback}
}

type Options struct {
	Enabled           bool
	APIKey            string
	BaseURL           string
	CacheTTL          time.Duration
	CacheSize         int
	RequestsPerMinute int
}

type entry struct {
	key       string
	condition string
	location  string
	at        time.Time
}

// Client fetches current conditions from OpenWeatherMap. It is safe for
// concurrent use.
type Client struct {
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List // front is the oldest insert
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheMax
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = defaultPerMin
	}
	return &Client{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 5),
		now:     time.Now,
		cache:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Enabled reports whether live lookups are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.opts.Enabled && c.opts.APIKey != ""
}

type apiResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Name string `json:"name"`
}

// MapCondition maps an OpenWeatherMap main condition to claro, nublado or chuvoso.
func MapCondition(main string) string {
	m := strings.ToLower(main)
	switch {
	case strings.Contains(m, "rain"), strings.Contains(m, "drizzle"), strings.Contains(m, "thunderstorm"):
		return predict.WeatherRain
	case strings.Contains(m, "clouds"), strings.Contains(m, "mist"), strings.Contains(m, "fog"):
		return predict.WeatherCloudy
	default:
		return predict.WeatherClear
	}
}

// Current returns the condition at the coordinates. Failures yield Fallback.
func (c *Client) Current(ctx context.Context, lat, lon float64) *Result {
	if !c.Enabled() {
		return Fallback()
	}

	key := fmt.Sprintf("%.4f_%.4f", lat, lon)
	if e, ok := c.get(key); ok {
		return &Result{Condition: e.condition, Location: e.location, Source: SourceCache}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		slog.Warn("weather rate limit wait failed", "error", err)
		return Fallback()
	}

	q := url.Values{
		"lat":   {fmt.Sprintf("%f", lat)},
		"lon":   {fmt.Sprintf("%f", lon)},
		"appid": {c.opts.APIKey},
		"units": {"metric"},
		"lang":  {"pt_br"},
	}
	var resp apiResponse
	if err := net.GetJSON(ctx, strings.TrimRight(c.opts.BaseURL, "/")+"/weather?"+q.Encode(), &resp); err != nil {
		slog.Warn("weather lookup failed", "lat", lat, "lon", lon, "error", err)
		return Fallback()
	}
	if len(resp.Weather) == 0 {
		slog.Warn("weather response without conditions", "lat", lat, "lon", lon)
		return Fallback()
	}

	cond := MapCondition(resp.Weather[0].Main)
	c.put(key, entry{condition: cond, location: resp.Name, at: c.now()})

	temp, hum := resp.Main.Temp, resp.Main.Humidity
	return &Result{
		Condition:   cond,
		Temperature: &temp,
		Humidity:    &hum,
		Location:    resp.Name,
		Source:      SourceAPI,
	}
}

// ByLocation returns the condition near a highway segment. The location is
// approximated by the state capital.
func (c *Client) ByLocation(ctx context.Context, uf string, _ int, _ float64) *Result {
	lat, lon, ok := Coordinates(uf)
	if !ok {
		slog.Debug("no coordinates for state", "uf", uf)
		return Fallback()
	}
	return c.Current(ctx, lat, lon)
}

func (c *Client) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.cache[key]
	if !ok {
		return entry{}, false
	}
	e := el.Value.(entry)
	if c.now().Sub(e.at) > c.opts.CacheTTL {
		c.order.Remove(el)
		delete(c.cache, key)
		return entry{}, false
	}
	return e, true
}

func (c *Client) put(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.key = key
	if el, ok := c.cache[key]; ok {
		c.order.Remove(el)
	}
	c.cache[key] = c.order.PushBack(e)

	for c.order.Len() > c.opts.CacheSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(entry).key)
	}
}

// CacheStats reports the number of cached entries and their lifetime.
type CacheStats struct {
	Size     int           `json:"size" yaml:"size"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func (c *Client) CacheStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.cache), Duration: c.opts.CacheTTL}
}

func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.order.Init()
}
