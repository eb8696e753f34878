package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/roadrisk/roadrisk/pkg/config"
	"github.com/roadrisk/roadrisk/pkg/logging"
	"github.com/roadrisk/roadrisk/pkg/mid"
	"github.com/roadrisk/roadrisk/pkg/notify"
	"github.com/roadrisk/roadrisk/pkg/predict"
	"github.com/roadrisk/roadrisk/pkg/weather"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 60
	serverMaxHeaderBytes      = 20
	serverMaxBodyBytes        = 4 << 20
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: configured port)",
	}

	hostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "Address on which the server will listen",
		Value: "0.0.0.0",
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the prediction HTTP API",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			hostFlag,
		},
	}
)

// server holds the artifacts behind an atomic pointer so a reload never
// exposes a partially loaded set to handlers.
type server struct {
	conf    *config.Config
	log     *slog.Logger
	weather *weather.Client
	alerts  notify.Publisher

	state atomic.Pointer[state]
}

func newServer(conf *config.Config, log *slog.Logger, wc *weather.Client, alerts notify.Publisher) *server {
	if alerts == nil {
		alerts = notify.Nop{}
	}
	return &server{
		conf:    conf,
		log:     log,
		weather: wc,
		alerts:  alerts,
	}
}

// reload loads the artifacts and swaps them in. On failure the previous
// artifacts stay in place.
func (s *server) reload() error {
	st, err := loadState(s.conf.Artifacts, predict.Options{
		Concurrency: s.conf.Server.Concurrency,
		MaxBatch:    s.conf.Server.MaxBatch,
	})
	if err != nil {
		s.log.Error("artifact reload failed, keeping previous artifacts", "error", err)
		return err
	}
	s.state.Store(st)
	s.log.Info("artifacts loaded",
		"model_loaded", st.modelLoaded(),
		"risk_table", st.table != nil,
		"highway_states", len(st.catalog))
	return nil
}

// scheduleReload starts the periodic reload. An empty schedule disables it.
func (s *server) scheduleReload(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		_ = s.reload()
	}); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", schedule, err)
	}
	c.Start()
	s.log.Info("artifact reload scheduled", "schedule", schedule)
	return c, nil
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	// Model serving
	mux.HandleFunc("GET /health", healthAPIHandler(s))
	mux.HandleFunc("GET /model-info", modelInfoAPIHandler(s))
	mux.HandleFunc("POST /predict", predictAPIHandler(s))
	mux.HandleFunc("POST /predict-batch", predictBatchAPIHandler(s))
	mux.HandleFunc("POST /classify", classifyAPIHandler(s))
	mux.HandleFunc("POST /batch-classify", classifyBatchAPIHandler(s))

	// Risk lookup API
	mux.HandleFunc("POST /api/v1/risk/predict", riskPredictAPIHandler(s))
	mux.HandleFunc("POST /api/v1/risk/predict-route", riskRouteAPIHandler(s))
	mux.HandleFunc("GET /api/v1/risk/high-risk-segments", highRiskSegmentsAPIHandler(s))
	mux.HandleFunc("GET /api/v1/risk/statistics", riskStatisticsAPIHandler(s))
	mux.HandleFunc("GET /api/v1/risk/status", riskStatusAPIHandler(s))

	// Highway catalog API
	mux.HandleFunc("GET /api/v1/highways/ufs", highwayUFsAPIHandler(s))
	mux.HandleFunc("GET /api/v1/highways/by-uf/{uf}", highwaysByUFAPIHandler(s))
	mux.HandleFunc("GET /api/v1/highways/validate", highwayValidateAPIHandler(s))
	mux.HandleFunc("GET /api/v1/highways/search", highwaySearchAPIHandler(s))
	mux.HandleFunc("GET /api/v1/highways/dropdown/{uf}", highwayDropdownAPIHandler(s))
	mux.HandleFunc("GET /api/v1/highways/statistics", highwayStatisticsAPIHandler(s))

	// Ensemble API
	mux.HandleFunc("POST /api/v1/ensemble/predict", ensemblePredictAPIHandler(s))
	mux.HandleFunc("POST /api/v1/ensemble/batch", ensembleBatchAPIHandler(s))
	mux.HandleFunc("GET /api/v1/ensemble/status", ensembleStatusAPIHandler(s))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})

	return mid.Chain(mux,
		mid.OTel(appName),
		mid.RequestID(),
		mid.Recover(s.log),
		mid.Logger(s.log),
		mid.CORS(s.conf.Server.CORSOrigin),
		mid.RateLimit(s.conf.Server.RateLimit, s.conf.Server.RateBurst),
	)
}

func cmdStartServer(ctx context.Context, c *cli.Command) error {
	cfg := getConfig(ctx)
	conf := cfg.Config

	port := c.Int(portFlag.Name)
	if port <= 0 {
		port = conf.Server.Port
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log := logging.NewServerLogger(os.Stdout, level)
	slog.SetDefault(log)

	if conf.Weather.APIKey == "" {
		if key, err := getWeatherKey(cfg.HomeDir); err == nil && key != "" {
			conf.Weather.APIKey = key
			conf.Weather.Enabled = true
		}
	}
	wc := weather.New(weather.Options{
		Enabled:           conf.Weather.Enabled,
		APIKey:            conf.Weather.APIKey,
		BaseURL:           conf.Weather.BaseURL,
		CacheTTL:          conf.Weather.CacheTTL,
		CacheSize:         conf.Weather.CacheSize,
		RequestsPerMinute: conf.Weather.RequestsPerMinute,
	})

	alerts, err := notify.New(conf.NATS.URL, conf.NATS.Subject)
	if err != nil {
		log.Warn("alert publishing disabled", "error", err)
		alerts = notify.Nop{}
	}
	defer closeQuietly(alerts)

	srv := newServer(conf, log, wc, alerts)
	if err := srv.reload(); err != nil {
		return fmt.Errorf("loading artifacts: %w", err)
	}

	sched, err := srv.scheduleReload(conf.Server.ReloadSchedule)
	if err != nil {
		return err
	}
	if sched != nil {
		defer sched.Stop()
	}

	address := fmt.Sprintf("%s:%d", c.String(hostFlag.Name), port)
	s := &http.Server{
		Addr:              address,
		Handler:           srv.handler(),
		ReadHeaderTimeout: serverTimeoutSeconds * time.Second,
		ReadTimeout:       serverTimeoutSeconds * time.Second,
		WriteTimeout:      serverTimeoutSeconds * time.Second,
		MaxHeaderBytes:    1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting server", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	log.Info("server started",
		"address", address,
		"version", version,
		"weather", wc.Enabled(),
		"alerts", conf.NATS.URL != "")

	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("error shutting down server", "error", err)
	}
	log.Info("server stopped")
	return nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Debug("error closing", "error", err)
	}
}
