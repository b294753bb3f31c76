package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TickBook/internal/auction"
	"TickBook/internal/ingestion"
	"TickBook/internal/observability"
	"TickBook/internal/persistence"
	"TickBook/internal/summary"
)

// Config holds the full run configuration. Environment variables set the
// defaults; command-line flags override them per invocation.
type Config struct {
	// Inputs
	DataDir      string
	Tickers      []string
	Start        time.Time
	End          time.Time
	Interval     string
	SchedulePath string

	// Outputs
	OutputPath string
	QuotesPath string

	// Parallelism
	Workers int

	// Postgres (optional; empty DSN disables persistence)
	PostgresDSN   string
	MigrationsDir string

	// NATS (optional; empty URL disables publishing)
	NATSURL string

	// Persistence worker
	PersistBatchSize    int
	PersistFlushTimeout time.Duration
	PersistChanSize     int

	// Ops server (metrics + health)
	OpsAddr string
}

func loadConfig() (Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := Config{
		DataDir:             envOrDefault("TICKBOOK_DATA_DIR", "data"),
		Tickers:             splitTickers(os.Getenv("TICKBOOK_TICKERS")),
		Interval:            os.Getenv("TICKBOOK_INTERVAL"),
		SchedulePath:        os.Getenv("TICKBOOK_SCHEDULE"),
		OutputPath:          envOrDefault("TICKBOOK_OUTPUT", "matching_summary.csv"),
		QuotesPath:          os.Getenv("TICKBOOK_QUOTES_OUTPUT"),
		Workers:             envIntOrDefault("TICKBOOK_WORKERS", runtime.NumCPU()),
		PostgresDSN:         os.Getenv("TICKBOOK_POSTGRES_DSN"),
		MigrationsDir:       envOrDefault("TICKBOOK_MIGRATIONS_DIR", "migrations"),
		NATSURL:             os.Getenv("TICKBOOK_NATS_URL"),
		PersistBatchSize:    envIntOrDefault("TICKBOOK_PERSIST_BATCH_SIZE", 50),
		PersistFlushTimeout: 100 * time.Millisecond,
		PersistChanSize:     envIntOrDefault("TICKBOOK_PERSIST_CHAN_SIZE", 256),
		OpsAddr:             envOrDefault("TICKBOOK_OPS_ADDR", ":9091"),
	}

	dataDir := flag.String("data", cfg.DataDir, "archive directory to load")
	out := flag.String("out", cfg.OutputPath, "summary CSV path")
	quotes := flag.String("quotes", cfg.QuotesPath, "best-quote CSV path (empty disables)")
	tickers := flag.String("tickers", strings.Join(cfg.Tickers, ","), "comma-separated instrument filter (empty keeps all)")
	from := flag.String("from", "", "inclusive start: YYYY-MM-DD or 'YYYY-MM-DD HH:MM:SS'")
	to := flag.String("to", "", "inclusive end, same formats")
	interval := flag.String("interval", cfg.Interval, "calendar span from start: 1d, 1wk, 1mo, 3mo, 1y")
	workers := flag.Int("workers", cfg.Workers, "parallel group builders")
	schedule := flag.String("schedule", cfg.SchedulePath, "session schedule YAML (empty uses defaults)")
	flag.Parse()

	cfg.DataDir = *dataDir
	cfg.OutputPath = *out
	cfg.QuotesPath = *quotes
	cfg.Tickers = splitTickers(*tickers)
	cfg.Interval = *interval
	cfg.Workers = *workers
	cfg.SchedulePath = *schedule

	var err error
	if cfg.Start, err = parseWhen(*from); err != nil {
		return cfg, err
	}
	if cfg.End, err = parseWhen(*to); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	logger := observability.NewLogger("tickbook")
	if err != nil {
		logger.Fatal().Err(err).Msg("bad configuration")
	}

	sched := auction.DefaultSchedule()
	if cfg.SchedulePath != "" {
		if sched, err = auction.LoadSchedule(cfg.SchedulePath); err != nil {
			logger.Fatal().Err(err).Msg("load schedule")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()
	runID := uuid.New()
	logger = observability.WithRun(logger, runID)
	runStart := time.Now()

	// --- Ops server: /metrics, /healthz, /readyz ---
	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", promhttp.Handler())
	opsMux.HandleFunc("/healthz", health.LivenessHandler)
	opsMux.HandleFunc("/readyz", health.ReadinessHandler)
	opsServer := &http.Server{Addr: cfg.OpsAddr, Handler: opsMux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		opsServer.Shutdown(shutCtx)
	}()
	go func() {
		logger.Info().Str("addr", cfg.OpsAddr).Msg("ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server")
		}
	}()

	// --- Postgres (optional) ---
	var db *sql.DB
	var recorder *persistence.RunRecorder
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal().Err(err).Msg("postgres ping")
		}
		logger.Info().Msg("postgres connected")

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir, logger)
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}

		recorder = persistence.NewRunRecorder(db)
		params := persistence.RunParams{
			DataDir:  cfg.DataDir,
			Tickers:  cfg.Tickers,
			Interval: cfg.Interval,
			Workers:  cfg.Workers,
		}
		if !cfg.Start.IsZero() {
			params.Start = cfg.Start.Format(summary.TimestampLayout)
		}
		if !cfg.End.IsZero() {
			params.End = cfg.End.Format(summary.TimestampLayout)
		}
		if err := recorder.Start(ctx, runID, params); err != nil {
			logger.Fatal().Err(err).Msg("record run start")
		}
	}

	// --- NATS (optional) ---
	var js jetstream.JetStream
	if cfg.NATSURL != "" {
		nc, jsCtx, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		if err := ingestion.EnsureAuctionStream(ctx, jsCtx, logger); err != nil {
			logger.Fatal().Err(err).Msg("ensure auction stream")
		}
		js = jsCtx
		logger.Info().Msg("nats connected")
	}

	health.SetReady(true)

	// --- Load, filter, partition ---
	health.SetPhase("loading")
	events, stats, err := ingestion.LoadArchive(ctx, cfg.DataDir, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("load archive")
	}

	filtered, err := ingestion.Filter(events, ingestion.FilterSpec{
		Tickers:  cfg.Tickers,
		Start:    cfg.Start,
		End:      cfg.End,
		Interval: cfg.Interval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("filter events")
	}

	sessioned := ingestion.SessionFilter(filtered, sched.MorningSession, sched.AfternoonSession)
	metrics.EventsFiltered.Set(float64(len(sessioned)))
	logger.Info().
		Int("loaded", len(events)).
		Int("in_range", len(filtered)).
		Int("in_session", len(sessioned)).
		Msg("events selected")

	groups := summary.Partition(sessioned)
	logger.Info().Int("groups", len(groups)).Msg("partitioned into daily groups")

	// --- Output drains ---
	// Both drains shut down by channel close, not context, so completed
	// groups still land during a signal-triggered wind-down.
	var drains sync.WaitGroup
	var persistCh chan persistence.Output
	if db != nil {
		persistCh = make(chan persistence.Output, cfg.PersistChanSize)
		worker := persistence.NewWorker(db, persistCh, cfg.PersistBatchSize, cfg.PersistFlushTimeout, logger, metrics)
		drains.Add(1)
		go func() {
			defer drains.Done()
			if err := worker.Run(context.Background()); err != nil {
				logger.Error().Err(err).Msg("persistence worker")
			}
		}()
	}

	var publishCh chan ingestion.PublishableRecord
	if js != nil {
		publishCh = make(chan ingestion.PublishableRecord, cfg.PersistChanSize)
		publisher := ingestion.NewRecordPublisher(js, publishCh, logger, metrics)
		drains.Add(1)
		go func() {
			defer drains.Done()
			if err := publisher.Run(context.Background()); err != nil {
				logger.Error().Err(err).Msg("record publisher")
			}
		}()
	}

	// --- Build ---
	health.SetPhase("building")
	retainSeries := cfg.QuotesPath != "" || db != nil
	result := summary.Build(ctx, groups, sched, summary.Options{
		Workers:      cfg.Workers,
		RetainSeries: retainSeries,
		Metrics:      metrics,
	})

	health.SetPhase("draining")
	for _, g := range result.Groups {
		if persistCh != nil {
			quotes := persistence.QuoteRowsOf(g.Record.Instrument, g.Bid)
			quotes = append(quotes, persistence.QuoteRowsOf(g.Record.Instrument, g.Ask)...)
			persistCh <- persistence.Output{
				Daily:  persistence.DailyRowOf(runID, g.Record),
				Quotes: quotes,
			}
		}
		if publishCh != nil {
			publishCh <- ingestion.PublishableRecord{RunID: runID, Record: g.Record}
		}
	}
	if persistCh != nil {
		close(persistCh)
	}
	if publishCh != nil {
		close(publishCh)
	}
	drains.Wait()

	// --- CSV outputs ---
	if err := writeSummaryCSV(cfg.OutputPath, result.Records()); err != nil {
		logger.Fatal().Err(err).Msg("write summary csv")
	}
	logger.Info().Str("path", cfg.OutputPath).Int("rows", len(result.Groups)).Msg("summary written")

	if cfg.QuotesPath != "" {
		if err := writeQuotesCSV(cfg.QuotesPath, result.Groups); err != nil {
			logger.Fatal().Err(err).Msg("write quotes csv")
		}
		logger.Info().Str("path", cfg.QuotesPath).Msg("quotes written")
	}

	if recorder != nil {
		finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := recorder.Finalize(finCtx, runID, len(groups), len(result.Errors), len(result.Groups)); err != nil {
			logger.Error().Err(err).Msg("finalize run row")
		}
		cancel()
	}

	// --- Report ---
	for _, gerr := range result.Errors {
		logger.Warn().
			Str("date", gerr.Date.Format("2006-01-02")).
			Str("instrument", gerr.Instrument).
			Err(gerr.Err).
			Msg("group failed")
	}
	metrics.RunDuration.Set(time.Since(runStart).Seconds())
	logger.Info().
		Int("files", stats.Files).
		Int("rows_rejected", stats.RowsRejected).
		Int("groups_built", len(result.Groups)).
		Int("groups_failed", len(result.Errors)).
		Int("groups_skipped", result.Skipped).
		Dur("elapsed", time.Since(runStart)).
		Msg("run complete")

	health.SetReady(false)
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	opsServer.Shutdown(shutCtx)
	cancel()
}

func writeSummaryCSV(path string, records []summary.DailyRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := summary.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeQuotesCSV(path string, groups []summary.GroupResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	qw := summary.NewQuotesWriter(f)
	for _, g := range groups {
		if err := qw.WriteGroup(g.Record.Instrument, g.Bid, g.Ask); err != nil {
			f.Close()
			return err
		}
	}
	if err := qw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --- Helpers ---

// parseWhen accepts a bare date or a full timestamp.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (use YYYY-MM-DD or 'YYYY-MM-DD HH:MM:SS')", s)
}

func splitTickers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
