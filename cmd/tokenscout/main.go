// Command tokenscout runs the early-stage token scanner: it reads
// discovery records, runs the progressive analysis pipeline, and emits
// ranked candidates with the cycle's cost report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tokenscout/tokenscout/internal/alerted"
	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/httpapi"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/pipeline"
	"github.com/tokenscout/tokenscout/internal/providers"
	"github.com/tokenscout/tokenscout/internal/providers/snapshot"
)

var (
	flagConfig   string
	flagLogLevel string

	flagInput    string
	flagInterval time.Duration
	flagServe    bool
	flagPretty   bool
)

func main() {
	root := &cobra.Command{
		Use:   "tokenscout",
		Short: "Early-stage token discovery and ranking engine",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogging(flagLogLevel)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config YAML (defaults apply when empty)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: trace|debug|info|warn|error")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run scan cycles over a discovery feed",
		Long: `Reads discovery records (JSON array) from --input or stdin, runs the
four-stage pipeline, and prints ranked candidates with the cycle cost
report as JSON. With --interval the feed file is re-read and scanned on
a timer until interrupted.`,
		RunE: runScan,
	}
	scanCmd.Flags().StringVar(&flagInput, "input", "-", "discovery records file, or - for stdin")
	scanCmd.Flags().DurationVar(&flagInterval, "interval", 0, "rescan interval; 0 runs a single cycle")
	scanCmd.Flags().BoolVar(&flagServe, "serve", false, "expose /healthz, /status and /metrics while scanning")
	scanCmd.Flags().BoolVar(&flagPretty, "pretty", false, "indent JSON output")
	root.AddCommand(scanCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := providers.NewGate()
	breakers := providers.NewBreakerSet()
	for name, p := range cfg.Providers {
		gate.Register(name, p.GateConfig())
		breakers.Register(name, p.Breaker)
	}

	alertedSet, closeAlerted, err := buildAlertedSet(ctx, cfg.Alerted)
	if err != nil {
		return err
	}
	defer closeAlerted()

	registry := metrics.NewRegistry()
	ttlCache := cache.New(cfg.CacheEntries)

	// Live connectors are external; a provider entry with a snapshot file
	// is served from it, anything else leaves the stage running on
	// discovery data alone.
	metadataAdapter, err := buildAdapter(cfg, cfg.MetadataProvider)
	if err != nil {
		return err
	}
	ohlcvAdapter, err := buildAdapter(cfg, cfg.OHLCVProvider)
	if err != nil {
		return err
	}

	ctl := pipeline.NewController(cfg.Pipeline, gate, breakers, ttlCache, metadataAdapter, ohlcvAdapter, alertedSet, registry)
	for name, p := range cfg.Providers {
		ctl.Planner().Register(name, p.CallSpec())
	}

	if flagServe {
		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		srv := httpapi.NewServer(ctl, gate, breakers, registry, names)
		go func() {
			if err := srv.ListenAndServe(cfg.HTTP.Listen); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	out := json.NewEncoder(os.Stdout)
	if flagPretty {
		out.SetIndent("", "  ")
	}

	runOnce := func() error {
		records, err := readDiscovery(flagInput)
		if err != nil {
			return err
		}
		result, err := ctl.RunCycle(ctx, records)
		if err != nil {
			return err
		}
		for _, c := range result.Ranked {
			if err := alertedSet.Add(ctx, c.TokenKey, cfg.Alerted.TTL); err != nil {
				log.Warn().Err(err).Str("token", c.TokenKey).Msg("failed to record alert suppression")
			}
		}
		return out.Encode(result)
	}

	if flagInterval <= 0 {
		return runOnce()
	}
	if flagInput == "-" {
		return fmt.Errorf("--interval requires --input to be a file, not stdin")
	}

	ticker := time.NewTicker(flagInterval)
	defer ticker.Stop()

	if err := runOnce(); err != nil {
		log.Error().Err(err).Msg("scan cycle failed")
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				log.Error().Err(err).Msg("scan cycle failed")
			}
		}
	}
}

func readDiscovery(path string) ([]domain.DiscoveryRecord, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open discovery input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var records []domain.DiscoveryRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse discovery input: %w", err)
	}
	return records, nil
}

// buildAdapter resolves a configured provider role into an adapter.
// Returns nil when the role is unset or the provider has no snapshot
// backing; the pipeline degrades gracefully around a nil adapter.
func buildAdapter(cfg *config.Config, name string) (providers.Adapter, error) {
	if name == "" {
		return nil, nil
	}
	p, ok := cfg.Providers[name]
	if !ok || p.Snapshot == "" {
		return nil, nil
	}
	return snapshot.Load(name, p.Snapshot)
}

// buildAlertedSet creates the configured suppression store. The returned
// close func releases any backing connection.
func buildAlertedSet(ctx context.Context, cfg config.AlertedConfig) (alerted.Set, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "", "memory":
		return alerted.NewMemorySet(), noop, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return alerted.NewRedisSet(client), func() { client.Close() }, nil

	case "postgres":
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unreachable: %w", err)
		}
		set, err := alerted.NewSQLSet(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return set, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("alerted backend %q not recognized", cfg.Backend)
	}
}
