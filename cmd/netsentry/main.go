package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/netsentry/internal/alertlog"
	"github.com/crimson-sun/netsentry/internal/config"
	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/logging"
	"github.com/crimson-sun/netsentry/internal/metrics"
	"github.com/crimson-sun/netsentry/internal/pipeline"
	"github.com/crimson-sun/netsentry/internal/tracing"

	// Register connector implementations.
	_ "github.com/crimson-sun/netsentry/internal/connector/poll"
	_ "github.com/crimson-sun/netsentry/internal/connector/replay"
	_ "github.com/crimson-sun/netsentry/internal/connector/simulate"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("netsentry")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath, logLevel string

	root := &cobra.Command{
		Use:           "netsentry",
		Short:         "Network intrusion detection over aggregated connection statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("NETSENTRY_CONFIG"), "path to YAML config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	load := func() (config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logging.Init(cfg.Logging.JSON, logging.ParseLevel(cfg.Logging.Level))
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream observations from the configured connector and raise alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run(withSignals(), cfg)
		},
	}
	root.AddCommand(runCmd)

	var verdicts bool
	var limit int
	classifyCmd := &cobra.Command{
		Use:   "classify [capture.ndjson]",
		Short: "Classify a bounded batch (a replay file or a simulated burst) and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Connector.Provider = "replay"
				cfg.Connector.Path = args[0]
			}
			return classify(withSignals(), cfg, limit, verdicts)
		},
	}
	classifyCmd.Flags().BoolVar(&verdicts, "verdicts", false, "print one verdict per observation instead of alerts")
	classifyCmd.Flags().IntVar(&limit, "limit", 0, "maximum observations to read (0 = all)")
	root.AddCommand(classifyCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netsentry %s (%s)\n", version, commit)
		},
	})

	return root
}

func run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics, reg)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("metrics shutdown")
			}
		}()
	}

	eng := buildEngine(cfg, m)
	defer eng.Close()

	out, err := buildOutput(cfg, m)
	if err != nil {
		return err
	}

	conn, err := resolveConnector(cfg)
	if err != nil {
		return err
	}

	alerts := alertlog.New(cfg.Pipeline.AlertLogSize)
	p := pipeline.New(conn, eng, out, pipelineOptions(cfg, alerts, m)...)
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("output close")
		}
		logStats(alerts)
	}()

	log.Info().
		Str("connector", cfg.Connector.Provider).
		Strs("sinks", cfg.Output.Sinks).
		Dur("scan_interval", cfg.Pipeline.ScanInterval).
		Str("thresholds", cfg.Thresholds.Version).
		Msg("netsentry starting")

	if err := p.Stream(ctx, cfg.Connector); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("pipeline stopped")
		return err
	}
	return nil
}

func classify(ctx context.Context, cfg config.Config, limit int, verdicts bool) error {
	eng := buildEngine(cfg, nil)
	defer eng.Close()

	conn, err := resolveConnector(cfg)
	if err != nil {
		return err
	}
	params := connector.QueryParams{Limit: limit}

	if verdicts {
		batch, err := conn.Query(ctx, cfg.Connector, params)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, obs := range batch {
			if err := enc.Encode(eng.Classify(ctx, obs)); err != nil {
				return err
			}
		}
		return nil
	}

	out, err := buildOutput(cfg, nil)
	if err != nil {
		return err
	}
	alerts := alertlog.New(cfg.Pipeline.AlertLogSize)
	p := pipeline.New(conn, eng, out, pipelineOptions(cfg, alerts, nil)...)
	defer p.Close()

	if err := p.Query(ctx, cfg.Connector, params); err != nil {
		return err
	}
	logStats(alerts)
	return nil
}

func resolveConnector(cfg config.Config) (connector.Connector, error) {
	ctor, err := connector.Get(cfg.Connector.Provider)
	if err != nil {
		return nil, err
	}
	return ctor(), nil
}

func logStats(l *alertlog.Log) {
	s := l.Stats()
	log.Info().
		Int("total_alerts", s.TotalAlerts).
		Int("active_threats", s.ActiveThreats).
		Int("total_connections", s.TotalConnections).
		Float64("detection_rate", s.DetectionRate).
		Interface("by_category", s.ByCategory).
		Msg("detection summary")
}

// withSignals returns a context cancelled on SIGINT/SIGTERM.
func withSignals() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()
	return ctx
}
