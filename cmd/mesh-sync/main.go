// mesh-sync keeps per-owner SQLite catalogs synchronized with the live
// state of a Meshtastic mesh device, reading the device through the
// meshtastic command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meshhive/meshsync/internal/logging"
	"github.com/meshhive/meshsync/internal/telemetry"
	"github.com/meshhive/meshsync/pkg/catalog"
	"github.com/meshhive/meshsync/pkg/engine"
	"github.com/meshhive/meshsync/pkg/meshcli"
	"github.com/meshhive/meshsync/pkg/meshdata"
)

const usage = `mesh-sync - Meshtastic device catalog synchronizer

Usage:
  mesh-sync <command> [arguments]

Commands:
  sync                 Run one sync pass from the device text report
  export-sync          Run one sync pass from the YAML config export
                       (canonical path; prefer this when the CLI supports it)

  daemon               Run continuous synchronization (Ctrl+C to stop)

  status <short>       Show last pass summary for a catalog
  nodes <short>        List nodes stored in a catalog
  catalogs             List known catalogs

  debug-report         Fetch and print the raw device report

Environment Variables:
  MESHSYNC_DATA_DIR         Catalog directory (default: data)
  MESHSYNC_COMMAND          Device command (default: meshtastic)
  MESHSYNC_CONNECTION_ARGS  Extra args, e.g. "--host 192.168.1.5"
  MESHSYNC_TIMEOUT          Device command timeout (default: 30s)
  MESHSYNC_INTERVAL         Daemon sync interval (default: 60s)
  MESHSYNC_USE_EXPORT       Daemon syncs from the YAML config export
                            instead of the text report (default: false)
  MESHSYNC_LOG_LEVEL        zerolog level (default: info)
  MESHSYNC_LOG_FORMAT       "text" or "json" (default: text)
  MESHSYNC_LOKI_URL         Optional Loki push endpoint for logs
  MESHSYNC_METRICS_ADDR     Optional Prometheus listen address, e.g. :9090
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	cfg := LoadConfig()

	logger, cleanup, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	resolver, err := catalog.NewResolver(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open catalog directory")
	}
	defer resolver.Close()

	source := meshcli.NewCLI(
		meshcli.WithCommand(cfg.Command),
		meshcli.WithConnectionArgs(cfg.ConnectionArgs...),
		meshcli.WithTimeout(cfg.Timeout),
	)

	metrics := startMetrics(cfg, logger)

	eng := engine.New(source, resolver,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	cmd := os.Args[1]
	switch cmd {
	case "sync":
		runSync(ctx, eng, false)
	case "export-sync":
		runSync(ctx, eng, true)
	case "daemon":
		runDaemon(ctx, eng, cfg, logger)
	case "status":
		runStatus(ctx, resolver)
	case "nodes":
		runNodes(ctx, resolver)
	case "catalogs":
		runCatalogs(resolver)
	case "debug-report":
		runDebugReport(ctx, source, logger)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func startMetrics(cfg *Config, logger zerolog.Logger) telemetry.Collector {
	if cfg.MetricsAddr == "" {
		return telemetry.Noop()
	}
	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to register metrics, continuing without")
		return telemetry.Noop()
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()
	return collector
}

func runSync(ctx context.Context, eng *engine.Engine, useExport bool) {
	var summary engine.PassSummary
	if useExport {
		summary = eng.SyncFromConfigExport(ctx)
	} else {
		summary = eng.SyncFromReport(ctx)
	}

	if summary.PassError != nil {
		fmt.Fprintf(os.Stderr, "Sync pass failed: %v\n", summary.PassError)
		os.Exit(1)
	}
	fmt.Printf("Catalog:         %s\n", summary.ShortName)
	fmt.Printf("Records written: %d\n", summary.RecordsWritten)
	fmt.Printf("Record errors:   %d\n", len(summary.RecordErrors))
	for _, recErr := range summary.RecordErrors {
		fmt.Printf("  - %v\n", recErr)
	}
	fmt.Printf("Duration:        %s\n", summary.Duration.Round(time.Millisecond))
}

func runDaemon(ctx context.Context, eng *engine.Engine, cfg *Config, logger zerolog.Logger) {
	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("command", cfg.Command).
		Dur("interval", cfg.Interval).
		Bool("use_export", cfg.UseExport).
		Msg("daemon configuration")

	if err := eng.RunDaemon(ctx, cfg.Interval, cfg.UseExport); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("daemon error")
	}
}

func runStatus(ctx context.Context, resolver *catalog.Resolver) {
	short := requireShortName()
	store := mustResolve(resolver, short)

	state, err := store.GetSyncState(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read sync state: %v\n", err)
		os.Exit(1)
	}
	if state == nil {
		fmt.Printf("Catalog %q has not been synced yet\n", short)
		return
	}

	count, _ := store.CountNodes(ctx)
	fmt.Printf("=== Catalog: %s ===\n", short)
	fmt.Printf("Last sync:       %s\n", state.LastSyncAt.Format(time.RFC3339))
	fmt.Printf("Records written: %d\n", state.RecordsWritten)
	fmt.Printf("Record errors:   %d\n", state.RecordErrors)
	if state.FirmwareVersion != "" {
		fmt.Printf("Firmware:        %s\n", state.FirmwareVersion)
	}
	fmt.Printf("Nodes stored:    %d\n", count)
}

func runNodes(ctx context.Context, resolver *catalog.Resolver) {
	short := requireShortName()
	store := mustResolve(resolver, short)

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list nodes: %v\n", err)
		os.Exit(1)
	}
	if len(nodes) == 0 {
		fmt.Println("No nodes in catalog")
		return
	}

	fmt.Printf("%-10s %-20s %-5s %-14s %-8s %s\n", "ID", "LONG NAME", "SHORT", "HW", "BATTERY", "LAST HEARD")
	fmt.Println("----------------------------------------------------------------------------")
	for _, n := range nodes {
		lastHeard := "never"
		if n.LastHeard > 0 {
			lastHeard = time.Unix(int64(n.LastHeard), 0).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-10s %-20s %-5s %-14s %-8s %s\n",
			n.NodeID,
			truncate(n.LongName, 20),
			n.ShortName,
			truncate(n.HWModel, 14),
			fmt.Sprintf("%d%%", n.BatteryLevel),
			lastHeard,
		)
	}
}

func runCatalogs(resolver *catalog.Resolver) {
	names, err := resolver.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list catalogs: %v\n", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Println("No catalogs yet")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runDebugReport(ctx context.Context, source *meshcli.CLI, logger zerolog.Logger) {
	text, err := source.FetchReport(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to fetch report")
	}
	fmt.Println(text)
}

func requireShortName() string {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: catalog short name required")
		os.Exit(1)
	}
	return os.Args[2]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func mustResolve(resolver *catalog.Resolver, short string) *catalog.Store {
	exists, err := resolver.Exists(short)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check catalog: %v\n", err)
		os.Exit(1)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "Catalog %q does not exist\n", short)
		os.Exit(1)
	}
	store, _, err := resolver.Resolve(meshdata.DeviceIdentity{ShortName: short})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	return store
}
