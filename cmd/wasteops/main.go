// wasteops: operator tooling for waste reception parks.
//
// Runs the lot lifecycle, supplier production-cycle forecasts and
// collection-order planning against a local SQLite database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/logger"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	configPath string
	debug      bool
	park       string
	operator   string
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.StringVar(&opts.park, "park", "", "Park code (defaults to park.code from config)")
	flag.StringVar(&opts.operator, "operator", "", "Acting operator (defaults to park.operator from config)")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("wasteops version %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()

		// Force exit after timeout
		time.AfterFunc(10*time.Second, func() {
			fmt.Fprintln(os.Stderr, "forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	if err := run(ctx, opts, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: wasteops [flags] <command> [args]

Commands:
  migrate [up|down|status]         Manage the database schema
  seed                             Generate demonstration data for the park
  lots [open|in_treatment|closed]  List lots of the park
  assign <entry-id> <area-id>      Route a confirmed entry into the area's lot
  start <lot>                      Start treatment and block the lot's zones
  close <lot> <grade> <kg>         Close a lot in treatment
  release <area-id>                Release a storage area
  cycles [days]                    Recalculate supplier cycles and list upcoming deliveries
  score                            Recalculate collection-order planning scores
  ranking [limit]                  Show collection orders by planning score

<lot> is a lot number (L-PRK01-2026-0001) or a lot ID.

Flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, opts options, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, cfgPath, err := config.Load(opts.configPath, true)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.park != "" {
		cfg.Park.Code = opts.park
	}
	if opts.operator != "" {
		cfg.Park.Operator = opts.operator
	}

	log, err := logger.New(cfg.Logging, opts.debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	log.Debug("wasteops starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("config_path", cfgPath),
	)

	dbPath, err := config.EnsureDataDir(cfg)
	if err != nil {
		return fmt.Errorf("ensuring data directory: %w", err)
	}

	db, err := database.Open(dbPath, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()

	app := newApp(db, cfg, log, os.Stdout)
	return app.dispatch(ctx, args[0], args[1:])
}
