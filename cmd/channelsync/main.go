// Channelsync keeps room inventory, nightly rates and reservations in step
// between a property's own system of record and its online travel agencies.
//
// Usage:
//
//	channelsync daemon [--config <path>]          # poll every property until stopped
//	channelsync sync-once [--config <path>]       # one cycle for every property
//	channelsync rates --property P --input F      # push rates from a YAML file
//	channelsync preview --property P --input F    # dry-run the rate pipeline
//	channelsync conflicts --property P            # list pending conflicts
//	channelsync resolve --property P --id C (--value N | --accept | --ignore)
//	channelsync rules list|add|update|delete --property P [--file F | --id R]
//	channelsync allotments list|add|update|delete --property P [--file F | --id R]
//	channelsync history --property P [--kind inventory|rate] [--limit N]
//	channelsync inventory show|import --property P [--file F]
//	channelsync reservations --property P [--stored]
//	channelsync confirm|decline|message --property P --channel C --reservation R
//	channelsync test-connections --property P
//	channelsync version
//
// Every command except version reads the config file and writes each
// property's configuration to the state database before it runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/channel/hotelxml"
	"github.com/njoerd114/channelsync/internal/channel/otarpc"
	"github.com/njoerd114/channelsync/internal/channel/stayshare"
	"github.com/njoerd114/channelsync/internal/config"
	"github.com/njoerd114/channelsync/internal/demand"
	"github.com/njoerd114/channelsync/internal/inventory"
	"github.com/njoerd114/channelsync/internal/manager"
	"github.com/njoerd114/channelsync/internal/proplock"
	"github.com/njoerd114/channelsync/internal/rates"
	"github.com/njoerd114/channelsync/internal/state"
	syncp "github.com/njoerd114/channelsync/internal/sync"
	"github.com/njoerd114/channelsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"rates":            runRates,
	"preview":          runPreview,
	"conflicts":        runConflicts,
	"resolve":          runResolve,
	"rules":            runRules,
	"allotments":       runAllotments,
	"history":          runHistory,
	"inventory":        runInventory,
	"reservations":     runReservations,
	"confirm":          runConfirm,
	"decline":          runDecline,
	"message":          runMessage,
	"test-connections": runTestConnections,
}

// run dispatches to the requested subcommand.
func run() error {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("channelsync", version)
		return nil
	case "daemon":
		return runSync(args, true)
	case "sync-once":
		return runSync(args, false)
	case "help", "-h", "--help":
		printUsage()
		return nil
	}

	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q, run 'channelsync help' for usage", cmd)
	}
	return withApp(args, func(ctx context.Context, a *app, rest []string) error {
		return fn(ctx, a, rest)
	})
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "channelsync: multi-channel inventory, rate and reservation sync")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  channelsync daemon [--config ...]                Run the polling loop")
	fmt.Fprintln(os.Stderr, "  channelsync sync-once [--config ...]             One cycle for every property")
	fmt.Fprintln(os.Stderr, "  channelsync rates --property P --input F         Push rates from a YAML file")
	fmt.Fprintln(os.Stderr, "  channelsync preview --property P --input F       Dry-run the rate pipeline")
	fmt.Fprintln(os.Stderr, "  channelsync conflicts --property P               List pending conflicts")
	fmt.Fprintln(os.Stderr, "  channelsync resolve --property P --id C ...      Resolve or ignore a conflict")
	fmt.Fprintln(os.Stderr, "  channelsync rules <list|add|update|delete> ...   Manage pricing rules")
	fmt.Fprintln(os.Stderr, "  channelsync allotments <list|add|update|delete>  Manage allotment rules")
	fmt.Fprintln(os.Stderr, "  channelsync history --property P                 Show recent sync results")
	fmt.Fprintln(os.Stderr, "  channelsync inventory <show|import> ...          Read or load local inventory")
	fmt.Fprintln(os.Stderr, "  channelsync reservations --property P            Fetch channel reservations")
	fmt.Fprintln(os.Stderr, "  channelsync confirm|decline|message ...          Act on one reservation")
	fmt.Fprintln(os.Stderr, "  channelsync test-connections --property P        Probe every enabled channel")
	fmt.Fprintln(os.Stderr, "  channelsync version                              Print version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Every command accepts --config <path> and --verbose.")
}

// --- Wiring ------------------------------------------------------------------

// app holds the wired services shared by every subcommand.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *state.Store
	manager   *manager.Manager
	inventory *inventory.Service
	rates     *rates.Service
	engine    *syncp.Engine
}

// globalFlags registers the flags every subcommand accepts.
func globalFlags(fs *flag.FlagSet) (cfgPath *string, verbose *bool) {
	defaultCfg, _ := config.DefaultPath()
	cfgPath = fs.String("config", defaultCfg, "path to config.yaml")
	verbose = fs.Bool("verbose", false, "enable debug logging")
	return cfgPath, verbose
}

// withApp opens the application for a one-shot subcommand and hands it the
// arguments left after the global flags are taken out.
func withApp(args []string, fn func(ctx context.Context, a *app, rest []string) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfgPath, verbose, rest := splitGlobal(args)
	a, closeApp, err := openApp(ctx, cfgPath, verbose, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer closeApp()
	return fn(ctx, a, rest)
}

// splitGlobal pulls --config and --verbose out of args wherever they appear,
// so "rules add --config x.yaml --file r.yaml" works with the action first.
func splitGlobal(args []string) (cfgPath string, verbose bool, rest []string) {
	cfgPath, _ = config.DefaultPath()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			rest = append(rest, arg)
			continue
		}
		switch {
		case name == "verbose":
			verbose = true
		case name == "config" && i+1 < len(args):
			cfgPath = args[i+1]
			i++
		case strings.HasPrefix(name, "config="):
			cfgPath = strings.TrimPrefix(name, "config=")
		default:
			rest = append(rest, arg)
		}
	}
	return cfgPath, verbose, rest
}

// openApp loads the config, opens the state DB, stores every configured
// property and wires the services. The returned func closes the store.
func openApp(ctx context.Context, cfgPath string, verbose bool, quiet slog.Level) (*app, func(), error) {
	logLevel := quiet
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	logger.Info("config loaded",
		"properties", len(cfg.Properties),
		"poll_interval", cfg.PollInterval,
		"adapter_timeout", cfg.AdapterTimeout,
	)

	dbPath := cfg.StatePath
	if dbPath == "" {
		if dbPath, err = state.DefaultDBPath(); err != nil {
			return nil, nil, fmt.Errorf("resolving state DB path: %w", err)
		}
	}
	store, err := state.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening state DB at %q: %w", dbPath, err)
	}
	closeStore := func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing state DB", "error", closeErr)
		}
	}
	logger.Info("state DB opened", "path", dbPath)

	for _, p := range cfg.Properties {
		if err := store.SaveChannelConfiguration(ctx, p); err != nil {
			closeStore()
			return nil, nil, err
		}
	}

	registry, err := channel.NewRegistry(
		hotelxml.NewAdapter("", cfg.AdapterTimeout, logger),
		stayshare.NewAdapter("", cfg.AdapterTimeout, logger),
		otarpc.NewAdapter("", cfg.AdapterTimeout, logger),
	)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("registering channel adapters: %w", err)
	}

	clk := utcClock{clockwork.NewRealClock()}
	locks := proplock.New()
	occupancy := demand.NewForwardOccupancy(store)

	mgr := manager.New(registry, store, store, clk, manager.Options{
		AdapterTimeout: cfg.AdapterTimeout,
		MaxConcurrent:  cfg.MaxConcurrentChannels,
		RetryAttempts:  cfg.RetryAttempts,
	}, logger)
	inv := inventory.New(store, mgr, occupancy, locks, clk, logger)
	rt := rates.New(store, mgr, inv, occupancy, locks, clk, logger)

	return &app{
		cfg:       cfg,
		log:       logger,
		store:     store,
		manager:   mgr,
		inventory: inv,
		rates:     rt,
		engine:    syncp.NewEngine(store, inv, mgr, rt, cfg.PollInterval, clk, logger),
	}, closeStore, nil
}

// utcClock reports wall time in UTC so calendar days match stored date keys.
type utcClock struct{ clockwork.Clock }

func (c utcClock) Now() time.Time { return c.Clock.Now().UTC() }

// --- Daemon and sync-once ----------------------------------------------------

func runSync(args []string, daemon bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath, verbose := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, closeApp, err := openApp(ctx, *cfgPath, *verbose, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer closeApp()

	// --- Telemetry (optional) ------------------------------------------------

	if t := a.cfg.Telemetry; t != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint: t.OTLPEndpoint,
			Insecure:     t.Insecure,
			ServiceName:  t.ServiceName,
			Headers:      t.Headers,
		})
		if err != nil {
			a.log.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.log.Info("telemetry enabled", "endpoint", t.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					a.log.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	if !daemon {
		a.log.Info("running single sync cycle")
		stats, err := a.engine.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	}

	a.log.Info("daemon starting", "poll_interval", a.cfg.PollInterval, "properties", len(a.cfg.Properties))
	if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
