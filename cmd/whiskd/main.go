package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("whiskd v%s\n", version)
}

func printUsage() {
	printVersion()
	fmt.Println("Progress-deception engine for the whisking task")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  whiskd [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Flags win over the YAML config file, which wins over built-in defaults.")
	fmt.Println("  - The host page connects to ws://<listen><ws_path> and streams pointer and body samples.")
	fmt.Println("  - Keyboard devices need read access (root or the 'input' group).")
	fmt.Println()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("whiskd", flag.ContinueOnError)
	flag.CommandLine = fs

	var (
		configPath       = fs.String("config", "", "Path to YAML config file")
		listen           = fs.String("listen", "", "HTTP/WebSocket listen address (default \":3001\")")
		updateHz         = fs.Int("update-hz", 0, "Simulation tick rate in Hz (default 60)")
		deceptionEnabled = fs.Bool("deception", true, "Enable the freeze controller")
		seed             = fs.Uint64("seed", 0, "Random seed for freeze decisions (0 = time based)")
		keyboardDevice   = fs.String("keyboard-device", "", "Linux input event device for the operator keyboard")
		ipcSocketPath    = fs.String("ipc-socket", "", "Unix domain socket path for IPC (default \"/tmp/whiskd.sock\")")
		storageDriver    = fs.String("storage", "", "Journal store: sqlite|memory (default \"sqlite\")")
		storagePath      = fs.String("storage-path", "", "SQLite database path for the journal")
		logLevelStr      = fs.String("log-level", "", "Log level: error, warn, info, debug (default \"info\")")
		showVersion      = fs.Bool("version", false, "Print version and exit")
	)
	fs.Usage = printUsage

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		printVersion()
		return nil
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			o.Listen = listen
		case "update-hz":
			o.UpdateHz = updateHz
		case "deception":
			o.DeceptionEnabled = deceptionEnabled
		case "seed":
			o.Seed = seed
		case "keyboard-device":
			o.KeyboardDevice = keyboardDevice
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "storage":
			o.StorageDriver = storageDriver
		case "storage-path":
			o.StoragePath = storagePath
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := setupLogger(logLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runWhiskd(ctx, cfg, logger, os.Stderr)
}

// runWhiskd wires the collaborators and runs until ctx is canceled or a
// component fails.
func runWhiskd(ctx context.Context, cfg Config, logger *slog.Logger, diagOut io.Writer) error {
	runID := uuid.NewString()
	rng, seed := newRandomSource(cfg.Deception.Seed)
	logger = logger.With("run", runID)

	store, err := openStore(ctx, cfg.Storage, runID)
	if err != nil {
		return fmt.Errorf("open journal store: %w", err)
	}
	defer store.Close()

	journal := NewJournal(store, cfg.Storage.Slot, logger)

	events := make(chan Event, 256)
	broadcasts := make(chan StateBroadcast, 64)

	ws := NewServer(logger, events, ServerConfig{})
	journal.SetObserver(ws)

	journal.Append(time.Now(), fmt.Sprintf("Run %s started (seed %d)", runID, seed))

	engine := cfg.ToEngineConfig()
	state := NewSimulationState(engine)

	deps := effectDeps{
		physics:     ws,
		journal:     journal,
		diagnostics: multiDiagnostics{writerDiagnostics{w: diagOut}, ws},
	}

	logger.Debug("configuration",
		"listen", cfg.Host.Listen,
		"ws_path", cfg.Host.WSPath,
		"update_hz", cfg.Host.UpdateHz,
		"deception", cfg.Deception.Enabled,
		"seed", seed,
		"max_progress", cfg.Progress.MaxProgress,
		"granularity", cfg.Analytics.Granularity,
		"ipc_socket", cfg.IPC.SocketPath,
		"storage", cfg.Storage.Driver,
		"keyboards", cfg.Input.KeyboardDevices)
	logger.Info("listening", "listen", cfg.Host.Listen, "ipc", cfg.IPC.SocketPath, "update_rate_hz", cfg.Host.UpdateHz)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, broadcasts, deps, daemonConfig{
			Engine:   engine,
			UpdateHz: cfg.Host.UpdateHz,
			Random:   rng,
		}, state, logger)
		return nil
	})
	g.Go(func() error {
		journal.RunPersister(gctx)
		return nil
	})
	g.Go(func() error {
		ws.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, ws.Hub(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(gctx, cfg.Host.Listen, newHTTPMux(ws, cfg.Host.WSPath, journal), logger)
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		return runKeyboard(gctx, cfg.Input.KeyboardDevices, events, logger)
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
