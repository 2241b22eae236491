package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/seatflow/diner/internal/config"
	"github.com/seatflow/diner/internal/data"
	"github.com/seatflow/diner/internal/persist"
	"github.com/seatflow/diner/internal/scripting"
	"github.com/seatflow/diner/internal/sim"
	"github.com/seatflow/diner/internal/status"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"k8s.io/utils/clock"
)

var printer = message.NewPrinter(language.English)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              diner  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      seat allocation throughput sim       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mrun:\033[0m %s\n\n", name)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	valStr := printer.Sprint(value)
	dotsLen := 42 - len(label) - len(valStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), valStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printWarn(msg string) {
	fmt.Printf("  \033[33m!\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main simulation logic ─────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Simulation.Name)

	// 3. Floor plan
	printSection("floor plan")
	layout, err := data.LoadLayout(cfg.Layout.Path)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	printStat("seats", layout.Count())
	printStat("obstacles", len(layout.Obstacles))
	printStat("max concurrent", cfg.Director.MaxConcurrent)
	printStat("spawn period", cfg.Director.SpawnPeriod)
	fmt.Println()

	deps := sim.Deps{Layout: layout, Log: log, Start: time.Now()}

	// 4. Kitchen policy
	if cfg.Kitchen.Enabled && cfg.Customer.WaitForService {
		printSection("kitchen")
		engine, err := scripting.NewEngine(cfg.Kitchen.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer engine.Close()
		if engine.HasServePolicy() {
			deps.Policy = engine
			printOK("serve policy loaded from " + cfg.Kitchen.ScriptsDir)
		} else {
			printWarn(fmt.Sprintf("no serve_delay script, fixed delay %s", cfg.Kitchen.DefaultServeDelay))
		}
		fmt.Println()
	}

	// 5. Visit ledger
	var visits *persist.VisitRepo
	if cfg.Database.DSN != "" {
		printSection("ledger")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("ledger schema at version %d", version))

		visits = persist.NewVisitRepo(db)
		if _, err := visits.StartRun(ctx, cfg.Simulation.Name, cfg.Digest(), layout.Count()); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		deps.Visits = visits
		deps.RunID = visits.RunID()
		printStat("run id", deps.RunID)
		printStat("config digest", cfg.Digest())
		fmt.Println()
	}

	// 6. Build the simulation
	s, err := sim.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	// 7. Status endpoint
	var srv *status.Server
	if cfg.Status.Enabled {
		srv = status.New(s, log)
		srv.Start(cfg.Status.BindAddress)
	}

	// 8. Game loop until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printSection("running")
	if srv != nil {
		printReady(fmt.Sprintf("status on http://%s/status", cfg.Status.BindAddress))
	}
	printReady(fmt.Sprintf("game loop (tick: %s)", cfg.Simulation.TickRate))
	fmt.Println()

	loop := sim.NewLoop(s, clock.RealClock{}, cfg.Simulation.TickRate, log)
	if err := loop.Run(ctx); err != nil {
		return err
	}

	// 9. Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown", zap.Error(err))
		}
	}
	if err := s.Close(shutdownCtx); err != nil {
		log.Error("close simulation", zap.Error(err))
	}
	if visits != nil {
		if err := visits.FinishRun(shutdownCtx, s.Runner.Ticks()); err != nil {
			log.Error("finish run", zap.Error(err))
		}
	}

	printSummary(s.Snapshot())
	return nil
}

func printSummary(snap *sim.Snapshot) {
	c := snap.Counters
	fmt.Println()
	printSection("summary")
	printStat("simulated time", snap.Elapsed.Truncate(time.Millisecond))
	printStat("ticks", snap.Tick)
	printStat("customers", c.Spawned)
	printStat("served", c.Served)
	printStat("balked", c.Balked)
	printStat("aborted", c.Aborted)
	printStat("stranded", c.Stranded)
	printStat("cancelled", c.Cancelled)
	printStat("spawns skipped", c.Skipped)
	printStat("mean wait", c.MeanWait().Truncate(time.Millisecond))
	printStat("pool size", snap.Pool.Created)
	fmt.Println()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
