package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/parloop/parloop/internal/config"
	"github.com/parloop/parloop/internal/core/event"
	"github.com/parloop/parloop/internal/core/mesh"
	coresys "github.com/parloop/parloop/internal/core/system"
	"github.com/parloop/parloop/internal/engine"
	"github.com/parloop/parloop/internal/meshio"
	"github.com/parloop/parloop/internal/persist"
	"github.com/parloop/parloop/internal/scripting"
	"github.com/parloop/parloop/internal/system"
	"github.com/parloop/parloop/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

var out = message.NewPrinter(language.English)

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value string) {
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), value)
}

func printCount(label string, n int) {
	printStat(label, out.Sprintf("%d", n))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func run() error {
	// 1. Load config
	cfgPath := "config/parloop.toml"
	if p := os.Getenv("PARLOOP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profiling); stop != nil {
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// 3. Engine and mesh program
	printSection("Mesh")
	bus := event.NewBus()
	stats := system.NewStats(bus)
	eng, err := engine.Init(cfg.Engine, log, bus)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer eng.Exit()

	prog, err := meshio.Load(cfg.Program.Mesh)
	if err != nil {
		return err
	}
	loops, err := prog.Declare(eng.Mesh())
	if err != nil {
		return fmt.Errorf("declare %s: %w", cfg.Program.Mesh, err)
	}
	sets, maps, dats := eng.Mesh().Counts()
	printCount("sets", sets)
	printCount("maps", maps)
	printCount("dats", dats)
	printCount("loops", len(loops))
	fmt.Println()

	// 4. Kernels: Lua scripts first, Go builtins as fallback
	printSection("Kernels")
	lua, err := scripting.NewEngine(cfg.Program.Scripts, eng.Workers(), log)
	if err != nil {
		return fmt.Errorf("scripts: %w", err)
	}
	defer lua.Close()
	printOK(fmt.Sprintf("lua scripts from %s (%d VMs)", filepath.Clean(cfg.Program.Scripts), lua.Size()))

	loopSys, err := system.NewLoopSystem(eng, loops, system.Kernels{lua, builtins}, log)
	if err != nil {
		return err
	}
	fmt.Println()

	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(loopSys)

	// 5. Optional checkpoints
	var checkpoints *system.CheckpointSystem
	if cfg.Checkpoint.Enabled {
		printSection("Checkpoints")
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("PostgreSQL connected")

		repo := persist.NewCheckpointRepo(db)
		offset := 0
		if cfg.Checkpoint.Restore {
			offset, err = repo.Restore(ctx, cfg.Checkpoint.Run, eng.Mesh())
			switch {
			case errors.Is(err, persist.ErrNoCheckpoint):
				offset = 0
			case err != nil:
				return fmt.Errorf("restore: %w", err)
			default:
				printCount("resumed at step", offset)
			}
		}
		checkpoints = system.NewCheckpointSystem(repo, eng.Mesh(), cfg.Checkpoint.Run, cfg.Checkpoint.Interval, offset, log)
		runner.Register(checkpoints)
		fmt.Println()
	}

	// 6. Run the schedule
	log.Info("running schedule", zap.Int("iterations", cfg.Program.Iterations))
	start := time.Now()
	runErr := runner.Run(ctx, cfg.Program.Iterations)
	bus.Flush()
	if checkpoints != nil && runErr == nil {
		if err := checkpoints.Final(context.Background(), runner.Steps()); err != nil {
			return fmt.Errorf("final checkpoint: %w", err)
		}
	}

	printSection("Loops")
	for _, st := range stats.Snapshot() {
		printStat(st.Loop, out.Sprintf("%d calls, %d entities, %d faults, %v",
			st.Calls, st.Executed, st.Faults, st.Elapsed.Round(time.Microsecond)))
	}
	ps := eng.PlanStats()
	printStat("plans", out.Sprintf("%d built, %d hits", ps.Builds, ps.Hits))
	printStat("elapsed", time.Since(start).Round(time.Microsecond).String())
	fmt.Println()

	if cfg.Program.PrintResults {
		printSection("Results")
		printDats(eng.Mesh())
	}
	return runErr
}

// printDats writes every dat, one entity per line.
func printDats(c *mesh.Context) {
	for _, d := range c.Dats() {
		fmt.Printf("  \033[1m%s\033[0m \033[90m(%s x %d)\033[0m\n", d.Name, d.Type, d.Dim)
		switch v := d.Storage().(type) {
		case []float64:
			printRows(v, d.Dim)
		case []float32:
			printRows(v, d.Dim)
		case []int32:
			printRows(v, d.Dim)
		case []int64:
			printRows(v, d.Dim)
		}
	}
}

func printRows[T mesh.Number](v []T, dim int) {
	for e := 0; e*dim < len(v); e++ {
		out.Printf("    %4d  %v\n", e, v[e*dim:(e+1)*dim])
	}
}

func startProfile(cfg config.ProfilingConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	case "block":
		mode = profile.BlockProfile
	case "mutex":
		mode = profile.MutexProfile
	default:
		return nil
	}
	path := cfg.Path
	if path == "" {
		path = "."
	}
	p := profile.Start(mode, profile.ProfilePath(path), profile.NoShutdownHook, profile.Quiet)
	return p.Stop
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
