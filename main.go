package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/saintparish4/wifisim/chaos"
	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/observability"
	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/scenario"
	"github.com/saintparish4/wifisim/server"
)

// Config holds the command line settings
type Config struct {
	Scenario  string // preset name or YAML path
	OutDir    string
	Seed      int64
	SeedSet   bool
	Duration  float64
	ServeAddr string
	Speed     float64
	Paused    bool
	Linger    bool
	Chaos     string // experiment name or YAML path
	ChaosAt   float64
}

func main() {
	log := logging.NewFromEnv()

	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("wifisim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfg Config
	fs.StringVar(&cfg.Scenario, "scenario", "two_uav", "preset name (two_uav, single_uav) or path to a scenario YAML file")
	fs.StringVar(&cfg.OutDir, "out", "", "directory for CSV outputs (defaults to the scenario's output.dir)")
	fs.Int64Var(&cfg.Seed, "seed", 0, "override the scenario seed")
	fs.Float64Var(&cfg.Duration, "duration", 0, "override the scenario duration in seconds")
	fs.StringVar(&cfg.ServeAddr, "serve", "", "HTTP address for the live WebSocket view, e.g. :8080")
	fs.Float64Var(&cfg.Speed, "speed", 1, "virtual seconds per wall second when serving")
	fs.BoolVar(&cfg.Paused, "paused", false, "wait for a START command before running when serving")
	fs.StringVar(&cfg.Chaos, "chaos", "", "chaos experiment: "+strings.Join(chaos.NewExperimentLibrary().List(), ", ")+" or a YAML path")
	fs.Float64Var(&cfg.ChaosAt, "chaos-at", 2, "start time in seconds for a named chaos experiment")
	fs.BoolVar(&cfg.Linger, "linger", false, "keep serving after the run finishes until interrupted")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.SeedSet = true
		}
	})
	if cfg.Duration < 0 || cfg.Speed <= 0 {
		fmt.Fprintln(stderr, "duration must be >= 0 and speed > 0")
		return Config{}, fmt.Errorf("invalid flags")
	}
	return cfg, nil
}

// loadScenario resolves a preset name first, then a file path
func loadScenario(name string) (*scenario.Config, error) {
	if !strings.ContainsAny(name, `/\.`) {
		if sc, ok := scenario.Preset(name); ok {
			return &sc, nil
		}
	}
	sc, err := scenario.Load(name)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	return sc, nil
}

func loadExperiment(name string, targets chaos.Targets, at float64) (*chaos.Experiment, error) {
	if exp, ok := chaos.NewExperimentLibrary().Get(name, targets, at); ok {
		return &exp, nil
	}
	exp, err := chaos.LoadExperiment(name)
	if err != nil {
		return nil, fmt.Errorf("chaos %q: %w", name, err)
	}
	return exp, nil
}

func run(ctx context.Context, cfg Config, log logging.Logger, stdout io.Writer) error {
	sc, err := loadScenario(cfg.Scenario)
	if err != nil {
		return err
	}
	if cfg.SeedSet {
		sc.Seed = cfg.Seed
	}
	if cfg.Duration > 0 {
		sc.Duration = cfg.Duration
		for i := range sc.Flows {
			if f := sc.Flows[i]; f.Stop > sc.Duration && f.Start <= sc.Duration {
				sc.Flows[i].Stop = sc.Duration
			}
		}
	}

	if cfg.Chaos != "" {
		exp, err := loadExperiment(cfg.Chaos, sc.ChaosTargets(), cfg.ChaosAt)
		if err != nil {
			return err
		}
		sc.Chaos = exp
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	sim, err := scenario.Build(*sc, scenario.Options{Logger: log, Metrics: metrics})
	if err != nil {
		return err
	}

	var r qos.Report
	if cfg.ServeAddr == "" {
		r, err = sim.Run(ctx)
	} else {
		r, err = serve(ctx, cfg, sim, metrics, log)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Scenario %s (run %s): %.1fs simulated, %d events\n",
		sc.Name, sim.RunID(), sim.Now(), sim.Scheduler().Stats().Executed)
	if err := r.WriteSummary(stdout); err != nil {
		return err
	}

	files, err := sim.WriteOutputs(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	fmt.Fprintln(stdout)
	for _, f := range files {
		fmt.Fprintf(stdout, "wrote %s\n", f)
	}
	return nil
}

// serve runs the simulation behind the live HTTP/WebSocket view
func serve(ctx context.Context, cfg Config, sim *scenario.Simulation, metrics *observability.SimCollector, log logging.Logger) (qos.Report, error) {
	lis, err := net.Listen("tcp", cfg.ServeAddr)
	if err != nil {
		return qos.Report{}, fmt.Errorf("listen %s: %w", cfg.ServeAddr, err)
	}

	ws := server.NewWebSocketServer(sim, server.Options{
		Speed:     cfg.Speed,
		AutoStart: !cfg.Paused,
		Metrics:   metrics,
		Logger:    log,
	})
	httpSrv := &http.Server{
		Handler:           server.NewHTTPHandler(ws),
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving live view", logging.String("addr", lis.Addr().String()))
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", cfg.ServeAddr, err)
		}
		return nil
	})

	var r qos.Report
	g.Go(func() error {
		defer shutdown()
		var err error
		r, err = ws.Run(gctx)
		if err != nil {
			return err
		}
		if cfg.Linger {
			log.Info(gctx, "run finished, serving final state until interrupted")
			<-gctx.Done()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return qos.Report{}, err
	}
	return r, nil
}
