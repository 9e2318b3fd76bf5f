// Package main is the entry point for the rosdevs simulator CLI.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosdevs/pdevs-sim/internal/buildinfo"
	"github.com/rosdevs/pdevs-sim/internal/config"
	"github.com/rosdevs/pdevs-sim/internal/metrics"
	"github.com/rosdevs/pdevs-sim/internal/scenario"
	"github.com/rosdevs/pdevs-sim/internal/sim"
	"github.com/rosdevs/pdevs-sim/internal/trace"
	"github.com/rosdevs/pdevs-sim/internal/traceserver"
	"github.com/rosdevs/pdevs-sim/internal/tracestore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	scenarioPath := flag.String("scenario", "", "path to scenario file (required for run)")
	seed := flag.Int64("seed", 1, "RNG seed for modeled transport loss")
	traceOut := flag.String("trace-out", "", "tee the trace stream to this file")
	dbPath := flag.String("db", "", "archive the trace stream to this SQLite file")
	listen := flag.String("listen", "", "serve the live trace stream and /metrics on this address (e.g. :8080)")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		return
	}

	switch flag.Arg(0) {
	case "run":
		runScenario(*configPath, *scenarioPath, *seed, *traceOut, *dbPath, *listen)
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("rosdevs - layered pub/sub middleware simulator")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      Run a scenario file against the simulated stack")
	fmt.Println("  version  Show build information")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func loadConfig(explicit string) config.Config {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		// An invalid config is fatal at init.
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func runScenario(configPath, scenarioPath string, seed int64, traceOut, dbPath, listen string) {
	if scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rosdevs -scenario <file.yaml> run")
		os.Exit(1)
	}

	cfg := loadConfig(configPath)
	logger := newLogger(cfg)

	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenario: %v\n", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := sim.New(cfg, "p0", seed, sim.WithMetrics(m))

	// Echo the formatted trace stream to stdout when it is a terminal;
	// a piped stdout gets the summary only (use -trace-out for the
	// stream itself).
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		s.TraceLog().AddSink(trace.NewWriterSink(os.Stdout))
	}
	if traceOut != "" {
		f, err := os.Create(traceOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace-out: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		s.TraceLog().AddSink(trace.NewWriterSink(f))
	}
	if dbPath != "" {
		store, err := tracestore.New(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace archive: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		s.TraceLog().AddSink(store)
		logger.Info("archiving trace stream", "db", dbPath, "run_id", store.RunID())
	}
	if listen != "" {
		hub := traceserver.NewHub()
		s.TraceLog().AddSink(hub)
		mux := http.NewServeMux()
		mux.Handle("/trace", traceserver.NewServer(hub, logger))
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("serving live trace stream", "addr", listen)
			if err := http.ListenAndServe(listen, mux); err != nil {
				logger.Error("trace server stopped", "error", err)
			}
		}()
	}

	logger.Info("running scenario", "name", sc.Name, "duration_ms", sc.RunForMS,
		"transport", cfg.Transport.DefaultKind, "seed", seed)
	res := sc.Run(s)

	printSummary(s, res)
}

func printSummary(s *sim.Simulator, res scenario.Result) {
	records := s.TraceLog().Records()
	var totalBytes int64
	for _, r := range records {
		for _, f := range r.Fields {
			if f.Key == "serialized_bytes" {
				if n, err := strconv.ParseInt(f.Repr, 10, 64); err == nil {
					totalBytes += n
				}
			}
		}
	}

	fmt.Printf("trace events:   %s\n", humanize.Comma(int64(len(records))))
	fmt.Printf("published:      %s\n", humanize.Comma(int64(res.Published)))
	for topic, n := range res.DeliveredByTopic {
		fmt.Printf("delivered %s: %s\n", topic, humanize.Comma(int64(n)))
	}
	fmt.Printf("bytes on wire:  %s\n", humanize.Bytes(uint64(totalBytes)))
	fmt.Printf("virtual time:   %s ns\n", humanize.Comma(s.Now()))
}
