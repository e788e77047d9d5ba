package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/swarm/internal/config"
	"github.com/wesleyorama2/swarm/internal/logging"
	"github.com/wesleyorama2/swarm/internal/protocol"
	"github.com/wesleyorama2/swarm/internal/report"
	"github.com/wesleyorama2/swarm/internal/runner"
	"github.com/wesleyorama2/swarm/internal/simulation"
)

type runOptions struct {
	logLevel   string
	logFormat  string
	logFile    string
	records    string
	output     string
	html       string
	prometheus string
	baseURL    string
	failFast   bool
	maxUsers   int64
	seed       uint64
	progress   time.Duration
	noColor    bool
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <simulation.yaml>",
		Short: "Run a simulation",
		Long: `Run a simulation file and print a summary when every injected user has
finished. The exit status is 1 when an assertion fails and 130 when the run
is interrupted.

Examples:
  swarm run examples/api-simulation.yaml
  swarm run sim.yaml --base-url http://staging:8000 --fail-fast
  swarm run sim.yaml --records records.jsonl --prometheus :9464
  swarm run sim.yaml --html report.html -o result.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "console", "log format: console or json")
	f.StringVar(&opts.logFile, "log-file", "stderr", "log destination: stderr, stdout or a file path")
	f.StringVar(&opts.records, "records", "", "write every request record as JSON lines to this file")
	f.StringVarP(&opts.output, "output", "o", "", "write the result as JSON to this file")
	f.StringVar(&opts.html, "html", "", "write an HTML report to this file")
	f.StringVar(&opts.prometheus, "prometheus", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&opts.baseURL, "base-url", "", "override the protocol base URL")
	f.BoolVar(&opts.failFast, "fail-fast", false, "stop a user at its first failed step")
	f.Int64Var(&opts.maxUsers, "max-users", -1, "override the concurrent user limit (0 is unlimited)")
	f.Uint64Var(&opts.seed, "seed", 0, "override the random seed")
	f.DurationVar(&opts.progress, "progress", 5*time.Second, "progress log interval (0 disables)")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the summary")
	return cmd
}

func runSimulation(cmd *cobra.Command, path string, opts *runOptions) error {
	logger, err := logging.New(logging.Config{
		Level:      opts.logLevel,
		Format:     opts.logFormat,
		Output:     opts.logFile,
		TimeFormat: logging.DefaultConfig().TimeFormat,
	})
	if err != nil {
		return usageError(fmt.Errorf("failed to create logger: %w", err))
	}
	defer func() { _ = logger.Sync() }()

	compiled, err := config.Load(path)
	if err != nil {
		return usageError(err)
	}
	if err := applyOverrides(cmd, compiled, opts); err != nil {
		return usageError(err)
	}

	var sinks []report.Sink
	if opts.records != "" {
		f, err := os.Create(opts.records)
		if err != nil {
			return usageError(fmt.Errorf("failed to create records file: %w", err))
		}
		defer f.Close()
		jl := report.NewJSONLines(f)
		defer func() {
			if err := jl.Err(); err != nil {
				logger.Error("failed to write records", zap.String("path", opts.records), zap.Error(err))
			}
		}()
		sinks = append(sinks, jl)
	}

	if opts.prometheus != "" {
		prom := report.NewPrometheusSink(report.PrometheusConfig{})
		stop, err := serveMetrics(opts.prometheus, prom, logger)
		if err != nil {
			return usageError(err)
		}
		defer stop()
		sinks = append(sinks, prom)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := simulation.New(compiled, simulation.Options{
		Logger:           logger,
		Sinks:            sinks,
		ProgressInterval: opts.progress,
	}).Run(ctx)
	if err != nil {
		return &ExitError{Code: ExitFailed, Err: err}
	}

	if !opts.quiet {
		summary := res.Summary()
		if opts.noColor {
			summary.WriteWith(cmd.OutOrStdout(), report.NewPalette(false))
		} else {
			summary.Write(cmd.OutOrStdout())
		}
	}
	if opts.output != "" {
		if err := writeResult(opts.output, res); err != nil {
			return &ExitError{Code: ExitFailed, Err: err}
		}
	}
	if opts.html != "" {
		if err := res.Summary().WriteHTMLFile(opts.html, res.RunID); err != nil {
			return &ExitError{Code: ExitFailed, Err: err}
		}
		logger.Info("HTML report generated", zap.String("path", opts.html))
	}

	switch {
	case res.Cancelled:
		return &ExitError{Code: ExitInterrupted}
	case !res.Passed():
		return &ExitError{Code: ExitFailed}
	}
	return nil
}

// applyOverrides folds the command line overrides into the compiled
// simulation.
func applyOverrides(cmd *cobra.Command, c *config.Compiled, opts *runOptions) error {
	if opts.failFast {
		c.Policy = runner.StopOnFailure
	}
	if cmd.Flags().Changed("max-users") {
		if opts.maxUsers < 0 {
			return errors.New("--max-users cannot be negative")
		}
		c.MaxConcurrentUsers = opts.maxUsers
	}
	if cmd.Flags().Changed("seed") {
		c.Seed = opts.seed
	}
	if opts.baseURL != "" {
		var popts []protocol.Option
		for name, values := range c.Protocol.Headers() {
			for _, v := range values {
				popts = append(popts, protocol.WithHeader(name, v))
			}
		}
		p, err := protocol.New(opts.baseURL, popts...)
		if err != nil {
			return fmt.Errorf("invalid --base-url: %w", err)
		}
		c.Protocol = p
	}
	return nil
}

// serveMetrics exposes the sink on addr under /metrics and returns a
// function that shuts the server down.
func serveMetrics(addr string, prom *report.PrometheusSink, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func writeResult(path string, res *simulation.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
