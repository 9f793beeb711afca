// Package main wires the kernel host harness entrypoint: it loads a
// task-set configuration, constructs a tinykernel.Kernel, registers the
// configured workloads, serves metrics and status over HTTP, and
// optionally pushes kernel health to OCI Monitoring.
package main

//nolint:depguard // main wires project-internal modules and zap logging
import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"tinykernel"
	"tinykernel/internal/buildinfo"
	"tinykernel/pkg/http/metrics"
	"tinykernel/pkg/http/status"
	"tinykernel/pkg/task"
	"tinykernel/pkg/telemetry"
	"tinykernel/pkg/workload"
)

const (
	defaultConfigPath = "/etc/kerneld/config.yaml"
	defaultLogLevel   = "info"
	defaultTickUs     = 1_000

	telemetryInterval = 10 * time.Second
	shutdownGrace     = 5 * time.Second
	readHeaderTimeout = 5 * time.Second

	exitCodeSuccess      = 0
	exitCodeRuntimeError = 1
	exitCodeParseError   = 2
)

var exitProcess = os.Exit //nolint:gochecknoglobals // overridden in tests

func main() {
	code := run(context.Background(), os.Args[1:], defaultRunDeps(), os.Stderr)
	if code != 0 {
		exitProcess(code)
	}
}

// locker is the subset of *flock.Flock the harness depends on, so tests
// can substitute a fake without touching the filesystem.
type locker interface {
	TryLock() (bool, error)
	Unlock() error
}

type runDeps struct {
	newLogger        func(level string) (*zap.Logger, error)
	loadConfig       func(path string) (runtimeConfig, error)
	newKernel        func(cfg runtimeConfig) *tinykernel.Kernel
	newLock          func(path string) locker
	newTelemetry     func(cfg runtimeConfig) (*telemetry.Publisher, error)
	currentBuildInfo func() buildinfo.Info
}

func defaultRunDeps() runDeps {
	return runDeps{
		newLogger:        newLogger,
		loadConfig:       loadConfig,
		newKernel:        defaultKernelFactory,
		newLock:          defaultLockFactory,
		newTelemetry:     defaultTelemetryFactory,
		currentBuildInfo: buildinfo.Current,
	}
}

func run(ctx context.Context, args []string, deps runDeps, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err) //nolint:errcheck

		return exitCodeParseError
	}

	logger, err := deps.newLogger(opts.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "failed to configure logger: %v\n", err) //nolint:errcheck

		return exitCodeRuntimeError
	}

	defer func() {
		_ = logger.Sync()
	}()

	info := deps.currentBuildInfo()
	logger.Info(
		"starting kerneld",
		zap.String("version", info.Version),
		zap.String("commit", info.GitCommit),
		zap.String("buildDate", info.BuildDate),
		zap.String("configPath", opts.configPath),
		zap.Duration("shutdownAfter", opts.shutdownAfter),
	)

	cfg, err := deps.loadConfig(opts.configPath)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))

		return exitCodeRuntimeError
	}

	lock := deps.newLock(cfg.Harness.LockPath)

	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("failed to acquire instance lock", zap.Error(err), zap.String("lockPath", cfg.Harness.LockPath))

		return exitCodeRuntimeError
	}

	if !locked {
		logger.Error("another kerneld instance is already running", zap.String("lockPath", cfg.Harness.LockPath))

		return exitCodeRuntimeError
	}

	defer func() {
		_ = lock.Unlock()
	}()

	kernel := deps.newKernel(cfg)
	registerTaskSet(logger, kernel, cfg.TaskSet)

	logger.Info(
		"schedulability verdict",
		zap.Bool("schedulable", kernel.IsSchedulable()),
		zap.Float64("utilization", kernel.TotalUtilization()),
		zap.Int("activeTasks", kernel.ActiveTaskCount()),
	)

	exporter := metrics.NewExporter()
	statusHandler := status.NewHandler(kernel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter)
	mux.Handle("/healthz", statusHandler)

	server := &http.Server{ //nolint:exhaustruct
		Addr:              cfg.Harness.HTTPBind,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErrs := make(chan error, 1)

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrs <- serveErr
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var publisher *telemetry.Publisher

	if cfg.OCI.Enabled {
		publisher, err = deps.newTelemetry(cfg)
		if err != nil {
			logger.Warn("telemetry disabled: failed to construct publisher", zap.Error(err))
		}
	}

	runCtx := ctx

	if opts.shutdownAfter > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, opts.shutdownAfter)
		defer cancel()
	}

	runLoop(runCtx, logger, kernel, exporter, publisher, cfg.Harness.TickUs)

	select {
	case serveErr := <-serverErrs:
		logger.Error("http server failed", zap.Error(serveErr))

		return exitCodeRuntimeError
	default:
	}

	logger.Info("kerneld stopped", zap.String("reason", stopReason(runCtx)))

	return exitCodeSuccess
}

func stopReason(ctx context.Context) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return context.DeadlineExceeded.Error()
	case errors.Is(ctx.Err(), context.Canceled):
		return context.Canceled.Error()
	default:
		return "shutdown"
	}
}

func registerTaskSet(logger *zap.Logger, kernel *tinykernel.Kernel, taskSet []taskSpec) {
	for _, spec := range taskSet {
		priority, err := priorityFromString(spec.Priority)
		if err != nil {
			logger.Warn(
				"skipping task with unrecognized priority",
				zap.String("task", spec.Name),
				zap.String("priority", spec.Priority),
			)

			continue
		}

		idx, ok := kernel.AddTask(spec.Name, workload.Run, priority, spec.PeriodUs, spec.WCETUs)
		if !ok {
			logger.Warn("task table full, dropping task", zap.String("task", spec.Name))

			continue
		}

		kernel.SetWorkloadUs(idx, spec.WorkloadUs)

		logger.Debug(
			"registered task",
			zap.Int("index", idx),
			zap.String("name", spec.Name),
			zap.String("priority", priority.String()),
			zap.Uint32("periodUs", spec.PeriodUs),
			zap.Uint32("wcetUs", spec.WCETUs),
		)
	}
}

// runLoop ticks the kernel at tickUs granularity and periodically pushes
// telemetry until ctx is done. It returns once ctx.Done() fires.
func runLoop(
	ctx context.Context,
	logger *zap.Logger,
	kernel *tinykernel.Kernel,
	exporter *metrics.Exporter,
	publisher *telemetry.Publisher,
	tickUs uint64,
) {
	if tickUs == 0 {
		tickUs = defaultTickUs
	}

	ticker := time.NewTicker(time.Duration(tickUs) * time.Microsecond)
	defer ticker.Stop()

	telemetryTicker := time.NewTicker(telemetryInterval)
	defer telemetryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kernel.Tick(tickUs)
			exporter.SetTotalTicks(kernel.TotalTicks())
			exporter.SetContextSwitches(kernel.ContextSwitches())
			exporter.SetDeadlineMisses(kernel.DeadlineMisses())
			exporter.SetJitterMisses(kernel.JitterMisses())
			exporter.SetUtilization(kernel.TotalUtilization())
			exporter.SetSchedulable(kernel.IsSchedulable())
		case <-telemetryTicker.C:
			pushTelemetry(ctx, logger, kernel, publisher)
		}
	}
}

func pushTelemetry(
	ctx context.Context,
	logger *zap.Logger,
	kernel *tinykernel.Kernel,
	publisher *telemetry.Publisher,
) {
	if publisher == nil {
		return
	}

	health := telemetry.Health{
		Utilization:     kernel.TotalUtilization(),
		DeadlineMisses:  kernel.DeadlineMisses(),
		JitterMisses:    kernel.JitterMisses(),
		ContextSwitches: kernel.ContextSwitches(),
		Schedulable:     kernel.IsSchedulable(),
	}

	if pushErr := publisher.Push(ctx, health, time.Now()); pushErr != nil {
		logger.Warn("telemetry push failed", zap.Error(pushErr))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = defaultLogLevel
	}

	cfg := zap.NewProductionConfig()

	err := cfg.Level.UnmarshalText([]byte(level))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return logger, nil
}

type options struct {
	configPath    string
	logLevel      string
	shutdownAfter time.Duration
}

func parseArgs(args []string) (options, error) {
	var (
		opts             options
		shutdownAfterRaw string
	)

	flagSet := flag.NewFlagSet("kerneld", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(
		&opts.configPath,
		"config",
		defaultConfigPath,
		"Path to the kerneld task-set configuration file",
	)
	flagSet.StringVar(
		&opts.logLevel,
		"log-level",
		defaultLogLevel,
		"Structured log level (debug, info, warn, error)",
	)
	flagSet.StringVar(
		&shutdownAfterRaw,
		"shutdown-after",
		"0s",
		"Stop the run loop after this duration (0 runs until canceled)",
	)

	err := flagSet.Parse(args)
	if err != nil {
		return options{}, fmt.Errorf("parse CLI arguments: %w", err)
	}

	opts.logLevel = strings.TrimSpace(opts.logLevel)
	if opts.logLevel == "" {
		opts.logLevel = defaultLogLevel
	}

	opts.configPath = strings.TrimSpace(opts.configPath)
	if opts.configPath == "" {
		opts.configPath = defaultConfigPath
	}

	shutdownAfter, err := time.ParseDuration(strings.TrimSpace(shutdownAfterRaw))
	if err != nil {
		return options{}, fmt.Errorf("parse --shutdown-after: %w", err)
	}

	if shutdownAfter < 0 {
		return options{}, fmt.Errorf("%w: %s", errInvalidShutdownAfter, shutdownAfterRaw)
	}

	opts.shutdownAfter = shutdownAfter

	return opts, nil
}

var (
	errInvalidLogLevel      = errors.New("invalid log level")
	errInvalidShutdownAfter = errors.New("shutdown-after must not be negative")
	errUnknownPriority      = errors.New("unrecognized task priority")
)

func priorityFromString(name string) (task.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "critical":
		return task.Critical, nil
	case "high":
		return task.High, nil
	case "normal", "":
		return task.Normal, nil
	case "low":
		return task.Low, nil
	case "idle":
		return task.Idle, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownPriority, name)
	}
}

func defaultKernelFactory(cfg runtimeConfig) *tinykernel.Kernel {
	return tinykernel.New(cfg.Harness.ClockHz)
}

//nolint:ireturn // factory intentionally hides the lock implementation
func defaultLockFactory(path string) locker {
	return flock.New(path)
}

func defaultTelemetryFactory(cfg runtimeConfig) (*telemetry.Publisher, error) {
	return telemetry.NewInstancePrincipalPublisher(cfg.OCI.CompartmentID, cfg.OCI.ResourceID)
}
