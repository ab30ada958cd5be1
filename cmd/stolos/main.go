package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/isabella232/stolos/internal/common"
	"github.com/isabella232/stolos/internal/coordination"
	"github.com/isabella232/stolos/internal/dag"
	"github.com/isabella232/stolos/internal/executor"
	"github.com/isabella232/stolos/internal/plugin"
	storagebadger "github.com/isabella232/stolos/internal/storage/badger"
	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
	"github.com/isabella232/stolos/internal/validate"
	"github.com/isabella232/stolos/internal/worker"
)

// Exit codes (`[EXPANSION]` spec.md §6): spec only mandates 0 success /
// nonzero failure, this expands the nonzero cases so scripted callers (the
// original test harness) can branch on why a run failed.
const (
	exitSuccess         = 0
	exitPluginOrRetries = 1
	exitMisconfigured   = 2
	exitAlreadyQueued   = 3
)

// configPaths is a custom flag type allowing multiple -config flags,
// mirroring teacher cmd/quaero/main.go's configPaths.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths

	appName          = flag.String("app_name", "", "app to run (required)")
	jobID            = flag.String("job_id", "", "job id to queue (with --bypass_scheduler, to run directly); if omitted, dequeues and runs the next queued entry")
	bashCmd          = flag.String("bash", "", "shell command for job_type=bash, passed through to the executor")
	bypassScheduler  = flag.Bool("bypass_scheduler", false, "invoke the plugin directly, skipping the coordination gate")
	daemon           = flag.Bool("daemon", false, "run a worker pool over every configured app until interrupted, instead of a single gate run")
	maxRetryOverride = flag.Int("max_retry", -1, "override the app's configured max_retry for this run (-1 = use config)")
	timeoutSeconds   = flag.Int("timeout", 0, "plugin execution timeout in seconds (0 = no timeout)")
	redirectToStderr = flag.Bool("redirect_to_stderr", false, "merge the bash executor's stdout into stderr")
)

func init() {
	flag.Var(&configFiles, "config", "runtime config file (TOML); can be given multiple times, later files override earlier ones")
	flag.Var(&configFiles, "c", "shorthand for -config")
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if *appName == "" {
		fmt.Fprintln(os.Stderr, "stolos: --app_name is required")
		return exitMisconfigured
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("stolos.toml"); err == nil {
			configFiles = append(configFiles, "stolos.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stolos: failed to load configuration: %v\n", err)
		return exitMisconfigured
	}
	logger := common.SetupLogger(config)
	defer common.Stop()

	var view *taskconfig.View
	if os.Getenv("TASKS_JSON") == "" && config.Jobs.TasksPath != "" {
		view, err = taskconfig.Load(config.Jobs.TasksPath)
	} else {
		view, err = taskconfig.LoadFromEnv()
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to load task configuration")
		return exitMisconfigured
	}

	graph, err := dag.Build(view)
	if err != nil {
		logger.Error().Err(err).Msg("task configuration is misconfigured")
		return exitMisconfigured
	}

	desc, err := view.MustGet(*appName)
	if err != nil {
		logger.Error().Err(err).Msg("unknown app")
		return exitMisconfigured
	}
	applyMaxRetryOverride(desc)

	db, err := storagebadger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open coordination store")
		return exitMisconfigured
	}
	defer db.Close()

	store := coordination.NewBadgerStore(db, logger)
	plugins := buildPluginRegistry(config)
	validator := validate.NewRegistry()

	ctx := context.Background()
	payload := buildPayload()

	gate := &executor.Gate{
		Store:     store,
		Graph:     graph,
		Config:    view,
		Validator: validator,
		Plugins:   plugins,
		Logger:    logger,
	}

	if *daemon {
		return runDaemon(ctx, gate, view, config, logger)
	}

	if *bypassScheduler {
		return runBypassingScheduler(ctx, plugins, desc, *jobID, payload)
	}

	if *jobID != "" {
		return runSpecificJobID(ctx, logger, store, *appName, *jobID)
	}

	res := gate.Run(ctx, *appName, queueTimeout(config), payload)
	logResult(logger, res)
	return exitCodeForOutcome(res)
}

// runDaemon runs a worker pool across every configured app until an
// interrupt or SIGTERM arrives, mirroring teacher cmd/quaero/main.go's
// signal.Notify-based graceful shutdown wait.
func runDaemon(ctx context.Context, gate *executor.Gate, view *taskconfig.View, config *common.Config, logger arbor.ILogger) int {
	pool := &worker.Pool{
		Gate:         gate,
		Apps:         view.Apps(),
		Concurrency:  config.Executor.Concurrency,
		PollInterval: pollInterval(config),
		DequeueWait:  queueTimeout(config),
		Payload:      func(app string) map[string]any { return nil },
		Logger:       logger,
	}
	pool.Start(ctx)

	logger.Info().Int("apps", len(pool.Apps)).Msg("worker pool running - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down worker pool")
	pool.Stop()
	return exitSuccess
}

func pollInterval(config *common.Config) time.Duration {
	d, err := time.ParseDuration(config.Executor.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// applyMaxRetryOverride lets --max_retry override the configured bound for
// this single invocation, without mutating the on-disk task config.
func applyMaxRetryOverride(desc *taskconfig.Descriptor) {
	if *maxRetryOverride < 0 {
		return
	}
	n := *maxRetryOverride
	desc.MaxRetry = &n
}

func buildPayload() map[string]any {
	payload := map[string]any{}
	if *bashCmd != "" {
		payload["command"] = *bashCmd
	}
	if *timeoutSeconds > 0 {
		payload["timeout_seconds"] = float64(*timeoutSeconds)
	}
	if *redirectToStderr {
		payload["redirect_to_stderr"] = true
	}
	return payload
}

func buildPluginRegistry(config *common.Config) *plugin.Registry {
	reg := plugin.NewRegistry()
	reg.Register("bash", plugin.NewBashExecutor())
	reg.Register("spark", plugin.NewSparkExecutor(config.Plugins.SparkSubmitPath))
	reg.Register("python", plugin.NewPythonExecutor(config.Plugins.Python3Path))
	return reg
}

func queueTimeout(config *common.Config) time.Duration {
	d, err := time.ParseDuration(config.Queue.DefaultTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func logResult(logger arbor.ILogger, res executor.Result) {
	if res.Err != nil {
		logger.Warn().Err(res.Err).Str("app", res.App).Str("job_id", res.JobID).Str("outcome", string(res.Outcome)).Msg("executor gate finished")
		return
	}
	logger.Info().Str("app", res.App).Str("job_id", res.JobID).Str("outcome", string(res.Outcome)).Msg("executor gate finished")
}

func exitCodeForOutcome(res executor.Result) int {
	switch res.Outcome {
	case executor.OutcomeFailed:
		return exitPluginOrRetries
	case executor.OutcomeInvalidJobID:
		return exitMisconfigured
	default:
		return exitSuccess
	}
}

// runBypassingScheduler invokes the plugin directly without touching the
// coordination store at all (spec.md §6 `--bypass_scheduler`).
func runBypassingScheduler(ctx context.Context, plugins *plugin.Registry, desc *taskconfig.Descriptor, jid string, payload map[string]any) int {
	exec, ok := plugins.Lookup(desc.JobType)
	if !ok {
		fmt.Fprintf(os.Stderr, "stolos: no executor registered for job_type %q\n", desc.JobType)
		return exitMisconfigured
	}
	if err := exec.Execute(ctx, plugin.Job{App: desc.App, JobID: jid, Payload: payload}); err != nil {
		fmt.Fprintf(os.Stderr, "stolos: %v\n", err)
		return exitPluginOrRetries
	}
	return exitSuccess
}

// runSpecificJobID ensures (app, jid) is queued, failing with exit code 3
// (JobAlreadyQueued) if it is already pending and in flight — mirroring the
// original test harness's UserWarning + nonzero exit (spec.md §6).
func runSpecificJobID(ctx context.Context, logger arbor.ILogger, store coordination.Store, app, jid string) int {
	err := coordination.EnqueueSpecificJob(ctx, store, app, jid, 0)
	if err == nil {
		return exitSuccess
	}

	if errors.Is(err, stolerr.ErrJobAlreadyQueued) {
		logger.Warn().Str("app", app).Str("job_id", jid).Msg("job is already queued")
		return exitAlreadyQueued
	}
	logger.Error().Err(err).Str("app", app).Str("job_id", jid).Msg("failed to queue job")
	return exitMisconfigured
}
