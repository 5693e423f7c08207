// Package orchestrator sequences the two phases of a run: the health gate,
// then the batch. The batch is never attempted when the gate stays closed.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/batch"
	"github.com/ambiware-labs/voxbatch/internal/config"
	"github.com/ambiware-labs/voxbatch/internal/health"
	"github.com/ambiware-labs/voxbatch/internal/journal"
	"github.com/ambiware-labs/voxbatch/internal/logging"
	"github.com/ambiware-labs/voxbatch/internal/progress"
	"github.com/ambiware-labs/voxbatch/internal/remote"
	"go.opentelemetry.io/otel"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitUnhealthy   = 2
	ExitBatchFailed = 3
	ExitInterrupted = 130
)

type Orchestrator struct {
	cfg config.Config
	log *slog.Logger
}

func New(cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log.With(slog.String("component", "orchestrator"))}
}

// Run executes the health gate and, unless checkOnly is set, the batch over
// the input file. The return value is the process exit code.
func (o *Orchestrator) Run(ctx context.Context, inputPath string, checkOnly bool) int {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(o.cfg, o.log)
	if err != nil {
		o.log.Error("failed to setup telemetry", slog.String("error", err.Error()))
		return ExitConfig
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			o.log.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()
	stopMetrics := o.serveMetrics(metricsHandler)
	defer stopMetrics()

	var items []batch.Item
	if !checkOnly {
		items, err = batch.LoadItems(inputPath)
		if err != nil {
			o.log.Error("cannot read input file",
				slog.String("path", inputPath),
				slog.String("error", err.Error()))
			return ExitConfig
		}
		o.log.Info("loaded input",
			slog.String("path", inputPath),
			slog.Int("lines", len(items)))
	}

	client := remote.NewClient(o.cfg.Endpoint, o.log)
	gate := health.NewGate(client, o.cfg.Health, o.log)
	tracer := otel.Tracer("voxbatch/orchestrator")

	gateCtx, gateSpan := tracer.Start(ctx, "health.await_ready")
	ready, err := gate.AwaitReady(gateCtx)
	gateSpan.End()
	if err != nil {
		o.log.Warn("interrupted while waiting for endpoint health")
		return ExitInterrupted
	}
	if !ready {
		o.log.Error("endpoint not healthy, aborting before any synthesis",
			slog.Int("attempts", o.cfg.Health.MaxAttempts))
		return ExitUnhealthy
	}
	if checkOnly {
		logging.Success(o.log, "endpoint health check passed")
		return ExitOK
	}

	store, err := journal.Open(ctx, o.cfg.Journal, o.log)
	if err != nil {
		o.log.Warn("run journal unavailable", slog.String("error", err.Error()))
		store, _ = journal.Open(ctx, config.JournalConfig{}, o.log)
	}
	defer store.Close()

	pub, err := progress.Connect(o.cfg.Bus, o.log)
	if err != nil {
		o.log.Warn("progress bus unavailable", slog.String("error", err.Error()))
	}
	defer pub.Close()

	runID, err := store.BeginRun(ctx, o.cfg.Endpoint.ModelID)
	if err != nil {
		o.log.Warn("failed to journal run start", slog.String("error", err.Error()))
	}
	pub.RunStarted(runID, o.cfg.Endpoint.ModelID, len(items))

	runner := batch.NewRunner(client, o.cfg.Synthesis.Timeout(), o.cfg.Synthesis.OutputDir, o.log,
		func(res batch.Result) {
			if err := store.RecordItem(ctx, runID, res); err != nil {
				o.log.Warn("failed to journal item result",
					slog.Int("line", res.Seq),
					slog.String("error", err.Error()))
			}
			pub.ItemResult(runID, res)
		})

	batchCtx, batchSpan := tracer.Start(ctx, "batch.run")
	outcome, runErr := runner.Run(batchCtx, items)
	batchSpan.End()

	if err := store.FinishRun(context.Background(), runID, true, outcome); err != nil {
		o.log.Warn("failed to journal run outcome", slog.String("error", err.Error()))
	}
	pub.RunCompleted(runID, outcome)

	if runErr != nil {
		o.log.Warn("batch interrupted",
			slog.Int("processed", len(outcome.Results)),
			slog.Int("total", len(items)))
		return ExitInterrupted
	}

	if !outcome.OK() {
		if outcome.Succeeded == 0 && outcome.Failed == 0 {
			o.log.Error("no synthesizable input lines", slog.Int("skipped", outcome.Skipped))
		} else {
			o.log.Error("batch finished with failures",
				slog.Int("succeeded", outcome.Succeeded),
				slog.Int("failed", outcome.Failed),
				slog.Int("skipped", outcome.Skipped))
		}
		return ExitBatchFailed
	}

	logging.Success(o.log, "batch complete",
		slog.Int("succeeded", outcome.Succeeded),
		slog.Int("skipped", outcome.Skipped))
	return ExitOK
}

// serveMetrics exposes the Prometheus handler while the run is in flight.
func (o *Orchestrator) serveMetrics(handler http.Handler) func() {
	if handler == nil || o.cfg.Telemetry.PrometheusBind == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              o.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.log.Warn("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
