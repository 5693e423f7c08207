// Package batch drives the sequential synthesis loop: one request per input
// line, one numbered artifact per success, and an aggregate outcome that
// survives individual item failures.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/remote"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Synthesizer is the synthesis surface of the remote client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, int, error)
}

type State string

const (
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateSkipped State = "skipped"
)

// Result is the outcome of one item.
type Result struct {
	Seq    int
	State  State
	Status int    // HTTP status, remote.StatusUnreachable on transport failure
	Bytes  int64  // artifact size on success
	Path   string // artifact path on success
	Reason string // failure or skip diagnostic
}

// Outcome aggregates a whole run. It is accumulated per item; no single
// trailing status decides the verdict.
type Outcome struct {
	Results   []Result
	Succeeded int
	Failed    int
	Skipped   int
}

// OK reports full success: no failures and at least one synthesized item.
// An empty (or all-blank) input therefore never counts as a success.
func (o Outcome) OK() bool { return o.Failed == 0 && o.Succeeded >= 1 }

type Runner struct {
	synth    Synthesizer
	timeout  time.Duration
	outDir   string
	log      *slog.Logger
	onResult func(Result)

	items    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunner builds a runner writing artifacts into outDir. onResult, if
// non-nil, observes every result in sequence order.
func NewRunner(synth Synthesizer, timeout time.Duration, outDir string, log *slog.Logger, onResult func(Result)) *Runner {
	meter := otel.Meter("voxbatch/batch")
	items, _ := meter.Int64Counter("voxbatch.items",
		metric.WithDescription("Synthesis items processed"))
	duration, _ := meter.Float64Histogram("voxbatch.item.duration",
		metric.WithDescription("Per-item synthesis duration"),
		metric.WithUnit("s"))
	return &Runner{
		synth:    synth,
		timeout:  timeout,
		outDir:   outDir,
		log:      log.With(slog.String("component", "batch")),
		onResult: onResult,
		items:    items,
		duration: duration,
	}
}

// Run processes every item in order, one request at a time. An item failure
// is recorded and the loop continues; only context cancellation aborts the
// run, and it aborts between items without leaving partial artifacts.
func (r *Runner) Run(ctx context.Context, items []Item) (Outcome, error) {
	var outcome Outcome
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		res := r.processItem(ctx, item)
		outcome.Results = append(outcome.Results, res)
		switch res.State {
		case StateSuccess:
			outcome.Succeeded++
		case StateFailure:
			outcome.Failed++
		case StateSkipped:
			outcome.Skipped++
		}
		if r.items != nil {
			r.items.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.State))))
		}
		if r.onResult != nil {
			r.onResult(res)
		}
	}
	return outcome, nil
}

func (r *Runner) processItem(ctx context.Context, item Item) Result {
	if item.Blank() {
		r.log.Warn("skipping blank input line", slog.Int("line", item.Seq))
		return Result{Seq: item.Seq, State: StateSkipped, Reason: "blank input line"}
	}

	itemCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	audio, status, err := r.synth.Synthesize(itemCtx, item.Text)
	if r.duration != nil {
		r.duration.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		r.log.Error("synthesis request failed",
			slog.Int("line", item.Seq),
			slog.String("error", err.Error()))
		return Result{Seq: item.Seq, State: StateFailure, Status: remote.StatusUnreachable, Reason: err.Error()}
	}
	if status != http.StatusOK {
		r.log.Error("synthesis rejected",
			slog.Int("line", item.Seq),
			slog.Int("status", status))
		return Result{Seq: item.Seq, State: StateFailure, Status: status, Reason: fmt.Sprintf("endpoint returned status %d", status)}
	}

	path, written, err := r.writeArtifact(item.Seq, audio)
	if err != nil {
		r.log.Error("failed to persist artifact",
			slog.Int("line", item.Seq),
			slog.String("error", err.Error()))
		return Result{Seq: item.Seq, State: StateFailure, Status: status, Reason: err.Error()}
	}

	r.log.Info("synthesized line",
		slog.Int("line", item.Seq),
		slog.String("artifact", path),
		slog.Int64("bytes", written))
	return Result{Seq: item.Seq, State: StateSuccess, Status: status, Bytes: written, Path: path}
}

// writeArtifact persists atomically: write a temp file, then rename. A
// failed or interrupted item leaves nothing behind under the final name.
func (r *Runner) writeArtifact(seq int, audio []byte) (string, int64, error) {
	final := filepath.Join(r.outDir, fmt.Sprintf("%d.wav", seq))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return "", 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("finalize artifact: %w", err)
	}
	return final, int64(len(audio)), nil
}
