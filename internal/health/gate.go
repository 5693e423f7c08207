// Package health gates the batch phase behind a bounded retry loop against
// the endpoint's liveness probe.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pinger is the probe surface of the remote client.
type Pinger interface {
	Ping(ctx context.Context) int
}

// Attempt records one probe: its 1-based ordinal and the observed HTTP
// status, remote.StatusUnreachable when the endpoint could not be reached.
type Attempt struct {
	Number int
	Status int
}

func (a Attempt) Healthy() bool { return a.Status == http.StatusOK }

type Gate struct {
	pinger Pinger
	policy config.HealthConfig
	log    *slog.Logger
	probes metric.Int64Counter

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGate(pinger Pinger, policy config.HealthConfig, log *slog.Logger) *Gate {
	meter := otel.Meter("voxbatch/health")
	probes, _ := meter.Int64Counter("voxbatch.health.probes",
		metric.WithDescription("Liveness probes issued against the endpoint"))
	return &Gate{
		pinger: pinger,
		policy: policy,
		log:    log.With(slog.String("component", "health")),
		probes: probes,
		sleep:  sleepContext,
	}
}

// CheckOnce issues a single probe bounded by the policy timeout. A transport
// failure and a non-200 response are the same thing here: not yet healthy.
func (g *Gate) CheckOnce(ctx context.Context, number int) Attempt {
	probeCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout())
	defer cancel()

	status := g.pinger.Ping(probeCtx)
	attempt := Attempt{Number: number, Status: status}
	if g.probes != nil {
		g.probes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("healthy", attempt.Healthy())))
	}
	return attempt
}

// AwaitReady polls until the first healthy probe or until the attempt budget
// is exhausted. It sleeps the retry delay between failed attempts and never
// after the last one. The error is non-nil only when ctx was cancelled.
func (g *Gate) AwaitReady(ctx context.Context) (bool, error) {
	for n := 1; n <= g.policy.MaxAttempts; n++ {
		attempt := g.CheckOnce(ctx, n)
		if attempt.Healthy() {
			g.log.Info("endpoint is healthy",
				slog.Int("attempt", attempt.Number),
				slog.Int("status", attempt.Status))
			return true, nil
		}

		g.log.Warn("endpoint not ready",
			slog.Int("attempt", attempt.Number),
			slog.Int("max_attempts", g.policy.MaxAttempts),
			slog.Int("status", attempt.Status))

		if n == g.policy.MaxAttempts {
			break
		}
		if err := g.sleep(ctx, g.policy.RetryDelay()); err != nil {
			return false, err
		}
	}
	g.log.Error("endpoint never became healthy",
		slog.Int("attempts", g.policy.MaxAttempts))
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
