// Package progress broadcasts batch lifecycle events over NATS so that
// other systems can follow a run without scraping logs. The publisher is
// optional: with no servers configured every method is a no-op.
package progress

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/batch"
	"github.com/ambiware-labs/voxbatch/internal/config"
	"github.com/nats-io/nats.go"
)

const (
	SubjectRunStarted   = "voxbatch.run.started"
	SubjectItemResult   = "voxbatch.item.result"
	SubjectRunCompleted = "voxbatch.run.completed"
)

// RunStartedEvent announces a run entering the batch phase.
type RunStartedEvent struct {
	RunID     int64     `json:"run_id"`
	Model     string    `json:"model"`
	Items     int       `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemResultEvent carries one per-item outcome.
type ItemResultEvent struct {
	RunID     int64     `json:"run_id"`
	Seq       int       `json:"seq"`
	State     string    `json:"state"`
	Status    int       `json:"status,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedEvent carries the aggregate outcome.
type RunCompletedEvent struct {
	RunID     int64     `json:"run_id"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps a NATS connection. A nil Publisher is safe to use.
type Publisher struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials the configured servers. With no servers configured it
// returns (nil, nil) and the caller proceeds without progress events.
func Connect(cfg config.BusConfig, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, nil
	}

	options := []nats.Option{
		nats.Name("voxbatch"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Publisher{conn: conn, log: log.With(slog.String("component", "progress"))}, nil
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
	p.conn.Close()
}

func (p *Publisher) RunStarted(runID int64, model string, items int) {
	p.publish(SubjectRunStarted, RunStartedEvent{
		RunID: runID, Model: model, Items: items, Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) ItemResult(runID int64, res batch.Result) {
	p.publish(SubjectItemResult, ItemResultEvent{
		RunID:     runID,
		Seq:       res.Seq,
		State:     string(res.State),
		Status:    res.Status,
		Bytes:     res.Bytes,
		Artifact:  res.Path,
		Reason:    res.Reason,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) RunCompleted(runID int64, outcome batch.Outcome) {
	p.publish(SubjectRunCompleted, RunCompletedEvent{
		RunID:     runID,
		Succeeded: outcome.Succeeded,
		Failed:    outcome.Failed,
		Skipped:   outcome.Skipped,
		OK:        outcome.OK(),
		Timestamp: time.Now().UTC(),
	})
}

// publish is best-effort; a bus hiccup never affects the batch.
func (p *Publisher) publish(subject string, event any) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("failed to marshal progress event", slog.String("error", err.Error()))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish progress event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
