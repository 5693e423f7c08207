package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/remote"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSynth maps line text to a canned response.
type scriptedSynth struct {
	responses map[string]scriptedResponse
	calls     []string
}

type scriptedResponse struct {
	audio  []byte
	status int
	err    error
}

func (s *scriptedSynth) Synthesize(_ context.Context, text string) ([]byte, int, error) {
	s.calls = append(s.calls, text)
	resp, ok := s.responses[text]
	if !ok {
		return []byte("audio:" + text), http.StatusOK, nil
	}
	return resp.audio, resp.status, resp.err
}

func lines(texts ...string) []Item {
	items := make([]Item, len(texts))
	for i, t := range texts {
		items[i] = Item{Seq: i + 1, Text: t}
	}
	return items
}

func newTestRunner(synth Synthesizer, dir string, onResult func(Result)) *Runner {
	return NewRunner(synth, 5*time.Second, dir, newLogger(), onResult)
}

func TestAllItemsSucceed(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), lines("one", "two", "three"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("expected full success, got %+v", outcome)
	}
	if outcome.Succeeded != 3 || outcome.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	for n := 1; n <= 3; n++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.wav", n))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}
}

func TestItemFailureDoesNotAbortBatch(t *testing.T) {
	// Responses 200, 500, 200: files 1.wav and 3.wav exist, 2.wav does not.
	dir := t.TempDir()
	synth := &scriptedSynth{responses: map[string]scriptedResponse{
		"two": {status: http.StatusInternalServerError},
	}}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), lines("one", "two", "three"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.OK() {
		t.Fatal("expected aggregate failure")
	}
	if len(outcome.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(outcome.Results))
	}
	if outcome.Succeeded != 2 || outcome.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if len(synth.calls) != 3 {
		t.Fatalf("expected all 3 items attempted, got %d", len(synth.calls))
	}

	for _, want := range []string{"1.wav", "3.wav"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Fatalf("expected artifact %s: %v", want, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "2.wav")); !os.IsNotExist(err) {
		t.Fatal("expected no artifact for the failed item")
	}
	if res := outcome.Results[1]; res.State != StateFailure || res.Status != http.StatusInternalServerError {
		t.Fatalf("expected recorded 500 failure, got %+v", res)
	}
}

func TestTransportFailureRecordedAndContinues(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{responses: map[string]scriptedResponse{
		"one": {status: remote.StatusUnreachable, err: fmt.Errorf("connection refused")},
	}}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), lines("one", "two"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failed != 1 || outcome.Succeeded != 1 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if res := outcome.Results[0]; res.Reason == "" {
		t.Fatalf("expected failure reason preserved, got %+v", res)
	}
}

func TestNumberingFollowsInputOrder(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{responses: map[string]scriptedResponse{
		"beta": {status: http.StatusBadGateway},
	}}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), lines("alpha", "beta", "gamma", "delta"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, res := range outcome.Results {
		if res.Seq != i+1 {
			t.Fatalf("result %d has sequence %d", i, res.Seq)
		}
	}
	// Numbering stays aligned with input order even after the failure.
	data, err := os.ReadFile(filepath.Join(dir, "3.wav"))
	if err != nil {
		t.Fatalf("read 3.wav: %v", err)
	}
	if string(data) != "audio:gamma" {
		t.Fatalf("artifact 3.wav holds %q, expected gamma audio", data)
	}
}

func TestBlankLineSkippedButNumbered(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), lines("one", "   ", "three"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("blank line must not fail the batch: %+v", outcome)
	}
	if outcome.Skipped != 1 || outcome.Succeeded != 2 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if len(synth.calls) != 2 {
		t.Fatalf("blank line must not reach the endpoint, got calls %v", synth.calls)
	}
	// The blank line keeps its sequence number; the third line stays 3.wav.
	if _, err := os.Stat(filepath.Join(dir, "2.wav")); !os.IsNotExist(err) {
		t.Fatal("expected no artifact for the blank line")
	}
	if _, err := os.Stat(filepath.Join(dir, "3.wav")); err != nil {
		t.Fatalf("expected artifact 3.wav: %v", err)
	}
}

func TestEmptyInputIsNotSuccess(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{}
	runner := newTestRunner(synth, dir, nil)

	outcome, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.OK() {
		t.Fatal("zero processed items must not count as success")
	}
	if len(synth.calls) != 0 {
		t.Fatalf("expected zero synthesis calls, got %d", len(synth.calls))
	}
}

func TestCancellationStopsBetweenItems(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	synth := &scriptedSynth{}
	runner := newTestRunner(synth, dir, func(Result) {
		cancel()
	})

	outcome, err := runner.Run(ctx, lines("one", "two", "three"))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result before cancellation, got %d", len(outcome.Results))
	}
	if len(synth.calls) != 1 {
		t.Fatalf("expected 1 synthesis call, got %d", len(synth.calls))
	}
	// The completed item's artifact is intact; nothing partial remains.
	if _, err := os.Stat(filepath.Join(dir, "1.wav")); err != nil {
		t.Fatalf("expected artifact 1.wav: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("partial artifact left behind: %s", e.Name())
		}
	}
}

func TestOnResultObservesEveryItem(t *testing.T) {
	dir := t.TempDir()
	synth := &scriptedSynth{responses: map[string]scriptedResponse{
		"two": {status: http.StatusInternalServerError},
	}}
	var seen []Result
	runner := newTestRunner(synth, dir, func(r Result) { seen = append(seen, r) })

	if _, err := runner.Run(context.Background(), lines("one", "two", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 observed results, got %d", len(seen))
	}
	if seen[0].State != StateSuccess || seen[1].State != StateFailure || seen[2].State != StateSkipped {
		t.Fatalf("unexpected states: %v %v %v", seen[0].State, seen[1].State, seen[2].State)
	}
}
