package observability

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSlogLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, "warn")
	log.Info("hidden", "study", "10021")
	log.Warn("shown", "study", "10021")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "study=10021") {
		t.Fatalf("expected warn record with attrs, got %q", out)
	}
	if _, ok := NewSlogLogger(nil, "info").(NoopLogger); !ok {
		t.Fatalf("expected noop logger for nil writer")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Debug("m", "k", "v")
	l.Info("m")
	l.Warn("m")
	l.Error("m")
}

func TestExpvarMetricsRecorder(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), "apply_patch", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "apply_patch", false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Second)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS["apply_patch"] != 15 {
		t.Fatalf("expected 15ms total, snapshot=%+v", snapshot)
	}
	if snapshot.Results["apply_patch"]["success"] != 1 || snapshot.Results["apply_patch"]["error"] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}
	if len(snapshot.Results) != 1 {
		t.Fatalf("empty operation must be ignored: %+v", snapshot.Results)
	}
	v := expvar.Get(recorder.Name())
	if v == nil {
		t.Fatalf("expected expvar export to be registered")
	}
	if !strings.Contains(v.String(), "apply_patch") {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "merge_trial", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "merge_trial", true, 30*time.Millisecond)
	rec.Observe(context.Background(), "merge_trial", false, time.Millisecond)

	if got := promtest.ToFloat64(rec.Counter("merge_trial", true)); got != 2 {
		t.Fatalf("success count = %v, want 2", got)
	}
	if got := promtest.ToFloat64(rec.Counter("merge_trial", false)); got != 1 {
		t.Fatalf("error count = %v, want 1", got)
	}
	if n := promtest.CollectAndCount(rec.duration); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTraceTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := 0
	tracer.clock = ClockFunc(func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Millisecond)
	})

	_, span := tracer.Start(context.Background(), "ingest")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "ingest")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].DurationMS != 1 {
		t.Fatalf("unexpected first span: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected second span: %+v", entries[1])
	}
	if strings.Count(buf.String(), "\n") != 2 || !strings.Contains(buf.String(), `"operation":"ingest"`) {
		t.Fatalf("expected two JSON lines, got %q", buf.String())
	}

	memOnly := NewJSONTracer(nil)
	_, span = memOnly.Start(context.Background(), "x")
	span.End(nil)
	if len(memOnly.Entries()) != 1 {
		t.Fatalf("expected in-memory span")
	}
}

func TestNoopTracerAndMetrics(t *testing.T) {
	ctx := context.Background()
	got, span := NoopTracer{}.Start(ctx, "op")
	if got != ctx {
		t.Fatalf("noop tracer must return the same context")
	}
	span.End(nil)
	NoopMetrics{}.Observe(ctx, "op", true, time.Second)
	if SystemClock.Now().Location() != time.UTC {
		t.Fatalf("system clock must report UTC")
	}
}
