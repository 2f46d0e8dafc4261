package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "engine")).Debug(context.Background(), "tick",
		Int("tick", 3), Float("speed", 65.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "tick" || rec["component"] != "engine" || rec["error"] != "boom" {
		t.Fatalf("record = %v", rec)
	}
	if rec["tick"] != float64(3) || rec["speed"] != 65.5 {
		t.Fatalf("record = %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestIDIsAddedFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.Info(ctx, "hello")

	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Fatalf("output = %q, want request_id", buf.String())
	}
}

func TestRequestLoggerLogsRequestIDOnce(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	ctx, log := WithRequestLogger(ContextWithRequestID(context.Background(), "req-2"), base)
	log.Info(ctx, "hello")

	if n := strings.Count(buf.String(), `"request_id"`); n != 1 {
		t.Fatalf("request_id appears %d times in %q, want 1", n, buf.String())
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}
	_, again := EnsureRequestID(ctx)
	if again != id {
		t.Fatalf("second id = %q, want %q", again, id)
	}
}

func TestWithRequestLoggerStoresLogger(t *testing.T) {
	ctx, l := WithRequestLogger(context.Background(), nil)
	if RequestIDFromContext(ctx) == "" {
		t.Fatalf("no request id on context")
	}
	if got := FromContext(ctx, nil); got != l {
		t.Fatalf("FromContext returned %v, want request logger", got)
	}
	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("FromContext without logger should fall back to Noop")
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	var buf bytes.Buffer
	log := NewFromEnv(Config{Level: "debug", Output: &buf})
	log.Warn(context.Background(), "dropped")
	log.Error(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.HasPrefix(out, "{") {
		t.Fatalf("output = %q", out)
	}
}
