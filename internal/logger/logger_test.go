package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger_WritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "bzzx", func(context.Context) string { return "abc" })

	log.Info(context.Background(), "buy settled", "venue", "uniswap", "bps", 30, "error", errors.New("boom"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json record, got %q: %v", buf.String(), err)
	}

	checks := map[string]any{
		"message":  "buy settled",
		"service":  "bzzx",
		"venue":    "uniswap",
		"bps":      float64(30),
		"error":    "boom",
		"trace_id": "abc",
		"level":    "info",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("field %s: expected %v, got %v", k, want, rec[k])
		}
	}
	if _, ok := rec["caller"]; !ok {
		t.Error("expected caller field")
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "bzzx", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	log.Warn(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("expected warn record")
	}
}

func TestLogger_OddArgs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "bzzx", nil)

	log.Debug(context.Background(), "odd", "dangling")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["dangling"] != "MISSING" {
		t.Errorf("expected MISSING marker, got %v", rec["dangling"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"warn":  LevelWarn,
		"error": LevelError,
		"info":  LevelInfo,
		"":      LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
