package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromContextAddsRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
}

func TestSetupRespectsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	slog.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
	slog.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record not written")
	}
}

func TestRequestIDMissing(t *testing.T) {
	if id := RequestID(context.Background()); id != "" {
		t.Errorf("RequestID() = %q, want empty", id)
	}
}
