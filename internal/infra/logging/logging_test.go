//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"nexus-billing/internal/config"
)

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com": "j***@example.com",
		"+15551234567":         "+155...67",
		"short":                "***",
		"":                     "",
	}
	for in, want := range cases {
		if got := Redact(in, false); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
	if Redact("jane@example.com", true) != "jane@example.com" {
		t.Error("dev mode must not redact")
	}
}

func TestWithAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithEventID(WithUserID(WithTraceID(context.Background(), "t-1"), "u-1"), "evt_1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	for k, v := range map[string]string{"trace_id": "t-1", "user_id": "u-1", "event_id": "evt_1"} {
		if line[k] != v {
			t.Errorf("expected %s=%s, got %v", k, v, line[k])
		}
	}
	if TraceID(ctx) != "t-1" {
		t.Error("TraceID should read back the stored id")
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "nonsense", Format: "json"}, false, &buf)
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Error("debug must be filtered at the default info level")
	}
}
