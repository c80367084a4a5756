package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewZapLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     LogLevel
		wantDebug bool
		wantInfo  bool
	}{
		{name: "debug", level: DebugLevel, wantDebug: true, wantInfo: true},
		{name: "info", level: InfoLevel, wantDebug: false, wantInfo: true},
		{name: "error", level: ErrorLevel, wantDebug: false, wantInfo: false},
		{name: "invalid falls back to info", level: "invalid", wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := NewZapLogger(Config{Level: tt.level, Format: JSONFormat, Output: &buf})
			if err != nil {
				t.Fatalf("NewZapLogger() error = %v", err)
			}
			log.Debug("debug message")
			log.Info("info message")
			_ = log.Sync()

			out := buf.String()
			if got := strings.Contains(out, "debug message"); got != tt.wantDebug {
				t.Fatalf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "info message"); got != tt.wantInfo {
				t.Fatalf("info logged = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestZapLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}

	ctx := ContextWithRequestID(context.Background(), "req-42")
	log.WithContext(ctx).With("table", "Dev_Brief").Info("query", "type", "cat")
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]any{
		"message":    "query",
		"level":      "info",
		"request_id": "req-42",
		"table":      "Dev_Brief",
		"type":       "cat",
	} {
		if entry[key] != want {
			t.Fatalf("entry[%q] = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatal("expected timestamp field")
	}
}

func TestWithContext_NoRequestID(t *testing.T) {
	log, err := NewZapLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	if got := log.WithContext(context.Background()); got != Logger(log) {
		t.Fatal("expected same logger when context has no request id")
	}
}

func TestParseLogLevel(t *testing.T) {
	for input, want := range map[string]LogLevel{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	} {
		got, err := ParseLogLevel(input)
		if err != nil || got != want {
			t.Fatalf("ParseLogLevel(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseLogFormat(t *testing.T) {
	if got, err := ParseLogFormat("console"); err != nil || got != TextFormat {
		t.Fatalf("ParseLogFormat(console) = %q, %v", got, err)
	}
	if got, err := ParseLogFormat("json"); err != nil || got != JSONFormat {
		t.Fatalf("ParseLogFormat(json) = %q, %v", got, err)
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
