package sysutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLogLevel_AllVariants(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"verbose", zerolog.InfoLevel}, // unknown
	}
	for _, tc := range cases {
		if got := ParseLogLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLogLevel(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func preserveLogger(t *testing.T) {
	t.Helper()
	lvl, logger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = logger
	})
}

func TestConfigureLogger_JSON(t *testing.T) {
	preserveLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(&buf, "warn", false, "socialcart")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("global level = %v", zerolog.GlobalLevel())
	}

	log.Info().Msg("hidden")
	log.Warn().Str("context_id", "c1").Msg("context reaped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line above warn, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["service"] != "socialcart" || rec["context_id"] != "c1" || rec["message"] != "context reaped" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Fatalf("missing timestamp: %v", rec)
	}
}

func TestConfigureLogger_Pretty(t *testing.T) {
	preserveLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(&buf, "debug", true, "")
	log.Debug().Msg("catalog reloaded")

	out := buf.String()
	if !strings.Contains(out, "catalog reloaded") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
	if strings.Contains(out, "service") {
		t.Fatalf("empty service should not be attached: %q", out)
	}
}
