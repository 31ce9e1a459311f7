package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext_Fields(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(newHandler(&buf, "info", "text")))

	ctx := WithDataset(WithRunID(context.Background()), "hsl")
	FromContext(ctx).Info("processed")

	out := buf.String()
	if !strings.Contains(out, "dataset=hsl") {
		t.Errorf("log output missing dataset: %s", out)
	}
	if !strings.Contains(out, "run_id="+RunID(ctx)) {
		t.Errorf("log output missing run_id: %s", out)
	}
}

func TestFromContext_Empty(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(newHandler(&buf, "info", "json")))

	WithFields(context.Background(), "table", "bus_lines").Info("done")

	out := buf.String()
	if strings.Contains(out, "run_id") {
		t.Errorf("log output should not contain run_id: %s", out)
	}
	if !strings.Contains(out, `"table":"bus_lines"`) {
		t.Errorf("log output missing table field: %s", out)
	}
}

func TestSetupWithFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "gis.log")
	if err := os.WriteFile(path, []byte("old entry\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	closer, err := SetupWithFile(Options{Level: "info", Format: "text", Filename: path, Filemode: "w"})
	if err != nil {
		t.Fatalf("SetupWithFile() error = %v", err)
	}
	slog.Info("fresh entry")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "old entry") {
		t.Errorf("filemode w should truncate, got: %s", data)
	}
	if !strings.Contains(string(data), "fresh entry") {
		t.Errorf("log file missing entry, got: %s", data)
	}
}
