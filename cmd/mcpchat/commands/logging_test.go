package commands

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		config   string
		override string
		want     slog.Level
		wantErr  bool
	}{
		{config: "", want: slog.LevelInfo},
		{config: "info", want: slog.LevelInfo},
		{config: "debug", want: slog.LevelDebug},
		{config: "warning", want: slog.LevelWarn},
		{config: "error", want: slog.LevelError},
		{config: "info", override: "debug", want: slog.LevelDebug},
		{config: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.config, tt.override)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseLogLevel(%q, %q): expected error", tt.config, tt.override)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseLogLevel(%q, %q): %v", tt.config, tt.override, err)
		}
		if got != tt.want {
			t.Fatalf("parseLogLevel(%q, %q)=%v want %v", tt.config, tt.override, got, tt.want)
		}
	}
}
