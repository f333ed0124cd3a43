package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		debug     bool
		info      bool
		wantError bool
	}{
		{name: "default is warn", opts: Options{}},
		{name: "info", opts: Options{Level: "info"}, info: true},
		{name: "verbose wins", opts: Options{Level: "error", Verbose: true}, debug: true, info: true},
		{name: "json", opts: Options{Level: "debug", JSON: true}, debug: true, info: true},
		{name: "bad level", opts: Options{Level: "loud"}, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if got := log.Core().Enabled(zap.DebugLevel); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := log.Core().Enabled(zap.InfoLevel); got != tt.info {
				t.Errorf("info enabled = %v, want %v", got, tt.info)
			}
			if !log.Core().Enabled(zap.WarnLevel) {
				t.Error("warn must always be enabled")
			}
		})
	}
}
