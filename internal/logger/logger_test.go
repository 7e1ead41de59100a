package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", ServiceName: "erp-server", Version: "1.2.3"}, &buf)
	log.Info().Str("module", "finance").Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"service": "erp-server",
		"version": "1.2.3",
		"module":  "finance",
		"message": "hello",
		"level":   "info",
	} {
		if got[key] != want {
			t.Errorf("field %s: expected %q, got %v", key, want, got[key])
		}
	}
	if _, ok := got["time"]; !ok {
		t.Error("expected a time field")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
	}{
		{"debug", true},
		{"info", false},
		{"", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(Config{Level: tt.level}, &buf)
			log.Debug().Msg("debug line")
			if seen := buf.Len() > 0; seen != tt.debugSeen {
				t.Errorf("level %q: debug emitted=%v, want %v", tt.level, seen, tt.debugSeen)
			}
		})
	}
}
