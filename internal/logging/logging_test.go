package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	z := New(&buf, "json").Level(zerolog.InfoLevel)
	log := Slog(z).With("component", "engine").WithGroup("claim")

	log.Debug("hidden")
	log.Warn("claim adjudicated", "id", "clm_1", "score", 40)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}

	tests := []struct {
		key  string
		want any
	}{
		{"level", "warn"},
		{"message", "claim adjudicated"},
		{"component", "engine"},
		{"claim.id", "clm_1"},
		{"claim.score", float64(40)},
	}
	for _, tt := range tests {
		if got[tt.key] != tt.want {
			t.Errorf("%s: got %v, want %v", tt.key, got[tt.key], tt.want)
		}
	}
}
