package gateway

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTelemetryRing(t *testing.T) {
	r := newTelemetryRing(3)
	if r.len() != 0 || len(r.frames()) != 0 {
		t.Fatal("new ring is not empty")
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.push(TelemetryFrame{At: base.Add(time.Duration(i) * time.Second), Data: json.RawMessage{byte('0' + i)}})
	}

	frames := r.frames()
	if len(frames) != 3 {
		t.Fatalf("frames() len = %d, want 3", len(frames))
	}
	for i, want := range []string{"2", "3", "4"} {
		if string(frames[i].Data) != want {
			t.Errorf("frames()[%d] = %s, want %s", i, frames[i].Data, want)
		}
	}
}

func TestTelemetryRing_MinimumSize(t *testing.T) {
	r := newTelemetryRing(0)
	r.push(TelemetryFrame{Data: json.RawMessage(`1`)})
	r.push(TelemetryFrame{Data: json.RawMessage(`2`)})

	frames := r.frames()
	if len(frames) != 1 || string(frames[0].Data) != "2" {
		t.Errorf("frames() = %v, want only the latest", frames)
	}
}
