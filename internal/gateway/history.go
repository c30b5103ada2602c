package gateway

import (
	"encoding/json"
	"time"
)

// TelemetryFrame is one stored device report.
type TelemetryFrame struct {
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// telemetryRing keeps the most recent frames in a fixed-size buffer.
// Callers serialise access.
type telemetryRing struct {
	buf  []TelemetryFrame
	next int
	full bool
}

func newTelemetryRing(size int) *telemetryRing {
	if size < 1 {
		size = 1
	}
	return &telemetryRing{buf: make([]TelemetryFrame, size)}
}

func (r *telemetryRing) push(f TelemetryFrame) {
	r.buf[r.next] = f
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *telemetryRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// frames returns the stored frames oldest first.
func (r *telemetryRing) frames() []TelemetryFrame {
	out := make([]TelemetryFrame, 0, r.len())
	if r.full {
		out = append(out, r.buf[r.next:]...)
	}
	return append(out, r.buf[:r.next]...)
}
