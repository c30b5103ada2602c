package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// DeviceConn is one authenticated device socket.
type DeviceConn struct {
	*peer

	id        string
	kind      device.Kind
	behaviour device.Behaviour

	mu          sync.RWMutex
	lastData    json.RawMessage
	lastSeen    time.Time
	connectedAt time.Time
	history     *telemetryRing
}

func newDeviceConn(p *peer, id string, behaviour device.Behaviour, historySize int) *DeviceConn {
	return &DeviceConn{
		peer:        p,
		id:          id,
		kind:        behaviour.Kind,
		behaviour:   behaviour,
		connectedAt: time.Now().UTC(),
		history:     newTelemetryRing(historySize),
	}
}

// Key returns the device ID.
func (d *DeviceConn) Key() string { return d.id }

// ID returns the device ID.
func (d *DeviceConn) ID() string { return d.id }

// Kind returns the device kind.
func (d *DeviceConn) Kind() device.Kind { return d.kind }

// Terminate ends the connection. Safe to call more than once.
func (d *DeviceConn) Terminate(reason Reason, cause error) {
	d.terminate(reason, cause)
}

// ConnectedAt returns when the device was activated.
func (d *DeviceConn) ConnectedAt() time.Time { return d.connectedAt }

// LastData returns the most recent telemetry frame, or nil before the
// first one arrives.
func (d *DeviceConn) LastData() json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastData
}

// LastSeen returns when the last telemetry frame arrived.
func (d *DeviceConn) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// Snapshot returns the broadcast view of the device.
func (d *DeviceConn) Snapshot() DeviceSnapshot {
	d.mu.RLock()
	data := d.lastData
	d.mu.RUnlock()

	return DeviceSnapshot{
		ID:       d.id,
		Kind:     d.kind,
		Liveness: d.Alive(),
		LastData: data,
	}
}

// History returns the retained telemetry frames, oldest first.
func (d *DeviceConn) History() []TelemetryFrame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history.frames()
}

// Dispatch checks req against the device's kind and queues it for the
// device. The device is not contacted when validation fails.
func (d *DeviceConn) Dispatch(req ActionRequest) error {
	if err := d.behaviour.Validate(req.RequestType, req.Parameters); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAction, err)
	}

	msg, err := encodeDeviceCommand(req)
	if err != nil {
		return fmt.Errorf("%w: encoding command: %w", ErrProtocol, err)
	}
	return d.enqueue(msg)
}

// record stores one telemetry frame. Any inbound frame, even one that is
// dropped later, has already marked the device alive.
func (d *DeviceConn) record(data json.RawMessage, at time.Time) {
	d.mu.Lock()
	d.lastData = data
	d.lastSeen = at
	d.history.push(TelemetryFrame{At: at, Data: data})
	d.mu.Unlock()
}
