package gateway

import (
	"errors"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/auth"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// ClientConn is one authenticated user socket.
type ClientConn struct {
	*peer

	connID  string
	session *auth.Session

	// Resolved once at connect. Grant changes apply on the next connect.
	refs    []DeviceRef
	allowed map[string]struct{}

	gw *Gateway
}

func newClientConn(p *peer, connID string, session *auth.Session, gw *Gateway) *ClientConn {
	refs := make([]DeviceRef, 0, len(session.Devices))
	allowed := make(map[string]struct{}, len(session.Devices))
	for _, d := range session.Devices {
		if _, dup := allowed[d.ID]; dup {
			continue
		}
		allowed[d.ID] = struct{}{}
		refs = append(refs, DeviceRef{ID: d.ID, Kind: d.Kind})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })

	return &ClientConn{
		peer:    p,
		connID:  connID,
		session: session,
		refs:    refs,
		allowed: allowed,
		gw:      gw,
	}
}

// Key returns the per-socket connection ID.
func (c *ClientConn) Key() string { return c.connID }

// ConnID returns the per-socket connection ID.
func (c *ClientConn) ConnID() string { return c.connID }

// UserID returns the authenticated user.
func (c *ClientConn) UserID() string { return c.session.UserID }

// Role returns the user's permission level.
func (c *ClientConn) Role() auth.Role { return c.session.Role }

// Terminate ends the connection. Safe to call more than once.
func (c *ClientConn) Terminate(reason Reason, cause error) {
	c.terminate(reason, cause)
}

// CanAccess reports whether id is in the client's device set.
func (c *ClientConn) CanAccess(id string) bool {
	_, ok := c.allowed[id]
	return ok
}

// Accessible returns the client's device set ordered by ID.
func (c *ClientConn) Accessible() []DeviceRef {
	out := make([]DeviceRef, len(c.refs))
	copy(out, c.refs)
	return out
}

// Snapshots returns a snapshot of every accessible device that is
// currently connected. Nothing outside the access set is ever included.
func (c *ClientConn) Snapshots() []DeviceSnapshot {
	out := make([]DeviceSnapshot, 0, len(c.refs))
	for _, ref := range c.refs {
		if d, ok := c.gw.devices.Find(ref.ID); ok {
			out = append(out, d.Snapshot())
		}
	}
	return out
}

// route forwards req to its device after access and presence checks.
func (c *ClientConn) route(req ActionRequest) error {
	if err := device.ValidateID(req.DeviceID); err != nil {
		return ErrUnknownDevice
	}
	if !c.CanAccess(req.DeviceID) {
		return ErrForbiddenDevice
	}
	d, ok := c.gw.devices.Find(req.DeviceID)
	if !ok {
		return ErrDeviceOffline
	}
	if err := d.Dispatch(req); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return ErrDeviceOffline
		}
		return err
	}
	return nil
}

// handleFrame parses and routes one client frame. Malformed frames are
// dropped silently. Every parsed request gets an ACK.
func (c *ClientConn) handleFrame(data []byte) {
	c.markAlive()

	req, err := ParseActionRequest(data)
	if err != nil {
		c.gw.metrics.frameDropped("client", err)
		c.logger.Debug("dropping malformed client frame", "error", err)
		return
	}

	err = c.route(req)
	c.gw.metrics.actionRouted(req.RequestType, err)
	if err != nil {
		c.logger.Info("action rejected",
			"device_id", req.DeviceID,
			"action", req.RequestType,
			"error", err,
		)
	} else {
		c.logger.Debug("action forwarded", "device_id", req.DeviceID, "action", req.RequestType)
	}

	ack, encErr := encodeAck(req, err)
	if encErr != nil {
		c.logger.Error("encoding ack", "error", encErr)
		return
	}
	if sendErr := c.enqueue(ack); sendErr != nil && !errors.Is(sendErr, ErrConnectionClosed) {
		c.gw.metrics.frameDropped("client", sendErr)
	}
}

// broadcastLoop sends the DEVICES frame once, a DATA frame straight away
// and then one DATA frame every interval until the connection ends.
func (c *ClientConn) broadcastLoop(interval time.Duration) {
	devices, err := encodeDevicesFrame(c.refs)
	if err != nil {
		c.logger.Error("encoding devices frame", "error", err)
		return
	}
	if err := c.enqueue(devices); err != nil {
		return
	}
	if !c.broadcast() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.broadcast() {
				return
			}
		}
	}
}

// broadcast queues one DATA frame. It returns false once the connection
// has closed. A full queue skips the tick; the next one carries fresh state.
func (c *ClientConn) broadcast() bool {
	msg, err := encodeDataFrame(c.Snapshots())
	if err != nil {
		c.logger.Error("encoding data frame", "error", err)
		return true
	}

	switch err := c.enqueue(msg); {
	case err == nil:
		c.gw.metrics.broadcastSent()
	case errors.Is(err, ErrConnectionClosed):
		return false
	default:
		c.gw.metrics.frameDropped("client", err)
		c.logger.Debug("skipping broadcast tick", "error", err)
	}
	return true
}
