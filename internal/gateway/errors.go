package gateway

import "errors"

// Error taxonomy. Check with errors.Is.
var (
	// ErrAuthentication means a handshake presented bad or missing
	// credentials. The socket is never upgraded.
	ErrAuthentication = errors.New("gateway: authentication failed")

	// ErrProtocol means a frame was malformed. The frame is dropped.
	ErrProtocol = errors.New("gateway: malformed frame")

	// ErrRouting is the parent of every request routing failure. The
	// request is rejected and the connection stays open.
	ErrRouting = errors.New("gateway: routing failed")

	// ErrLivenessTimeout means a peer stayed silent for a whole heartbeat
	// interval after being pinged.
	ErrLivenessTimeout = errors.New("gateway: heartbeat timeout")

	// ErrTransport wraps socket-level read and write failures.
	ErrTransport = errors.New("gateway: transport error")

	// ErrConnectionClosed is returned when sending on a terminated connection.
	ErrConnectionClosed = errors.New("gateway: connection closed")

	// ErrSendBufferFull is returned when a peer is not draining its queue.
	ErrSendBufferFull = errors.New("gateway: send buffer full")
)

// Routing failures. Each wraps ErrRouting.
var (
	ErrUnknownDevice     = routingError("unknown device")
	ErrDeviceOffline     = routingError("device offline")
	ErrUnsupportedAction = routingError("unsupported action")
	ErrForbiddenDevice   = routingError("device not accessible")
)

type routeErr struct{ msg string }

func (e *routeErr) Error() string { return "gateway: " + e.msg }
func (e *routeErr) Unwrap() error { return ErrRouting }

func routingError(msg string) error { return &routeErr{msg: msg} }

// errorKind names the taxonomy bucket of err for metrics labels.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrForbiddenDevice):
		return "forbidden"
	case errors.Is(err, ErrDeviceOffline):
		return "offline"
	case errors.Is(err, ErrUnsupportedAction):
		return "unsupported"
	case errors.Is(err, ErrUnknownDevice):
		return "unknown"
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	default:
		return "other"
	}
}
