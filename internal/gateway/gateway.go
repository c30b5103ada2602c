package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateway/internal/auth"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

// Handshake headers presented by devices.
const (
	HeaderDeviceType = "device-type"
	HeaderDeviceUID  = "uid"
	HeaderSecret     = "secret"
)

const (
	roleDevice = "device"
	roleClient = "client"
)

// Authenticator resolves handshake credentials. auth.Service implements it.
type Authenticator interface {
	ResolveDevice(ctx context.Context, kind device.Kind, id, secret string) (auth.DeviceIdentity, error)
	ResolveUser(ctx context.Context, token string) (*auth.Session, error)
}

// EventType names a device lifecycle event.
type EventType string

// Device events.
const (
	EventOnline    EventType = "online"
	EventOffline   EventType = "offline"
	EventTelemetry EventType = "telemetry"
)

// Event is published to the EventSink for every device activation,
// removal and accepted telemetry frame.
type Event struct {
	Type     EventType
	DeviceID string
	Kind     device.Kind
	Reason   Reason          // offline only
	Data     json.RawMessage // telemetry only
	At       time.Time
}

// EventSink receives device events. Publish is called from connection
// goroutines and must not block.
type EventSink interface {
	Publish(ev Event)
}

// Options tunes connection behaviour.
type Options struct {
	HeartbeatInterval time.Duration
	BroadcastInterval time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
	SendBufferSize    int
	HistorySize       int
}

// DefaultOptions returns a two-second heartbeat and a one-second broadcast.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 2 * time.Second,
		BroadcastInterval: time.Second,
		WriteWait:         10 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendBufferSize:    64,
		HistorySize:       3600,
	}
}

// OptionsFromConfig converts the gateway config section. Unset values
// fall back to DefaultOptions.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	opts := DefaultOptions()
	if d := cfg.HeartbeatPeriod(); d > 0 {
		opts.HeartbeatInterval = d
	}
	if d := cfg.BroadcastPeriod(); d > 0 {
		opts.BroadcastInterval = d
	}
	if d := cfg.WriteWait(); d > 0 {
		opts.WriteWait = d
	}
	if cfg.MaxMessageSize > 0 {
		opts.MaxMessageSize = int64(cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize > 0 {
		opts.SendBufferSize = cfg.SendBufferSize
	}
	if cfg.HistorySize > 0 {
		opts.HistorySize = cfg.HistorySize
	}
	return opts
}

// Deps holds the dependencies required by the gateway.
type Deps struct {
	Options Options
	Auth    Authenticator
	Logger  *logging.Logger
	Metrics *Metrics  // optional
	Events  EventSink // optional, see SetEventSink
}

// Gateway accepts device and client sockets and owns both registries.
//
// Thread Safety: All methods are safe for concurrent use.
type Gateway struct {
	opts     Options
	auth     Authenticator
	logger   *logging.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	devices *Registry[*DeviceConn]
	clients *Registry[*ClientConn]

	eventsMu sync.RWMutex
	events   EventSink

	// Connections are tied to ctx rather than to the request context,
	// which ends when the handler returns.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a gateway. It accepts connections until Shutdown.
func New(deps Deps) (*Gateway, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	opts := deps.Options
	if opts.HeartbeatInterval <= 0 || opts.BroadcastInterval <= 0 {
		return nil, fmt.Errorf("heartbeat and broadcast intervals must be positive")
	}
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = def.SendBufferSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		opts:    opts,
		auth:    deps.Auth,
		logger:  deps.Logger.Component("gateway"),
		metrics: deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
		devices: NewRegistry[*DeviceConn](),
		clients: NewRegistry[*ClientConn](),
		events:  deps.Events,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// SetEventSink replaces the event sink. nil disables publishing.
func (g *Gateway) SetEventSink(sink EventSink) {
	g.eventsMu.Lock()
	g.events = sink
	g.eventsMu.Unlock()
}

func (g *Gateway) publish(ev Event) {
	g.eventsMu.RLock()
	sink := g.events
	g.eventsMu.RUnlock()
	if sink != nil {
		sink.Publish(ev)
	}
}

// Devices returns the live device registry.
func (g *Gateway) Devices() *Registry[*DeviceConn] { return g.devices }

// Clients returns the live client registry.
func (g *Gateway) Clients() *Registry[*ClientConn] { return g.clients }

// Options returns the effective connection options.
func (g *Gateway) Options() Options { return g.opts }

// track registers a connection with the shutdown wait group. It fails
// once Shutdown has started.
func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// ─── Device sockets ─────────────────────────────────────────────────

// ServeDevice authenticates a device handshake, upgrades the socket and
// serves it until the connection ends.
func (g *Gateway) ServeDevice(w http.ResponseWriter, r *http.Request) {
	kindHeader := r.Header.Get(HeaderDeviceType)
	id := r.Header.Get(HeaderDeviceUID)
	secret := r.Header.Get(HeaderSecret)

	if kindHeader == "" || id == "" || secret == "" {
		g.reject(w, roleDevice, http.StatusBadRequest, "missing device-type, uid or secret header")
		return
	}
	kind, err := device.ParseKind(kindHeader)
	if err != nil {
		g.reject(w, roleDevice, http.StatusBadRequest, "unknown device-type")
		return
	}
	if err := device.ValidateID(id); err != nil {
		g.reject(w, roleDevice, http.StatusBadRequest, "malformed uid")
		return
	}

	identity, err := g.auth.ResolveDevice(r.Context(), kind, id, secret)
	if err != nil {
		g.logger.Warn("device authentication failed", "device_id", id, "kind", kind, "error", err)
		g.reject(w, roleDevice, http.StatusUnauthorized, "invalid device credentials")
		return
	}
	behaviour, ok := device.BehaviourOf(identity.Kind)
	if !ok {
		g.reject(w, roleDevice, http.StatusUnauthorized, "invalid device credentials")
		return
	}

	if !g.track() {
		g.reject(w, roleDevice, http.StatusServiceUnavailable, "gateway is shutting down")
		return
	}
	defer g.wg.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("device upgrade failed", "device_id", id, "error", err)
		return
	}

	logger := g.logger.With("device_id", identity.ID, "kind", identity.Kind)
	d := newDeviceConn(newPeer(g.ctx, ws, g.opts, logger), identity.ID, behaviour, g.opts.HistorySize)
	d.onClose = func(reason Reason, cause error) { g.deviceClosed(d, reason, cause) }

	g.metrics.connected(roleDevice)
	if prev, evicted := g.devices.Add(d); evicted {
		logger.Info("previous connection evicted", "previous_since", prev.ConnectedAt())
	}
	g.publish(Event{Type: EventOnline, DeviceID: d.id, Kind: d.kind, At: d.connectedAt})
	logger.Info("device connected", "devices", g.devices.Len())

	d.serve(g.opts.HeartbeatInterval, func(data []byte) { g.handleDeviceFrame(d, data) })
}

// handleDeviceFrame stores one telemetry frame. Every frame counts as
// proof of life, including ones that are then dropped as malformed.
func (g *Gateway) handleDeviceFrame(d *DeviceConn, data []byte) {
	d.markAlive()

	payload, err := ParseTelemetry(data)
	if err != nil {
		g.metrics.frameDropped(roleDevice, err)
		d.logger.Debug("dropping malformed telemetry", "error", err)
		return
	}

	now := time.Now().UTC()
	d.record(payload, now)
	g.metrics.telemetryAccepted()
	g.publish(Event{Type: EventTelemetry, DeviceID: d.id, Kind: d.kind, Data: payload, At: now})
}

func (g *Gateway) deviceClosed(d *DeviceConn, reason Reason, cause error) {
	removed := g.devices.Remove(d)
	g.metrics.disconnected(roleDevice, reason)
	logTermination(d.logger, "device disconnected", reason, cause)

	// An evicted connection has already been replaced. Its successor owns
	// the online state.
	if removed {
		g.publish(Event{Type: EventOffline, DeviceID: d.id, Kind: d.kind, Reason: reason, At: time.Now().UTC()})
	}
}

// ─── Client sockets ─────────────────────────────────────────────────

// ServeClient authenticates a client handshake, upgrades the socket and
// serves it until the connection ends. The token is read from the
// Authorization header or, for browsers, the token query parameter.
func (g *Gateway) ServeClient(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		g.reject(w, roleClient, http.StatusUnauthorized, "missing token")
		return
	}

	session, err := g.auth.ResolveUser(r.Context(), token)
	if err != nil {
		g.logger.Warn("client authentication failed", "error", err)
		g.reject(w, roleClient, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	if !g.track() {
		g.reject(w, roleClient, http.StatusServiceUnavailable, "gateway is shutting down")
		return
	}
	defer g.wg.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("client upgrade failed", "user_id", session.UserID, "error", err)
		return
	}

	connID := uuid.NewString()
	logger := g.logger.With("user_id", session.UserID, "conn_id", connID)
	c := newClientConn(newPeer(g.ctx, ws, g.opts, logger), connID, session, g)
	c.onClose = func(reason Reason, cause error) {
		g.clients.Remove(c)
		g.metrics.disconnected(roleClient, reason)
		logTermination(c.logger, "client disconnected", reason, cause)
	}

	g.metrics.connected(roleClient)
	g.clients.Add(c)
	logger.Info("client connected",
		"role", session.Role,
		"accessible_devices", len(c.refs),
		"clients", g.clients.Len(),
	)

	c.serve(g.opts.HeartbeatInterval, c.handleFrame, func() { c.broadcastLoop(g.opts.BroadcastInterval) })
}

// BearerToken extracts a token from "Authorization: Bearer" or the token
// query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// ─── Queries and commands ───────────────────────────────────────────

// SnapshotsFor returns the connected devices in session's access set.
func (g *Gateway) SnapshotsFor(session *auth.Session) []DeviceSnapshot {
	out := make([]DeviceSnapshot, 0, len(session.Devices))
	for _, d := range g.devices.Snapshot() {
		if session.CanAccess(d.id) {
			out = append(out, d.Snapshot())
		}
	}
	return out
}

// HistoryFor returns the retained telemetry of one accessible device.
func (g *Gateway) HistoryFor(session *auth.Session, id string) ([]TelemetryFrame, error) {
	if !session.CanAccess(id) {
		return nil, ErrForbiddenDevice
	}
	d, ok := g.devices.Find(id)
	if !ok {
		return nil, ErrDeviceOffline
	}
	return d.History(), nil
}

// DispatchCommand forwards a command to a live device without an access
// check. It serves trusted ingress such as the MQTT bridge.
func (g *Gateway) DispatchCommand(id string, cmd DeviceCommand) error {
	if err := device.ValidateID(id); err != nil {
		return ErrUnknownDevice
	}
	d, ok := g.devices.Find(id)
	if !ok {
		return ErrDeviceOffline
	}
	err := d.Dispatch(ActionRequest{DeviceID: id, RequestType: cmd.RequestType, Parameters: cmd.Parameters})
	g.metrics.actionRouted(cmd.RequestType, err)
	if errors.Is(err, ErrConnectionClosed) {
		return ErrDeviceOffline
	}
	return err
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Shutdown stops accepting sockets, terminates every live connection
// with ReasonShutdown and waits for their goroutines to exit.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	for _, d := range g.devices.Snapshot() {
		d.Terminate(ReasonShutdown, nil)
	}
	for _, c := range g.clients.Snapshot() {
		c.Terminate(ReasonShutdown, nil)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

// ─── Helpers ────────────────────────────────────────────────────────

// handshakeError mirrors the REST API error body.
type handshakeError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) reject(w http.ResponseWriter, role string, status int, msg string) {
	g.metrics.handshakeRejected(role, status)

	code := "bad_request"
	switch status {
	case http.StatusUnauthorized:
		code = "unauthorised"
	case http.StatusServiceUnavailable:
		code = "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(handshakeError{Status: status, Code: code, Message: msg}); err != nil {
		g.logger.Debug("writing handshake error", "error", err)
	}
}

func logTermination(logger *logging.Logger, msg string, reason Reason, cause error) {
	switch reason {
	case ReasonHeartbeatTimeout, ReasonTransport:
		logger.Warn(msg, "reason", reason, "error", cause)
	default:
		logger.Info(msg, "reason", reason)
	}
}
