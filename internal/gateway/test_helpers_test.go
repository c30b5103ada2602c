package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateway/internal/auth"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

var _ Authenticator = (*auth.Service)(nil)

type fakeDevice struct {
	kind   device.Kind
	secret string
}

// fakeAuth is an in-memory Authenticator.
type fakeAuth struct {
	mu       sync.Mutex
	devices  map[string]fakeDevice
	sessions map[string]*auth.Session
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		devices:  make(map[string]fakeDevice),
		sessions: make(map[string]*auth.Session),
	}
}

func (a *fakeAuth) addDevice(id string, kind device.Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices[id] = fakeDevice{kind: kind, secret: id + "-secret"}
}

// addSession registers token for a user who may access ids.
func (a *fakeAuth) addSession(token, userID string, ids ...string) *auth.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &auth.Session{UserID: userID, Username: userID, Role: auth.RoleUser, Devices: []auth.DeviceIdentity{}}
	for _, id := range ids {
		kind := device.KindWatermixer
		if d, ok := a.devices[id]; ok {
			kind = d.kind
		}
		s.Devices = append(s.Devices, auth.DeviceIdentity{ID: id, Kind: kind})
	}
	a.sessions[token] = s
	return s
}

func (a *fakeAuth) ResolveDevice(_ context.Context, kind device.Kind, id, secret string) (auth.DeviceIdentity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.devices[id]
	if !ok || d.kind != kind || d.secret != secret {
		return auth.DeviceIdentity{}, auth.ErrInvalidCredentials
	}
	return auth.DeviceIdentity{ID: id, Kind: kind}, nil
}

func (a *fakeAuth) ResolveUser(_ context.Context, token string) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return s, nil
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count(typ EventType, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == typ && ev.DeviceID == id {
			n++
		}
	}
	return n
}

// testOptions uses short intervals so timing tests finish quickly.
func testOptions() Options {
	return Options{
		HeartbeatInterval: 100 * time.Millisecond,
		BroadcastInterval: 50 * time.Millisecond,
		WriteWait:         time.Second,
		MaxMessageSize:    4096,
		SendBufferSize:    16,
		HistorySize:       8,
	}
}

type testEnv struct {
	gw   *Gateway
	auth *fakeAuth
	sink *recordingSink
	srv  *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	fa := newFakeAuth()
	sink := &recordingSink{}
	gw, err := New(Deps{Options: opts, Auth: fa, Logger: logging.Discard(), Events: sink})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/devices/ws", gw.ServeDevice)
	mux.HandleFunc("/ws", gw.ServeClient)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		srv.Close()
	})

	return &testEnv{gw: gw, auth: fa, sink: sink, srv: srv}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
}

func (e *testEnv) dialDevice(kind device.Kind, id, secret string) (*websocket.Conn, *http.Response, error) {
	h := http.Header{}
	h.Set(HeaderDeviceType, string(kind))
	h.Set(HeaderDeviceUID, id)
	h.Set(HeaderSecret, secret)
	return websocket.DefaultDialer.Dial(e.wsURL("/devices/ws"), h)
}

// connectDevice dials a provisioned device and waits until it is
// registered.
func (e *testEnv) connectDevice(t *testing.T, kind device.Kind, id string) *websocket.Conn {
	t.Helper()

	conn, _, err := e.dialDevice(kind, id, id+"-secret")
	if err != nil {
		t.Fatalf("dial device %s: %v", id, err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, time.Second, func() bool {
		_, ok := e.gw.Devices().Find(id)
		return ok
	}, "device %s registered", id)
	return conn
}

func (e *testEnv) connectClient(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL("/ws"), h)
	if err != nil {
		t.Fatalf("dial client: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// keepReading drains conn in the background so ping frames get answered.
// Data frames are forwarded to the returned channel.
func keepReading(conn *websocket.Conn) <-chan []byte {
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case out <- data:
			default:
			}
		}
	}()
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for "+format, args...)
}

type inboundFrame struct {
	RequestType string          `json:"requestType"`
	Data        json.RawMessage `json:"data"`
}

// readFrame reads the next gateway frame from conn.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) inboundFrame {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decoding frame %s: %v", data, err)
	}
	return f
}

// readUntil reads frames until one of requestType satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, requestType string, timeout time.Duration, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn, time.Until(deadline))
		if f.RequestType == requestType && (match == nil || match(f.Data)) {
			return f.Data
		}
	}
	t.Fatalf("no matching %s frame within %v", requestType, timeout)
	return nil
}

func decodeSnapshots(t *testing.T, data json.RawMessage) []DeviceSnapshot {
	t.Helper()

	var snaps []DeviceSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		t.Fatalf("decoding snapshots: %v", err)
	}
	return snaps
}

func snapshotIDs(snaps []DeviceSnapshot) []string {
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
	}
	return ids
}
