package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeBroker records publishes and keeps the subscribed handlers.
type fakeBroker struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) find(topic string) (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].topic == topic {
			return b.published[i], true
		}
	}
	return published{}, false
}

func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()

	b.mu.Lock()
	handler := b.handlers[mqtt.Topics{}.AllDeviceCommands()]
	b.mu.Unlock()
	if handler == nil {
		t.Fatal("no command subscription")
	}
	return handler(topic, []byte(payload))
}

func TestMQTTBridge_PublishesDeviceEvents(t *testing.T) {
	env := newTestEnv(t, testOptions())
	env.auth.addDevice("clock-1", device.KindAlarmclock)

	broker := newFakeBroker()
	bridge := NewMQTTBridge(broker, env.gw, 1, 0, logging.Discard())
	if err := bridge.Start(testContext(t)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer bridge.Stop()

	conn := env.connectDevice(t, device.KindAlarmclock, "clock-1")
	topics := mqtt.Topics{}

	waitFor(t, time.Second, func() bool {
		_, ok := broker.find(topics.DeviceStatus("clock-1"))
		return ok
	}, "online status")
	msg, _ := broker.find(topics.DeviceStatus("clock-1"))
	if !msg.retained {
		t.Error("status should be retained")
	}
	var status statusPayload
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.Status != "online" || status.Kind != device.KindAlarmclock {
		t.Errorf("status = %+v", status)
	}

	if err := conn.WriteJSON(map[string]any{"temp": 19}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, ok := broker.find(topics.DeviceState("clock-1"))
		return ok
	}, "state message")
	state, _ := broker.find(topics.DeviceState("clock-1"))
	var sp statePayload
	if err := json.Unmarshal(state.payload, &sp); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if string(sp.Data) != `{"temp":19}` {
		t.Errorf("state data = %s, want {\"temp\":19}", sp.Data)
	}

	conn.Close()
	waitFor(t, 2*time.Second, func() bool {
		m, ok := broker.find(topics.DeviceStatus("clock-1"))
		if !ok {
			return false
		}
		var s statusPayload
		return json.Unmarshal(m.payload, &s) == nil && s.Status == "offline"
	}, "offline status")
}

func TestMQTTBridge_RoutesCommands(t *testing.T) {
	env := newTestEnv(t, testOptions())
	env.auth.addDevice("mixer-1", device.KindWatermixer)

	broker := newFakeBroker()
	bridge := NewMQTTBridge(broker, env.gw, 1, 0, logging.Discard())
	if err := bridge.Start(testContext(t)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer bridge.Stop()

	frames := keepReading(env.connectDevice(t, device.KindWatermixer, "mixer-1"))
	topics := mqtt.Topics{}

	if err := broker.deliver(t, topics.DeviceCommand("mixer-1"), `{"requestType":"START_MIXING"}`); err != nil {
		t.Fatalf("command error = %v", err)
	}
	select {
	case msg := <-frames:
		if string(msg) != `{"requestType":"START_MIXING"}` {
			t.Errorf("device received %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("device did not receive the command")
	}

	// Routing failures are logged, not returned to the broker client.
	if err := broker.deliver(t, topics.DeviceCommand("mixer-9"), `{"requestType":"GET_DATA"}`); err != nil {
		t.Errorf("offline device error = %v, want nil", err)
	}
	if err := broker.deliver(t, topics.DeviceCommand("mixer-1"), `{"requestType":"SET_TIME"}`); err != nil {
		t.Errorf("unsupported action error = %v, want nil", err)
	}

	if err := broker.deliver(t, topics.DeviceCommand("mixer-1"), `nope`); !errors.Is(err, ErrProtocol) {
		t.Errorf("malformed payload error = %v, want ErrProtocol", err)
	}
	if err := broker.deliver(t, topics.DeviceCommand("mixer-1"), `{}`); !errors.Is(err, ErrProtocol) {
		t.Errorf("missing requestType error = %v, want ErrProtocol", err)
	}
}

func TestMQTTBridge_DropsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t, testOptions())

	// Not started, so nothing drains the queue.
	bridge := NewMQTTBridge(newFakeBroker(), env.gw, 0, 2, logging.Discard())
	for n := 0; n < 5; n++ {
		bridge.Publish(Event{Type: EventOnline, DeviceID: "x", At: time.Now()})
	}
	if got := bridge.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestMQTTBridge_StopUnsubscribes(t *testing.T) {
	env := newTestEnv(t, testOptions())
	broker := newFakeBroker()
	bridge := NewMQTTBridge(broker, env.gw, 0, 0, logging.Discard())

	if err := bridge.Start(testContext(t)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	bridge.Stop()

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.handlers) != 0 {
		t.Errorf("handlers after Stop() = %d, want 0", len(broker.handlers))
	}
}
