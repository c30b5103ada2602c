package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
)

const defaultBridgeQueueSize = 1024

// Broker is the part of mqtt.Client the bridge uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTBridge mirrors device events to the broker and accepts device
// commands from it. Events are queued so connection goroutines never wait
// on the broker; a full queue drops the event.
type MQTTBridge struct {
	broker Broker
	gw     *Gateway
	qos    byte
	logger *logging.Logger
	topics mqtt.Topics

	queue   chan Event
	dropped atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type statusPayload struct {
	Status    string      `json:"status"`
	Kind      device.Kind `json:"kind"`
	Reason    Reason      `json:"reason,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type statePayload struct {
	Kind      device.Kind     `json:"kind"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewMQTTBridge creates a bridge. queueSize <= 0 uses a default.
func NewMQTTBridge(broker Broker, gw *Gateway, qos byte, queueSize int, logger *logging.Logger) *MQTTBridge {
	if queueSize <= 0 {
		queueSize = defaultBridgeQueueSize
	}
	return &MQTTBridge{
		broker: broker,
		gw:     gw,
		qos:    qos,
		logger: logger.Component("mqtt-bridge"),
		queue:  make(chan Event, queueSize),
	}
}

// Start subscribes to device commands, starts the publisher and installs
// the bridge as the gateway's event sink.
func (b *MQTTBridge) Start(ctx context.Context) error {
	if err := b.broker.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()

	b.gw.SetEventSink(b)
	b.logger.Info("mqtt bridge started", "commands", b.topics.AllDeviceCommands())
	return nil
}

// Stop detaches from the gateway, flushes queued events and unsubscribes.
func (b *MQTTBridge) Stop() {
	b.gw.SetEventSink(nil)
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	if err := b.broker.Unsubscribe(b.topics.AllDeviceCommands()); err != nil {
		b.logger.Debug("unsubscribing device commands", "error", err)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (b *MQTTBridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish queues ev without blocking.
func (b *MQTTBridge) Publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		if b.dropped.Add(1)%100 == 1 {
			b.logger.Warn("mqtt event queue full, dropping events", "dropped", b.dropped.Load())
		}
	}
}

func (b *MQTTBridge) run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.send(ev)
		case <-ctx.Done():
			// Flush what is already queued so final offline states reach
			// the broker.
			for {
				select {
				case ev := <-b.queue:
					b.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *MQTTBridge) send(ev Event) {
	topic, payload, retained, err := b.encode(ev)
	if err != nil {
		b.logger.Error("encoding mqtt event", "device_id", ev.DeviceID, "error", err)
		return
	}
	if err := b.broker.Publish(topic, payload, b.qos, retained); err != nil {
		b.logger.Warn("publishing mqtt event", "topic", topic, "error", err)
	}
}

func (b *MQTTBridge) encode(ev Event) (topic string, payload []byte, retained bool, err error) {
	ts := ev.At.UTC().Format(time.RFC3339Nano)
	switch ev.Type {
	case EventOnline, EventOffline:
		payload, err = json.Marshal(statusPayload{
			Status:    string(ev.Type),
			Kind:      ev.Kind,
			Reason:    ev.Reason,
			Timestamp: ts,
		})
		return b.topics.DeviceStatus(ev.DeviceID), payload, true, err
	case EventTelemetry:
		payload, err = json.Marshal(statePayload{Kind: ev.Kind, Data: ev.Data, Timestamp: ts})
		return b.topics.DeviceState(ev.DeviceID), payload, false, err
	default:
		return "", nil, false, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// handleCommand routes a broker command to the live device. The broker's
// ACL decides who may publish here, so no client access set applies.
func (b *MQTTBridge) handleCommand(topic string, payload []byte) error {
	id, ok := b.topics.CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected command topic %q", ErrProtocol, topic)
	}

	var cmd DeviceCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if cmd.RequestType == "" {
		return fmt.Errorf("%w: missing requestType", ErrProtocol)
	}

	if err := b.gw.DispatchCommand(id, cmd); err != nil {
		if errors.Is(err, ErrRouting) {
			b.logger.Info("mqtt command rejected", "device_id", id, "action", cmd.RequestType, "error", err)
			return nil
		}
		return err
	}
	b.logger.Debug("mqtt command forwarded", "device_id", id, "action", cmd.RequestType)
	return nil
}
