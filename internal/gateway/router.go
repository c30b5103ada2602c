package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// Frame request types.
const (
	FrameDevices = "DEVICES"
	FrameData    = "DATA"
	FrameAck     = "ACK"
)

// ActionRequest is a client command for one device.
type ActionRequest struct {
	DeviceID    string         `json:"deviceId"`
	RequestType device.Action  `json:"requestType"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// DeviceCommand is what a device receives for a routed ActionRequest.
type DeviceCommand struct {
	RequestType device.Action  `json:"requestType"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// DeviceSnapshot is the broadcast view of one live device.
type DeviceSnapshot struct {
	ID       string          `json:"id"`
	Kind     device.Kind     `json:"kind"`
	Liveness bool            `json:"liveness"`
	LastData json.RawMessage `json:"lastData"`
}

// DeviceRef names an accessible device in the DEVICES frame.
type DeviceRef struct {
	ID   string      `json:"id"`
	Kind device.Kind `json:"kind"`
}

// Ack reports the outcome of one routed request back to the client.
type Ack struct {
	DeviceID string        `json:"deviceId"`
	Action   device.Action `json:"action"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
}

type outboundFrame struct {
	RequestType string `json:"requestType"`
	Data        any    `json:"data"`
}

// ParseActionRequest decodes a client frame. A frame that is not a JSON
// object or lacks deviceId or requestType is ErrProtocol.
func ParseActionRequest(data []byte) (ActionRequest, error) {
	var req ActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ActionRequest{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if req.DeviceID == "" {
		return ActionRequest{}, fmt.Errorf("%w: missing deviceId", ErrProtocol)
	}
	if req.RequestType == "" {
		return ActionRequest{}, fmt.Errorf("%w: missing requestType", ErrProtocol)
	}
	return req, nil
}

// ParseTelemetry checks that a device frame is a JSON object and returns
// it compacted. The contents are not interpreted.
func ParseTelemetry(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: telemetry must be a JSON object", ErrProtocol)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return buf.Bytes(), nil
}

func encodeDeviceCommand(req ActionRequest) ([]byte, error) {
	return json.Marshal(DeviceCommand{RequestType: req.RequestType, Parameters: req.Parameters})
}

func encodeDevicesFrame(refs []DeviceRef) ([]byte, error) {
	if refs == nil {
		refs = []DeviceRef{}
	}
	return json.Marshal(outboundFrame{RequestType: FrameDevices, Data: refs})
}

func encodeDataFrame(snaps []DeviceSnapshot) ([]byte, error) {
	if snaps == nil {
		snaps = []DeviceSnapshot{}
	}
	return json.Marshal(outboundFrame{RequestType: FrameData, Data: snaps})
}

func encodeAck(req ActionRequest, err error) ([]byte, error) {
	ack := Ack{DeviceID: req.DeviceID, Action: req.RequestType, OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	return json.Marshal(outboundFrame{RequestType: FrameAck, Data: ack})
}
