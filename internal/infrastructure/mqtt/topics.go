package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	// TopicPrefixGateway is the base for every gateway topic.
	TopicPrefixGateway = "graylogic/gateway"

	// TopicPrefixSystem is the base for process status topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds gateway topic names.
//
//	topics := mqtt.Topics{}
//	topics.DeviceStatus("clock-1")
//	// graylogic/gateway/device/clock-1/status
type Topics struct{}

// DeviceStatus is the retained online/offline topic of one device.
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefixGateway, deviceID)
}

// DeviceState carries every telemetry frame a device reports.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixGateway, deviceID)
}

// DeviceCommand is where broker-side producers send device commands.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixGateway, deviceID)
}

// AllDeviceCommands matches DeviceCommand for every device.
func (Topics) AllDeviceCommands() string {
	return TopicPrefixGateway + "/command/+"
}

// SystemStatus is the gateway process's own retained status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// CommandDeviceID extracts the device ID from a DeviceCommand topic.
func (Topics) CommandDeviceID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixGateway+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
