// Package mqtt connects the gateway to an MQTT broker.
//
// The broker is optional. When enabled, the gateway publishes device
// status and telemetry and accepts device commands from broker-side
// producers:
//
//	graylogic/gateway/device/{id}/status   retained online/offline
//	graylogic/gateway/device/{id}/state    every telemetry frame
//	graylogic/gateway/command/{id}         inbound commands
//	graylogic/system/status                retained process status (LWT)
//
// The client reconnects with backoff and restores its subscriptions after
// every reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
