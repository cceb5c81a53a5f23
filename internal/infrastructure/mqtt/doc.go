// Package mqtt provides the broker connection for the miio command bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and a Last Will
//   - Publishing with payload and QoS validation
//   - Subscriptions restored after reconnect
//   - The topic layout: graylogic/{command,ack,health}/miio[/device_id]
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.DeviceIDFromTopic(topic)
//	        ...
//	    })
//
// TLS should be enabled (broker.tls) whenever the broker is not on localhost:
// command payloads are not otherwise protected.
package mqtt
