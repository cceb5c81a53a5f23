package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout shared with the other Gray Logic bridges:
// graylogic/{category}/{protocol}/{device_id}.
const (
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment for every topic this service uses.
	Protocol = "miio"
)

// Topics builds the MQTT topics used by the miio bridge.
//
//	topics := mqtt.Topics{}
//	topics.Command("mio-1a2b3c4d") // "graylogic/command/miio/mio-1a2b3c4d"
type Topics struct{}

// Command returns the topic commands for one device arrive on.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// AllCommands returns the wildcard subscription for every device command.
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// Ack returns the topic command acknowledgements are published to.
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Health returns the retained bridge health topic. It doubles as the
// Last Will topic.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// DeviceIDFromTopic extracts the device ID from a command or ack topic.
//
// Example: "graylogic/command/miio/mio-1a2b3c4d" -> "mio-1a2b3c4d", true
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != Protocol || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
