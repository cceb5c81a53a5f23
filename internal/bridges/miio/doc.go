// Package miio bridges MQTT commands to registered Miio devices.
//
// Commands arrive on graylogic/command/miio/{device_id}, are executed
// through the device registry and acknowledged on
// graylogic/ack/miio/{device_id}. The bridge also publishes a retained
// health message on graylogic/health/miio.
//
//	{"id":"cmd-1","device_id":"mio-1a2b3c4d","method":"set_rgb","args":["255","0","0"]}
//
// is answered with
//
//	{"command_id":"cmd-1","device_id":"mio-1a2b3c4d","status":"accepted","protocol":"miio","result":"['ok']",...}
//
// Commands are handled one at a time; the interpreter serialises device
// calls anyway.
package miio
