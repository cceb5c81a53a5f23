// Package config loads the bridge configuration from YAML.
//
// Load starts from built-in defaults, overlays the file, then applies
// GRAYLOGIC_* environment overrides (for example GRAYLOGIC_MIIO_PYTHON or
// GRAYLOGIC_MQTT_PASSWORD) and validates the result. Secrets such as the
// MQTT password and InfluxDB token belong in the environment rather than
// the file.
//
// The bridge section selects how python-miio is located:
//
//	bridge:
//	  python: "python3"
//	  mode: "embedded"    # embedded, path
//	  source_path: ""     # required when mode is path
//
// Device tokens are never part of the configuration. They live in the
// device registry and in exported session files.
package config
