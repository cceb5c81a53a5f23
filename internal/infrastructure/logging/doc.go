// Package logging provides structured logging for the Gray Logic Miio bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same shape and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("interpreter ready", "mode", cfg.Bridge.Mode)
//
// # Security
//
// Never log device tokens or serialized device handles. Log the device
// ID and IP address instead.
package logging
