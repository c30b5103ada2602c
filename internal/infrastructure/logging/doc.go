// Package logging provides structured logging for the Gray Logic Gateway.
//
// It wraps log/slog so every component logs through the same handler with
// the service and version fields attached.
//
// Configuration lives under the logging section of the gateway YAML:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	devLog := logger.Component("device")
//	devLog.Info("device connected", "device_id", id)
//
// Never log device secrets or bearer tokens.
package logging
