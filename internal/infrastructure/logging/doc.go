// Package logging provides structured logging for hublink.
//
// This package wraps Go's standard log/slog package so every component
// logs through the same handler with the same default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "device_id", hub.DeviceID())
//
// # Security
//
// Never log the shared access key or a SAS token. The connection string
// type redacts its key when formatted.
package logging
