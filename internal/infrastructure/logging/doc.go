// Package logging provides structured logging for Gray Logic Power.
//
// It is a thin wrapper over log/slog: every component logs key-value
// pairs through the same handler, with the service name and version
// attached to each record.
//
// # Configuration
//
// The logging section of config.yaml drives the setup:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// JSON is for production log shipping; text is for development
// terminals.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8090)
//
//	engineLog := logger.With("component", "pm")
//	engineLog.Error("callback failed", "device", dev, "error", err)
//
// Never log secrets, tokens, or passwords. Sensitive values get
// truncated or omitted before logging.
package logging
