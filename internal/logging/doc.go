// Package logging provides structured logging for the pool controller.
//
// This package wraps a zap logger with package-level convenience functions so
// that every component logs through the same sink without passing a logger
// around.
//
// # Log Levels
//
//   - Debug: publishes, pairing buffer activity, poll details
//   - Info: state transitions, commands, connections
//   - Warn: sensor mismatches, time sync misses, retries
//   - Error: failed hardware writes, provisioning exhaustion
//
// # Structured Logging
//
//	logging.Info("Actuator changed",
//	    zap.String("actuator", "valve"),
//	    zap.String("state", "2"),
//	)
//
// # Domain Helpers
//
//	logging.LogStage("provisioner", "Pairing", "ConnectPaired")
//	logging.LogCommand("devices/pool-01/pump/set", payload)
//	logging.LogPublish("devices/pool-01/pump/state", "ON", err)
//
// # Configuration
//
//	if err := logging.Initialize("info"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, POOLCTL_LOG_LEVEL is consulted; when that is empty
// too the logger is a no-op, which keeps one-shot CLI commands quiet.
package logging
