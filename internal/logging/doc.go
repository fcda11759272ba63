// Package logging provides slog loggers with per-module levels.
//
// Every module logger writes to stdout (text or JSON) when stdout is
// attached, to the systemd journal when journald is reachable, and always
// to an in-memory History served by the HTTP API.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"recorder": "debug",
//			"protocol": "warn",
//		},
//	})
//
//	logger := logging.GetLogger("camera")
//	logger.Info("Camera connected", "chip_id", id)
//
// Module levels can be changed later with SetModuleLevel or by calling
// Initialize again after a config reload.
//
// Journal entries are tagged with SYSLOG_IDENTIFIER=echotherm:
//
//	journalctl -t echotherm -f
//	journalctl -t echotherm MODULE=recorder
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	recorder = "debug"
package logging
