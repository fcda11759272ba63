// Package nats exposes the camera over NATS.
//
// # Subjects
//
//	echotherm.commands          # request/reply: command batch in, results out
//	echotherm.status            # request/reply: camera status snapshot
//	echotherm.events.{name}     # bus events (camera_state, capture, setting, ...)
//
// Core NATS only, no JetStream. The responder and the event bridge degrade
// gracefully: when the server is unreachable at startup they keep
// reconnecting in the background and the daemon runs without them.
//
// An embedded server can be started in-process for single-board setups
// where no broker is available.
//
// # Debugging with nats CLI
//
//	nats sub "echotherm.events.>"
//	nats req echotherm.status ''
//	nats req echotherm.commands '{"batch":"PALETTE 3|GETZOOM"}'
//
// # Message Formats
//
// CommandRequest (echotherm.commands):
//
//	{"batch": "ZOOM 2|STATUS"}
//
// CommandReply:
//
//	{
//	  "results": [
//	    {"command": "ZOOM 2"},
//	    {"command": "STATUS", "output": "Camera 1A2B connected ..."}
//	  ]
//	}
//
// EventMessage (echotherm.events.{name}):
//
//	{
//	  "event": "capture",
//	  "timestamp": "2024-01-01T12:00:00Z",
//	  "data": {"kind": "screenshot", "path": "/home/pi/screenshot.png", "ok": true}
//	}
package nats
