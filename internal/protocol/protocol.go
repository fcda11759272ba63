// Package protocol implements the text command protocol of the daemon.
//
// A request is a batch of commands separated by "|". Each command is a verb
// optionally followed by one space and a single argument. Path arguments
// are percent-encoded by the sender. Commands that produce a result answer
// with one line each, in batch order.
package protocol

import (
	"errors"
	"strings"
)

// DefaultPort is the TCP port of the command server.
const DefaultPort = 8888

// Separator splits the commands of a batch.
const Separator = "|"

// Verbs.
const (
	VerbShutter                   = "SHUTTER"
	VerbPalette                   = "PALETTE"
	VerbShutterMode               = "SHUTTERMODE"
	VerbPipelineMode              = "PIPELINEMODE"
	VerbSharpen                   = "SHARPEN"
	VerbFlatScene                 = "FLATSCENE"
	VerbGradient                  = "GRADIENT"
	VerbZoom                      = "ZOOM"
	VerbZoomRate                  = "ZOOMRATE"
	VerbMaxZoom                   = "MAXZOOM"
	VerbGetZoom                   = "GETZOOM"
	VerbStatus                    = "STATUS"
	VerbStartRecording            = "STARTRECORDING"
	VerbStopRecording             = "STOPRECORDING"
	VerbTakeScreenshot            = "TAKESCREENSHOT"
	VerbTakeRadiometricScreenshot = "TAKERADIOMETRICSCREENSHOT"
	VerbRadiometricFormat         = "SETRADIOMETRICFRAMEFORMAT"
	VerbFormat                    = "FORMAT"
	VerbLoopbackDevice            = "LOOPBACKDEVICENAME"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Command is one parsed command.
type Command struct {
	Verb string
	Arg  string // raw, still percent-encoded for path verbs
}

// String formats c the way it is sent on the wire.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Verb
	}
	return c.Verb + " " + c.Arg
}

// Parse splits a batch into commands. Empty commands are skipped and
// surrounding whitespace, including a trailing newline, is ignored.
func Parse(batch string) []Command {
	var cmds []Command
	for _, part := range strings.Split(batch, Separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		verb, arg, _ := strings.Cut(part, " ")
		cmds = append(cmds, Command{Verb: verb, Arg: strings.TrimSpace(arg)})
	}
	return cmds
}

// Batch joins commands into one request.
func Batch(cmds ...Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, Separator)
}

// PathCommand builds a command whose argument is a percent-encoded path.
func PathCommand(verb, path string) Command {
	return Command{Verb: verb, Arg: EncodePath(path)}
}

// HasResult reports whether verb answers with a line.
func HasResult(verb string) bool {
	switch verb {
	case VerbGetZoom, VerbStatus, VerbStartRecording, VerbStopRecording,
		VerbTakeScreenshot, VerbTakeRadiometricScreenshot:
		return true
	}
	return false
}

// Verbs returns every known verb.
func Verbs() []string {
	return []string{
		VerbShutter, VerbPalette, VerbShutterMode, VerbPipelineMode,
		VerbSharpen, VerbFlatScene, VerbGradient,
		VerbZoom, VerbZoomRate, VerbMaxZoom, VerbGetZoom, VerbStatus,
		VerbStartRecording, VerbStopRecording, VerbTakeScreenshot,
		VerbTakeRadiometricScreenshot, VerbRadiometricFormat,
		VerbFormat, VerbLoopbackDevice,
	}
}
