package protocol

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/smazurov/echotherm/internal/config"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/thermal"
)

// Camera is the camera surface the commands drive.
type Camera interface {
	TriggerShutter() error
	SetPalette(p thermal.Palette) error
	SetShutterMode(mode int) error
	SetPipelineMode(mode thermal.PipelineMode) error
	SetSharpen(v int) error
	SetFlatScene(v int) error
	SetGradient(v int) error
	SetZoom(z float64)
	SetZoomRate(r float64)
	SetMaxZoom(m float64)
	ZoomString() string
	StatusLine() string
	StartRecording(path string) string
	StopRecording() string
	TakeScreenshot(path string) string
	TakeRadiometricScreenshot(path string) string
	SetRadiometricFormat(f thermal.Format) error
	SetVisualFormat(f thermal.Format) error
	SetLoopbackDevice(path string) error
}

// Result is the outcome of one command. Output is set for commands that
// answer with a line; Err is set when the command was rejected.
type Result struct {
	Command   Command
	Output    string
	HasOutput bool
	Err       error
}

// Executor runs commands against a camera.
type Executor struct {
	camera Camera
	logger *slog.Logger
}

// NewExecutor returns an executor for cam.
func NewExecutor(cam Camera) *Executor {
	return &Executor{camera: cam, logger: logging.GetLogger("protocol")}
}

// Run parses batch and executes its commands in order.
func (e *Executor) Run(batch, transport string) []Result {
	cmds := Parse(batch)
	results := make([]Result, 0, len(cmds))
	for _, cmd := range cmds {
		results = append(results, e.Execute(cmd, transport))
	}
	return results
}

// Execute runs one command. transport names the caller in logs and
// metrics.
func (e *Executor) Execute(cmd Command, transport string) Result {
	verb := strings.ToUpper(cmd.Verb)
	res := Result{Command: cmd, HasOutput: HasResult(verb)}

	out, err := e.dispatch(verb, cmd.Arg)
	res.Output, res.Err = out, err
	if err != nil {
		e.logger.Warn("Command rejected", "command", cmd.String(), "transport", transport, "error", err)
		if res.HasOutput && res.Output == "" {
			res.Output = fmt.Sprintf("%s failed: %v.", verb, err)
		}
		metrics.IncCommand(metricVerb(verb), transport)
		return res
	}

	e.logger.Info("Command executed", "command", cmd.String(), "transport", transport)
	metrics.IncCommand(verb, transport)
	return res
}

// metricVerb bounds the label set for unknown input.
func metricVerb(verb string) string {
	for _, v := range Verbs() {
		if v == verb {
			return verb
		}
	}
	return "UNKNOWN"
}

func (e *Executor) dispatch(verb, arg string) (string, error) {
	cam := e.camera
	switch verb {
	case VerbShutter:
		return "", cam.TriggerShutter()
	case VerbPalette:
		return intArg(verb, arg, func(n int) error { return cam.SetPalette(thermal.Palette(n)) })
	case VerbShutterMode:
		return intArg(verb, arg, cam.SetShutterMode)
	case VerbPipelineMode:
		return intArg(verb, arg, func(n int) error { return cam.SetPipelineMode(thermal.PipelineMode(n)) })
	case VerbSharpen:
		return intArg(verb, arg, cam.SetSharpen)
	case VerbFlatScene:
		return intArg(verb, arg, cam.SetFlatScene)
	case VerbGradient:
		return intArg(verb, arg, cam.SetGradient)
	case VerbRadiometricFormat:
		return intArg(verb, arg, func(n int) error { return cam.SetRadiometricFormat(thermal.Format(n)) })
	case VerbFormat:
		return intArg(verb, arg, func(n int) error { return cam.SetVisualFormat(thermal.Format(n)) })
	case VerbZoom:
		return floatArg(verb, arg, cam.SetZoom)
	case VerbZoomRate:
		return floatArg(verb, arg, cam.SetZoomRate)
	case VerbMaxZoom:
		return floatArg(verb, arg, cam.SetMaxZoom)
	case VerbGetZoom:
		return cam.ZoomString(), nil
	case VerbStatus:
		return cam.StatusLine(), nil
	case VerbStopRecording:
		return cam.StopRecording(), nil
	case VerbStartRecording:
		return pathArg(arg, cam.StartRecording)
	case VerbTakeScreenshot:
		return pathArg(arg, cam.TakeScreenshot)
	case VerbTakeRadiometricScreenshot:
		return pathArg(arg, cam.TakeRadiometricScreenshot)
	case VerbLoopbackDevice:
		if arg == "" {
			return "", fmt.Errorf("%w: %s needs a device path", ErrMissingArgument, verb)
		}
		path, err := DecodePath(arg)
		if err != nil {
			return "", err
		}
		return "", cam.SetLoopbackDevice(path)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
}

func intArg(verb, arg string, set func(int) error) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: %s needs a number", ErrMissingArgument, verb)
	}
	n, ok := config.ParseIntOrBool(arg)
	if !ok {
		return "", fmt.Errorf("%w: %s cannot be set to %q because it is not a number", ErrInvalidArgument, verb, arg)
	}
	return "", set(n)
}

func floatArg(verb, arg string, set func(float64)) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: %s needs a number", ErrMissingArgument, verb)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return "", fmt.Errorf("%w: %s cannot be set to %q because it is not a number", ErrInvalidArgument, verb, arg)
	}
	set(v)
	return "", nil
}

// pathArg decodes an optional path argument. An undecodable path still
// produces an answer line.
func pathArg(arg string, run func(string) string) (string, error) {
	path, err := DecodePath(arg)
	if err != nil {
		return fmt.Sprintf("Invalid path %q: %v.", arg, err), err
	}
	return run(path), nil
}
