package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/echotherm/internal/config"
	"github.com/smazurov/echotherm/internal/nats"
	"github.com/smazurov/echotherm/internal/protocol"
	"github.com/smazurov/echotherm/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type argKind int

const (
	argNone argKind = iota
	argInt
	argFloat
	argPath
	argString
)

// sendFlag maps one flag to one command. Commands are sent in table order,
// so limits come before the values they clamp.
type sendFlag struct {
	name  string
	verb  string
	kind  argKind
	usage string
}

var sendFlags = []sendFlag{
	{"loopback-device", protocol.VerbLoopbackDevice, argString, "V4L2 loopback device path"},
	{"format", protocol.VerbFormat, argInt, "visual frame format"},
	{"radiometric-format", protocol.VerbRadiometricFormat, argInt, "radiometric frame format"},
	{"palette", protocol.VerbPalette, argInt, "palette, 0 (WHITE_HOT) to 13 (USER_4)"},
	{"shutter-mode", protocol.VerbShutterMode, argInt, "negative for manual, 0 for automatic, seconds between triggers otherwise"},
	{"pipeline-mode", protocol.VerbPipelineMode, argInt, "0 LITE, 1 LEGACY, 2 PROCESSED"},
	{"sharpen", protocol.VerbSharpen, argInt, "sharpen filter, 0/1 or false/true"},
	{"flat-scene", protocol.VerbFlatScene, argInt, "flat scene filter, 0/1 or false/true"},
	{"gradient", protocol.VerbGradient, argInt, "gradient filter, 0/1 or false/true"},
	{"max-zoom", protocol.VerbMaxZoom, argFloat, "zoom limit"},
	{"zoom-rate", protocol.VerbZoomRate, argFloat, "continuous zoom speed: zoom changes by (1+|rate|) per second, sign sets direction, 0 stops"},
	{"zoom", protocol.VerbZoom, argFloat, "zoom target"},
	{"shutter", protocol.VerbShutter, argNone, "trigger the shutter"},
	{"screenshot", protocol.VerbTakeScreenshot, argPath, "save a screenshot"},
	{"radiometric-screenshot", protocol.VerbTakeRadiometricScreenshot, argPath, "save a radiometric CSV"},
	{"start-recording", protocol.VerbStartRecording, argPath, "start recording"},
	{"stop-recording", protocol.VerbStopRecording, argNone, "stop recording"},
	{"get-zoom", protocol.VerbGetZoom, argNone, "print the current zoom"},
	{"status", protocol.VerbStatus, argNone, "print the camera status"},
}

func addSendFlags(fs *pflag.FlagSet) {
	for _, f := range sendFlags {
		switch f.kind {
		case argNone:
			fs.Bool(f.name, false, f.usage)
		case argPath:
			fs.String(f.name, "", f.usage+` to this path; "" lets the daemon pick a name in its home directory`)
		default:
			fs.String(f.name, "", f.usage)
		}
	}
	fs.String("raw", "", "raw command batch, appended after the flag commands")
}

// buildCommands turns the changed flags into commands.
func buildCommands(fs *pflag.FlagSet) ([]protocol.Command, error) {
	var cmds []protocol.Command
	for _, f := range sendFlags {
		if !fs.Changed(f.name) {
			continue
		}
		if f.kind == argNone {
			if on, _ := fs.GetBool(f.name); on {
				cmds = append(cmds, protocol.Command{Verb: f.verb})
			}
			continue
		}

		val, _ := fs.GetString(f.name)
		switch f.kind {
		case argInt:
			n, ok := config.ParseIntOrBool(val)
			if !ok {
				return nil, fmt.Errorf("--%s: %q is not a number", f.name, val)
			}
			cmds = append(cmds, protocol.Command{Verb: f.verb, Arg: strconv.Itoa(n)})
		case argFloat:
			if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
				return nil, fmt.Errorf("--%s: %q is not a number", f.name, val)
			}
			cmds = append(cmds, protocol.Command{Verb: f.verb, Arg: strings.TrimSpace(val)})
		case argPath, argString:
			cmds = append(cmds, protocol.PathCommand(f.verb, val))
		}
	}

	raw, _ := fs.GetString("raw")
	cmds = append(cmds, protocol.Parse(raw)...)
	return cmds, nil
}

// CreateSendCmd creates the send command, a client for a running daemon.
func CreateSendCmd() *cobra.Command {
	var host string
	var port int
	var natsURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send commands to a running daemon",
		Long: `Builds a command batch from flags and sends it over TCP, or over NATS with --nats. ` +
			`Commands that answer print one line each.`,
		Example: `  echotherm send --palette 3 --zoom 2 --get-zoom
  echotherm send --screenshot ~/shot.png
  echotherm send --start-recording ""
  echotherm send --raw "ZOOM 2|GETZOOM"`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cmds, err := buildCommands(c.Flags())
			if err != nil {
				return err
			}
			if len(cmds) == 0 {
				return errors.New("no commands given")
			}

			var lines []string
			if natsURL != "" {
				reply, reqErr := nats.Request(natsURL, protocol.Batch(cmds...), timeout)
				if reqErr != nil {
					return reqErr
				}
				if reply.Error != "" {
					return errors.New(reply.Error)
				}
				lines = reply.Lines()
			} else {
				addr := net.JoinHostPort(host, strconv.Itoa(port))
				lines, err = server.Send(addr, timeout, cmds...)
				if err != nil {
					for _, l := range lines {
						fmt.Fprintln(c.OutOrStdout(), l)
					}
					return err
				}
			}

			for _, l := range lines {
				fmt.Fprintln(c.OutOrStdout(), l)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "daemon host")
	cmd.Flags().IntVar(&port, "port", protocol.DefaultPort, "daemon command port")
	cmd.Flags().StringVar(&natsURL, "nats", "", "send through this NATS server instead of TCP")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connect and per-response timeout")
	addSendFlags(cmd.Flags())
	cmd.SetErr(os.Stderr)
	cmd.SilenceUsage = true

	return cmd
}
