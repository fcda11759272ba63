package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/echotherm/cmd"
	"github.com/smazurov/echotherm/internal/api"
	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/config"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/led"
	"github.com/smazurov/echotherm/internal/lockfile"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/monitoring"
	"github.com/smazurov/echotherm/internal/nats"
	"github.com/smazurov/echotherm/internal/protocol"
	"github.com/smazurov/echotherm/internal/server"
	"github.com/smazurov/echotherm/internal/thermal"
	"github.com/smazurov/echotherm/internal/updater"
	"github.com/smazurov/echotherm/internal/version"
	"github.com/smazurov/echotherm/internal/video"

	_ "github.com/smazurov/echotherm/internal/thermal/simulator"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config   string `help:"Path to configuration file" short:"c" default:"echotherm.toml"`
	LockFile string `help:"PID lock file" default:"/tmp/echothermd.lock" toml:"daemon.lock_file" env:"LOCK_FILE"`
	HomeDir  string `help:"Directory for screenshots and recordings without a path" toml:"daemon.home_dir" env:"HOME_DIR"`

	// Command server
	Port int `help:"TCP command port" short:"p" default:"8888" toml:"server.port" env:"PORT"`

	// HTTP API
	APIAddr      string `help:"HTTP API address, empty to disable" default:":8091" toml:"api.addr" env:"API_ADDR"`
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Camera
	Driver            string  `help:"Thermal driver" default:"simulator" toml:"camera.driver" env:"DRIVER"`
	LoopbackDevice    string  `help:"V4L2 loopback device, empty to disable" default:"/dev/video0" toml:"loopback.device" env:"LOOPBACK_DEVICE"`
	Format            int     `help:"Visual frame format" default:"128" toml:"camera.format" env:"FORMAT"`
	RadiometricFormat int     `help:"Radiometric frame format" default:"16" toml:"camera.radiometric_format" env:"RADIOMETRIC_FORMAT"`
	Palette           int     `help:"Palette, 0 (WHITE_HOT) to 13 (USER_4)" default:"0" toml:"camera.palette" env:"PALETTE"`
	ShutterMode       int     `help:"Shutter mode: negative manual, 0 automatic, N seconds between triggers" default:"0" toml:"camera.shutter_mode" env:"SHUTTER_MODE"`
	PipelineMode      int     `help:"Pipeline: 0 LITE, 1 LEGACY, 2 PROCESSED" default:"2" toml:"camera.pipeline_mode" env:"PIPELINE_MODE"`
	Sharpen           int     `help:"Sharpen filter (0/1)" default:"0" toml:"camera.sharpen" env:"SHARPEN"`
	FlatScene         int     `help:"Flat scene filter (0/1)" default:"0" toml:"camera.flat_scene" env:"FLAT_SCENE"`
	Gradient          int     `help:"Gradient filter (0/1)" default:"0" toml:"camera.gradient" env:"GRADIENT"`
	MaxZoom           float64 `help:"Zoom limit" default:"16" toml:"camera.max_zoom" env:"MAX_ZOOM"`
	ZoomRate          float64 `help:"Continuous zoom speed: zoom changes by (1+|rate|) per second, sign sets direction, 0 stops" default:"0" toml:"camera.zoom_rate" env:"ZOOM_RATE"`

	// Recording
	RecordingEncoder   string `help:"ffmpeg encoder for recordings" default:"libx264" toml:"recording.encoder" env:"RECORDING_ENCODER"`
	RecordingFrameRate int    `help:"Recording frame rate" default:"9" toml:"recording.frame_rate" env:"RECORDING_FRAME_RATE"`
	RecordingQueue     int    `help:"Frames buffered for the encoder" default:"120" toml:"recording.queue_size" env:"RECORDING_QUEUE_SIZE"`

	// NATS
	NATSURL      string `help:"NATS server URL, empty to disable" toml:"nats.url" env:"NATS_URL"`
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSPort     int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Features
	FeaturesLEDControl bool   `help:"Enable LED control" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	LEDStatus          string `help:"LED showing the camera state" default:"system" toml:"led.status" env:"LED_STATUS"`
	LEDRecording       string `help:"LED showing recording" default:"user" toml:"led.recording" env:"LED_RECORDING"`
	FeaturesHotplug    bool   `help:"Watch udev for loopback device changes" default:"true" toml:"features.hotplug_enabled" env:"FEATURES_HOTPLUG"`
	FeaturesUpdates    bool   `help:"Enable self-update endpoints" default:"true" toml:"features.updates_enabled" env:"FEATURES_UPDATES"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera   string `help:"Camera logging level" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingProtocol string `help:"Command protocol logging level" toml:"logging.protocol" env:"LOGGING_PROTOCOL"`
	LoggingAPI      string `help:"API logging level" toml:"logging.api" env:"LOGGING_API"`
	LoggingNATS     string `help:"NATS logging level" toml:"logging.nats" env:"LOGGING_NATS"`
}

// loggingConfig merges the [logging.modules] table with per-module options.
func loggingConfig(opts *Options) logging.Config {
	cfg := config.LoadLoggingConfig(opts.Config)
	cfg.Level = opts.LoggingLevel
	cfg.Format = opts.LoggingFormat
	for module, level := range map[string]string{
		"camera":   opts.LoggingCamera,
		"protocol": opts.LoggingProtocol,
		"api":      opts.LoggingAPI,
		"nats":     opts.LoggingNATS,
	} {
		if level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

type watcher interface {
	Start() error
	Stop() error
}

// echothermd holds the running components so OnStop can tear them down in
// reverse order.
type echothermd struct {
	lock      *lockfile.Lock
	bus       *events.Bus
	cam       *camera.Camera
	cmdServer *server.Server
	apiServer *api.Server
	ledMgr    *led.Manager
	broker    *nats.Broker
	responder *nats.Responder
	bridge    *nats.Bridge
	hotplug   *monitoring.HotplugMonitor
	watchers  []watcher
}

func start(opts *Options, logger *slog.Logger) (*echothermd, error) {
	lock, err := lockfile.Acquire(opts.LockFile)
	if err != nil {
		return nil, err
	}
	d := &echothermd{lock: lock, bus: events.New()}

	driver, err := thermal.Lookup(opts.Driver)
	if err != nil {
		d.stop(logger)
		return nil, fmt.Errorf("%w (available: %v)", err, thermal.Drivers())
	}

	d.cam = camera.New(camera.Options{
		Driver:         driver,
		LoopbackDevice: opts.LoopbackDevice,
		OpenVideo: video.NewOpener(video.Options{
			Encoder:   opts.RecordingEncoder,
			FrameRate: opts.RecordingFrameRate,
		}),
		Bus:               d.bus,
		VisualFormat:      thermal.Format(opts.Format),
		RadiometricFormat: thermal.Format(opts.RadiometricFormat),
		Palette:           opts.Palette,
		ShutterMode:       opts.ShutterMode,
		PipelineMode:      &opts.PipelineMode,
		Sharpen:           opts.Sharpen,
		FlatScene:         opts.FlatScene,
		Gradient:          opts.Gradient,
		MaxZoom:           opts.MaxZoom,
		ZoomRate:          opts.ZoomRate,
		QueueSize:         opts.RecordingQueue,
		HomeDir:           opts.HomeDir,
	})
	executor := protocol.NewExecutor(d.cam)
	if err := metrics.RegisterHost(d.cam.HomeDir()); err != nil {
		logger.Warn("Host metrics disabled", "error", err)
	}

	if opts.FeaturesLEDControl {
		logger.Info("LED control enabled, initializing")
		ctrl := led.New(logging.GetLogger("led"))
		d.ledMgr = led.NewManager(ctrl, d.bus, led.Roles{Status: opts.LEDStatus, Recording: opts.LEDRecording}, logging.GetLogger("led"))
		d.ledMgr.Start()
	}

	if err := d.cam.Start(); err != nil {
		d.stop(logger)
		return nil, fmt.Errorf("start camera: %w", err)
	}

	d.cmdServer = server.New(executor, server.Options{Addr: fmt.Sprintf(":%d", opts.Port)})
	if err := d.cmdServer.Start(); err != nil {
		d.stop(logger)
		return nil, err
	}

	if opts.APIAddr != "" {
		apiOpts := &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Camera:            d.cam,
			Runner:            executor,
			EventBus:          d.bus,
			PrometheusHandler: metrics.Handler(),
			CaptureDir:        d.cam.HomeDir(),
		}
		if d.ledMgr != nil {
			apiOpts.LEDController = d.ledMgr.GetController()
		}
		if opts.FeaturesUpdates {
			svc, svcErr := updater.NewService(&updater.Options{})
			if svcErr != nil {
				logger.Warn("Update service unavailable", "error", svcErr)
			} else {
				apiOpts.UpdateService = svc
			}
		}
		d.apiServer = api.NewServer(apiOpts)
		if err := d.apiServer.Start(opts.APIAddr); err != nil {
			d.stop(logger)
			return nil, fmt.Errorf("start API server: %w", err)
		}
	}

	d.startNATS(opts, executor, logger)

	if opts.FeaturesHotplug {
		mon, monErr := monitoring.NewHotplugMonitor(d.cam, d.bus)
		if monErr != nil {
			logger.Warn("Hotplug monitoring disabled", "error", monErr)
		} else {
			d.hotplug = mon
			d.hotplug.Start()
		}
	}

	d.watchConfig(opts, logger)
	return d, nil
}

func (d *echothermd) startNATS(opts *Options, runner nats.Runner, logger *slog.Logger) {
	url := opts.NATSURL
	if opts.NATSEmbedded {
		broker, err := nats.StartBroker(nats.BrokerOptions{Port: opts.NATSPort})
		if err != nil {
			logger.Error("Failed to start embedded NATS server", "error", err)
		} else {
			d.broker = broker
			if url == "" {
				url = broker.URL()
			}
		}
	}
	if url == "" {
		return
	}

	natsLogger := logging.GetLogger("nats")
	d.responder = nats.NewResponder(url, runner, d.cam, natsLogger)
	if err := d.responder.Start(); err != nil {
		logger.Warn("NATS responder not started", "url", url, "error", err)
	}
	d.bridge = nats.NewBridge(url, d.bus, natsLogger)
	if err := d.bridge.Start(); err != nil {
		logger.Warn("NATS event bridge not started", "url", url, "error", err)
	}
}

// watchConfig hot-reloads [camera] settings and [logging] levels.
func (d *echothermd) watchConfig(opts *Options, logger *slog.Logger) {
	if _, err := os.Stat(opts.Config); err != nil {
		logger.Debug("Config file not found, hot reload disabled", "path", opts.Config)
		return
	}
	cfgLogger := logging.GetLogger("config")

	settings := config.NewConfigWatcher(opts.Config, config.LoadCameraSettings, cfgLogger,
		config.WithDebounce[config.CameraSettings](500*time.Millisecond))
	settings.OnReload(func(s config.CameraSettings) {
		if s.Empty() {
			return
		}
		if err := d.cam.ApplySettings(s); err != nil {
			cfgLogger.Warn("Reloaded camera settings rejected", "error", err)
			return
		}
		cfgLogger.Info("Camera settings reloaded")
	})

	levels := config.NewConfigWatcher(opts.Config,
		func(path string) (logging.Config, error) {
			return loggingConfig(&Options{
				Config:          path,
				LoggingLevel:    opts.LoggingLevel,
				LoggingFormat:   opts.LoggingFormat,
				LoggingCamera:   opts.LoggingCamera,
				LoggingProtocol: opts.LoggingProtocol,
				LoggingAPI:      opts.LoggingAPI,
				LoggingNATS:     opts.LoggingNATS,
			}), nil
		}, cfgLogger, config.WithDebounce[logging.Config](500*time.Millisecond))
	levels.OnReload(func(cfg logging.Config) {
		logging.Initialize(cfg)
		cfgLogger.Debug("Logging levels reloaded")
	})

	for _, w := range []watcher{settings, levels} {
		if err := w.Start(); err != nil {
			logger.Warn("Failed to start config watcher, hot reload disabled", "error", err)
			continue
		}
		d.watchers = append(d.watchers, w)
	}
}

func (d *echothermd) stop(logger *slog.Logger) {
	for _, w := range d.watchers {
		_ = w.Stop()
	}
	if d.hotplug != nil {
		d.hotplug.Stop()
	}
	if d.bridge != nil {
		d.bridge.Stop()
	}
	if d.responder != nil {
		d.responder.Stop()
	}
	if d.broker != nil {
		d.broker.Close()
	}
	if d.apiServer != nil {
		if err := d.apiServer.Stop(); err != nil {
			logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if d.cmdServer != nil {
		if err := d.cmdServer.Stop(); err != nil {
			logger.Error("Error stopping command server", "error", err)
		}
	}
	// Stop finishes any recording before the sensor is released.
	if d.cam != nil {
		if err := d.cam.Stop(); err != nil {
			logger.Error("Error stopping camera", "error", err)
		}
	}
	if d.ledMgr != nil {
		d.ledMgr.Stop()
	}
	if err := d.lock.Release(); err != nil {
		logger.Warn("Failed to release lock file", "error", err)
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(loggingConfig(opts))
		logger := logging.GetLogger("main")

		var d *echothermd
		stopped := make(chan struct{})

		hooks.OnStart(func() {
			logger.Info("Starting echotherm", "version", version.Version, "config", opts.Config)
			var err error
			if d, err = start(opts, logger); err != nil {
				logger.Error("Failed to start", "error", err)
				os.Exit(1)
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				logger.Debug("sd_notify failed", "error", err)
			}
			<-stopped
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			if d != nil {
				d.stop(logger)
			}
			close(stopped)
		})
	})

	cli.Root().Use = "echotherm"
	cli.Root().Short = "Thermal camera daemon feeding a V4L2 loopback device"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateSendCmd())
	cli.Root().AddCommand(cmd.CreateKillCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}
