package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/smazurov/echotherm/internal/logging"
)

// Command batches are single lines and event payloads are small JSON
// objects; anything larger is a misbehaving client.
const brokerMaxPayload = 64 * 1024

// BrokerOptions configures the in-process broker started with --nats-embedded.
// Port -1 picks a free port.
type BrokerOptions struct {
	Host         string
	Port         int
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// Broker is an in-process NATS server that the daemon's responder and event
// bridge connect to when no external broker is configured.
type Broker struct {
	ns     *server.Server
	logger *slog.Logger
}

// StartBroker starts the broker and waits until it accepts clients.
func StartBroker(opts BrokerOptions) (*Broker, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 4222
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("nats")
	}
	logger = logger.With("component", "broker")

	ns, err := server.NewServer(&server.Options{
		Host:       opts.Host,
		Port:       opts.Port,
		ServerName: "echothermd",
		NoSigs:     true,
		MaxPayload: brokerMaxPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded broker: %w", err)
	}
	ns.SetLogger(brokerLog{logger}, false, false)

	go ns.Start()
	if !ns.ReadyForConnections(opts.ReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded broker not ready after %s", opts.ReadyTimeout)
	}

	b := &Broker{ns: ns, logger: logger}
	logger.Info("Embedded broker listening", "url", b.URL())
	return b, nil
}

// URL is the client URL of the broker.
func (b *Broker) URL() string {
	return b.ns.ClientURL()
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	return b.ns.NumClients()
}

// Running reports whether the broker still accepts clients.
func (b *Broker) Running() bool {
	return b.ns.Running()
}

// Close shuts the broker down and waits for it.
func (b *Broker) Close() {
	b.logger.Info("Stopping embedded broker", "clients", b.ns.NumClients())
	b.ns.Shutdown()
	b.ns.WaitForShutdown()
}

// brokerLog routes nats-server logging into the nats module logger.
type brokerLog struct{ l *slog.Logger }

func (b brokerLog) Noticef(format string, v ...any) { b.l.Info(fmt.Sprintf(format, v...)) }
func (b brokerLog) Warnf(format string, v ...any)   { b.l.Warn(fmt.Sprintf(format, v...)) }
func (b brokerLog) Fatalf(format string, v ...any)  { b.l.Error(fmt.Sprintf(format, v...)) }
func (b brokerLog) Errorf(format string, v ...any)  { b.l.Error(fmt.Sprintf(format, v...)) }
func (b brokerLog) Debugf(format string, v ...any)  { b.l.Debug(fmt.Sprintf(format, v...)) }
func (b brokerLog) Tracef(format string, v ...any)  { b.l.Debug(fmt.Sprintf(format, v...)) }
