package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/protocol"
)

// Runner executes a command batch.
type Runner interface {
	Run(batch, transport string) []protocol.Result
}

// StatusProvider reports the camera status.
type StatusProvider interface {
	Snapshot() camera.Status
}

// connect dials url with infinite reconnects. RetryOnFailedConnect lets the
// daemon start before the broker.
func connect(url, name string, logger *slog.Logger, onReconnect func()) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			} else {
				logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
			if onReconnect != nil {
				onReconnect()
			}
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			logger.Debug("NATS connected")
		}),
	)
}

// Responder answers command and status requests.
type Responder struct {
	url    string
	runner Runner
	status StatusProvider
	logger *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewResponder creates a responder for runner and status.
func NewResponder(url string, runner Runner, status StatusProvider, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		url:    url,
		runner: runner,
		status: status,
		logger: logger.With("component", "nats-responder"),
	}
}

// Start connects and subscribes to the request subjects.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	conn, err := connect(r.url, "echotherm-responder", r.logger, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", r.url, err)
	}
	r.conn = conn

	for subject, handler := range map[string]nats.MsgHandler{
		SubjectCommands: r.handleCommands,
		SubjectStatus:   r.handleStatus,
	} {
		sub, err := conn.Subscribe(subject, handler)
		if err != nil {
			r.cleanup()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
	}

	r.logger.Info("NATS responder started", "url", r.url)
	return nil
}

// handleCommands runs one batch. Messages on a subscription are delivered
// one at a time, so batches never interleave.
func (r *Responder) handleCommands(msg *nats.Msg) {
	req, err := UnmarshalCommandRequest(msg.Data)
	var reply CommandReply
	if err != nil {
		r.logger.Warn("Failed to unmarshal command request", "error", err)
		reply.Error = err.Error()
	} else {
		reply = NewCommandReply(r.runner.Run(req.Batch, Transport))
	}
	r.respond(msg, reply)
}

func (r *Responder) handleStatus(msg *nats.Msg) {
	r.respond(msg, r.status.Snapshot())
}

func (r *Responder) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("Failed to marshal reply", "subject", msg.Subject, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Warn("Failed to send reply", "subject", msg.Subject, "error", err)
	}
}

func (r *Responder) cleanup() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// Stop unsubscribes and closes the connection.
func (r *Responder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup()
	r.logger.Info("NATS responder stopped")
}

// IsConnected reports whether the responder currently has a live connection.
func (r *Responder) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && r.conn.IsConnected()
}

// ErrNoResponders is returned by Request when no daemon is listening.
var ErrNoResponders = errors.New("no echotherm daemon is listening on NATS")

// Request sends batch to a daemon over NATS and waits for the reply.
func Request(url, batch string, timeout time.Duration) (CommandReply, error) {
	conn, err := nats.Connect(url, nats.Name("echotherm-client"), nats.Timeout(timeout))
	if err != nil {
		return CommandReply{}, fmt.Errorf("connect to %s: %w", url, err)
	}
	defer conn.Close()

	data, err := CommandRequest{Batch: batch}.Marshal()
	if err != nil {
		return CommandReply{}, err
	}
	msg, err := conn.Request(SubjectCommands, data, timeout)
	if errors.Is(err, nats.ErrNoResponders) {
		return CommandReply{}, ErrNoResponders
	}
	if err != nil {
		return CommandReply{}, fmt.Errorf("request: %w", err)
	}
	reply, err := UnmarshalCommandReply(msg.Data)
	if err != nil {
		return CommandReply{}, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
