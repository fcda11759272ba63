package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/echotherm/internal/events"
)

// Bridge forwards every event bus event to echotherm.events.{name}.
type Bridge struct {
	url      string
	eventBus *events.Bus
	logger   *slog.Logger

	mu    sync.Mutex
	conn  *nats.Conn
	unsub func()
	done  chan struct{}
}

// NewBridge creates a new EventBus-to-NATS bridge.
func NewBridge(url string, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:      url,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS and subscribes to the bus.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}

	conn, err := connect(b.url, "echotherm-bridge", b.logger, nil)
	if err != nil {
		return err
	}
	b.conn = conn

	ch := make(chan any, 64)
	b.unsub = events.SubscribeAll(b.eventBus, ch)
	b.done = make(chan struct{})
	go b.forward(conn, ch, b.done)

	b.logger.Info("NATS bridge connected", "url", b.url)
	return nil
}

func (b *Bridge) forward(conn *nats.Conn, ch <-chan any, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case v := <-ch:
			ev, ok := v.(events.Event)
			if !ok {
				continue
			}
			b.publish(conn, ev)
		}
	}
}

func (b *Bridge) publish(conn *nats.Conn, ev events.Event) {
	name := events.Name(ev)
	data, err := EventMessage{
		Event:     name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      ev,
	}.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal event", "event", name, "error", err)
		return
	}
	// Publish buffers while reconnecting; a closed connection drops the event.
	if err := conn.Publish(SubjectEvent(name), data); err != nil {
		b.logger.Debug("Failed to publish event", "event", name, "error", err)
	}
}

// Stop unsubscribes from the bus and closes the connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return
	}
	b.unsub()
	close(b.done)
	b.conn.Close()
	b.conn = nil
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
