//go:build linux

// Package hotplug watches kernel uevents over a NETLINK_KOBJECT_UEVENT socket.
//
// It is used to notice when the thermal camera's USB link or the loopback
// video node appears or disappears without polling sysfs.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Uevent actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems the daemon cares about.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
)

// recvTimeout bounds each blocking read so Run notices cancellation.
const recvTimeout = 500 * 1000 // microseconds

// Event is a parsed kernel uevent.
type Event struct {
	Action    string
	KObj      string
	Subsystem string
	DevType   string
	DevName   string
	Props     map[string]string
}

// Node returns the /dev path announced by the event, or "" if none.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// USBID returns the "vendor:product" pair of a usb_device event in the
// lowercase hex form lsusb prints, or "" for other events.
func (e Event) USBID() string {
	product := e.Props["PRODUCT"]
	if product == "" {
		return ""
	}
	parts := strings.Split(product, "/")
	if len(parts) < 2 {
		return ""
	}
	vendor, err1 := strconv.ParseUint(parts[0], 16, 16)
	prod, err2 := strconv.ParseUint(parts[1], 16, 16)
	if err1 != nil || err2 != nil {
		return ""
	}
	return fmt.Sprintf("%04x:%04x", vendor, prod)
}

// Monitor receives uevents for a fixed set of subsystems.
type Monitor struct {
	fd         int
	subsystems map[string]bool
}

// NewMonitor opens the uevent socket. With no subsystems every event is
// delivered.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlink bind: %w", err)
	}
	tv := unix.NsecToTimeval(recvTimeout * 1000)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlink timeout: %w", err)
	}

	m := &Monitor{fd: fd, subsystems: make(map[string]bool, len(subsystems))}
	for _, s := range subsystems {
		m.subsystems[s] = true
	}
	return m, nil
}

// Accepts reports whether events from subsystem pass the monitor's filter.
func (m *Monitor) Accepts(subsystem string) bool {
	return len(m.subsystems) == 0 || m.subsystems[subsystem]
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events until ctx is cancelled or the socket fails.
// The events channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 16*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("netlink recv: %w", err)
		case n == 0:
			continue
		}

		ev, ok := ParseUEvent(buf[:n])
		if !ok || !m.Accepts(ev.Subsystem) {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0...". Messages re-broadcast
// by udev carry a binary "libudev" header and are rejected.
func ParseUEvent(data []byte) (Event, bool) {
	if len(data) == 0 || bytes.HasPrefix(data, []byte("libudev")) {
		return Event{}, false
	}

	fields := bytes.Split(data, []byte{0})
	action, kobj, found := strings.Cut(string(fields[0]), "@")
	if !found || action == "" {
		return Event{}, false
	}

	ev := Event{Action: action, KObj: kobj, Props: make(map[string]string)}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(string(f), "=")
		if !ok || key == "" {
			continue
		}
		ev.Props[key] = value
	}
	ev.Subsystem = ev.Props["SUBSYSTEM"]
	ev.DevType = ev.Props["DEVTYPE"]
	ev.DevName = ev.Props["DEVNAME"]
	return ev, true
}
