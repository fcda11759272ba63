//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"unsafe"
)

const sysfsVideo4Linux = "/sys/class/video4linux"

// FindOutputDevices finds all V4L2 devices that accept video output.
func FindOutputDevices() ([]DeviceInfo, error) {
	all, err := FindDevices()
	if err != nil {
		return nil, err
	}
	var out []DeviceInfo
	for _, d := range all {
		if d.IsOutput() {
			out = append(out, d)
		}
	}
	return out, nil
}

// FindDevices lists every V4L2 node that answers VIDIOC_QUERYCAP.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsVideo4Linux)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()
		info, err := QueryDevice(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}
		devices = append(devices, info)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DevicePath < devices[j].DevicePath
	})
	return devices, nil
}

// QueryDevice opens devicePath and reads its capabilities.
func QueryDevice(devicePath string) (DeviceInfo, error) {
	fd, err := open(devicePath)
	if err != nil {
		return DeviceInfo{}, err
	}
	defer closeFd(fd)

	c, err := queryCap(fd)
	if err != nil {
		return DeviceInfo{}, err
	}
	return capToInfo(devicePath, c), nil
}

func queryCap(fd int) (*v4l2Capability, error) {
	c := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(c)); err != nil {
		return nil, fmt.Errorf("VIDIOC_QUERYCAP: %w", err)
	}
	return c, nil
}

func capToInfo(devicePath string, c *v4l2Capability) DeviceInfo {
	caps := c.capabilities
	if caps&CapDeviceCaps != 0 {
		caps = c.deviceCaps
	}
	return DeviceInfo{
		DevicePath: devicePath,
		DeviceName: cstr(c.card[:]),
		Driver:     cstr(c.driver[:]),
		BusInfo:    cstr(c.busInfo[:]),
		Caps:       caps,
	}
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
