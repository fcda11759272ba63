// Package monitoring reacts to kernel device hotplug events.
//
// The daemon watches video4linux and usb uevents. Removal of the loopback
// node releases the virtual output; its return makes the camera reopen it
// on the next frame. Every accepted uevent is republished on the event bus.
package monitoring
