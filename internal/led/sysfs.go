package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs drives LEDs through /sys/class/leds/<name>/{trigger,brightness}.
type sysfs struct {
	root string
	leds map[string]string
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

// trigger maps a pattern to the kernel trigger name.
func trigger(pattern string) string {
	switch pattern {
	case PatternSolid:
		return "none"
	case PatternBlink:
		return "timer"
	case PatternHeartbeat:
		return "heartbeat"
	default:
		return pattern
	}
}

func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	name, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("LED type %q not supported on this board", ledType)
	}

	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", ledType, dir, err)
	}

	if pattern != "" {
		if err := os.WriteFile(filepath.Join(dir, "trigger"), []byte(trigger(pattern)), 0o644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
	}

	// Writing brightness 0 also clears any active trigger.
	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for t := range s.leds {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
