package led

import (
	"os"
	"strings"

	"github.com/smazurov/echotherm/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// board maps a device tree model substring to LED type -> sysfs name.
type board struct {
	match string
	leds  map[string]string
}

var boards = []board{
	{"NanoPC-T6", map[string]string{"user": "usr_led", "system": "sys_led"}},
	{"Orange Pi", map[string]string{"blue": "blue_led", "green": "green_led"}},
	{"Raspberry Pi", map[string]string{"act": "ACT", "pwr": "PWR"}},
}

// New returns the controller for the running board, or a no-op controller
// when the board has no known LEDs.
func New(logger logging.Logger) Controller {
	return ForBoard(detectBoard(), logger)
}

// ForBoard returns the controller for a device tree model string.
func ForBoard(model string, logger logging.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.match) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(sysfsLEDPath, b.leds)
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model, trimming its trailing NULs.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
