package led

// Patterns understood by every controller.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Controller abstracts LED hardware control across boards.
type Controller interface {
	// Set switches ledType on or off. A non-empty pattern also changes the
	// blink pattern; raw sysfs trigger names are passed through.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types the board exposes.
	Available() []string

	// Patterns returns the patterns Set accepts.
	Patterns() []string
}
