package process

// State is the lifecycle state of a Process.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not started
	StateRunning  State = "running"  // Started and not yet reaped
	StateStopping State = "stopping" // Stdin closed or signal sent
	StateExited   State = "exited"   // Reaped
)

// ExitKilled is returned when the child had to be force killed.
const ExitKilled = 137
