package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/echotherm/internal/logging"
)

// ErrNotRunning is returned by Write when the child is not accepting input.
var ErrNotRunning = errors.New("process not running")

// LogParser maps one output line to a level and message.
// Levels understood: fatal, error, warning, info, debug, trace.
type LogParser func(line string) (level, msg string)

// Process is one child process with a stdin pipe.
type Process struct {
	id     string
	args   []string
	logger logging.Logger

	outputLogger logging.Logger
	logParser    LogParser

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exitCode int
	done     chan struct{}
	output   sync.WaitGroup
}

// New creates a process for args; args[0] is looked up in PATH on Start.
func New(id string, args []string, logger logging.Logger) *Process {
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		state:           StateIdle,
	}
}

// SetLogParser routes child output through logger after parsing each line.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.outputLogger = logger
	p.logParser = parser
}

// SetTimeouts overrides the SIGINT grace period and the post-SIGKILL wait.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Args returns the command line.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// State returns the lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start launches the child.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("process %s already started", p.id)
	}
	if len(p.args) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.args[0], err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.state = StateRunning
	p.done = make(chan struct{})

	p.output.Add(2)
	go p.streamOutput(stdout, "stdout")
	go p.streamOutput(stderr, "stderr")
	go p.reap()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))
	return nil
}

func (p *Process) reap() {
	p.output.Wait()
	err := p.cmd.Wait()
	code := exitCodeFromError(err)
	if err != nil && code == 1 {
		p.logger.Error("Process exited with error", "id", p.id, "error", err)
	}

	p.mu.Lock()
	p.exitCode = code
	p.state = StateExited
	p.mu.Unlock()
	close(p.done)

	p.logger.Info("Process exited", "id", p.id, "exit_code", code)
}

// Write sends b to the child's stdin.
func (p *Process) Write(b []byte) (int, error) {
	p.mu.Lock()
	stdin := p.stdin
	running := p.state == StateRunning
	p.mu.Unlock()

	if !running || stdin == nil {
		return 0, ErrNotRunning
	}
	n, err := stdin.Write(b)
	if err != nil {
		return n, fmt.Errorf("write to %s: %w", p.id, err)
	}
	return n, nil
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

// Finish closes stdin so the child can flush and exit on its own, waiting
// up to timeout before falling back to Stop. It returns the exit code.
func (p *Process) Finish(timeout time.Duration) int {
	if !p.beginStopping() {
		return p.result()
	}
	if err := p.stdin.Close(); err != nil {
		p.logger.Debug("Closing stdin failed", "id", p.id, "error", err)
	}

	select {
	case <-p.done:
		return p.result()
	case <-time.After(timeout):
		p.logger.Warn("Process did not exit after EOF", "id", p.id, "timeout", timeout)
		p.signal(syscall.SIGINT)
		return p.waitForExit(p.gracefulTimeout)
	}
}

// Stop interrupts the child, force killing it after the graceful timeout.
func (p *Process) Stop() int {
	if !p.beginStopping() {
		return p.result()
	}
	_ = p.stdin.Close()
	p.signal(syscall.SIGINT)
	return p.waitForExit(p.gracefulTimeout)
}

// beginStopping reports whether there is a live child to stop.
func (p *Process) beginStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return false
	}
	p.state = StateStopping
	return true
}

func (p *Process) result() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateExited {
		return p.exitCode
	}
	return 0
}

func (p *Process) signal(sig syscall.Signal) {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Signalling process", "id", p.id, "pid", p.cmd.Process.Pid, "signal", sig.String())
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to signal process", "id", p.id, "error", err)
	}
}

// waitForExit waits for the child, killing it if the timeout elapses.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.result()
	case <-time.After(timeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", timeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}
	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return ExitKilled
}

// exitCodeFromError returns 0 for nil, the child's code for an ExitError,
// and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) streamOutput(r io.Reader, source string) {
	defer p.output.Done()

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := "info", scanner.Text()
		if p.logParser != nil {
			level, msg = p.logParser(msg)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "id", p.id)
		case "warning":
			logger.Warn(msg, "id", p.id)
		case "debug", "trace":
			logger.Debug(msg, "id", p.id)
		default:
			logger.Info(msg, "id", p.id)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// SplitArgs splits a command line on spaces, honouring single and double
// quotes and backslash escapes.
func SplitArgs(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inArg := false
	quote := rune(0)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inArg = true
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
