package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/smazurov/echotherm/internal/protocol"
)

// Send writes cmds as one batch to the server at addr and returns one line
// per result command.
func Send(addr string, timeout time.Duration, cmds ...protocol.Command) ([]string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(protocol.Batch(cmds...) + "\n")); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	want := 0
	for _, c := range cmds {
		if protocol.HasResult(strings.ToUpper(c.Verb)) {
			want++
		}
	}

	lines := make([]string, 0, want)
	r := bufio.NewReader(conn)
	for len(lines) < want {
		// Screenshots wait for a frame; allow for that on every line.
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		line, err := r.ReadString('\n')
		if err != nil {
			return lines, fmt.Errorf("read response: %w", err)
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, nil
}
