// Package server accepts command batches over TCP and answers result
// commands on the same connection.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/protocol"
)

// Transport labels commands received by this server.
const Transport = "tcp"

// MaxBatchSize bounds an unterminated batch.
const MaxBatchSize = 64 * 1024

// Runner executes a command batch.
type Runner interface {
	Run(batch, transport string) []protocol.Result
}

// Options configures the command server.
type Options struct {
	Addr string
	// FlushDelay is how long a batch without a trailing newline may sit
	// before it is executed.
	FlushDelay time.Duration
	// IdleTimeout closes connections that send nothing. Zero disables it.
	IdleTimeout time.Duration
}

// Server is the TCP command server. Commands from all connections are
// executed one at a time.
type Server struct {
	opts   Options
	runner Runner
	logger *slog.Logger

	execMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New creates a server for runner.
func New(runner Runner, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", protocol.DefaultPort)
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 50 * time.Millisecond
	}
	return &Server{
		opts:   opts,
		runner: runner,
		logger: logging.GetLogger("server"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured address and accepts connections in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Command server listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.accept(ln)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every connection and waits for handlers to
// return.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		s.logger.Info("Stopping command server")
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("Accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		if s.listener == nil {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("Client connected", "remote", remote)

	buf := make([]byte, 4096)
	var pending []byte
	for {
		switch {
		case len(pending) > 0:
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.FlushDelay))
		case s.opts.IdleTimeout > 0:
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		default:
			_ = conn.SetReadDeadline(time.Time{})
		}

		n, err := conn.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			if !s.handle(conn, string(pending[:i])) {
				return
			}
			pending = pending[i+1:]
		}
		if len(pending) > MaxBatchSize {
			s.logger.Warn("Batch too large, closing connection", "remote", remote, "size", len(pending))
			return
		}

		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && len(pending) > 0 {
			if !s.handle(conn, string(pending)) {
				return
			}
			pending = nil
			continue
		}
		if errors.Is(err, io.EOF) && len(pending) > 0 {
			s.handle(conn, string(pending))
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("Client read ended", "remote", remote, "error", err)
		}
		return
	}
}

// handle executes one batch and writes a line per result command. It
// reports false when the connection is no longer writable.
func (s *Server) handle(conn net.Conn, batch string) bool {
	s.execMu.Lock()
	results := s.runner.Run(batch, Transport)
	s.execMu.Unlock()

	var out bytes.Buffer
	for _, r := range results {
		if r.HasOutput {
			out.WriteString(r.Output)
			out.WriteByte('\n')
		}
	}
	if out.Len() == 0 {
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(out.Bytes()); err != nil {
		s.logger.Warn("Failed to write response", "remote", conn.RemoteAddr().String(), "error", err)
		return false
	}
	return true
}
