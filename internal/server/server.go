// Package server is the TCP accept loop and per-connection line framing
// for ZenithDB (spec §1's "external collaborators"). It depends on
// internal/engine and internal/protocol but contributes no storage logic
// of its own.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"zenithdb/internal/engine"
	"zenithdb/internal/protocol"
)

// Server accepts TCP connections and dispatches each line as one request
// against the given Engine. Dispatch happens synchronously on the
// connection's own goroutine: the engine performs only blocking I/O, and
// one goroutine per connection is the "context tolerant of blocking" spec
// §5 asks for.
type Server struct {
	addr     string
	engine   *engine.Engine
	log      *zap.Logger
	listener net.Listener
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// New creates a server bound to addr (not yet listening). A nil logger is
// replaced with zap.NewNop().
func New(addr string, eng *engine.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:   addr,
		engine: eng,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start binds the listener and begins accepting connections in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.log.Info("listening", zap.String("addr", s.addr))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warn("accept error", zap.Error(err))
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads one line-terminated request at a time, dispatches
// it, and writes one line-terminated response, until the client
// disconnects or the server stops. A reader abandoning mid-request does
// not affect the engine: any in-flight operation already runs to
// completion (spec §5, "cancellation and timeouts").
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr()
	s.log.Debug("connection opened", zap.Stringer("remote", remote))
	defer s.log.Debug("connection closed", zap.Stringer("remote", remote))

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", zap.Stringer("remote", remote), zap.Error(err))
			}
			return
		}

		response := s.dispatch(line)
		if _, err := writer.WriteString(response + "\n"); err != nil {
			s.log.Debug("write error", zap.Stringer("remote", remote), zap.Error(err))
			return
		}
		if err := writer.Flush(); err != nil {
			s.log.Debug("flush error", zap.Stringer("remote", remote), zap.Error(err))
			return
		}
	}
}

// dispatch parses and executes one request line, returning the formatted
// response line (without its trailing newline).
func (s *Server) dispatch(line string) string {
	cmd, err := protocol.Parse(line)
	if err != nil {
		return protocol.FormatError(err)
	}

	switch cmd.Type {
	case protocol.Set:
		if err := s.engine.Set(cmd.Key, cmd.Value); err != nil {
			return protocol.FormatError(err)
		}
		return protocol.FormatOK()

	case protocol.Get:
		value, found, err := s.engine.Get(cmd.Key)
		if err != nil {
			return protocol.FormatError(err)
		}
		if !found {
			return protocol.FormatNull()
		}
		return protocol.FormatValue(value)

	case protocol.Delete:
		if err := s.engine.Delete(cmd.Key); err != nil {
			return protocol.FormatError(err)
		}
		return protocol.FormatOK()

	case protocol.Compact:
		if err := s.engine.Compact(); err != nil {
			return protocol.FormatError(err)
		}
		return protocol.FormatOK()

	default:
		return protocol.FormatError(protocol.ErrInvalidCommand)
	}
}

// Stop stops accepting new connections and waits for in-flight connections
// to finish before returning.
func (s *Server) Stop() error {
	close(s.stopCh)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}
