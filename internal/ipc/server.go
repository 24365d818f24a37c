package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Server accepts connections on a local channel (unix socket on POSIX, named
// pipe on Windows), decodes frames, dispatches through the Router, and writes
// exactly one response per request. Connections are serviced concurrently;
// requests within one connection are served in arrival order.
type Server struct {
	addr   string
	router *Router
	log    *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(addr string, router *Router, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, router: router, log: log, conns: make(map[net.Conn]struct{})}
}

// Addr returns the socket path or pipe name the server listens on.
func (s *Server) Addr() string { return s.addr }

// Start binds the listener and begins accepting connections in the
// background. A bind failure is fatal to daemon startup; it is returned to
// the caller and never retried silently.
func (s *Server) Start() error {
	ln, err := listen(s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.wg.Add(1)
	go s.acceptLoop(ln)
	s.log.Info("ipc server listening", "addr", s.addr)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// handleConn serves one connection until it closes or the stream
// desynchronizes. A body that is not valid JSON gets an INVALID_REQUEST
// response and the connection stays open, since the frame boundary is still
// intact. Partial or oversized frames close only this connection.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return
			case errors.Is(err, ErrInvalidJSON):
				resp := Fail("", NewError(CodeInvalidRequest, "malformed request body"))
				if werr := WriteResponse(conn, resp); werr != nil {
					return
				}
				continue
			case errors.Is(err, ErrFrameTooLarge), errors.Is(err, io.ErrUnexpectedEOF):
				s.log.Warn("closing connection on framing error", "err", err)
				resp := Fail("", NewError(CodeInvalidRequest, "framing error: %v", err))
				_ = WriteResponse(conn, resp)
				return
			default:
				s.log.Warn("connection read failed", "err", err)
				return
			}
		}
		resp := s.router.Dispatch(context.Background(), msg)
		if err := WriteResponse(conn, resp); err != nil {
			s.log.Warn("connection write failed", "err", err)
			return
		}
	}
}

// Close stops accepting, closes the listener, removes the socket file, and
// waits for in-flight connections to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	removeSocket(s.addr)
	return err
}
