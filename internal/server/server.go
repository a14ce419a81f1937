// Package server accepts gesture clients over TCP and drives one auth
// session per connection with the line protocol.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/monitoring"
	"github.com/banshee-data/gesture.auth/internal/protocol"
)

var logf = monitoring.Component("server")

const (
	// MaxLineLength bounds a single client line.
	MaxLineLength = 4096
	writeTimeout  = 10 * time.Second
)

// Server is a TCP front end for an auth.Manager.
type Server struct {
	manager *auth.Manager

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*client

	wg      sync.WaitGroup
	running atomic.Bool
}

type client struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
	session *auth.Session
}

func New(manager *auth.Manager) *Server {
	return &Server{
		manager: manager,
		conns:   make(map[string]*client),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Close is
// called. It always closes ln and waits for connection handlers to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		ln.Close()
		return errors.New("server already running")
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	logf("listening on %s", ln.Addr())
	var err error
	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if !errors.Is(aerr, net.ErrClosed) {
				err = aerr
			}
			break
		}
		c := &client{id: uuid.New().String(), conn: conn}
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(ctx, c)
	}

	s.Close()
	s.wg.Wait()
	return err
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and drops every connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for _, c := range s.conns {
		c.conn.Close()
	}
	return err
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handle(ctx context.Context, c *client) {
	defer s.wg.Done()
	// ctx is cancelled as soon as the peer goes away, so a capture that is
	// still running for this connection is abandoned instead of committed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		s.manager.Disconnect(c.id)
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		c.conn.Close()
		logf("client %s disconnected", c.id)
	}()

	logf("client %s connected from %s", c.id, c.conn.RemoteAddr())
	c.session = s.manager.Connect(c.id, func(e auth.Event) {
		c.send(protocol.Format(e))
	})
	if err := c.send(protocol.AuthRequired); err != nil {
		return
	}

	for line := range s.readLines(ctx, cancel, c) {
		s.handleLine(ctx, c, line)
	}
}

// readLines scans non-empty lines from c until the connection fails, then
// calls cancel and closes the returned channel.
func (s *Server) readLines(ctx context.Context, cancel context.CancelFunc, c *client) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		defer cancel()
		scanner := bufio.NewScanner(c.conn)
		scanner.Buffer(make([]byte, 0, 512), MaxLineLength)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
			logf("client %s: read: %v", c.id, err)
		}
	}()
	return lines
}

func (s *Server) handleLine(ctx context.Context, c *client, line string) {
	req, err := protocol.Parse(line)
	if err != nil {
		logf("client %s: %v", c.id, err)
		c.send(protocol.Errorf("Unknown message"))
		return
	}

	if req.Kind == protocol.KindChat {
		if !c.session.Authenticated() {
			c.send(protocol.Errorf("Not authenticated"))
			return
		}
		s.Broadcast(protocol.Chat(c.session.Username(), req.Text))
		return
	}

	cmd, _ := req.Command()
	// Failures are reported to the client as events.
	_ = c.session.Dispatch(ctx, cmd)
}

// Broadcast sends line to every authenticated connection.
func (s *Server) Broadcast(line string) {
	ids := s.manager.Authenticated()

	s.mu.Lock()
	targets := make([]*client, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(line); err != nil {
			logf("client %s: broadcast: %v", c.id, err)
		}
	}
}

func (c *client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}
