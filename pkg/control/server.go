package control

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/dougsko/siggen/pkg/logging"
)

// DefaultSocketPath is the control socket used when none is configured
const DefaultSocketPath = "/tmp/siggen.sock"

// Server serves the line protocol on a unix socket
type Server struct {
	dispatcher *Dispatcher
	socketPath string

	mutex    sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  bool
	wg       sync.WaitGroup
}

// NewServer creates a socket server for dispatcher
func NewServer(dispatcher *Dispatcher, socketPath string) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Server{
		dispatcher: dispatcher.WithSource("socket"),
		socketPath: socketPath,
		conns:      make(map[net.Conn]struct{}),
	}
}

// SocketPath returns the path the server listens on
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start creates the socket and accepts connections in the background
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("control server already running")
	}

	// Remove a stale socket file
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	s.listener = listener
	s.running = true

	if err := os.Chmod(s.socketPath, 0660); err != nil {
		logging.Warnf("control", "failed to set socket permissions: %v", err)
	}

	logging.Infof("control", "Control socket listening on %s", s.socketPath)

	s.wg.Add(1)
	go s.acceptConnections(listener)
	return nil
}

// Stop closes the socket and every open connection
func (s *Server) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mutex.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	return err
}

// acceptConnections accepts and handles socket connections
func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warnf("control", "Socket accept error: %v", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.conns, conn)
}

// handleConnection answers one line per command until QUIT or EOF
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		resp, quit := s.dispatcher.Execute(line)
		if _, err := conn.Write([]byte(resp.String() + "\n")); err != nil {
			logging.Debugf("control", "write error: %v", err)
			return
		}
		if quit {
			return
		}
	}
}
