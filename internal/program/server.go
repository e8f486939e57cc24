package program

import (
	"fmt"
	"os"
	"strings"

	abciserver "github.com/cometbft/cometbft/abci/server"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/service"
)

// Server wraps an ABCI socket server so a CometBFT node running as a
// separate process can connect to the list program.
type Server struct {
	server service.Service
	socket string
}

// NewServer creates a socket server for app. The server is created but not
// started. Call Start() to begin listening.
func NewServer(app abci.Application, socketAddr string) (*Server, error) {
	if app == nil {
		return nil, fmt.Errorf("ABCI application cannot be nil")
	}
	if socketAddr == "" {
		return nil, fmt.Errorf("socket address cannot be empty")
	}

	return &Server{
		server: abciserver.NewSocketServer(socketAddr, app),
		socket: socketAddr,
	}, nil
}

// Start begins listening for CometBFT connections.
func (s *Server) Start() error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	return nil
}

// Stop shuts down the server and removes a unix socket file if one was used.
func (s *Server) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}

	if socketPath, ok := strings.CutPrefix(s.socket, "unix://"); ok {
		if _, err := os.Stat(socketPath); err == nil {
			os.Remove(socketPath)
		}
	}
	return nil
}

// IsRunning returns true if the ABCI server is currently running.
func (s *Server) IsRunning() bool {
	return s.server.IsRunning()
}

// SocketPath returns the socket address the server is listening on.
func (s *Server) SocketPath() string {
	return s.socket
}
