package udp

import (
	"fmt"
	"net"
	"sync"

	applog "stemmix/internal/log"
)

// Sender handles sending data packets over UDP.
type Sender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex // Protects conn during Close
	closed     bool
}

// NewSender creates a Sender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No need to bind a specific local port for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("Meter sender: connection established to %s", conn.RemoteAddr().String())

	return &Sender{
		conn:       conn,
		targetAddr: udpAddr,
	}, nil
}

// Send transmits the given byte slice as a UDP packet. Safe for concurrent
// use, although typically called sequentially by the publisher.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("UDP sender is closed")
	}
	// Hold the lock during the write to prevent concurrent Close/Write.
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		applog.Warnf("Meter sender: error sending packet: %v", err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		if err != nil {
			return fmt.Errorf("failed to close UDP connection: %w", err)
		}
	}
	return nil
}
