// Package udp provides the default transport.Socket implementation: a
// plain UDP datagram socket, adapted from the teacher's transport/udp
// connection-handling idiom (options pattern, receive goroutine, read/write
// buffer tuning) but stripped of the teacher's own framing/reliability
// logic, which this module's wire/reliability packages now own.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/transport"
	"github.com/unprotocol/unp/wire"
)

const (
	// DefaultReadBufferSize is the default size for UDP read buffers.
	DefaultReadBufferSize = 4096
	// DefaultWriteBufferSize is the default size for UDP write buffers.
	DefaultWriteBufferSize = 4096
)

// ErrNotBound is returned by Send/LocalEndpoint when the socket hasn't been
// bound yet. Close on an unbound socket returns nil.
var ErrNotBound = errors.New("udp: socket not bound")

// Option configures a Socket at construction time.
type Option func(*Socket)

// WithReadBufferSize sets the OS-level UDP read buffer size.
func WithReadBufferSize(n int) Option {
	return func(s *Socket) { s.readBufferSize = n }
}

// WithWriteBufferSize sets the OS-level UDP write buffer size.
func WithWriteBufferSize(n int) Option {
	return func(s *Socket) { s.writeBufferSize = n }
}

// WithReadChunkSize sets the size of the buffer used to read each datagram.
func WithReadChunkSize(n int) Option {
	return func(s *Socket) { s.readChunkSize = n }
}

// WithLogger sets the logger used for receive-loop diagnostics.
func WithLogger(log logx.Logger) Option {
	return func(s *Socket) { s.log = log }
}

// Socket is a transport.Socket backed by a *net.UDPConn.
type Socket struct {
	transport.BaseSocket

	readBufferSize  int
	writeBufferSize int
	readChunkSize   int
	log             logx.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	bound   int32
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New constructs an unbound Socket.
func New(opts ...Option) *Socket {
	s := &Socket{
		readBufferSize:  DefaultReadBufferSize,
		writeBufferSize: DefaultWriteBufferSize,
		readChunkSize:   2048,
		log:             logx.Nop{},
		closeCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind opens the UDP socket on port (0 lets the OS choose an ephemeral
// port, used for client-only engines) and starts the receive loop.
func (s *Socket) Bind(port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("udp: bind: %w", err)
	}
	if s.readBufferSize > 0 {
		_ = conn.SetReadBuffer(s.readBufferSize)
	}
	if s.writeBufferSize > 0 {
		_ = conn.SetWriteBuffer(s.writeBufferSize)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	atomic.StoreInt32(&s.bound, 1)

	s.wg.Add(1)
	go s.receiveLoop()

	s.EmitListening()
	return nil
}

func (s *Socket) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, s.readChunkSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Warn("udp: read error: %v", err)
			s.EmitError(err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		sender := endpointFromUDPAddr(raddr)
		s.EmitMessage(data, sender)
	}
}

// Send writes buf to addr. Errors are returned to the caller (the
// reliability engine, per spec.md §7, treats this as a soft failure and
// lets any associated ack timeout surface it instead of failing synchronously).
func (s *Socket) Send(buf []byte, addr wire.Endpoint) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotBound
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return fmt.Errorf("udp: resolve %s: %w", addr.String(), err)
	}
	_, err = conn.WriteToUDP(buf, udpAddr)
	return err
}

// Close stops the receive loop and closes the underlying connection.
func (s *Socket) Close() error {
	if atomic.SwapInt32(&s.bound, 0) == 0 {
		return nil
	}
	close(s.closeCh)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()
	return err
}

// LocalEndpoint returns the address the socket is bound to, for use by a
// peer dialing this socket in tests or discovery tooling.
func (s *Socket) LocalEndpoint() (wire.Endpoint, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return wire.Endpoint{}, ErrNotBound
	}
	addr := conn.LocalAddr().(*net.UDPAddr)
	if addr.IP.IsUnspecified() {
		return wire.Endpoint{Addr: "127.0.0.1", Port: addr.Port}, nil
	}
	return endpointFromUDPAddr(addr), nil
}

func endpointFromUDPAddr(addr *net.UDPAddr) wire.Endpoint {
	return wire.Endpoint{
		Addr: addr.IP.String(),
		Port: addr.Port,
		IPv6: addr.IP.To4() == nil,
	}
}

var _ transport.Socket = (*Socket)(nil)
