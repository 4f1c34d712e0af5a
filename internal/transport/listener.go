package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// Listener accepts inbound peers on all interfaces.
type Listener struct {
	ln        net.Listener
	port      int
	closeOnce sync.Once
	closeErr  error
}

// Listen binds port on all interfaces. Port 0 picks an ephemeral port.
func Listen(port int) (*Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}
	return &Listener{ln: ln, port: port}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the bound port, which differs from the requested one when
// that was 0.
func (l *Listener) Port() int {
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return l.port
}

// AcceptLoop hands every accepted connection to handle until the listener is
// closed. It returns nil on close and the accept error otherwise.
func (l *Listener) AcceptLoop(handle func(net.Conn)) error {
	for {
		conn, err := l.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		handle(conn)
	}
}

// Close stops accepting. Safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
	})
	return l.closeErr
}
