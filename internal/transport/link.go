package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bbitmaster/peerpad/internal/protocol"
)

// Link is one connected peer socket. A Link is never reused: every accepted
// or dialed connection gets a fresh one with its own ID.
type Link struct {
	id     string
	role   Role
	conn   net.Conn
	remote string

	writeTimeout time.Duration
	maxFrameSize int
	logger       *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps an established connection.
func NewLink(conn net.Conn, role Role, opts Opts) *Link {
	opts = opts.withDefaults()
	id := uuid.NewString()

	return &Link{
		id:           id,
		role:         role,
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: opts.WriteTimeout,
		maxFrameSize: opts.MaxFrameSize,
		logger:       opts.Logger.With("link", id, "role", role.String()),
	}
}

// Dial connects to host:port. Host is used as given; no timeout beyond the
// operating system's and ctx.
func Dial(ctx context.Context, host string, port int, opts Opts) (*Link, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DialError{Addr: addr, Err: err}
	}
	return NewLink(conn, Client, opts), nil
}

func (l *Link) ID() string { return l.id }

func (l *Link) Role() Role { return l.role }

// RemoteAddr is the peer endpoint as "ip:port".
func (l *Link) RemoteAddr() string { return l.remote }

// Send writes one frame.
func (l *Link) Send(m protocol.Message) error {
	if l == nil || l.closed.Load() {
		return &SendError{Err: ErrNotConnected}
	}

	frame, err := protocol.Encode(m)
	if err != nil {
		return &SendError{Err: err}
	}

	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return &SendError{Err: err}
	}
	if _, err := l.conn.Write(frame); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

// ReadLoop reads frames until the peer closes the stream or the socket
// fails, passing each decoded message to handle in order. Frames that do not
// decode are logged and skipped. A clean end of stream, or a local Close,
// returns nil.
func (l *Link) ReadLoop(handle func(protocol.Message)) error {
	scanner := bufio.NewScanner(l.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), l.maxFrameSize)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		msg, err := protocol.Decode(scanner.Bytes())
		if err != nil {
			l.logger.Warn("Dropping invalid frame", "error", err)
			continue
		}
		handle(msg)
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	if l.closed.Load() && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close shuts the socket. Safe to call more than once and from any goroutine.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.conn.Close()
		l.logger.Debug("Link closed")
	})
	return l.closeErr
}
