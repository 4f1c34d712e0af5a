package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/transport"
)

// Manager is the connection state machine. Every method runs on the bridge
// goroutine, so no field needs a lock. Blocking work (accept, dial, read) runs
// in helper goroutines that report back through post.
type Manager struct {
	state State

	listener *transport.Listener
	link     *transport.Link

	dialID     string
	dialCancel context.CancelFunc

	ctx    context.Context
	opts   transport.Opts
	logger *slog.Logger

	emit func(Event)
	post func(func()) bool
}

func newManager(ctx context.Context, opts transport.Opts, logger *slog.Logger, emit func(Event), post func(func()) bool) *Manager {
	return &Manager{
		state:  Disconnected,
		ctx:    ctx,
		opts:   opts,
		logger: logger,
		emit:   emit,
		post:   post,
	}
}

func (m *Manager) fail(err error) {
	m.emit(Event{Kind: EventError, Err: err})
}

func (m *Manager) host(port int) {
	if m.state != Disconnected {
		m.fail(&InvalidStateError{Op: "host", State: m.state})
		return
	}

	ln, err := transport.Listen(port)
	if err != nil {
		m.logger.Warn("Failed to host", "port", port, "error", err)
		m.fail(err)
		return
	}

	m.listener = ln
	m.state = Listening
	m.logger.Info("Hosting, waiting for a peer", "addr", ln.Addr().String())

	go func() {
		err := ln.AcceptLoop(func(conn net.Conn) {
			if !m.post(func() { m.accepted(ln, conn) }) {
				conn.Close() //nolint:errcheck
			}
		})
		if err != nil {
			m.post(func() { m.acceptFailed(ln, err) })
		}
	}()
}

func (m *Manager) accepted(ln *transport.Listener, conn net.Conn) {
	if ln != m.listener || m.state != Listening {
		m.logger.Info("Rejecting extra inbound connection", "remote", conn.RemoteAddr().String())
		conn.Close() //nolint:errcheck
		return
	}

	link := transport.NewLink(conn, transport.Host, m.opts)
	m.link = link
	m.state = Connected
	m.logger.Info("Peer connected", "link", link.ID(), "remote", link.RemoteAddr())

	m.emit(Event{Kind: EventPeerIdentified, Address: link.RemoteAddr()})
	m.emit(Event{Kind: EventConnected})
	m.startReading(link)
}

func (m *Manager) acceptFailed(ln *transport.Listener, err error) {
	if ln != m.listener {
		return
	}

	m.logger.Warn("Listener stopped", "error", err)
	ln.Close() //nolint:errcheck
	m.listener = nil

	if m.state == Listening {
		m.state = Disconnected
		m.fail(fmt.Errorf("failed to host: %w", err))
	}
}

func (m *Manager) connect(host string, port int) {
	if m.state != Disconnected {
		m.fail(&InvalidStateError{Op: "connect", State: m.state})
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	id := uuid.NewString()
	m.dialID = id
	m.dialCancel = cancel
	m.state = Connecting
	m.logger.Info("Connecting", "host", host, "port", port, "attempt", id)

	go func() {
		link, err := transport.Dial(ctx, host, port, m.opts)
		if !m.post(func() { m.dialed(id, link, err) }) && link != nil {
			link.Close() //nolint:errcheck
		}
	}()
}

func (m *Manager) dialed(id string, link *transport.Link, err error) {
	if id != m.dialID || m.state != Connecting {
		if link != nil {
			link.Close() //nolint:errcheck
		}
		return
	}

	m.dialCancel()
	m.dialID, m.dialCancel = "", nil

	if err != nil {
		m.logger.Warn("Failed to connect", "error", err)
		m.state = Disconnected
		m.fail(err)
		return
	}

	m.link = link
	m.state = Connected
	m.logger.Info("Connected to peer", "link", link.ID(), "remote", link.RemoteAddr())

	m.emit(Event{Kind: EventConnected})
	m.startReading(link)
}

func (m *Manager) startReading(link *transport.Link) {
	go func() {
		err := link.ReadLoop(func(msg protocol.Message) {
			m.post(func() { m.received(link, msg) })
		})
		m.post(func() { m.readEnded(link, err) })
	}()
}

func (m *Manager) received(link *transport.Link, msg protocol.Message) {
	if link != m.link {
		return
	}
	m.emit(Event{Kind: EventMessage, Message: msg})
}

func (m *Manager) readEnded(link *transport.Link, err error) {
	if link != m.link {
		return
	}

	if err != nil {
		m.logger.Warn("Connection error", "link", link.ID(), "error", err)
		m.fail(fmt.Errorf("connection error: %w", err))
	} else {
		m.logger.Info("Peer closed the connection", "link", link.ID())
	}
	m.teardown()
}

func (m *Manager) send(msg protocol.Message) {
	if m.state != Connected || m.link == nil {
		m.logger.Debug("Dropping message, not connected", "type", msg.Kind, "state", m.state)
		return
	}

	if err := m.link.Send(msg); err != nil {
		m.logger.Warn("Failed to send", "link", m.link.ID(), "type", msg.Kind, "error", err)
		m.fail(err)
		m.teardown()
	}
}

func (m *Manager) disconnect() {
	if m.state == Disconnected {
		return
	}
	m.logger.Info("Disconnecting", "state", m.state)
	m.teardown()
}

// teardown releases every socket and returns to Disconnected. It emits
// EventDisconnected only when leaving Connected, so repeated calls are
// harmless.
func (m *Manager) teardown() {
	wasConnected := m.state == Connected

	if m.link != nil {
		m.link.Close() //nolint:errcheck
		m.link = nil
	}
	if m.listener != nil {
		m.listener.Close() //nolint:errcheck
		m.listener = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialID, m.dialCancel = "", nil
	}

	m.state = Disconnected
	if wasConnected {
		m.emit(Event{Kind: EventDisconnected})
	}
}

func (m *Manager) listenAddr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}
