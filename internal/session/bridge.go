// Package session owns the single peer connection. A Bridge runs one
// background goroutine that holds the connection state and every socket;
// consumers submit commands from any goroutine and read ordered events from
// Events.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/transport"
)

const (
	DefaultQueueSize     = 256
	DefaultShutdownGrace = time.Second
)

// Opts configures a Bridge.
type Opts struct {
	Transport transport.Opts
	Logger    *slog.Logger
	// QueueSize bounds both the command inbox and the event channel.
	QueueSize int
	// ShutdownGrace is how long Shutdown waits for the goroutine to stop.
	ShutdownGrace time.Duration
}

// Bridge marshals commands onto the session goroutine and events back off
// it. Commands are executed in submission order.
type Bridge struct {
	// inbox carries reports from accept, dial and read goroutines. It is
	// bounded so a fast peer is slowed down at the socket.
	inbox  chan func()
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	// Consumer commands queue here without bound, so submitting never
	// waits on the session goroutine.
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}

	cancel   context.CancelFunc
	stopOnce sync.Once
	grace    time.Duration
	logger   *slog.Logger

	mgr *Manager
}

// New starts the session goroutine.
func New(opts Opts) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		inbox:  make(chan func(), opts.QueueSize),
		events: make(chan Event, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		grace:  opts.ShutdownGrace,
		logger: opts.Logger,
	}
	b.mgr = newManager(ctx, opts.Transport, opts.Logger, b.emit, b.post)

	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	defer close(b.events)

	for {
		select {
		case <-b.wake:
			for _, fn := range b.takePending() {
				fn()
			}
		case fn := <-b.inbox:
			fn()
		case <-b.quit:
			b.mgr.teardown()
			return
		}
	}
}

// emit runs on the session goroutine. It blocks while the consumer is
// behind, unless the bridge is shutting down.
func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.quit:
		b.logger.Debug("Dropping event during shutdown", "event", ev.String())
	}
}

// post queues fn on the session goroutine. It reports false once the bridge
// is shutting down.
func (b *Bridge) post(fn func()) bool {
	select {
	case b.inbox <- fn:
		return true
	case <-b.quit:
		return false
	}
}

// submit queues fn for the session goroutine and returns at once. Commands
// run in submission order.
func (b *Bridge) submit(fn func(*Manager)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending = append(b.pending, func() { fn(b.mgr) })
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

func (b *Bridge) takePending() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	fns := b.pending
	b.pending = nil
	return fns
}

// Events delivers lifecycle and message events in emission order. The
// channel is closed once the bridge has shut down.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Host listens for one peer on port.
func (b *Bridge) Host(port int) error {
	return b.submit(func(m *Manager) { m.host(port) })
}

// Connect dials host:port. Host is used as given.
func (b *Bridge) Connect(host string, port int) error {
	return b.submit(func(m *Manager) { m.connect(host, port) })
}

// Disconnect drops the peer, stops listening or abandons a dial. It does
// nothing when already disconnected.
func (b *Bridge) Disconnect() error {
	return b.submit(func(m *Manager) { m.disconnect() })
}

// Send forwards msg to the peer when connected and drops it otherwise.
func (b *Bridge) Send(msg protocol.Message) error {
	return b.submit(func(m *Manager) { m.send(msg) })
}

func (b *Bridge) SendText(content string) error {
	return b.Send(protocol.Message{Kind: protocol.Text, Content: content})
}

func (b *Bridge) SendFullSync(content string) error {
	return b.Send(protocol.Message{Kind: protocol.FullSync, Content: content})
}

func (b *Bridge) SendClear() error {
	return b.Send(protocol.Message{Kind: protocol.Clear})
}

func (b *Bridge) SendSyncRequest() error {
	return b.Send(protocol.Message{Kind: protocol.SyncRequest})
}

// State asks the session goroutine for the current state. ctx bounds the
// wait, which can be long while the consumer is behind on events.
func (b *Bridge) State(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if err := b.submit(func(m *Manager) { ch <- m.state }); err != nil {
		return Disconnected, err
	}
	return wait(ctx, b, ch)
}

// ListenAddr returns the bound listener address, or "" when not hosting.
func (b *Bridge) ListenAddr(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	if err := b.submit(func(m *Manager) { ch <- m.listenAddr() }); err != nil {
		return "", err
	}
	return wait(ctx, b, ch)
}

func wait[T any](ctx context.Context, b *Bridge, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-b.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Shutdown stops the session goroutine, cancels any dial and closes every
// socket. It waits at most the grace period and is terminal: later commands
// return ErrClosed.
func (b *Bridge) Shutdown() error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.pending = nil
		b.mu.Unlock()

		close(b.quit)
		b.cancel()
	})

	timer := time.NewTimer(b.grace)
	defer timer.Stop()

	select {
	case <-b.done:
		return nil
	case <-timer.C:
		b.logger.Warn("Session did not stop in time", "grace", b.grace)
		return ErrShutdownTimeout
	}
}
