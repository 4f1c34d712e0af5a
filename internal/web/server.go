// Package web serves PeerPad to a browser. Session events are broadcast to
// every open tab over a websocket, and tabs send commands back the same way.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bbitmaster/peerpad/internal/netaddr"
	"github.com/bbitmaster/peerpad/internal/pad"
	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/session"
	"github.com/bbitmaster/peerpad/internal/store"
)

//go:embed static
var static embed.FS

const (
	DefaultAddr  = "127.0.0.1:8080"
	defaultLimit = 10
)

// Commander is the part of the session a browser can drive.
type Commander interface {
	Host(port int) error
	Connect(host string, port int) error
	Disconnect() error
	SendText(content string) error
	SendFullSync(content string) error
	SendClear() error
	SendSyncRequest() error
}

// RecentLister lists peers seen before.
type RecentLister interface {
	RecentPeers(limit int) ([]store.PeerRecord, error)
}

type Opts struct {
	Addr        string
	DefaultPort int
	Commands    Commander
	Recent      RecentLister
	// Status is shown until the first event arrives.
	Status string
	// Addresses defaults to netaddr.ListLocalAddresses.
	Addresses func() []string
	// OpenFolder shows the shared folder on this machine.
	OpenFolder func() error
	Logger     *slog.Logger
}

// Server is both the HTTP front end and a session.Handler.
type Server struct {
	addr        string
	defaultPort int
	cmds        Commander
	recent      RecentLister
	addresses   func() []string
	openFolder  func() error
	logger      *slog.Logger

	pad *pad.Pad
	hub *hub

	mu        sync.Mutex
	status    string
	connected bool
}

var _ session.Handler = (*Server)(nil)

func New(opts Opts) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.DefaultPort == 0 {
		opts.DefaultPort = 9876
	}
	if opts.Status == "" {
		opts.Status = "Not connected"
	}
	if opts.Addresses == nil {
		opts.Addresses = netaddr.ListLocalAddresses
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		addr:        opts.Addr,
		defaultPort: opts.DefaultPort,
		cmds:        opts.Commands,
		recent:      opts.Recent,
		addresses:   opts.Addresses,
		openFolder:  opts.OpenFolder,
		logger:      opts.Logger,
		pad:         &pad.Pad{},
		status:      opts.Status,
	}
	s.hub = newHub(func() []byte { return s.encode(outbound{Event: "snapshot"}) }, opts.Logger)
	return s
}

// Run serves HTTP on the configured address and feeds events to the open
// tabs. It returns when ctx ends, the event channel closes or the listener
// fails.
func (s *Server) Run(ctx context.Context, events <-chan session.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.run(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	s.logger.Info("Web UI listening", "url", "http://"+s.addr)

	consumed := make(chan error, 1)
	go func() { consumed <- session.Consume(ctx, events, s) }()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("web server failed: %w", err)
		}
	case <-consumed:
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		s.logger.Warn("Web server did not shut down cleanly", "error", serr)
	}
	return err
}

// Handler returns the router. The hub must be running for /ws to work.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWs)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/addresses", s.handleAddresses).Methods(http.MethodGet)
	r.HandleFunc("/api/recent", s.handleRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/open-folder", s.handleOpenFolder).Methods(http.MethodPost)

	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(sub))).Methods(http.MethodGet)
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Bound to loopback by default, any origin on it is the local user.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	if !s.hub.join(c) {
		conn.Close() //nolint:errcheck
		return
	}
	go c.writePump()
	go c.readPump(s.handleCommand)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddresses(w http.ResponseWriter, _ *http.Request) {
	addrs := s.addresses()
	if addrs == nil {
		addrs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addrs, "port": s.defaultPort})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		writeJSON(w, http.StatusOK, []store.PeerRecord{})
		return
	}

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	peers, err := s.recent.RecentPeers(limit)
	if err != nil {
		s.logger.Error("Failed to list recent peers", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list recent peers"})
		return
	}
	if peers == nil {
		peers = []store.PeerRecord{}
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleOpenFolder(w http.ResponseWriter, _ *http.Request) {
	if s.openFolder == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no shared folder configured"})
		return
	}
	if err := s.openFolder(); err != nil {
		s.logger.Warn("Failed to open shared folder", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// command is what a tab sends.
type command struct {
	Command string `json:"command"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	Content string `json:"content,omitempty"`
}

// outbound is what every tab receives: the event plus the full page state,
// so a tab can redraw from any single message.
type outbound struct {
	Event     string `json:"event"`
	Address   string `json:"address,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Local     string `json:"local"`
	Remote    string `json:"remote"`
}

func (s *Server) encode(o outbound) []byte {
	s.mu.Lock()
	o.Status, o.Connected = s.status, s.connected
	s.mu.Unlock()
	o.Local, o.Remote = s.pad.Local(), s.pad.Remote()

	b, err := json.Marshal(o)
	if err != nil {
		s.logger.Error("Failed to encode browser event", "event", o.Event, "error", err)
		return nil
	}
	return b
}

func (s *Server) publish(o outbound) {
	if b := s.encode(o); b != nil {
		s.hub.publish(b)
	}
}

func (s *Server) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Server) setConnected(status string, connected bool) {
	s.mu.Lock()
	s.status, s.connected = status, connected
	s.mu.Unlock()
}

func (s *Server) check(op string, err error) {
	if err != nil {
		s.logger.Warn("Session command failed", "op", op, "error", err)
		s.setStatus("Error: " + err.Error())
	}
}

func (s *Server) handleCommand(raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.logger.Warn("Ignoring malformed browser command", "error", err)
		return
	}

	switch cmd.Command {
	case "host":
		port := cmd.Port
		if port == 0 {
			port = s.defaultPort
		}
		s.setStatus(fmt.Sprintf("Hosting on port %d... waiting for connection", port))
		s.check(cmd.Command, s.cmds.Host(port))
	case "connect":
		def := cmd.Port
		if def == 0 {
			def = s.defaultPort
		}
		host, port := netaddr.SplitHostPort(cmd.Address, def)
		if host == "" {
			s.setStatus("Error: no address to connect to")
			break
		}
		s.setStatus(fmt.Sprintf("Connecting to %s:%d...", host, port))
		s.check(cmd.Command, s.cmds.Connect(host, port))
	case "disconnect":
		s.check(cmd.Command, s.cmds.Disconnect())
	case "full_sync":
		s.pad.SetLocal(cmd.Content)
		s.check(cmd.Command, s.cmds.SendFullSync(cmd.Content))
	case "text":
		s.pad.AppendLocal(cmd.Content)
		s.check(cmd.Command, s.cmds.SendText(cmd.Content))
	case "clear":
		s.pad.SetLocal("")
		s.check(cmd.Command, s.cmds.SendClear())
	case "sync_request":
		s.check(cmd.Command, s.cmds.SendSyncRequest())
	default:
		s.logger.Warn("Ignoring unknown browser command", "command", cmd.Command)
		return
	}

	s.publish(outbound{Event: "command", Kind: cmd.Command})
}

func (s *Server) OnConnected() {
	s.setConnected("Connected!", true)
	if local := s.pad.Local(); local != "" {
		s.check("full_sync", s.cmds.SendFullSync(local))
	}
	s.publish(outbound{Event: session.EventConnected.String()})
}

func (s *Server) OnPeerIdentified(address string) {
	s.setStatus("Connected to " + address)
	s.publish(outbound{Event: session.EventPeerIdentified.String(), Address: address})
}

func (s *Server) OnDisconnected() {
	s.setConnected("Disconnected", false)
	s.publish(outbound{Event: session.EventDisconnected.String()})
}

func (s *Server) OnMessage(kind protocol.Kind, content string) {
	if s.pad.Apply(kind, content) {
		s.check("full_sync", s.cmds.SendFullSync(s.pad.Local()))
	}
	s.publish(outbound{Event: session.EventMessage.String(), Kind: kind.String(), Content: content})
}

func (s *Server) OnError(desc string) {
	s.setStatus("Error: " + desc)
	s.publish(outbound{Event: session.EventError.String(), Error: desc})
}
