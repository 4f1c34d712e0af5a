// Package tui is the terminal front end: an editable pane for your text, a
// read-only pane for the peer's text and a status line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bbitmaster/peerpad/internal/netaddr"
	"github.com/bbitmaster/peerpad/internal/pad"
	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/session"
)

// Commander is the part of the session the terminal drives.
type Commander interface {
	Host(port int) error
	Connect(host string, port int) error
	Disconnect() error
	SendFullSync(content string) error
	SendClear() error
	SendSyncRequest() error
}

type Opts struct {
	Commands Commander
	Events   <-chan session.Event
	// Status is shown until the first event arrives.
	Status      string
	DefaultPort int
	// Addresses are shown so the user can tell the peer where to connect.
	Addresses []string
	// OpenFolder shows the shared folder. ctrl+f does nothing without it.
	OpenFolder func() error
}

type (
	eventMsg  session.Event
	closedMsg struct{}
)

type styles struct {
	header lipgloss.Style
	label  lipgloss.Style
	box    lipgloss.Style
	status lipgloss.Style
	err    lipgloss.Style
	help   lipgloss.Style
}

type model struct {
	cmds        Commander
	events      <-chan session.Event
	defaultPort int
	addresses   []string
	openFolder  func() error

	pad    *pad.Pad
	input  textarea.Model
	peer   viewport.Model
	prompt textinput.Model

	prompting bool
	connected bool
	status    string
	failed    bool
	styles    styles
}

var _ session.Handler = (*model)(nil)

func newModel(opts Opts) model {
	if opts.DefaultPort == 0 {
		opts.DefaultPort = 9876
	}
	if opts.Status == "" {
		opts.Status = "Not connected"
	}

	ta := textarea.New()
	ta.Placeholder = "Type or paste here... (sent to your peer)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.SetWidth(60)
	ta.SetHeight(8)
	ta.Focus()

	ti := textinput.New()
	ti.Prompt = "Connect to (empty to host): "
	ti.Placeholder = "IP or IP:port"

	vp := viewport.New(60, 8)

	return model{
		cmds:        opts.Commands,
		events:      opts.Events,
		defaultPort: opts.DefaultPort,
		addresses:   opts.Addresses,
		openFolder:  opts.OpenFolder,
		pad:         &pad.Pad{},
		input:       ta,
		peer:        vp,
		prompt:      ti,
		status:      opts.Status,
		styles: styles{
			header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
			label:  lipgloss.NewStyle().Bold(true),
			box:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("241")),
			status: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			err:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
			help:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		},
	}
}

func waitEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case eventMsg:
		session.Dispatch(session.Event(msg), &m)
		return m, waitEvent(m.events)
	case closedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlL:
			m.input.Reset()
			m.pad.SetLocal("")
			if m.connected {
				m.check(m.cmds.SendClear())
			}
			return m, nil
		case tea.KeyCtrlR:
			m.check(m.cmds.SendSyncRequest())
			return m, nil
		case tea.KeyCtrlD:
			m.check(m.cmds.Disconnect())
			return m, nil
		case tea.KeyCtrlF:
			if m.openFolder != nil {
				if err := m.openFolder(); err != nil {
					m.check(err)
				} else {
					m.setStatus("Opened shared folder")
				}
			}
			return m, nil
		case tea.KeyCtrlO:
			m.prompting = true
			m.input.Blur()
			return m, m.prompt.Focus()
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.pad.SetLocal(after)
		if m.connected {
			m.check(m.cmds.SendFullSync(after))
		}
	}
	return m, cmd
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.closePrompt()
		return m, nil
	case tea.KeyEnter:
		addr := strings.TrimSpace(m.prompt.Value())
		m.closePrompt()
		if addr == "" {
			m.setStatus(fmt.Sprintf("Hosting on port %d... waiting for connection", m.defaultPort))
			m.check(m.cmds.Host(m.defaultPort))
			return m, nil
		}
		host, port := netaddr.SplitHostPort(addr, m.defaultPort)
		m.setStatus(fmt.Sprintf("Connecting to %s:%d...", host, port))
		m.check(m.cmds.Connect(host, port))
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *model) closePrompt() {
	m.prompting = false
	m.prompt.Reset()
	m.prompt.Blur()
	m.input.Focus()
}

func (m *model) setStatus(s string) {
	m.status = s
	m.failed = false
}

func (m *model) check(err error) {
	if err != nil {
		m.status = "Error: " + err.Error()
		m.failed = true
	}
}

func (m *model) OnConnected() {
	m.connected = true
	m.setStatus("Connected!")
	if local := m.pad.Local(); local != "" {
		m.check(m.cmds.SendFullSync(local))
	}
}

func (m *model) OnPeerIdentified(address string) {
	m.setStatus("Connected to " + address)
}

func (m *model) OnDisconnected() {
	m.connected = false
	m.setStatus("Disconnected")
}

func (m *model) OnMessage(kind protocol.Kind, content string) {
	if m.pad.Apply(kind, content) {
		m.check(m.cmds.SendFullSync(m.pad.Local()))
		return
	}
	m.peer.SetContent(m.pad.Remote())
	m.peer.GotoBottom()
}

func (m *model) OnError(desc string) {
	m.status = "Error: " + desc
	m.failed = true
}

func (m *model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	// header, two labels, status, help and both borders
	chrome := 5 + 4
	pane := max((height-chrome)/2, 3)
	w := max(width-2, 20)

	m.input.SetWidth(w)
	m.input.SetHeight(pane)
	m.peer.Width = w
	m.peer.Height = pane
	m.peer.SetContent(m.pad.Remote())
}

func (m model) View() string {
	header := m.styles.header.Render("PeerPad")
	if len(m.addresses) > 0 {
		header += m.styles.help.Render(fmt.Sprintf("  your address: %s:%d", m.addresses[0], m.defaultPort))
	}

	status := m.styles.status.Render(m.status)
	if m.failed {
		status = m.styles.err.Render(m.status)
	}

	bottom := status
	if m.prompting {
		bottom = m.prompt.View()
	}

	help := m.styles.help.Render("ctrl+o connect/host • ctrl+f shared folder • ctrl+l clear • ctrl+r request sync • ctrl+d disconnect • esc quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.styles.label.Render("Your Text"),
		m.styles.box.Render(m.input.View()),
		m.styles.label.Render("Their Text"),
		m.styles.box.Render(m.peer.View()),
		bottom,
		help,
	)
}

// Run blocks until the user quits, ctx ends or the event channel closes.
func Run(ctx context.Context, opts Opts) error {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
