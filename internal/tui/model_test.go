package tui

import (
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/session"
)

type fakeSession struct {
	calls []string
	err   error
}

func (f *fakeSession) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeSession) Host(port int) error { return f.record("host %d", port) }
func (f *fakeSession) Connect(host string, port int) error { return f.record("connect %s %d", host, port) }
func (f *fakeSession) Disconnect() error { return f.record("disconnect") }
func (f *fakeSession) SendFullSync(c string) error { return f.record("full_sync %q", c) }
func (f *fakeSession) SendClear() error { return f.record("clear") }
func (f *fakeSession) SendSyncRequest() error { return f.record("sync_request") }

func newTestModel() (model, *fakeSession) {
	fake := &fakeSession{}
	return newModel(Opts{Commands: fake, Events: make(chan session.Event)}), fake
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func typeText(t *testing.T, m model, s string) model {
	t.Helper()
	for _, r := range s {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func key(t *testing.T, m model, k tea.KeyType) (model, tea.Cmd) {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: k})
}

func event(t *testing.T, m model, ev session.Event) model {
	t.Helper()
	m, _ = update(t, m, eventMsg(ev))
	return m
}

func connected(t *testing.T, m model) model {
	t.Helper()
	m = event(t, m, session.Event{Kind: session.EventPeerIdentified, Address: "10.0.0.9:41000"})
	return event(t, m, session.Event{Kind: session.EventConnected})
}

func TestTypingWhileDisconnectedSendsNothing(t *testing.T) {
	m, fake := newTestModel()

	m = typeText(t, m, "hi")
	assert.Equal(t, "hi", m.pad.Local())
	assert.Empty(t, fake.calls)
}

func TestConnectedPushesBufferThenEveryEdit(t *testing.T) {
	m, fake := newTestModel()
	m = typeText(t, m, "ab")

	m = connected(t, m)
	assert.Equal(t, "Connected!", m.status)
	assert.True(t, m.connected)

	m = typeText(t, m, "c")
	assert.Equal(t, []string{`full_sync "ab"`, `full_sync "abc"`}, fake.calls)
}

func TestPeerMessagesFoldIntoTheirText(t *testing.T) {
	m, fake := newTestModel()
	m = connected(t, m)

	tests := []struct {
		msg  protocol.Message
		want string
	}{
		{protocol.Message{Kind: protocol.Text, Content: "hel"}, "hel"},
		{protocol.Message{Kind: protocol.Text, Content: "lo"}, "hello"},
		{protocol.Message{Kind: protocol.FullSync, Content: "new"}, "new"},
		{protocol.Message{Kind: protocol.Clear}, ""},
	}
	for _, tt := range tests {
		m = event(t, m, session.Event{Kind: session.EventMessage, Message: tt.msg})
		assert.Equal(t, tt.want, m.pad.Remote(), "after %s", tt.msg.Kind)
	}
	assert.Empty(t, m.pad.Local(), "peer text never lands in your text")
	assert.Empty(t, fake.calls)
}

func TestSyncRequestIsAnswered(t *testing.T) {
	m, fake := newTestModel()
	m = typeText(t, m, "mine")
	m = connected(t, m)
	fake.calls = nil

	m = event(t, m, session.Event{Kind: session.EventMessage, Message: protocol.Message{Kind: protocol.SyncRequest}})
	assert.Equal(t, []string{`full_sync "mine"`}, fake.calls)
	assert.Empty(t, m.pad.Remote())
}

func TestKeys(t *testing.T) {
	m, fake := newTestModel()
	m = typeText(t, m, "draft")
	m = connected(t, m)
	fake.calls = nil

	m, _ = key(t, m, tea.KeyCtrlL)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.pad.Local())

	m, _ = key(t, m, tea.KeyCtrlR)
	m, _ = key(t, m, tea.KeyCtrlD)
	assert.Equal(t, []string{"clear", "sync_request", "disconnect"}, fake.calls)

	m = event(t, m, session.Event{Kind: session.EventDisconnected})
	assert.Equal(t, "Disconnected", m.status)

	_, cmd := key(t, m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestClearWhileDisconnectedIsLocal(t *testing.T) {
	m, fake := newTestModel()
	m = typeText(t, m, "x")

	m, _ = key(t, m, tea.KeyCtrlL)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, fake.calls)
}

func TestConnectPrompt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty hosts", "", "host 9876"},
		{"bare ip", "10.0.0.5", "connect 10.0.0.5 9876"},
		{"ip and port", "10.0.0.5:8888", "connect 10.0.0.5 8888"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fake := newTestModel()

			m, _ = key(t, m, tea.KeyCtrlO)
			require.True(t, m.prompting)
			m = typeText(t, m, tt.input)
			assert.Empty(t, m.input.Value(), "prompt input must not reach the pad")

			m, _ = key(t, m, tea.KeyEnter)
			assert.False(t, m.prompting)
			assert.Equal(t, []string{tt.want}, fake.calls)
		})
	}
}

func TestPromptEscapeCancels(t *testing.T) {
	m, fake := newTestModel()

	m, _ = key(t, m, tea.KeyCtrlO)
	m = typeText(t, m, "10.0.0.5")
	m, cmd := key(t, m, tea.KeyEsc)

	assert.Nil(t, cmd, "esc in the prompt must not quit")
	assert.False(t, m.prompting)
	assert.Empty(t, fake.calls)
}

func TestErrorsReachStatus(t *testing.T) {
	m, fake := newTestModel()

	m = event(t, m, session.Event{Kind: session.EventError, Err: errors.New("connection refused")})
	assert.Equal(t, "Error: connection refused", m.status)
	assert.True(t, m.failed)

	fake.err = session.ErrClosed
	m, _ = key(t, m, tea.KeyCtrlR)
	assert.Equal(t, "Error: "+session.ErrClosed.Error(), m.status)
}

func TestWaitEvent(t *testing.T) {
	ch := make(chan session.Event, 1)
	ch <- session.Event{Kind: session.EventConnected}

	msg := waitEvent(ch)()
	assert.Equal(t, eventMsg(session.Event{Kind: session.EventConnected}), msg)

	close(ch)
	assert.Equal(t, closedMsg{}, waitEvent(ch)())
}

func TestViewShowsBothPanes(t *testing.T) {
	m, _ := newTestModel()
	m.addresses = []string{"192.168.1.20"}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})

	v := m.View()
	assert.Contains(t, v, "Your Text")
	assert.Contains(t, v, "Their Text")
	assert.Contains(t, v, "192.168.1.20:9876")
	assert.Contains(t, v, "Not connected")
}

func TestOpenSharedFolder(t *testing.T) {
	m, fake := newTestModel()

	m, _ = key(t, m, tea.KeyCtrlF)
	assert.Equal(t, "Not connected", m.status, "no folder configured")

	opened := 0
	m.openFolder = func() error {
		opened++
		return nil
	}
	m, _ = key(t, m, tea.KeyCtrlF)
	assert.Equal(t, 1, opened)
	assert.Equal(t, "Opened shared folder", m.status)

	m.openFolder = func() error { return errors.New("xdg-open not found") }
	m, _ = key(t, m, tea.KeyCtrlF)
	assert.Equal(t, "Error: xdg-open not found", m.status)
	assert.True(t, m.failed)

	assert.Empty(t, fake.calls)
	assert.Empty(t, m.input.Value(), "ctrl+f never reaches the pad")
}
