package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbitmaster/peerpad/internal/protocol"
	"github.com/bbitmaster/peerpad/internal/session"
	"github.com/bbitmaster/peerpad/internal/store"
)

type fakeRecorder struct {
	mu      sync.Mutex
	peers   []string
	devices map[string]string
}

func (f *fakeRecorder) RecordPeer(address, role string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers = append(f.peers, role+" "+address)
	return nil
}

func (f *fakeRecorder) SetDevice(address, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devices == nil {
		f.devices = map[string]string{}
	}
	f.devices[address] = deviceID
	return nil
}

func (f *fakeRecorder) Device(address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[address], nil
}

type fakeFolders struct {
	mu      sync.Mutex
	started bool
	shared  []string
	err     error
}

func (f *fakeFolders) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.err
}

func (f *fakeFolders) DeviceID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "MY-DEVICE", f.err
}

func (f *fakeFolders) SetupSharedFolder(_ context.Context, path, peer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared = append(f.shared, path+" "+peer)
	return nil
}

func (f *fakeFolders) sharedWith() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shared...)
}

func newTestApp(c *Config) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	a := New("v1.2.3", c, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	return a, &out
}

func drain(t *testing.T, ch <-chan session.Event, n int) []session.Event {
	t.Helper()
	var got []session.Event
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}
	return got
}

func TestWatchRecordsPeersInOrder(t *testing.T) {
	a, _ := newTestApp(&Config{ShareWith: "PEER-DEVICE"})
	rec := &fakeRecorder{}

	in := make(chan session.Event, 8)
	in <- session.Event{Kind: session.EventPeerIdentified, Address: "192.168.1.7:51000"}
	in <- session.Event{Kind: session.EventConnected}
	in <- session.Event{Kind: session.EventMessage, Message: protocol.Message{Kind: protocol.Text, Content: "x"}}
	in <- session.Event{Kind: session.EventDisconnected}
	in <- session.Event{Kind: session.EventConnected}
	close(in)

	out := a.watch(context.Background(), in, func() string { return "10.0.0.5:9876" }, rec)
	got := drain(t, out, 5)

	kinds := make([]session.EventKind, 0, len(got))
	for _, ev := range got {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []session.EventKind{
		session.EventPeerIdentified,
		session.EventConnected,
		session.EventMessage,
		session.EventDisconnected,
		session.EventConnected,
	}, kinds)

	_, ok := <-out
	assert.False(t, ok, "output closes with the input")

	assert.Equal(t, []string{"host 192.168.1.7", "client 10.0.0.5:9876"}, rec.peers)
	assert.Equal(t, map[string]string{"192.168.1.7": "PEER-DEVICE"}, rec.devices, "only the first peer is paired")
}

func TestWatchResumesSharingWithKnownDevice(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "PeerPad")
	a, _ := newTestApp(&Config{SharedFolder: shared})
	folders := &fakeFolders{}
	a.folders = folders
	rec := &fakeRecorder{devices: map[string]string{"10.0.0.5:9876": "PEER-DEVICE"}}

	in := make(chan session.Event, 2)
	in <- session.Event{Kind: session.EventConnected}
	in <- session.Event{Kind: session.EventDisconnected}
	close(in)

	out := a.watch(context.Background(), in, func() string { return "10.0.0.5:9876" }, rec)
	drain(t, out, 2)

	assert.Eventually(t, func() bool {
		return len(folders.sharedWith()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{shared + " PEER-DEVICE"}, folders.sharedWith())
	assert.Equal(t, map[string]string{"10.0.0.5:9876": "PEER-DEVICE"}, rec.devices, "lookup does not rewrite the device")
}

func TestWatchSkipsUnknownDevice(t *testing.T) {
	a, _ := newTestApp(&Config{SharedFolder: filepath.Join(t.TempDir(), "PeerPad")})
	folders := &fakeFolders{}
	a.folders = folders
	rec := &fakeRecorder{}

	in := make(chan session.Event, 1)
	in <- session.Event{Kind: session.EventConnected}
	close(in)

	out := a.watch(context.Background(), in, func() string { return "10.0.0.5:9876" }, rec)
	drain(t, out, 1)

	assert.Never(t, func() bool {
		return len(folders.sharedWith()) > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"client 10.0.0.5:9876"}, rec.peers)
}

func TestWatchWithoutStore(t *testing.T) {
	a, _ := newTestApp(&Config{})

	in := make(chan session.Event, 1)
	in <- session.Event{Kind: session.EventConnected}
	close(in)

	out := a.watch(context.Background(), in, func() string { return "10.0.0.5:9876" }, nil)
	drain(t, out, 1)
}

func TestRunVersion(t *testing.T) {
	a, out := newTestApp(&Config{ShowVersion: true})
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, "v1.2.3\n", out.String())
}

func TestRunRecent(t *testing.T) {
	dir := t.TempDir()

	a, out := newTestApp(&Config{ShowRecent: true, DataDir: dir})
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, "No recent peers\n", out.String())

	st, err := store.Open(filepath.Join(dir, "peerpad.db"))
	require.NoError(t, err)
	require.NoError(t, st.RecordPeer("10.0.0.5:9876", "client", time.Now()))
	require.NoError(t, st.RecordPeer("10.0.0.6:9876", "client", time.Now().Add(-time.Minute)))
	require.NoError(t, st.SetDevice("10.0.0.5:9876", "DEVICE-A"))
	require.NoError(t, st.Close())

	out.Reset()
	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "ADDRESS")
	assert.Contains(t, out.String(), "DEVICE")
	assert.Contains(t, out.String(), "10.0.0.5:9876")
	assert.Contains(t, out.String(), "DEVICE-A")
	assert.Regexp(t, `10\.0\.0\.6:9876\s+client\s+.*\s-\n`, out.String())
}

func TestRunDeviceID(t *testing.T) {
	a, out := newTestApp(&Config{ShowDeviceID: true})
	folders := &fakeFolders{}
	a.folders = folders

	require.NoError(t, a.Run(context.Background()))
	assert.True(t, folders.started)
	assert.Equal(t, "MY-DEVICE\n", out.String())

	folders.err = errors.New("syncthing is not installed")
	assert.Error(t, a.Run(context.Background()))
}

func TestShareFolder(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "PeerPad")
	a, _ := newTestApp(&Config{SharedFolder: shared, ShareWith: "PEER-DEVICE"})
	folders := &fakeFolders{}
	a.folders = folders

	require.NoError(t, a.shareFolder(context.Background(), "PEER-DEVICE"))
	assert.DirExists(t, shared)
	assert.Equal(t, []string{shared + " PEER-DEVICE"}, folders.sharedWith())
}

func TestOpenSharedFolder(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "PeerPad")
	a, _ := newTestApp(&Config{SharedFolder: shared})

	var opened []string
	a.openFolder = func(path string) error {
		opened = append(opened, path)
		return nil
	}
	require.NoError(t, a.openSharedFolder())
	assert.DirExists(t, shared)
	assert.Equal(t, []string{shared}, opened)

	a.openFolder = func(string) error { return errors.New("no file manager") }
	assert.EqualError(t, a.openSharedFolder(), "no file manager")
}

func TestRunShowIP(t *testing.T) {
	a, out := newTestApp(&Config{ShowIP: true, Port: DefaultPort})
	require.NoError(t, a.Run(context.Background()))
	assert.NotEmpty(t, out.String())
}
