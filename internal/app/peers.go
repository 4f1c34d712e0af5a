package app

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bbitmaster/peerpad/internal/session"
)

// PeerRecorder persists who this machine talked to.
type PeerRecorder interface {
	RecordPeer(address, role string, at time.Time) error
	SetDevice(address, deviceID string) error
	Device(address string) (string, error)
}

// trackedBridge remembers the last dialled address so the peer can be
// recorded once the dial succeeds.
type trackedBridge struct {
	*session.Bridge

	mu   sync.Mutex
	last string
}

func (b *trackedBridge) Connect(host string, port int) error {
	b.mu.Lock()
	b.last = net.JoinHostPort(host, strconv.Itoa(port))
	b.mu.Unlock()
	return b.Bridge.Connect(host, port)
}

func (b *trackedBridge) target() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// watch forwards events in order, recording each peer on the way. A host
// sees peer_identified before connected; a client only sees connected.
func (a *App) watch(ctx context.Context, in <-chan session.Event, target func() string, rec PeerRecorder) <-chan session.Event {
	out := make(chan session.Event, session.DefaultQueueSize)

	go func() {
		defer close(out)

		identified := false
		for ev := range in {
			switch ev.Kind {
			case session.EventPeerIdentified:
				identified = true
				host, _, err := net.SplitHostPort(ev.Address)
				if err != nil {
					host = ev.Address
				}
				a.remember(ctx, rec, host, "host")
			case session.EventConnected:
				if !identified {
					a.remember(ctx, rec, target(), "client")
				}
			case session.EventDisconnected:
				identified = false
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// remember records the peer. With -share-with the first peer is paired with
// that device; otherwise a peer paired earlier gets its folder share
// re-established in the background.
func (a *App) remember(ctx context.Context, rec PeerRecorder, address, role string) {
	a.logger.Info("Peer connected", "addr", address, "role", role)
	if rec == nil || address == "" {
		return
	}

	if err := rec.RecordPeer(address, role, time.Now()); err != nil {
		a.logger.Warn("Failed to record peer", "addr", address, "error", err)
	}

	if a.config.ShareWith != "" {
		if a.paired.CompareAndSwap(false, true) {
			if err := rec.SetDevice(address, a.config.ShareWith); err != nil {
				a.logger.Warn("Failed to remember peer device", "addr", address, "error", err)
			}
		}
		return
	}

	device, err := rec.Device(address)
	if err != nil {
		a.logger.Warn("Failed to look up peer device", "addr", address, "error", err)
		return
	}
	if device == "" {
		return
	}
	go func() {
		if err := a.shareFolder(ctx, device); err != nil {
			a.logger.Error("Failed to share folder", "device", device, "error", err)
		}
	}()
}
