// Package pad holds the two texts a consumer shows: what the local user
// typed and the latest view of the peer's text.
package pad

import (
	"sync"

	"github.com/bbitmaster/peerpad/internal/protocol"
)

// Pad is safe for concurrent use.
type Pad struct {
	mu     sync.Mutex
	local  string
	remote string
}

func (p *Pad) Local() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *Pad) Remote() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *Pad) SetLocal(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = s
}

func (p *Pad) AppendLocal(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local += s
}

// Apply folds a received message into the peer view. It reports whether the
// peer asked for our full text.
func (p *Pad) Apply(kind protocol.Kind, content string) (wantsSync bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch kind {
	case protocol.Text:
		p.remote += content
	case protocol.FullSync:
		p.remote = content
	case protocol.Clear:
		p.remote = ""
	case protocol.SyncRequest:
		return true
	}
	return false
}
