package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/patric-chuzhbe/smartmark/internal/viewstate"
)

// forwarder hands the synchronizer's snapshots to a tea.Program from its own
// goroutine. observe never blocks, so it is safe to call from Update; only
// the latest pending snapshot is delivered.
type forwarder struct {
	mu      sync.Mutex
	pending *viewstate.Snapshot
	program *tea.Program
	wake    chan struct{}
}

func newForwarder() *forwarder {
	return &forwarder{wake: make(chan struct{}, 1)}
}

func (f *forwarder) observe(snapshot viewstate.Snapshot) {
	f.mu.Lock()
	f.pending = &snapshot
	f.mu.Unlock()
	f.signal()
}

// attach sets the receiving program. A snapshot observed before attach is
// delivered right after it.
func (f *forwarder) attach(p *tea.Program) {
	f.mu.Lock()
	f.program = p
	f.mu.Unlock()
	f.signal()
}

func (f *forwarder) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}

		f.mu.Lock()
		p, snapshot := f.program, f.pending
		if p != nil {
			f.pending = nil
		}
		f.mu.Unlock()

		if p == nil || snapshot == nil {
			continue
		}
		p.Send(SnapshotMsg(*snapshot))
	}
}
