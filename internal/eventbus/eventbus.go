// Package eventbus hands commands from inbound admin traffic to the
// scheduler loop without sharing call-stack state between the two.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Command is a request handed to the scheduler between poll cycles.
type Command interface{ CommandID() string }

// PollNow asks the scheduler to run a cycle immediately.
type PollNow struct{ ID string }

func (c PollNow) CommandID() string { return c.ID }

// Broadcast asks the scheduler to fan a fixed text out to every recipient.
type Broadcast struct {
	ID     string
	Text   string
	Escape bool
}

func (c Broadcast) CommandID() string { return c.ID }

// NewPollNow builds a PollNow command with a fresh ID.
func NewPollNow() PollNow { return PollNow{ID: uuid.NewString()} }

// NewBroadcast builds a Broadcast command with a fresh ID.
func NewBroadcast(text string, escape bool) Broadcast {
	return Broadcast{ID: uuid.NewString(), Text: text, Escape: escape}
}

// Bus is a bounded single-consumer command queue. Publishing never blocks
// the producer: when the queue is full the command is dropped and Publish
// reports false.
type Bus struct {
	mu     sync.Mutex
	ch     chan Command
	closed bool
}

// New creates a Bus with room for size pending commands.
func New(size int) *Bus {
	if size <= 0 {
		size = 8
	}
	return &Bus{ch: make(chan Command, size)}
}

// Publish enqueues cmd, reporting whether it was accepted.
func (b *Bus) Publish(cmd Command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- cmd:
		return true
	default:
		return false
	}
}

// Commands returns the receive side consumed by the scheduler.
func (b *Bus) Commands() <-chan Command { return b.ch }

// Close stops the bus; pending commands remain readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
