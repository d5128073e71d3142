package storage

import (
	"context"
	"sync"

	"board-sync/domain"
)

// Path identifies a board document.
type Path struct {
	AppID   string
	BoardID string
}

// String renders the document path used as the document key.
func (p Path) String() string {
	return "artifacts/" + p.AppID + "/public/data/kanbanBoards/" + p.BoardID
}

// Snapshot is the state of a board document at one point in time.
type Snapshot struct {
	Board  domain.Board
	Exists bool
}

// Event carries either a snapshot or a listener error.
type Event struct {
	Snapshot Snapshot
	Err      error
}

// Store is the remote document store holding board documents.
type Store interface {
	// Subscribe opens a change stream for the document at path. The first
	// event reflects the current state, including "does not exist".
	Subscribe(ctx context.Context, path Path) (*Subscription, error)
	// Write replaces the whole document at path.
	Write(ctx context.Context, path Path, board domain.Board) error
}

// Subscription is a live change stream. Events are delivered in order.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// EmitFunc delivers an event to the subscriber. It reports false once the
// subscription has been closed.
type EmitFunc func(Event) bool

// NewSubscription runs produce in its own goroutine until it returns or the
// subscription is closed. Events are handed over unbuffered so ordering is
// kept and nothing is dropped.
func NewSubscription(ctx context.Context, produce func(ctx context.Context, emit EmitFunc)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(ev Event) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		produce(ctx, emit)
	}()
	return s
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops the subscription and waits for its producer to exit.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
