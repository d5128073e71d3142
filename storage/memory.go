package storage

import (
	"context"
	"sync"

	"board-sync/domain"
)

// MemoryStore is an in-process Store. Subscribers are woken on every write
// and read the latest document, so rapid writes may be coalesced.
type MemoryStore struct {
	mu           sync.Mutex
	docs         map[string]domain.Board
	subs         map[*memorySub]struct{}
	writeErr     error
	subscribeErr error
	writes       int
}

type memorySub struct {
	key    string
	notify chan struct{}
	errs   []error
	dirty  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]domain.Board{}, subs: map[*memorySub]struct{}{}}
}

// FailWrites makes subsequent writes return err. A nil err restores writes.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// FailSubscribe makes subsequent Subscribe calls return err.
func (m *MemoryStore) FailSubscribe(err error) {
	m.mu.Lock()
	m.subscribeErr = err
	m.mu.Unlock()
}

// InjectError delivers err as a listener error to every subscriber of path.
func (m *MemoryStore) InjectError(path Path, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs {
		if sub.key == path.String() {
			sub.errs = append(sub.errs, err)
			sub.wake()
		}
	}
}

// Put stores a document without counting it as a write, as if another
// client had written it.
func (m *MemoryStore) Put(path Path, board domain.Board) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(path.String(), board)
}

// Get returns the stored document.
func (m *MemoryStore) Get(path Path) (domain.Board, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[path.String()]
	if !ok {
		return domain.Board{}, false
	}
	return b.Clone(), true
}

// Writes returns the number of successful writes.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Write stores the document and wakes subscribers.
func (m *MemoryStore) Write(ctx context.Context, path Path, board domain.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.put(path.String(), board)
	return nil
}

func (m *MemoryStore) put(key string, board domain.Board) {
	m.docs[key] = board.Clone()
	for sub := range m.subs {
		if sub.key == key {
			sub.dirty = true
			sub.wake()
		}
	}
}

// Subscribe emits the current document and then one snapshot per wake-up.
func (m *MemoryStore) Subscribe(ctx context.Context, path Path) (*Subscription, error) {
	m.mu.Lock()
	if m.subscribeErr != nil {
		err := m.subscribeErr
		m.mu.Unlock()
		return nil, err
	}
	sub := &memorySub{key: path.String(), notify: make(chan struct{}, 1)}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	return NewSubscription(ctx, func(ctx context.Context, emit EmitFunc) {
		defer func() {
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
		}()
		if !emit(m.snapshot(sub.key)) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}
			m.mu.Lock()
			errs, dirty := sub.errs, sub.dirty
			sub.errs, sub.dirty = nil, false
			m.mu.Unlock()
			for _, err := range errs {
				if !emit(Event{Err: err}) {
					return
				}
			}
			if dirty && !emit(m.snapshot(sub.key)) {
				return
			}
		}
	}), nil
}

func (m *MemoryStore) snapshot(key string) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[key]
	if !ok {
		return Event{Snapshot: Snapshot{Exists: false}}
	}
	return Event{Snapshot: Snapshot{Board: b.Clone(), Exists: true}}
}

func (s *memorySub) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
