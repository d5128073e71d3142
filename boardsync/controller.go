// Package boardsync keeps a local Kanban board in sync with its remote
// document. The controller owns the board, applies mutations optimistically
// and falls back to a fixed offline board when the remote is unreachable
// during startup.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"board-sync/auth"
	"board-sync/domain"
	"board-sync/internal/observable"
	"board-sync/storage"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Mode is the controller's connectivity state.
type Mode int

const (
	// Loading is the initial mode, left exactly once.
	Loading Mode = iota
	// Online means the board tracks the remote document.
	Online
	// Offline means the board is local only. It is terminal.
	Offline
)

func (m Mode) String() string {
	switch m {
	case Loading:
		return "loading"
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is what consumers render.
type State struct {
	// Board is nil until a board has been adopted.
	Board *domain.Board
	Mode  Mode
	// Cause records why the controller went offline.
	Cause error
}

// Loading reports whether the initial load is still in progress.
func (s State) Loading() bool { return s.Mode == Loading }

// Offline reports whether the controller fell back to local-only operation.
func (s State) Offline() bool { return s.Mode == Offline }

const (
	defaultIdentityTimeout = 10 * time.Second
	defaultWriteWorkers    = 4
	defaultWriteBuffer     = 64
	defaultWriteTimeout    = 15 * time.Second
	defaultHandoffTimeout  = 25 * time.Millisecond
)

// Config tunes a Controller. Zero values take defaults.
type Config struct {
	Path            storage.Path
	IdentityTimeout time.Duration
	WriteWorkers    int
	WriteBuffer     int
	WriteTimeout    time.Duration
	HandoffTimeout  time.Duration
	TracerProvider  trace.TracerProvider
}

func (c Config) withDefaults() Config {
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = defaultIdentityTimeout
	}
	if c.WriteWorkers <= 0 {
		c.WriteWorkers = defaultWriteWorkers
	}
	if c.WriteBuffer <= 0 {
		c.WriteBuffer = defaultWriteBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	} else if c.HandoffTimeout == 0 {
		c.HandoffTimeout = defaultHandoffTimeout
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// Controller owns the board state. All state changes run on a single loop
// goroutine, so a read-modify-publish sequence never interleaves with
// another one or with an inbound snapshot.
type Controller struct {
	store    storage.Store
	identity auth.Identity
	logger   *log.Logger
	cfg      Config
	tracer   trace.Tracer

	state  *observable.Value[State]
	ops    chan func()
	writer *writer

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	workWG sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// New returns a controller in Loading mode and starts its loop. Call Start
// to begin syncing and Close to release it.
func New(store storage.Store, identity auth.Identity, logger *log.Logger, cfg Config) *Controller {
	if logger == nil {
		panic("Logger is not initialized")
	}
	cfg = cfg.withDefaults()
	tracer := cfg.TracerProvider.Tracer("board-sync/boardsync")
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:    store,
		identity: identity,
		logger:   logger,
		cfg:      cfg,
		tracer:   tracer,
		state:    observable.NewValue(State{Mode: Loading}),
		ops:      make(chan func()),
		writer:   newWriter(store, cfg.Path, logger, tracer, cfg.WriteWorkers, cfg.WriteBuffer, cfg.WriteTimeout, cfg.HandoffTimeout),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.loopWG.Add(1)
	go c.loop()
	return c
}

// Start runs the startup sequence in the background. Later calls do nothing.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.workWG.Add(1)
		go func() {
			defer c.workWG.Done()
			c.startup()
		}()
	})
}

// Close stops syncing, closes the subscription and waits for pending writes.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.workWG.Wait()
		c.loopWG.Wait()
		c.writer.close()
	})
}

// State returns the current state. The board is a private copy.
func (c *Controller) State() State {
	st := c.state.Get()
	if st.Board != nil {
		b := st.Board.Clone()
		st.Board = &b
	}
	return st
}

// Board returns a copy of the current board and whether one exists.
func (c *Controller) Board() (domain.Board, bool) {
	st := c.state.Get()
	if st.Board == nil {
		return domain.Board{}, false
	}
	return st.Board.Clone(), true
}

// Loading reports whether the initial load is still in progress.
func (c *Controller) Loading() bool { return c.state.Get().Loading() }

// Offline reports whether the controller runs local only.
func (c *Controller) Offline() bool { return c.state.Get().Offline() }

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.state.Get().Mode }

// Watch returns a channel signalled after every state change and a func
// that stops the notifications.
func (c *Controller) Watch() (<-chan struct{}, func()) {
	return c.state.Subscribe()
}

// ColumnOrder returns the display order of the columns.
func (c *Controller) ColumnOrder() []string {
	return domain.ColumnOrder()
}

// AddTask appends a task with content to the todo column.
func (c *Controller) AddTask(content string) {
	c.mutate(domain.AddTaskCommand, func(b domain.Board) (domain.Board, bool) {
		return domain.AddTask(b, content)
	})
}

// DeleteTask removes taskID from columnID.
func (c *Controller) DeleteTask(columnID, taskID string) {
	c.mutate(domain.DeleteTaskCommand, func(b domain.Board) (domain.Board, bool) {
		return domain.DeleteTask(b, columnID, taskID)
	})
}

// MoveTask moves taskID from one column to the end of another.
func (c *Controller) MoveTask(taskID, fromColumnID, toColumnID string) {
	c.mutate(domain.MoveTaskCommand, func(b domain.Board) (domain.Board, bool) {
		return domain.MoveTask(b, taskID, fromColumnID, toColumnID)
	})
}

// mutate applies fn on the loop and returns once the new board is published.
// The remote write happens afterwards and only while Online.
func (c *Controller) mutate(op string, fn func(domain.Board) (domain.Board, bool)) {
	c.do(func() {
		st := c.state.Get()
		if st.Board == nil {
			c.logger.WithField("op", op).Debug("no board loaded, ignoring mutation")
			return
		}
		next, changed := fn(*st.Board)
		if !changed {
			return
		}
		st.Board = &next
		c.state.Set(st)
		if st.Mode == Online {
			c.writer.submit(op, next)
		}
	})
}

func (c *Controller) loop() {
	defer c.loopWG.Done()
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.ctx.Done():
			return
		}
	}
}

// do runs op on the loop and waits for it. It reports false when the
// controller is closed and op did not run.
func (c *Controller) do(op func()) bool {
	done := make(chan struct{})
	select {
	case c.ops <- func() { op(); close(done) }:
	case <-c.ctx.Done():
		return false
	}
	<-done
	return true
}

// goOffline switches to the offline board. Must run on the loop.
func (c *Controller) goOffline(cause error) {
	st := c.state.Get()
	if st.Mode == Offline {
		return
	}
	c.logger.WithError(cause).WithField("from", st.Mode.String()).Warn("board sync offline, using placeholder board")
	b := domain.OfflineBoard()
	c.state.Set(State{Board: &b, Mode: Offline, Cause: cause})
}

func (c *Controller) startup() {
	if err := c.ensureIdentity(); err != nil {
		c.do(func() { c.goOffline(fmt.Errorf("%w: %w", ErrIdentity, err)) })
		return
	}

	sub, err := c.store.Subscribe(c.ctx, c.cfg.Path)
	if err != nil {
		c.do(func() { c.goOffline(fmt.Errorf("%w: %w", ErrSubscription, err)) })
		return
	}
	defer sub.Close()
	c.logger.WithField("path", c.cfg.Path.String()).Info("subscribed to board document")

	for ev := range sub.Events() {
		if !c.handle(ev) {
			return
		}
	}
}

// ensureIdentity signs in, giving up after the identity timeout even if the
// provider ignores its context.
func (c *Controller) ensureIdentity() error {
	ctx, span := c.tracer.Start(c.ctx, "identity.ensure")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.IdentityTimeout)
	defer cancel()

	type result struct {
		session auth.Session
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := c.identity.Ensure(ctx)
		ch <- result{sess, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, "identity unavailable")
		return r.err
	}
	span.SetAttributes(attribute.String("user.id", r.session.UserID))
	c.logger.WithField("user", r.session.UserID).Info("identity ready")
	return nil
}

// handle applies one subscription event. It reports false when the
// subscription is no longer needed.
func (c *Controller) handle(ev storage.Event) bool {
	if ev.Err != nil {
		return c.handleListenerError(ev.Err)
	}
	if ev.Snapshot.Exists {
		if !ev.Snapshot.Board.Valid() {
			return c.handleListenerError(errors.New("document is not a valid board"))
		}
		return c.adopt(ev.Snapshot.Board)
	}
	return c.handleMissing()
}

func (c *Controller) handleListenerError(err error) bool {
	keep := false
	ok := c.do(func() {
		st := c.state.Get()
		switch {
		case st.Mode == Offline:
		case st.Board == nil:
			c.goOffline(fmt.Errorf("%w: %w", ErrSubscription, err))
		default:
			c.logger.WithError(err).Warn("board listener error, keeping current board")
			keep = true
		}
	})
	return ok && keep
}

func (c *Controller) adopt(board domain.Board) bool {
	keep := false
	ok := c.do(func() {
		st := c.state.Get()
		if st.Mode == Offline {
			return
		}
		if st.Mode == Loading {
			c.logger.WithField("tasks", board.TaskCount()).Info("board loaded")
		}
		c.state.Set(State{Board: &board, Mode: Online})
		keep = true
	})
	return ok && keep
}

// handleMissing writes an empty board when the document does not exist and
// adopts it once the write succeeded. A board loaded earlier is replaced by
// the seed; if the seed write fails it is kept.
func (c *Controller) handleMissing() bool {
	var st State
	if !c.do(func() { st = c.state.Get() }) {
		return false
	}
	if st.Mode == Offline {
		return false
	}
	if st.Board != nil {
		c.logger.Warn("board document disappeared, reseeding")
	}

	seed := domain.InitialBoard()
	err := c.writer.perform(c.ctx, writeJob{op: "seed", board: seed})
	keep := false
	ok := c.do(func() {
		cur := c.state.Get()
		switch {
		case cur.Mode == Offline:
		case err != nil:
			if cur.Board == nil {
				c.goOffline(err)
				return
			}
			c.logger.WithError(err).Warn("reseed failed, keeping current board")
			keep = true
		default:
			if cur.Board == nil {
				c.logger.Info("board document created")
			}
			c.state.Set(State{Board: &seed, Mode: Online})
			keep = true
		}
	})
	return ok && keep
}
