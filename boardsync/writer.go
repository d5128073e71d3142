package boardsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"board-sync/domain"
	"board-sync/storage"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type writeJob struct {
	op       string
	board    domain.Board
	dispatch string
	worker   int
}

// writer pushes whole-board writes to the store without blocking the caller.
// Jobs go to a bounded worker pool; when the pool stays full past the handoff
// timeout the job runs on its own goroutine instead.
type writer struct {
	store   storage.Store
	path    storage.Path
	logger  *log.Logger
	tracer  trace.Tracer
	timeout time.Duration
	handoff time.Duration

	jobs chan writeJob
	wg   sync.WaitGroup
}

func newWriter(store storage.Store, path storage.Path, logger *log.Logger, tracer trace.Tracer, workers, buffer int, timeout, handoff time.Duration) *writer {
	w := &writer{
		store:   store,
		path:    path,
		logger:  logger,
		tracer:  tracer,
		timeout: timeout,
		handoff: handoff,
		jobs:    make(chan writeJob, buffer),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	logger.Infof("board writer started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workers, buffer, timeout, handoff)
	return w
}

func (w *writer) worker(id int) {
	defer w.wg.Done()
	for j := range w.jobs {
		j.dispatch, j.worker = dispatchWorker, id
		_ = w.perform(context.Background(), j)
	}
}

// submit schedules a write. It never blocks longer than the handoff timeout.
func (w *writer) submit(op string, board domain.Board) {
	job := writeJob{op: op, board: board}
	if w.tryEnqueue(job) {
		return
	}
	job.dispatch = dispatchDetached
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.perform(context.Background(), job)
	}()
}

// perform writes the board, bounded by the per-write timeout. Failures are
// logged and returned wrapped in ErrWrite.
func (w *writer) perform(ctx context.Context, job writeJob) error {
	if job.dispatch == "" {
		job.dispatch = dispatchInline
	}
	metrics := newWriteMetrics(w.logger, job)
	ctx, span := w.tracer.Start(ctx, "board.write", trace.WithAttributes(
		attribute.String("board.path", w.path.String()),
		attribute.String("board.op", job.op),
		attribute.Int("board.tasks", job.board.TaskCount()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var err error
	if err = w.store.Write(ctx, w.path, job.board); err != nil {
		metrics.SetErrorStage("store")
		err = fmt.Errorf("%w: %w", ErrWrite, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
	}
	metrics.Log(err)
	return err
}

// close stops the workers and waits for every queued or detached write.
func (w *writer) close() {
	close(w.jobs)
	w.wg.Wait()
}

// tryEnqueue hands the job to the pool, waiting up to the handoff timeout for
// a free slot. jobs is only closed by close, which the controller calls after
// its run loop, the sole caller of submit, has exited.
func (w *writer) tryEnqueue(job writeJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
	}
	if w.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(w.handoff)
	defer timer.Stop()
	select {
	case w.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}
