package boardsync

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// How a write reached the store.
const (
	dispatchWorker   = "worker"
	dispatchDetached = "detached"
	dispatchInline   = "inline"
)

type writeMetrics struct {
	logger     *log.Logger
	start      time.Time
	op         string
	dispatch   string
	worker     int
	tasks      int
	errorStage string
}

func newWriteMetrics(logger *log.Logger, job writeJob) *writeMetrics {
	return &writeMetrics{
		logger:   logger,
		start:    time.Now(),
		op:       job.op,
		dispatch: job.dispatch,
		worker:   job.worker,
		tasks:    job.board.TaskCount(),
	}
}

func (m *writeMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *writeMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"op":       m.op,
		"dispatch": m.dispatch,
		"tasks":    m.tasks,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.dispatch == dispatchWorker {
		fields["worker"] = m.worker
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Warn("board.write.metrics")
		return
	}
	m.logger.WithFields(fields).Info("board.write.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
