// Package tracelog writes finished spans to a logrus logger.
package tracelog

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Processor logs every ended span at debug level, or at warn level when the
// span recorded an error status.
type Processor struct {
	logger *log.Logger
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// New returns a processor writing to logger.
func New(logger *log.Logger) *Processor {
	return &Processor{logger: logger}
}

func (p *Processor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := log.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": float64(s.EndTime().Sub(s.StartTime())) / 1e6,
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	if s.Status().Code == codes.Error {
		fields["status"] = s.Status().Description
		p.logger.WithFields(fields).Warn("span")
		return
	}
	p.logger.WithFields(fields).Debug("span")
}

func (p *Processor) Shutdown(context.Context) error { return nil }

func (p *Processor) ForceFlush(context.Context) error { return nil }
