package boardsync

import (
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"board-sync/domain"
)

func TestWriteMetricsLogSuccess(t *testing.T) {
	logger, hook := test.NewNullLogger()

	metrics := newWriteMetrics(logger, writeJob{op: "add-task", board: boardWith("a", "b"), dispatch: dispatchWorker, worker: 3})
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.Log(nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "board.write.metrics" || entry.Level != log.InfoLevel {
		t.Fatalf("unexpected entry %q at %v", entry.Message, entry.Level)
	}
	if entry.Data["op"] != "add-task" || entry.Data["tasks"] != 2 || entry.Data["worker"] != 3 {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
	if ms, ok := entry.Data["total_ms"].(float64); !ok || ms < 20 {
		t.Fatalf("expected total_ms >= 20, got %#v", entry.Data["total_ms"])
	}
	if _, ok := entry.Data["error"]; ok {
		t.Fatal("did not expect an error field")
	}
}

func TestWriteMetricsLogFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()

	metrics := newWriteMetrics(logger, writeJob{op: "seed", board: domain.InitialBoard(), dispatch: dispatchDetached})
	metrics.SetErrorStage("store")
	metrics.SetErrorStage("")
	metrics.Log(errors.New("boom"))

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected a warning, got %#v", entry)
	}
	if entry.Data["error_stage"] != "store" || entry.Data["error"] != "boom" || entry.Data["dispatch"] != dispatchDetached {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
	if _, ok := entry.Data["worker"]; ok {
		t.Fatal("detached writes have no worker id")
	}
}

func TestDurationToMillis(t *testing.T) {
	if durationToMillis(-time.Second) != 0 {
		t.Fatal("negative durations clamp to zero")
	}
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}
