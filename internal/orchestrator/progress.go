package orchestrator

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spacesedan/insightflow/internal/clients"
)

const (
	// ProgressThreshold is the corpus size a run must exceed before
	// progress events are emitted at all.
	ProgressThreshold = 1000
	// progressStep is how many completions pass between events.
	progressStep = 250
)

// ProgressEvent reports partial completion of one analysis stage.
type ProgressEvent struct {
	RunID     string  `json:"run_id"`
	Stage     string  `json:"stage"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	Timestamp int64   `json:"timestamp"`
}

// ProgressSink receives progress events. Implementations must be safe
// for concurrent use; stages emit from separate goroutines.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// SlogSink logs progress events. It is the default sink.
type SlogSink struct{}

func (SlogSink) Emit(event ProgressEvent) {
	slog.Info("[Orchestrator] Progress",
		slog.String("run_id", event.RunID),
		slog.String("stage", event.Stage),
		slog.Int("completed", event.Completed),
		slog.Int("total", event.Total))
}

// KafkaSink publishes progress events to the analysis-progress topic,
// keyed by run so consumers can partition per run.
type KafkaSink struct{}

func (KafkaSink) Emit(event ProgressEvent) {
	if err := clients.PublishJSON(clients.KAFKA_TOPIC_ANALYSIS_PROGRESS, event.RunID, event); err != nil {
		slog.Warn("[Orchestrator] Failed to publish progress event",
			slog.String("run_id", event.RunID),
			slog.String("stage", event.Stage),
			slog.Any("error", err))
	}
}

// tracker counts completions for one stage and forwards stepped progress
// to the sink. Each stage owns its tracker; adds arrive from one
// goroutine but the shared sink may be hit by several trackers at once.
type tracker struct {
	runID string
	stage string
	total int
	sink  ProgressSink
	done  atomic.Int64
	last  atomic.Int64
}

func newTracker(runID, stage string, total int, sink ProgressSink) *tracker {
	return &tracker{runID: runID, stage: stage, total: total, sink: sink}
}

// add records n completed items and emits when a step boundary or the
// end of the stage is crossed.
func (t *tracker) add(n int) {
	completed := int(t.done.Add(int64(n)))
	if t.total <= ProgressThreshold || t.sink == nil {
		return
	}
	last := t.last.Load()
	if completed-int(last) < progressStep && completed < t.total {
		return
	}
	if !t.last.CompareAndSwap(last, int64(completed)) {
		return
	}
	t.sink.Emit(ProgressEvent{
		RunID:     t.runID,
		Stage:     t.stage,
		Completed: completed,
		Total:     t.total,
		Percent:   100 * float64(completed) / float64(t.total),
		Timestamp: time.Now().Unix(),
	})
}
