package conversation

import (
	"time"

	"github.com/teslashibe/go-voicechat/pkg/metrics"
)

// Turn outcomes reported to Prometheus.
const (
	OutcomeCompleted        = "completed"
	OutcomeEmpty            = "empty"
	OutcomeTranscribeFailed = "transcribe_failed"
	OutcomeRespondFailed    = "respond_failed"
)

// Metrics holds the stage timings of one turn. Stages that did not run are
// zero.
type Metrics struct {
	Transcribe time.Duration
	Respond    time.Duration
	Synthesize time.Duration
	Total      time.Duration
}

// stageTimer measures stages and exports them as they finish.
type stageTimer struct {
	start time.Time
	m     Metrics
}

func newStageTimer() *stageTimer {
	return &stageTimer{start: time.Now()}
}

func (t *stageTimer) observe(stage Stage, began time.Time) {
	d := time.Since(began)
	switch stage {
	case StageTranscribe:
		t.m.Transcribe = d
	case StageRespond:
		t.m.Respond = d
	case StageSynthesize:
		t.m.Synthesize = d
	}
	metrics.ObserveStage(string(stage), d)
}

func (t *stageTimer) finish(outcome string) Metrics {
	t.m.Total = time.Since(t.start)
	metrics.RecordTurn(outcome)
	return t.m
}
