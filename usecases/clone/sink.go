package clone

import (
	"context"

	"guildcloner/models"
)

// Sink receives run events. Calls come from the run's own goroutine, in
// work-completion order and never concurrently with each other. Sinks that
// render elsewhere must hand events over themselves.
type Sink interface {
	OnProgress(runID string, progress float64)
	OnStats(runID string, stats models.CloneStats)
	OnState(runID string, state models.RunState)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Progress func(runID string, progress float64)
	Stats    func(runID string, stats models.CloneStats)
	State    func(runID string, state models.RunState)
}

func (s SinkFuncs) OnProgress(runID string, progress float64) {
	if s.Progress != nil {
		s.Progress(runID, progress)
	}
}

func (s SinkFuncs) OnStats(runID string, stats models.CloneStats) {
	if s.Stats != nil {
		s.Stats(runID, stats)
	}
}

func (s SinkFuncs) OnState(runID string, state models.RunState) {
	if s.State != nil {
		s.State(runID, state)
	}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnProgress(runID string, progress float64) {
	for _, s := range m {
		s.OnProgress(runID, progress)
	}
}

func (m MultiSink) OnStats(runID string, stats models.CloneStats) {
	for _, s := range m {
		s.OnStats(runID, stats)
	}
}

func (m MultiSink) OnState(runID string, state models.RunState) {
	for _, s := range m {
		s.OnState(runID, state)
	}
}

// OutcomeObserver is told about every run once it reaches a terminal state.
type OutcomeObserver interface {
	OnRunFinished(ctx context.Context, outcome models.RunOutcome)
}
