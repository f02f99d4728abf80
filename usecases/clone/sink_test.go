package clone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"guildcloner/models"
)

func TestMultiSink_FansOutInOrder(t *testing.T) {
	var calls []string
	record := func(name string) Sink {
		return SinkFuncs{
			Progress: func(string, float64) { calls = append(calls, name+":progress") },
			Stats:    func(string, models.CloneStats) { calls = append(calls, name+":stats") },
			State:    func(string, models.RunState) { calls = append(calls, name+":state") },
		}
	}

	sink := MultiSink{record("a"), record("b")}
	sink.OnState("run_1", models.RunStateRunning)
	sink.OnProgress("run_1", 0.5)
	sink.OnStats("run_1", models.CloneStats{})

	assert.Equal(t, []string{
		"a:state", "b:state",
		"a:progress", "b:progress",
		"a:stats", "b:stats",
	}, calls)
}

func TestSinkFuncs_SkipsNilFields(t *testing.T) {
	var states []models.RunState
	sink := SinkFuncs{State: func(_ string, s models.RunState) { states = append(states, s) }}

	assert.NotPanics(t, func() {
		sink.OnProgress("run_1", 0.1)
		sink.OnStats("run_1", models.CloneStats{})
	})
	sink.OnState("run_1", models.RunStateCompleted)
	assert.Equal(t, []models.RunState{models.RunStateCompleted}, states)
}
