package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepLoggerRecordsDurations(t *testing.T) {
	sl := NewStepLogger("pipeline", []string{"ingest", "features", "decision"})

	sl.StartStep("ingest")
	time.Sleep(time.Millisecond)
	sl.CompleteStep("ingest")

	sl.StartStep("features")
	sl.FailStep("features", errors.New("frame rejected"))

	d := sl.Durations()
	require.Len(t, d, 2)
	assert.Greater(t, d["ingest"], time.Duration(0))
	assert.Contains(t, d, "features")
	assert.NotContains(t, d, "decision")
}

func TestDurationsReturnsCopy(t *testing.T) {
	sl := NewStepLogger("pipeline", []string{"ingest"})
	sl.StartStep("ingest")
	sl.CompleteStep("ingest")

	d := sl.Durations()
	d["ingest"] = 0
	assert.Greater(t, sl.Durations()["ingest"], time.Duration(0))
}
