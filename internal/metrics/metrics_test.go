package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledRecorderIsSafe(t *testing.T) {
	var r *Recorder = New(false)
	assert.Nil(t, r)
	assert.NotPanics(t, func() {
		r.EventRecorded("message")
		r.EmbeddingFailed()
		r.LLMFallback("reflect")
		r.ConsolidationRun("short", 2)
		r.ACBBuilt(10, time.Millisecond)
		r.ChannelDegraded("vector")
	})
	assert.Nil(t, r.Registry())
}

func TestRecorderCounts(t *testing.T) {
	r := New(true)
	require.NotNil(t, r)

	r.EventRecorded("decision")
	r.EventRecorded("decision")
	r.LLMFallback("extract")
	r.ConsolidationRun("long", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsRecorded.WithLabelValues("decision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmFallbacks.WithLabelValues("extract")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.consolidationErrors.WithLabelValues("long")))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
