package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTurn(t *testing.T) {
	turnsTotal.Reset()

	RecordTurn("retrieve", "success")
	RecordTurn("retrieve", "success")
	RecordTurn("clarify", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(turnsTotal.WithLabelValues("retrieve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("clarify", "success")))
}

func TestRecordGateAndFailures(t *testing.T) {
	gateDecisionsTotal.Reset()
	nodeFailuresTotal.Reset()

	RecordGateDecision("reject")
	RecordNodeFailure("retrieve")
	RecordNodeFailure("retrieve")

	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("reject")))
	assert.Equal(t, 2.0, testutil.ToFloat64(nodeFailuresTotal.WithLabelValues("retrieve")))
}

func TestRecordLLMUsage(t *testing.T) {
	llmCostTotal.Reset()
	llmTokensTotal.Reset()

	RecordLLMUsage("gemini-2.5-flash", 100, 20, 0.5)

	assert.Equal(t, 100.0, testutil.ToFloat64(llmTokensTotal.WithLabelValues("gemini-2.5-flash", "input")))
	assert.Equal(t, 20.0, testutil.ToFloat64(llmTokensTotal.WithLabelValues("gemini-2.5-flash", "output")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(llmCostTotal.WithLabelValues("gemini-2.5-flash")), 1e-9)
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	RecordNodeDuration("gate", 0.2)
	RecordRetrievedDocuments(3)
	assert.Positive(t, testutil.CollectAndCount(nodeDuration))
}
