package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordEventSplitsModule(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.byType.WithLabelValues("referral", "settlement"))
	m.RecordEvent("referral.settlement")
	m.RecordEvent(" referral.settlement ")
	require.Equal(t, before+2, testutil.ToFloat64(m.byType.WithLabelValues("referral", "settlement")))

	unknown := testutil.ToFloat64(m.byType.WithLabelValues("unknown", "unknown"))
	m.RecordEvent("malformed")
	m.RecordEvent("")
	require.Equal(t, unknown+2, testutil.ToFloat64(m.byType.WithLabelValues("unknown", "unknown")))

	var nilMetrics *committedEvents
	nilMetrics.RecordEvent("ledger.transfer")
	nilMetrics.RecordBatch("ledger_split", 3)
}
