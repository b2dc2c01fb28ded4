package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestRecorder(t *testing.T) {
	recorder := NewIngestRecorder()

	before := testutil.ToFloat64(ingestItems.WithLabelValues(OutcomeValidationError))

	recorder.RecordItem(OutcomeValidationError)
	recorder.RecordItem(OutcomeValidationError)
	recorder.RecordBatch(15 * time.Millisecond)

	assert.InDelta(t, before+2, testutil.ToFloat64(ingestItems.WithLabelValues(OutcomeValidationError)), 0.001)
}

func TestRecordEventAndOutbound(t *testing.T) {
	before := testutil.ToFloat64(listenerEvents.WithLabelValues(EventIgnored))
	RecordEvent(EventIgnored)
	assert.InDelta(t, before+1, testutil.ToFloat64(listenerEvents.WithLabelValues(EventIgnored)), 0.001)

	before = testutil.ToFloat64(outboundRequests.WithLabelValues("partner", "503"))
	RecordOutbound("partner", http.StatusServiceUnavailable)
	assert.InDelta(t, before+1, testutil.ToFloat64(outboundRequests.WithLabelValues("partner", "503")), 0.001)
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest("/ping", http.StatusOK)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bioprotocol_http_requests_total")
}
