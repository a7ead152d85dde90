package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(WidgetRequests.WithLabelValues("submit", "429"))
	ObserveRequest("submit", 429)
	assert.Equal(t, before+1, testutil.ToFloat64(WidgetRequests.WithLabelValues("submit", "429")))
}

func TestObserveLead(t *testing.T) {
	before := testutil.ToFloat64(Leads.WithLabelValues("true"))
	ObserveLead(true, 0.9)
	assert.Equal(t, before+1, testutil.ToFloat64(Leads.WithLabelValues("true")))
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}
