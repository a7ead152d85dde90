package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WidgetRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qualify_widget_requests_total",
		Help: "Count of widget API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	Impressions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qualify_impressions_total",
		Help: "Count of widget impressions by A/B variant",
	}, []string{"variant"})

	Leads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qualify_leads_total",
		Help: "Count of submitted conversations by qualification",
	}, []string{"qualified"})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qualify_tracked_events_total",
		Help: "Count of tracked widget events by type",
	}, []string{"event_type"})

	LeadScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qualify_lead_score",
		Help:    "Distribution of lead qualification scores",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
)

var registerOnce sync.Once

// Register adds the collectors to the default registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(WidgetRequests, Impressions, Leads, Events, LeadScore)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts one request to a widget endpoint
func ObserveRequest(endpoint string, status int) {
	WidgetRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveLead counts a scored lead
func ObserveLead(qualified bool, score float64) {
	Leads.WithLabelValues(strconv.FormatBool(qualified)).Inc()
	LeadScore.Observe(score)
}
