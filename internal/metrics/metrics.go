// Package metrics exposes Prometheus collectors fed by the event bus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
)

const namespace = "socialgraph"

// Metrics holds the collectors of one process. Each instance owns its
// registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     prometheus.Histogram
	graphqlOps       *prometheus.CounterVec
	graphqlDuration  *prometheus.HistogramVec
	loaderBatches    *prometheus.CounterVec
	loaderErrors     *prometheus.CounterVec
	loaderBatchKeys  prometheus.Histogram
	loaderBatchRows  prometheus.Histogram
	cascadeDeletes   *prometheus.CounterVec
	cascadeDependent *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initializeHTTPMetrics()
	m.initializeGraphQLMetrics()
	m.initializeLoaderMetrics()
	m.initializeCascadeMetrics()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) initializeHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by response status",
		},
		[]string{"status"},
	)
	m.httpDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

func (m *Metrics) initializeGraphQLMetrics() {
	m.graphqlOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_operations_total",
			Help:      "Total executed GraphQL operations by type and outcome",
		},
		[]string{"type", "outcome"},
	)
	m.graphqlDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graphql_operation_duration_seconds",
			Help:      "Duration of GraphQL operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.graphqlOps, m.graphqlDuration)
}

func (m *Metrics) initializeLoaderMetrics() {
	m.loaderBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_batches_total",
			Help:      "Total bulk fetches issued by batch loaders",
		},
		[]string{"kind", "field"},
	)
	m.loaderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_batch_errors_total",
			Help:      "Total failed bulk fetches",
		},
		[]string{"kind", "field"},
	)
	m.loaderBatchKeys = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_batch_keys",
			Help:      "Number of keys collapsed into one bulk fetch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	m.loaderBatchRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_batch_rows",
			Help:      "Number of rows returned by one bulk fetch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	m.registry.MustRegister(m.loaderBatches, m.loaderErrors, m.loaderBatchKeys, m.loaderBatchRows)
}

func (m *Metrics) initializeCascadeMetrics() {
	m.cascadeDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_deletes_total",
			Help:      "Total user deletions by outcome",
		},
		[]string{"outcome"},
	)
	m.cascadeDependent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_dependents_total",
			Help:      "Dependent rows touched by user deletions",
		},
		[]string{"entity"},
	)
	m.registry.MustRegister(m.cascadeDeletes, m.cascadeDependent)
}

// Subscribe feeds the collectors from the global event bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(m.onHTTPFinish),
		eventbus.Subscribe(m.onGraphQLFinish),
		eventbus.Subscribe(m.onLoaderBatch),
		eventbus.Subscribe(m.onCascadeFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRows registers one gauge per collection of db reporting its current
// row count at scrape time.
func (m *Metrics) ObserveRows(db *entity.DB) {
	for kind, count := range map[string]func() int{
		entity.KindUsers:       db.Users.Len,
		entity.KindPosts:       db.Posts.Len,
		entity.KindProfiles:    db.Profiles.Len,
		entity.KindMemberTypes: db.MemberTypes.Len,
	} {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "store_rows",
				Help:        "Rows currently held per collection",
				ConstLabels: prometheus.Labels{"kind": kind},
			},
			func() float64 { return float64(count()) },
		))
	}
}

func (m *Metrics) onHTTPFinish(_ context.Context, e events.HTTPFinish) {
	m.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
	m.httpDuration.Observe(e.Duration.Seconds())
}

func (m *Metrics) onGraphQLFinish(_ context.Context, e events.GraphQLFinish) {
	m.graphqlOps.WithLabelValues(e.OperationType, outcome(len(e.Errors) == 0)).Inc()
	m.graphqlDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
}

func (m *Metrics) onLoaderBatch(_ context.Context, e events.LoaderBatch) {
	m.loaderBatches.WithLabelValues(e.Kind, e.Field).Inc()
	if e.Err != nil {
		m.loaderErrors.WithLabelValues(e.Kind, e.Field).Inc()
	}
	m.loaderBatchKeys.Observe(float64(e.Keys))
	m.loaderBatchRows.Observe(float64(e.Rows))
}

func (m *Metrics) onCascadeFinish(_ context.Context, e events.CascadeFinish) {
	m.cascadeDeletes.WithLabelValues(outcome(e.Err == nil)).Inc()
	m.cascadeDependent.WithLabelValues("subscriptions").Add(float64(e.Subscriptions))
	m.cascadeDependent.WithLabelValues("posts").Add(float64(e.Posts))
	m.cascadeDependent.WithLabelValues("profiles").Add(float64(e.Profiles))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
