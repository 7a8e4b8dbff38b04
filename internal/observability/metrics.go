package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsConfig holds configuration for the metrics subsystem.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool
	// Namespace prefix for all metrics (default: sourced).
	Namespace string
	// Version is the application version for the info metric.
	Version string
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "sourced",
		Version:   "dev",
	}
}

// MetricsConfigFromEnv creates a MetricsConfig from environment variables.
// SOURCED_METRICS_ENABLED: true/false (default: true)
// APP_VERSION: version string (default: dev)
func MetricsConfigFromEnv() MetricsConfig {
	cfg := DefaultMetricsConfig()
	if v := os.Getenv("SOURCED_METRICS_ENABLED"); v != "" {
		cfg.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		cfg.Version = v
	}
	return cfg
}

// Metrics collects request and source write counters.
// Thread-safe for concurrent use.
type Metrics struct {
	namespace string
	version   string

	mu sync.RWMutex
	// key = "method:path:status"
	httpRequestCounts map[string]*atomic.Int64
	// key = "method:path"
	httpDurations map[string]*durationCollector
	// key = action, e.g. "create", "update", "set_icon"
	sourceWrites map[string]*atomic.Int64

	rateLimitAllowed  atomic.Int64
	rateLimitRejected atomic.Int64
	activeConnections atomic.Int64
}

// durationCollector keeps a sliding window of samples for quantiles.
type durationCollector struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

func newDurationCollector(maxSize int) *durationCollector {
	return &durationCollector{samples: make([]float64, 0, maxSize), maxSize: maxSize}
}

func (d *durationCollector) add(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.samples) >= d.maxSize {
		copy(d.samples, d.samples[1:])
		d.samples = d.samples[:len(d.samples)-1]
	}
	d.samples = append(d.samples, duration.Seconds())
}

// snapshot returns the sorted samples and their sum.
func (d *durationCollector) snapshot() ([]float64, float64) {
	d.mu.Lock()
	sorted := append([]float64(nil), d.samples...)
	d.mu.Unlock()
	sort.Float64s(sorted)
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return sorted, sum
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := q * float64(len(sorted)-1)
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

// NewMetrics creates a new Metrics collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		namespace:         cfg.Namespace,
		version:           cfg.Version,
		httpRequestCounts: make(map[string]*atomic.Int64),
		httpDurations:     make(map[string]*durationCollector),
		sourceWrites:      make(map[string]*atomic.Int64),
	}
}

func (m *Metrics) counter(set map[string]*atomic.Int64, key string) *atomic.Int64 {
	m.mu.RLock()
	c, ok := set[key]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = set[key]; !ok {
		c = &atomic.Int64{}
		set[key] = c
	}
	return c
}

// RecordHTTPRequest records an HTTP request with its method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	path = normalizePath(path)
	m.counter(m.httpRequestCounts, fmt.Sprintf("%s:%s:%d", method, path, statusCode)).Add(1)

	key := method + ":" + path
	m.mu.Lock()
	dc, ok := m.httpDurations[key]
	if !ok {
		dc = newDurationCollector(1000)
		m.httpDurations[key] = dc
	}
	m.mu.Unlock()
	dc.add(duration)
}

// RecordSourceWrite counts a successful change to a source.
func (m *Metrics) RecordSourceWrite(action string) {
	if m == nil {
		return
	}
	m.counter(m.sourceWrites, action).Add(1)
}

// RecordRateLimitAllowed increments the count of allowed requests.
func (m *Metrics) RecordRateLimitAllowed() { m.rateLimitAllowed.Add(1) }

// RecordRateLimitRejected increments the count of rejected requests.
func (m *Metrics) RecordRateLimitRejected() { m.rateLimitRejected.Add(1) }

// normalizePath replaces source slugs with {slug} to bound cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		if (prev == "oauth" || prev == "all") && i >= 2 && parts[i-2] == "sources" &&
			parts[i] != "" && parts[i] != "source_types" {
			parts[i] = "{slug}"
		}
	}
	return strings.Join(parts, "/")
}

// Handler returns an http.Handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.writePrometheusMetrics(w)
	})
}

func sortedKeys[V any](set map[string]V) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Metrics) writePrometheusMetrics(w io.Writer) {
	ns := m.namespace
	fmt.Fprintf(w, "# HELP %s_info Application information\n# TYPE %s_info gauge\n", ns, ns)
	fmt.Fprintf(w, "%s_info{version=%q} 1\n\n", ns, m.version)

	m.mu.RLock()
	defer m.mu.RUnlock()

	fmt.Fprintf(w, "# HELP %s_http_requests_total Total number of HTTP requests\n# TYPE %s_http_requests_total counter\n", ns, ns)
	for _, key := range sortedKeys(m.httpRequestCounts) {
		parts := strings.SplitN(key, ":", 3)
		fmt.Fprintf(w, "%s_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			ns, parts[0], parts[1], parts[2], m.httpRequestCounts[key].Load())
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_http_request_duration_seconds HTTP request duration in seconds\n# TYPE %s_http_request_duration_seconds summary\n", ns, ns)
	for _, key := range sortedKeys(m.httpDurations) {
		method, path, _ := strings.Cut(key, ":")
		sorted, sum := m.httpDurations[key].snapshot()
		for _, q := range []float64{0.5, 0.9, 0.99} {
			fmt.Fprintf(w, "%s_http_request_duration_seconds{method=%q,path=%q,quantile=\"%.2f\"} %.6f\n",
				ns, method, path, q, quantile(sorted, q))
		}
		fmt.Fprintf(w, "%s_http_request_duration_seconds_sum{method=%q,path=%q} %.6f\n", ns, method, path, sum)
		fmt.Fprintf(w, "%s_http_request_duration_seconds_count{method=%q,path=%q} %d\n", ns, method, path, len(sorted))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_source_writes_total Source changes by action\n# TYPE %s_source_writes_total counter\n", ns, ns)
	for _, action := range sortedKeys(m.sourceWrites) {
		fmt.Fprintf(w, "%s_source_writes_total{action=%q} %d\n", ns, action, m.sourceWrites[action].Load())
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_rate_limit_requests_total Total rate limit decisions\n# TYPE %s_rate_limit_requests_total counter\n", ns, ns)
	fmt.Fprintf(w, "%s_rate_limit_requests_total{status=\"allowed\"} %d\n", ns, m.rateLimitAllowed.Load())
	fmt.Fprintf(w, "%s_rate_limit_requests_total{status=\"rejected\"} %d\n\n", ns, m.rateLimitRejected.Load())

	fmt.Fprintf(w, "# HELP %s_active_connections Current number of active HTTP connections\n# TYPE %s_active_connections gauge\n", ns, ns)
	fmt.Fprintf(w, "%s_active_connections %d\n", ns, m.activeConnections.Load())
}

// MetricsMiddleware returns an HTTP middleware that records request metrics
// and rate limit decisions.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics endpoint itself to avoid recursion
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			m.activeConnections.Add(1)
			defer m.activeConnections.Add(-1)

			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
			if wrapped.statusCode == http.StatusTooManyRequests {
				m.RecordRateLimitRejected()
			} else {
				m.RecordRateLimitAllowed()
			}
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap returns the underlying ResponseWriter for compatibility with
// http.ResponseController and other wrapping utilities.
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
