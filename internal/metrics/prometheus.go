package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	fetchPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_pages_total",
			Help: "Catalog pages fetched from source platforms.",
		},
		[]string{"source"},
	)
	fetchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_retries_total",
			Help: "Transient failures retried while fetching catalogs.",
		},
		[]string{"source"},
	)
	productsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_products_total",
			Help: "Products handled by the pipeline.",
		},
		[]string{"path", "outcome"},
	)
	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_ai_calls_total",
			Help: "Calls to the AI provider.",
		},
		[]string{"kind", "outcome"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_run_duration_seconds",
			Help:    "Duration of sync and reprocess runs.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
		},
		[]string{"path", "state"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(fetchPagesTotal)
	prometheus.MustRegister(fetchRetriesTotal)
	prometheus.MustRegister(productsTotal)
	prometheus.MustRegister(aiCallsTotal)
	prometheus.MustRegister(runDuration)
}

// FetchPage cuenta una página de catálogo descargada
func FetchPage(source string) {
	fetchPagesTotal.WithLabelValues(source).Inc()
}

// FetchRetry cuenta un reintento por error transitorio
func FetchRetry(source string) {
	fetchRetriesTotal.WithLabelValues(source).Inc()
}

// Product cuenta un producto procesado (path: ingest|reprocess)
func Product(path, outcome string) {
	productsTotal.WithLabelValues(path, outcome).Inc()
}

// AICall cuenta una llamada al proveedor (kind: classify|embed|describe|summarize)
func AICall(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	aiCallsTotal.WithLabelValues(kind, outcome).Inc()
}

// Run registra la duración de una corrida
func Run(path, state string, d time.Duration) {
	runDuration.WithLabelValues(path, state).Observe(d.Seconds())
}

// Middleware registra cada request de la API
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, classifyStatus(c.Writer.Status())).Inc()
	}
}

func classifyStatus(statusCode int) string {
	if statusCode < 100 || statusCode >= 600 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

// MetricsHandler devuelve el handler de exportación de Prometheus
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
