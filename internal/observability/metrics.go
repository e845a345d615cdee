package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	ProductsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Products handled, by result",
		},
		[]string{"result"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_http_requests_total",
			Help: "HTTP requests sent, by response status",
		},
		[]string{"code"},
	)
	FetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_fetch_retries_total",
			Help: "Requests retried after a transient failure",
		},
	)
	ArchiveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_archive_errors_total",
			Help: "Rows that could not be mirrored to Postgres",
		},
	)
	CSVColumns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_csv_columns",
			Help: "Columns in the category CSV header",
		},
	)
)

// Product results.
const (
	ResultProcessed    = "processed"
	ResultAlreadyDone  = "already_done"
	ResultSkippedFetch = "skipped_fetch"
	ResultSkippedParse = "skipped_parse"
)

// Start serves /metrics on port. It returns the server so the caller can
// shut it down when the run ends.
func Start(port string) *http.Server {
	prometheus.MustRegister(ProductsTotal, HTTPRequestsTotal, FetchRetriesTotal, ArchiveErrorsTotal, CSVColumns)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}
