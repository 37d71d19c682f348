package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MarksRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "schooladmin", Name: "marks_recorded_total", Help: "Examination marks recorded",
	})
	ResultsComputed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "schooladmin", Name: "results_computed_total", Help: "Student results published",
	})
	ResultFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "schooladmin", Name: "result_failures_total", Help: "Per-student result computation failures",
	})
	ClassBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "schooladmin", Name: "class_batch_seconds", Help: "Class-wide result batch duration",
		Buckets: prometheus.DefBuckets,
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "schooladmin", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(MarksRecorded, ResultsComputed, ResultFailures, ClassBatchDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveClassBatch(d time.Duration) { ClassBatchDuration.Observe(d.Seconds()) }
