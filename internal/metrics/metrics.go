package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	pphttp "github.com/ligustah/pagepress/internal/http"
	"github.com/ligustah/pagepress/internal/progress"
)

const (
	namespace = "pagepress"

	pagesTotal        = "pages_total"
	segmentsTotal     = "segments_total"
	jobsTotal         = "jobs_total"
	fetchRetriesTotal = "fetch_retries_total"

	// Labels
	resultLabel  = "result"
	outcomeLabel = "outcome"
	reasonLabel  = "reason"
)

var pagesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      pagesTotal,
		Help:      "number of pages fetched, by result",
	},
	[]string{resultLabel},
)

var segmentsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      segmentsTotal,
		Help:      "number of segments processed, by result",
	},
	[]string{resultLabel},
)

var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsTotal,
		Help:      "number of jobs finished, by outcome",
	},
	[]string{outcomeLabel},
)

var fetchRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      fetchRetriesTotal,
		Help:      "number of scheduled fetch retries, by reason",
	},
	[]string{reasonLabel},
)

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(pagesTotalMetric)
	prometheus.MustRegister(segmentsTotalMetric)
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(fetchRetriesTotalMetric)
}

// Sink records pipeline events as prometheus counters.
type Sink struct{}

func (Sink) Emit(e progress.Event) {
	switch e.Kind {
	case progress.PageDone:
		pagesTotalMetric.With(prometheus.Labels{resultLabel: okLabel(e.OK)}).Inc()
	case progress.SegmentDone:
		result := "ok"
		if e.Succeeded == 0 {
			result = "empty"
		}
		segmentsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
	case progress.JobDone:
		jobsTotalMetric.With(prometheus.Labels{outcomeLabel: "done"}).Inc()
	case progress.JobFailed:
		jobsTotalMetric.With(prometheus.Labels{outcomeLabel: "failed"}).Inc()
	case progress.JobCancelled:
		jobsTotalMetric.With(prometheus.Labels{outcomeLabel: "cancelled"}).Inc()
	case progress.Retry:
		fetchRetriesTotalMetric.With(prometheus.Labels{reasonLabel: RetryReason(e.Err)}).Inc()
	}
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// RetryReason maps a fetch error to a low-cardinality label value: the
// status code for HTTP errors, "transport" otherwise.
func RetryReason(err error) string {
	var statusErr *pphttp.StatusError
	if errors.As(err, &statusErr) {
		return http.StatusText(statusErr.Code)
	}
	if err == nil {
		return "unknown"
	}
	return "transport"
}
