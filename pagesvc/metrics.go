package pagesvc

import (
	"context"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/pdfpages/pagemanip"
)

// metrics implements pagemanip.Recorder on Prometheus collectors.
type metrics struct {
	reg        *prom.Registry
	operations *prom.CounterVec
	duration   *prom.HistogramVec
	pages      prom.Histogram
	opened     prom.Counter
	closed     *prom.CounterVec
}

func newMetrics(reg *prom.Registry, active func() float64) *metrics {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	m := &metrics{
		reg: reg,
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pdfpages",
			Name:      "operations_total",
			Help:      "Page operations by kind and outcome",
		}, []string{"op", "result"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pdfpages",
			Name:      "operation_duration_seconds",
			Help:      "Duration of page operations",
			Buckets:   prom.DefBuckets,
		}, []string{"op"}),
		pages: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pdfpages",
			Name:      "document_pages",
			Help:      "Page count of loaded documents",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		opened: prom.NewCounter(prom.CounterOpts{
			Namespace: "pdfpages",
			Name:      "sessions_opened_total",
			Help:      "Sessions opened",
		}),
		closed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pdfpages",
			Name:      "sessions_closed_total",
			Help:      "Sessions closed by reason",
		}, []string{"reason"}),
	}
	activeGauge := prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: "pdfpages",
		Name:      "sessions_active",
		Help:      "Sessions currently open",
	}, active)
	reg.MustRegister(m.operations, m.duration, m.pages, m.opened, m.closed, activeGauge)
	return m
}

// Record implements pagemanip.Recorder.
func (m *metrics) Record(_ context.Context, rec pagemanip.Record) {
	result := "success"
	if rec.Err != nil {
		result = pagemanip.Code(rec.Err)
	}
	m.operations.WithLabelValues(string(rec.Op), result).Inc()
	m.duration.WithLabelValues(string(rec.Op)).Observe(rec.Duration.Seconds())
	if rec.Op == pagemanip.OpLoad && rec.Err == nil {
		m.pages.Observe(float64(rec.After))
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// recorders fans a record out to several recorders.
type recorders []pagemanip.Recorder

func (rs recorders) Record(ctx context.Context, rec pagemanip.Record) {
	for _, r := range rs {
		r.Record(ctx, rec)
	}
}
