//go:build !noprom

package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	storeTotal    *prom.CounterVec
	storeSeconds  *prom.HistogramVec
	modelTotal    *prom.CounterVec
	modelSeconds  *prom.HistogramVec
	actionTotal   *prom.CounterVec
	toolTotal     *prom.CounterVec
	toolSeconds   *prom.HistogramVec
	stmtCacheHit  *prom.CounterVec
	stmtCacheMiss *prom.CounterVec
	poolInUse     prom.Gauge
	poolIdle      prom.Gauge
}

func (p *promRecorder) IncStoreOpTotal(op string, success bool) {
	p.storeTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveStoreOpSeconds(op string, success bool, seconds float64) {
	p.storeSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncModelCallTotal(provider string, success bool) {
	p.modelTotal.WithLabelValues(provider, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveModelCallSeconds(provider string, success bool, seconds float64) {
	p.modelSeconds.WithLabelValues(provider, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncActionTotal(kind string, outcome string) {
	p.actionTotal.WithLabelValues(kind, outcome).Inc()
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncStmtCacheHit(kind string)  { p.stmtCacheHit.WithLabelValues(kind).Inc() }
func (p *promRecorder) IncStmtCacheMiss(kind string) { p.stmtCacheMiss.WithLabelValues(kind).Inc() }

func (p *promRecorder) ObservePoolStats(inUse, idle int) {
	p.poolInUse.Set(float64(inUse))
	p.poolIdle.Set(float64(idle))
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := &promRecorder{
		storeTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "store_ops_total",
			Help: "Total number of entity store operations",
		}, []string{"op", "success"}),
		storeSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "store_op_seconds",
			Help:    "Entity store operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		modelTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "model_calls_total",
			Help: "Total number of language model calls",
		}, []string{"provider", "success"}),
		modelSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "model_call_seconds",
			Help:    "Language model round-trip duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"provider", "success"}),
		actionTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "actions_total",
			Help: "Total number of routed actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		stmtCacheHit: prom.NewCounterVec(prom.CounterOpts{
			Name: "stmt_cache_hits_total",
			Help: "Prepared statement cache hits",
		}, []string{"kind"}),
		stmtCacheMiss: prom.NewCounterVec(prom.CounterOpts{
			Name: "stmt_cache_misses_total",
			Help: "Prepared statement cache misses",
		}, []string{"kind"}),
		poolInUse: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_in_use",
			Help: "Database connections currently in use",
		}),
		poolIdle: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_idle",
			Help: "Idle database connections",
		}),
	}

	registry.MustRegister(
		p.storeTotal, p.storeSeconds,
		p.modelTotal, p.modelSeconds,
		p.actionTotal,
		p.toolTotal, p.toolSeconds,
		p.stmtCacheHit, p.stmtCacheMiss,
		p.poolInUse, p.poolIdle,
	)
	SetRecorder(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}
