package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

const namespace = "ledger"

// Recorder 以 Prometheus 記錄交易與對帳單的結果及耗時
type Recorder struct {
	transactions     *prometheus.CounterVec
	applyDuration    *prometheus.HistogramVec
	statements       *prometheus.CounterVec
	statementLatency prometheus.Histogram
}

// NewRecorder 建立 Recorder 並註冊到 reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by kind and result.",
		}, []string{"kind", "result"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying a transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"kind"}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Statement reads by result.",
		}, []string{"result"}),
		statementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_duration_seconds",
			Help:      "Time spent reading a statement.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}
	reg.MustRegister(r.transactions, r.applyDuration, r.statements, r.statementLatency)
	return r
}

func (r *Recorder) ObserveApply(kind string, result string, seconds float64) {
	r.transactions.WithLabelValues(kind, result).Inc()
	r.applyDuration.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) ObserveStatement(result string, seconds float64) {
	r.statements.WithLabelValues(result).Inc()
	r.statementLatency.Observe(seconds)
}

var _ usecase.MetricsRecorder = (*Recorder)(nil)
