package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// 处理结果标签
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"
	outcomeRetry     = "retry"
	outcomeRequeued  = "requeued"
	outcomeDropped   = "dropped"
	outcomeLost      = "lost"
)

// Metrics 调度器指标
type Metrics struct {
	LogEntries *prometheus.CounterVec
	Fixtures   *prometheus.CounterVec
	QueuePops  *prometheus.CounterVec
	Reclaimed  prometheus.Counter
}

// NewMetrics 创建并注册指标；reg 为 nil 时不注册（测试用）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LogEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchpulse",
			Subsystem: "dispatcher",
			Name:      "log_entries_total",
			Help:      "Raw event log entries handled, by outcome.",
		}, []string{"kind", "outcome"}),
		Fixtures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchpulse",
			Subsystem: "dispatcher",
			Name:      "fixtures_total",
			Help:      "Fixture work items handled, by priority and outcome.",
		}, []string{"priority", "outcome"}),
		QueuePops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchpulse",
			Subsystem: "dispatcher",
			Name:      "queue_pops_total",
			Help:      "Fixture queue pops, by tier.",
		}, []string{"priority"}),
		Reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchpulse",
			Subsystem: "dispatcher",
			Name:      "reclaimed_entries_total",
			Help:      "Idle unacknowledged log entries reclaimed from other consumers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.LogEntries, m.Fixtures, m.QueuePops, m.Reclaimed)
	}
	return m
}
