package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/round-wager-engine/internal/settlement"
)

// serviceMetrics agrupa os contadores expostos em /metrics
type serviceMetrics struct {
	consumed   *prometheus.CounterVec
	errorsBy   *prometheus.CounterVec
	accepted   prometheus.Counter
	rejected   *prometheus.CounterVec
	staked     prometheus.Counter
	settled    *prometheus.CounterVec
	paid       prometheus.Counter
	refunded   prometheus.Counter
	duplicates prometheus.Counter
	dropped    prometheus.Counter
	jobs       *prometheus.CounterVec
}

func newMetrics() *serviceMetrics {
	m := &serviceMetrics{
		consumed:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_engine_messages_consumed_total", Help: "mensagens consumidas por tópico"}, []string{"topic"}),
		errorsBy:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_engine_errors_total", Help: "erros por tópico e estágio"}, []string{"topic", "stage"}),
		accepted:   prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_wagers_accepted_total", Help: "mensagens de aposta aceitas"}),
		rejected:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_engine_wagers_rejected_total", Help: "recusas por código"}, []string{"code"}),
		staked:     prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_staked_units_total", Help: "unidades apostadas"}),
		settled:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_engine_rounds_settled_total", Help: "rodadas liquidadas por status"}, []string{"status"}),
		paid:       prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_paid_units_total", Help: "unidades pagas em prêmios"}),
		refunded:   prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_refunded_units_total", Help: "unidades devolvidas"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_duplicate_results_total", Help: "resultados repetidos ignorados"}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_engine_notices_dropped_total", Help: "avisos descartados com a fila cheia"}),
		jobs:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_engine_job_runs_total", Help: "execuções de jobs por resultado"}, []string{"job", "ok"}),
	}
	prometheus.MustRegister(m.consumed, m.errorsBy, m.accepted, m.rejected, m.staked, m.settled, m.paid, m.refunded, m.duplicates, m.dropped, m.jobs)
	return m
}

func (m *serviceMetrics) onSettled(rec settlement.Record) {
	m.settled.WithLabelValues(string(rec.Status)).Inc()
	m.paid.Add(float64(rec.TotalPaid))
	m.refunded.Add(float64(rec.TotalRefunded))
}

func (m *serviceMetrics) onJob(job string, ok bool) {
	label := "false"
	if ok {
		label = "true"
	}
	m.jobs.WithLabelValues(job, label).Inc()
}
