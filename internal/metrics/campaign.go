// Package metrics holds the Prometheus collectors for outbound campaigns.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lead_recovery"

// Campaign captures pipeline health for dial batches.
// A nil *Campaign is valid and records nothing.
type Campaign struct {
	batches       prometheus.Counter
	leads         *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	inflight      prometheus.Gauge
	vipGrants     *prometheus.CounterVec
}

// NewCampaign registers campaign collectors on reg (DefaultRegisterer when nil).
func NewCampaign(reg prometheus.Registerer) *Campaign {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Campaign{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "batches_total",
			Help:      "Campaign batches started.",
		}),
		leads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "leads_total",
			Help:      "Lead pipelines finished, by outcome.",
		}, []string{"outcome"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "stage_errors_total",
			Help:      "Failures per pipeline stage (dial, status, sms, persist, vip).",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "stage_duration_seconds",
			Help:      "Gateway and store call latency per pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "inflight_leads",
			Help:      "Lead pipelines currently running in this process.",
		}),
		vipGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "vip_grants_total",
			Help:      "VIP command grants, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.batches, m.leads, m.stageErrors, m.stageDuration, m.inflight, m.vipGrants)
	return m
}

func (m *Campaign) BatchStarted() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *Campaign) LeadFinished(outcome string) {
	if m == nil {
		return
	}
	m.leads.WithLabelValues(outcome).Inc()
}

func (m *Campaign) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage).Inc()
}

func (m *Campaign) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Campaign) LeadStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Campaign) LeadDone() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

func (m *Campaign) VIPGrant(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.vipGrants.WithLabelValues(result).Inc()
}
