package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	assignments *prometheus.CounterVec
	conversions *prometheus.CounterVec
	decisions   prometheus.Counter
	rejections  *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpilot_assignments_total",
			Help: "Variant assignments served, including repeats of stored assignments.",
		}, []string{"variant"}),
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpilot_conversions_total",
			Help: "Conversions accepted and persisted.",
		}, []string{"variant"}),
		decisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitpilot_decisions_total",
			Help: "Tests transitioned to completed by the decision engine.",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpilot_rejections_total",
			Help: "Client-caused rejections by error kind.",
		}, []string{"kind"}),
	}
}
