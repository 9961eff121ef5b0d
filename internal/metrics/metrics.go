// Package metrics holds the Prometheus collectors for switch toggles and appliance calls.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// Registry holds all access-control metrics.
type Registry struct {
	reg *prometheus.Registry

	TogglesTotal       *prometheus.CounterVec
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	SwitchState        *prometheus.GaugeVec
	PendingReloads     prometheus.Gauge
	RefreshTotal       *prometheus.CounterVec
}

// New creates a registry with Go runtime and process collectors included.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	r := &Registry{reg: reg}

	r.TogglesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "access_control_toggles_total",
		Help: "Switch toggle requests by intent and outcome",
	}, []string{"intent", "status"})

	r.RemoteCallsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "access_control_remote_calls_total",
		Help: "Appliance API calls by operation and result",
	}, []string{"op", "result"})

	r.RemoteCallDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "access_control_remote_call_duration_seconds",
		Help:    "Appliance API call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	r.SwitchState = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "access_control_switch_state",
		Help: "Confirmed switch state: 1 on, 0 off, -1 unknown",
	}, []string{"device"})

	r.PendingReloads = f.NewGauge(prometheus.GaugeOpts{
		Name: "access_control_pending_reloads",
		Help: "Switches whose written change still awaits a filter reload",
	})

	r.RefreshTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "access_control_refresh_total",
		Help: "Switch refreshes by result",
	}, []string{"result"})

	return r
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRemoteCall records one appliance call.
func (r *Registry) ObserveRemoteCall(op string, d time.Duration, err error) {
	r.RemoteCallsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	r.RemoteCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveToggle records the outcome of a toggle.
func (r *Registry) ObserveToggle(intent, status string) {
	r.TogglesTotal.WithLabelValues(intent, status).Inc()
}

// ObserveRefresh records a refresh result.
func (r *Registry) ObserveRefresh(err error) {
	r.RefreshTotal.WithLabelValues(resultLabel(err)).Inc()
}

// SetSwitchState records a device's confirmed state.
func (r *Registry) SetSwitchState(device string, state domain.SwitchState) {
	v := -1.0
	switch state {
	case domain.On:
		v = 1
	case domain.Off:
		v = 0
	}
	r.SwitchState.WithLabelValues(device).Set(v)
}

// SetPendingReloads records how many switches await a reload.
func (r *Registry) SetPendingReloads(n int) {
	r.PendingReloads.Set(float64(n))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrReloadFailed):
		return "reload_failed"
	case errors.Is(err, domain.ErrTransport):
		return "transport_error"
	case errors.Is(err, domain.ErrRemote):
		return "remote_error"
	case errors.Is(err, domain.ErrParse):
		return "parse_error"
	case errors.Is(err, domain.ErrAliasNotFound):
		return "alias_not_found"
	default:
		return "error"
	}
}
