package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
)

var _ opnsense.Observer = (*Registry)(nil)

func TestObserveRemoteCall(t *testing.T) {
	r := New()

	r.ObserveRemoteCall(opnsense.OpFetchAliases, 20*time.Millisecond, nil)
	r.ObserveRemoteCall(opnsense.OpReload, time.Second, &domain.RemoteError{Op: opnsense.OpReload, Status: 503})
	r.ObserveRemoteCall(opnsense.OpReload, time.Second, &domain.TransportError{Op: opnsense.OpReload, Err: errors.New("refused")})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.RemoteCallsTotal.WithLabelValues(opnsense.OpFetchAliases, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RemoteCallsTotal.WithLabelValues(opnsense.OpReload, "remote_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RemoteCallsTotal.WithLabelValues(opnsense.OpReload, "transport_error")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.RemoteCallDuration))
}

func TestSwitchStateAndToggles(t *testing.T) {
	r := New()

	r.SetSwitchState("tv", domain.On)
	r.SetSwitchState("laptop", domain.Off)
	r.SetSwitchState("phone", domain.Unknown)
	r.ObserveToggle("block", domain.ToggleStatusSuccess)
	r.SetPendingReloads(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.SwitchState.WithLabelValues("tv")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.SwitchState.WithLabelValues("laptop")))
	assert.Equal(t, -1.0, testutil.ToFloat64(r.SwitchState.WithLabelValues("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TogglesTotal.WithLabelValues("block", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.PendingReloads))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "reload_failed", resultLabel(&domain.ReloadFailedError{Err: &domain.RemoteError{Status: 503}}))
	assert.Equal(t, "alias_not_found", resultLabel(&domain.AliasNotFoundError{Alias: "Blocked"}))
	assert.Equal(t, "parse_error", resultLabel(&domain.ParseError{Reason: "x"}))
	assert.Equal(t, "error", resultLabel(errors.New("other")))
}
