package device

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/membership"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense/opnsensetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSwitch(t *testing.T, address string, members ...string) (*opnsensetest.Appliance, *Switch) {
	t.Helper()
	app := opnsensetest.New(t, opnsense.VariantNested, opnsensetest.Alias{Handle: "u1", Name: "Blocked", Members: members})
	b := domain.DeviceBinding{DisplayName: "laptop", Address: address, AliasName: "Blocked", Appliance: app.Appliance()}
	return app, NewSwitch(b, membership.NewController(app.Client()), nil)
}

func TestSwitch_StartsUnknown(t *testing.T) {
	_, sw := newSwitch(t, "10.0.0.5")
	assert.Equal(t, domain.Unknown, sw.CurrentState())
	assert.Equal(t, domain.Off, sw.StateOr(domain.Off))
}

func TestSwitch_TurnOffThenOn(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5")
	ctx := context.Background()

	_, err := sw.TurnOff(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Off, sw.CurrentState())
	assert.Equal(t, []string{"10.0.0.5"}, app.Members("Blocked"))

	_, err = sw.TurnOn(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.On, sw.CurrentState())
	assert.Empty(t, app.Members("Blocked"))

	v := sw.View()
	assert.Equal(t, domain.On, v.Intended)
	assert.Equal(t, domain.On, v.Confirmed)
	assert.NotNil(t, v.ConfirmedAt)
	assert.Empty(t, v.LastError)
}

func TestSwitch_FailedApplyKeepsIntentSeparate(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5", "10.0.0.5")
	app.FailNext(opnsense.AliasGetPath, http.StatusBadGateway)

	_, err := sw.TurnOn(context.Background())
	require.Error(t, err)

	v := sw.View()
	assert.Equal(t, domain.On, v.Intended)
	assert.Equal(t, domain.Unknown, v.Confirmed)
	assert.NotEmpty(t, v.LastError)
	assert.Equal(t, []string{"10.0.0.5"}, app.Members("Blocked"))
}

func TestSwitch_ReloadFailureIsRetriedOnRefresh(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5", "10.0.0.5")
	app.FailNext(opnsense.FilterReloadPath, http.StatusServiceUnavailable)
	ctx := context.Background()

	_, err := sw.TurnOn(ctx)
	require.ErrorIs(t, err, domain.ErrReloadFailed)
	assert.True(t, sw.PendingReload())
	assert.Equal(t, domain.On, sw.CurrentState())

	state, err := sw.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.On, state)
	assert.False(t, sw.PendingReload())

	_, writes, reloads := app.Counts()
	assert.Equal(t, 1, writes)
	assert.Equal(t, 2, reloads)
}

func TestSwitch_RefreshWithoutPendingReloadDoesNotReload(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5", "10.0.0.5")

	state, err := sw.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Off, state)

	_, _, reloads := app.Counts()
	assert.Zero(t, reloads)
}

func TestSwitch_RefreshFailureDegradesToUnknown(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5")
	ctx := context.Background()

	_, err := sw.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.On, sw.CurrentState())

	app.FailNext(opnsense.AliasGetPath, http.StatusInternalServerError)
	state, err := sw.Refresh(ctx)
	assert.Error(t, err)
	assert.Equal(t, domain.Unknown, state)
	assert.Equal(t, domain.On, sw.StateOr(domain.Off), "intended state remains as fallback")
}

func TestSwitch_ExplicitReload(t *testing.T) {
	app, sw := newSwitch(t, "10.0.0.5")
	app.FailNext(opnsense.FilterReloadPath, http.StatusServiceUnavailable)
	ctx := context.Background()

	_, err := sw.TurnOff(ctx)
	require.ErrorIs(t, err, domain.ErrReloadFailed)

	require.NoError(t, sw.Reload(ctx))
	assert.False(t, sw.PendingReload())
}

func TestSwitch_SnapshotRestore(t *testing.T) {
	_, sw := newSwitch(t, "10.0.0.5")
	confirmedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sw.Restore(domain.SwitchSnapshot{
		Device:        "laptop",
		Address:       "10.0.0.5",
		Intended:      "off",
		Confirmed:     "on",
		PendingReload: true,
		LastError:     "reload failed",
		ConfirmedAt:   &confirmedAt,
	})

	snap := sw.Snapshot()
	assert.Equal(t, "off", snap.Intended)
	assert.Equal(t, "on", snap.Confirmed)
	assert.True(t, snap.PendingReload)
	assert.Equal(t, "reload failed", snap.LastError)
	require.NotNil(t, snap.ConfirmedAt)
	assert.True(t, confirmedAt.Equal(*snap.ConfirmedAt))

	sw.Restore(domain.SwitchSnapshot{Address: "10.9.9.9", Intended: "on", Confirmed: "off"})
	assert.Equal(t, "on", sw.Snapshot().Confirmed)
}
