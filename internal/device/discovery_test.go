package device

import (
	"context"
	"net/http"
	"testing"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense/opnsensetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(bs []domain.DeviceBinding) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.DisplayName)
	}
	return out
}

func TestFromLeases(t *testing.T) {
	leases := []domain.Lease{
		{Hostname: "laptop", MAC: "aa:01", Address: "192.168.1.10"},
		{Hostname: "", MAC: "aa:02", Address: "192.168.1.11"},
		{Hostname: "laptop", MAC: "aa:03", Address: "192.168.1.12"},
		{Hostname: "ghost", MAC: "aa:04", Address: ""},
		{Hostname: "", MAC: "", Address: "192.168.1.13"},
	}
	bs := FromLeases(leases, "Blocked", domain.Appliance{BaseURL: "https://fw"})

	assert.Equal(t, []string{"laptop", "aa:02", "laptop (192.168.1.12)"}, names(bs))
	assert.Equal(t, "aa:01", bs[0].MAC)
	assert.Equal(t, "Blocked", bs[0].AliasName)
	assert.Equal(t, "https://fw", bs[0].Appliance.BaseURL)
}

func TestFromLeases_UnusableHostnameFallsBackToMAC(t *testing.T) {
	leases := []domain.Lease{
		{Hostname: "kids/ipad", MAC: "aa:05", Address: "192.168.1.14"},
		{Hostname: "bad\tname", MAC: "", Address: "192.168.1.15"},
	}
	bs := FromLeases(leases, "Blocked", domain.Appliance{BaseURL: "https://fw"})

	require.Len(t, bs, 1)
	assert.Equal(t, "aa:05", bs[0].DisplayName)

	r := NewRegistry()
	for _, b := range bs {
		require.NoError(t, r.Add(NewSwitch(b, nil, nil)))
	}
	_, err := r.Get("aa:05")
	assert.NoError(t, err)
}

func TestFromDevicesAndMerge(t *testing.T) {
	static := FromDevices([]domain.Device{
		{Name: "tv", Address: "192.168.1.50"},
		{Name: "laptop", Address: "192.168.1.60"},
		{Name: "", Address: "192.168.1.70"},
	}, "Blocked", domain.Appliance{})
	discovered := []domain.DeviceBinding{
		{DisplayName: "laptop", Address: "192.168.1.10"},
		{DisplayName: "phone", Address: "192.168.1.11"},
	}

	merged := Merge(static, discovered)
	assert.Equal(t, []string{"tv", "laptop", "phone"}, names(merged))
	assert.Equal(t, "192.168.1.60", merged[1].Address)
}

func TestDiscover(t *testing.T) {
	app := opnsensetest.New(t, opnsense.VariantNested)
	app.SetLeases(domain.Lease{Hostname: "phone", MAC: "aa:01", Address: "192.168.1.11"})

	bs, err := Discover(context.Background(), app.Client(), "Blocked", app.Appliance())
	require.NoError(t, err)
	assert.Equal(t, []string{"phone"}, names(bs))

	app.FailNext(opnsense.LeaseSearchPath, http.StatusForbidden)
	_, err = Discover(context.Background(), app.Client(), "Blocked", app.Appliance())
	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(NewSwitch(domain.DeviceBinding{DisplayName: "b", Address: "10.0.0.2"}, nil, nil)))
	require.NoError(t, r.Add(NewSwitch(domain.DeviceBinding{DisplayName: "a", Address: "10.0.0.1"}, nil, nil)))
	assert.ErrorIs(t, r.Add(NewSwitch(domain.DeviceBinding{DisplayName: "a"}, nil, nil)), domain.ErrInvalidInput)

	sw, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", sw.Binding().Address)

	_, err = r.Get("zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name())
	assert.Equal(t, 2, r.Len())
}
