package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/opnsense-access-control/internal/config"
	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

func testConfig(t *testing.T, state opnsense.ShimState, devicesYAML string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	shim := filepath.Join(dir, "shim.json")
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(shim, data, 0o644))

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(dir, "db", "test.db")},
		OPNsense: config.OPNsenseConfig{Alias: "Blocked", FileShim: shim, Timeout: time.Second},
		Sync: config.SyncConfig{
			RetryMaxAttempts:     1,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     time.Millisecond,
			RefreshConcurrency:   2,
		},
	}
	if devicesYAML != "" {
		cfg.Devices.File = filepath.Join(dir, "devices.yaml")
		require.NoError(t, os.WriteFile(cfg.Devices.File, []byte(devicesYAML), 0o644))
	}
	return cfg
}

func TestNew_StaticDevices(t *testing.T) {
	cfg := testConfig(t, opnsense.ShimState{
		Aliases: []opnsense.ShimAlias{{UUID: "u1", Name: "Blocked", Content: []string{"192.168.1.20"}}},
	}, "devices:\n  - name: laptop\n    address: 192.168.1.10\n  - name: tv\n    address: 192.168.1.20\n")

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 2, a.Registry.Len())

	ctx := context.Background()
	require.NoError(t, a.Service.RefreshAll(ctx))
	tv, err := a.Service.Get("tv")
	require.NoError(t, err)
	assert.Equal(t, domain.Off, tv.State)

	resp, err := a.Service.TurnOff(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, domain.ToggleStatusSuccess, resp.Record.Status)

	records, err := a.Store.ListToggleRecords(ctx, storage.ToggleFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNew_DiscoversLeases(t *testing.T) {
	cfg := testConfig(t, opnsense.ShimState{
		Aliases: []opnsense.ShimAlias{{UUID: "u1", Name: "Blocked"}},
		Leases: []opnsense.ShimLease{
			{Hostname: "console", MAC: "aa:bb:cc:dd:ee:01", Address: "192.168.1.40"},
			{MAC: "aa:bb:cc:dd:ee:02", Address: "192.168.1.41"},
			{Hostname: "laptop", MAC: "aa:bb:cc:dd:ee:03", Address: "192.168.1.99"},
		},
	}, "devices:\n  - name: laptop\n    address: 192.168.1.10\n")
	cfg.Devices.DiscoverLeases = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 3, a.Registry.Len())
	laptop, err := a.Service.Get("laptop")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", laptop.Address, "static entry wins")

	byMAC, err := a.Service.Get("aa:bb:cc:dd:ee:02")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.41", byMAC.Address)
}

func TestNew_DiscoveryFailureWithoutStaticDevices(t *testing.T) {
	cfg := testConfig(t, opnsense.ShimState{}, "")
	cfg.Devices.DiscoverLeases = true
	require.NoError(t, os.WriteFile(cfg.OPNsense.FileShim, []byte("not json"), 0o644))

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovering devices")
}

func TestNew_BadDevicesFile(t *testing.T) {
	cfg := testConfig(t, opnsense.ShimState{}, "devices:\n  - name: laptop\n    address: not-an-ip\n")

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_SwitchLogsCarryDeviceOnce(t *testing.T) {
	cfg := testConfig(t, opnsense.ShimState{
		Aliases: []opnsense.ShimAlias{{UUID: "u1", Name: "Blocked"}},
	}, "devices:\n  - name: laptop\n    address: 192.168.1.10\n")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, os.WriteFile(cfg.OPNsense.FileShim, []byte("not json"), 0o644))
	require.Error(t, a.Service.RefreshAll(context.Background()))

	found := false
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "switch refresh failed") {
			continue
		}
		found = true
		assert.Equal(t, 1, strings.Count(line, `"device":`), line)
		assert.Equal(t, 1, strings.Count(line, `"address":`), line)
	}
	assert.True(t, found)
}
