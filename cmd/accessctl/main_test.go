package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	shim := filepath.Join(dir, "shim.json")
	require.NoError(t, os.WriteFile(shim, []byte(`{
  "aliases": [{"uuid": "u1", "name": "Blocked", "content": ["192.168.1.20"]}],
  "leases": [{"hostname": "console", "mac": "aa:bb:cc:dd:ee:01", "address": "192.168.1.40"}]
}`), 0o644))

	devices := filepath.Join(dir, "devices.yaml")
	require.NoError(t, os.WriteFile(devices, []byte("devices:\n  - name: laptop\n    address: 192.168.1.10\n  - name: tv\n    address: 192.168.1.20\n"), 0o644))

	t.Setenv("OPNSENSE_FILE_SHIM", shim)
	t.Setenv("OPNSENSE_ALIAS", "Blocked")
	t.Setenv("DEVICES_FILE", devices)
	t.Setenv("DB_DSN", filepath.Join(dir, "access.db"))
	t.Setenv("CONFIRM_DELAY", "0s")
	t.Setenv("LOG_LEVEL", "error")
	return shim
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "laptop")
	assert.Contains(t, out, "192.168.1.20")
}

func TestToggleCommands(t *testing.T) {
	shim := setupEnv(t)

	out, err := run(t, "off", "laptop")
	require.NoError(t, err)
	assert.Contains(t, out, "off")

	data, err := os.ReadFile(shim)
	require.NoError(t, err)
	assert.Contains(t, string(data), "192.168.1.10")

	_, err = run(t, "on", "tv")
	require.NoError(t, err)

	_, err = run(t, "reload", "tv")
	require.NoError(t, err)

	_, err = run(t, "on", "fridge")
	require.Error(t, err)
}

func TestLeasesCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "leases")
	require.NoError(t, err)
	assert.Contains(t, out, "console")
	assert.Contains(t, out, "aa:bb:cc:dd:ee:01")
}

func TestInvalidConfiguration(t *testing.T) {
	setupEnv(t)
	t.Setenv("OPNSENSE_ALIAS", "")

	_, err := run(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
