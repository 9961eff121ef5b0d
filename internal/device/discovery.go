package device

import (
	"context"
	"fmt"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
	"github.com/bcnelson/opnsense-access-control/internal/validation"
)

// FromDevices binds static device entries. Entries without a name or address are skipped.
func FromDevices(devices []domain.Device, alias string, app domain.Appliance) []domain.DeviceBinding {
	out := make([]domain.DeviceBinding, 0, len(devices))
	for _, d := range devices {
		if d.Name == "" || d.Address == "" {
			continue
		}
		out = append(out, domain.DeviceBinding{
			DisplayName: d.Name,
			Address:     d.Address,
			AliasName:   alias,
			Appliance:   app,
		})
	}
	return out
}

// FromLeases binds DHCP leases. The name is the hostname, or the MAC when the hostname is
// missing or not a usable device name; leases lacking a name or address are skipped and
// repeated names get the address appended.
func FromLeases(leases []domain.Lease, alias string, app domain.Appliance) []domain.DeviceBinding {
	seen := make(map[string]bool, len(leases))
	out := make([]domain.DeviceBinding, 0, len(leases))
	for _, l := range leases {
		name := l.Hostname
		if validation.ValidateDeviceName(name) != nil {
			name = l.MAC
		}
		if name == "" || l.Address == "" {
			continue
		}
		if seen[name] {
			name = fmt.Sprintf("%s (%s)", name, l.Address)
			if seen[name] {
				continue
			}
		}
		if validation.ValidateDeviceName(name) != nil {
			continue
		}
		seen[name] = true
		out = append(out, domain.DeviceBinding{
			DisplayName: name,
			Address:     l.Address,
			AliasName:   alias,
			Appliance:   app,
			MAC:         l.MAC,
		})
	}
	return out
}

// Discover lists DHCP leases once and binds them.
func Discover(ctx context.Context, lc opnsense.LeaseClient, alias string, app domain.Appliance) ([]domain.DeviceBinding, error) {
	raw, err := lc.SearchLeases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing DHCP leases: %w", err)
	}
	leases, err := opnsense.ParseLeases(raw)
	if err != nil {
		return nil, err
	}
	return FromLeases(leases, alias, app), nil
}

// Merge combines static and discovered bindings; static entries win on a name clash.
func Merge(static, discovered []domain.DeviceBinding) []domain.DeviceBinding {
	names := make(map[string]bool, len(static))
	out := make([]domain.DeviceBinding, 0, len(static)+len(discovered))
	for _, b := range static {
		if names[b.DisplayName] {
			continue
		}
		names[b.DisplayName] = true
		out = append(out, b)
	}
	for _, b := range discovered {
		if names[b.DisplayName] {
			continue
		}
		names[b.DisplayName] = true
		out = append(out, b)
	}
	return out
}
