// Package validation provides validation functions for alias names, device names and addresses.
// Alias name rules follow the appliance's own: letters, digits and underscores, at most 32
// characters.
package validation

import (
	"fmt"
	"net/netip"
	"strings"
	"unicode"
)

const (
	maxAliasNameLen  = 32
	maxDeviceNameLen = 64
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// ValidateAliasName validates a firewall alias name.
func ValidateAliasName(name string) error {
	if name == "" {
		return fmt.Errorf("alias name must not be empty")
	}
	if len(name) > maxAliasNameLen {
		return fmt.Errorf("alias name must be at most %d characters", maxAliasNameLen)
	}
	if isNum(name[0]) {
		return fmt.Errorf("alias name must not start with a digit")
	}
	for _, b := range []byte(name) {
		if !isAlpha(b) && !isNum(b) && b != '_' {
			return fmt.Errorf("alias names can only contain letters, numbers, or underscores")
		}
	}
	return nil
}

// ValidateDeviceName validates a switch display name. Names appear in API paths, so slashes
// and control characters are rejected.
func ValidateDeviceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("device name must not be empty")
	}
	if len(name) > maxDeviceNameLen {
		return fmt.Errorf("device name must be at most %d characters", maxDeviceNameLen)
	}
	for _, r := range name {
		if r == '/' || unicode.IsControl(r) {
			return fmt.Errorf("device name must not contain slashes or control characters")
		}
	}
	return nil
}

// ValidateAddress validates a single host address. Prefixes are rejected: a switch controls
// exactly one host.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address must not be empty")
	}
	if _, err := netip.ParsePrefix(addr); err == nil {
		return fmt.Errorf("must be a single IP address, not a network")
	}
	if _, err := netip.ParseAddr(addr); err != nil {
		return fmt.Errorf("must be a valid IP address")
	}
	return nil
}

// ValidateDevice validates one static device entry. Field names are prefixed with field.
func ValidateDevice(field, name, address string) ValidationErrors {
	var errs ValidationErrors
	if err := ValidateDeviceName(name); err != nil {
		errs.Add(field+".name", name, err.Error())
	}
	if err := ValidateAddress(address); err != nil {
		errs.Add(field+".address", address, err.Error())
	}
	return errs
}
