package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MembershipIntent is the desired membership of an address in the block alias.
type MembershipIntent int

const (
	// Allow removes the address from the alias (internet access on).
	Allow MembershipIntent = iota + 1
	// Block adds the address to the alias (internet access off).
	Block
)

func (i MembershipIntent) String() string {
	switch i {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// ParseIntent accepts "allow"/"on" and "block"/"off".
func ParseIntent(s string) (MembershipIntent, error) {
	switch s {
	case "allow", "on":
		return Allow, nil
	case "block", "off":
		return Block, nil
	}
	return 0, fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, s)
}

// SwitchState is derived from alias membership and is never authoritative.
// On means internet access is allowed, i.e. the address is absent from the alias.
type SwitchState int

const (
	Unknown SwitchState = iota
	On
	Off
)

func (s SwitchState) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}

// ParseSwitchState is the inverse of String; anything unrecognized is Unknown.
func ParseSwitchState(s string) SwitchState {
	switch s {
	case "on":
		return On
	case "off":
		return Off
	default:
		return Unknown
	}
}

// MarshalJSON encodes the state as its string form.
func (s SwitchState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form.
func (s *SwitchState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseSwitchState(str)
	return nil
}

// StateFor maps alias membership to switch state.
func StateFor(blocked bool) SwitchState {
	if blocked {
		return Off
	}
	return On
}

// StateForIntent is the state that results from successfully applying intent.
func StateForIntent(intent MembershipIntent) SwitchState {
	return StateFor(intent == Block)
}

// Appliance identifies a firewall appliance and the opaque credentials passed to it.
type Appliance struct {
	BaseURL  string
	APIKey   string
	APIToken string
}

// DeviceBinding associates a controlled address with its display name and the alias it is
// managed against. It is immutable for the lifetime of the bound switch.
type DeviceBinding struct {
	DisplayName string
	Address     string
	AliasName   string
	Appliance   Appliance

	// MAC is informational and only set for bindings discovered from DHCP leases.
	MAC string
}

// Device is a static device entry from the devices file.
type Device struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
}

// Lease is a DHCP lease reported by the appliance.
type Lease struct {
	Hostname string
	MAC      string
	Address  string
}

// SwitchView is the externally visible state of one switch.
type SwitchView struct {
	Name          string      `json:"name"`
	Address       string      `json:"address"`
	Alias         string      `json:"alias"`
	MAC           string      `json:"mac,omitempty"`
	State         SwitchState `json:"state"`
	Intended      SwitchState `json:"intended"`
	Confirmed     SwitchState `json:"confirmed"`
	PendingReload bool        `json:"pending_reload"`
	LastError     string      `json:"last_error,omitempty"`
	ConfirmedAt   *time.Time  `json:"confirmed_at,omitempty"`
}
