package domain

import "time"

// Toggle record statuses.
const (
	ToggleStatusPending      = "pending"
	ToggleStatusSuccess      = "success"
	ToggleStatusNoop         = "noop"
	ToggleStatusReloadFailed = "reload_failed"
	ToggleStatusFailed       = "failed"
)

// ToggleRecord is an audit entry for one turn-on/turn-off request.
type ToggleRecord struct {
	ID          string     `json:"id" db:"id"`
	Device      string     `json:"device" db:"device"`
	Address     string     `json:"address" db:"address"`
	Alias       string     `json:"alias" db:"alias"`
	Intent      string     `json:"intent" db:"intent"` // "allow", "block"
	Status      string     `json:"status" db:"status"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// SwitchSnapshot is the last known state of a switch, persisted so it survives restarts.
type SwitchSnapshot struct {
	Device        string     `json:"device" db:"device"`
	Address       string     `json:"address" db:"address"`
	Intended      string     `json:"intended" db:"intended"`
	Confirmed     string     `json:"confirmed" db:"confirmed"`
	PendingReload bool       `json:"pending_reload" db:"pending_reload"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// ToggleResponse is returned by the API after a toggle request.
type ToggleResponse struct {
	Switch  SwitchView    `json:"switch"`
	Record  *ToggleRecord `json:"record,omitempty"`
	Warning string        `json:"warning,omitempty"`
}
