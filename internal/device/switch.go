// Package device exposes bound addresses as on/off switches.
package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/membership"
)

// Controller is the part of membership.Controller a switch needs.
type Controller interface {
	Apply(ctx context.Context, b domain.DeviceBinding, intent domain.MembershipIntent) (*membership.Outcome, error)
	Query(ctx context.Context, b domain.DeviceBinding) (domain.SwitchState, error)
	Reload(ctx context.Context, b domain.DeviceBinding) error
}

// Switch tracks one binding. Intended is what was last requested; Confirmed is what the
// appliance last reported. The two are never conflated.
type Switch struct {
	binding domain.DeviceBinding
	ctrl    Controller
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.RWMutex
	intended      domain.SwitchState
	confirmed     domain.SwitchState
	pendingReload bool
	lastErr       error
	confirmedAt   time.Time
}

// NewSwitch creates a switch in the Unknown state.
func NewSwitch(b domain.DeviceBinding, ctrl Controller, logger *slog.Logger) *Switch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switch{
		binding: b,
		ctrl:    ctrl,
		logger:  logger.With("device", b.DisplayName, "address", b.Address),
		now:     time.Now,
	}
}

// Name returns the display name.
func (s *Switch) Name() string { return s.binding.DisplayName }

// Binding returns the immutable binding.
func (s *Switch) Binding() domain.DeviceBinding { return s.binding }

// TurnOn allows internet access.
func (s *Switch) TurnOn(ctx context.Context) (*membership.Outcome, error) {
	return s.apply(ctx, domain.Allow)
}

// TurnOff blocks internet access.
func (s *Switch) TurnOff(ctx context.Context) (*membership.Outcome, error) {
	return s.apply(ctx, domain.Block)
}

// Set applies intent.
func (s *Switch) Set(ctx context.Context, intent domain.MembershipIntent) (*membership.Outcome, error) {
	return s.apply(ctx, intent)
}

func (s *Switch) apply(ctx context.Context, intent domain.MembershipIntent) (*membership.Outcome, error) {
	s.mu.Lock()
	s.intended = domain.StateForIntent(intent)
	s.mu.Unlock()

	out, err := s.ctrl.Apply(ctx, s.binding, intent)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	switch {
	case err == nil:
		s.confirm(out.State)
		s.pendingReload = false
	case errors.Is(err, domain.ErrReloadFailed):
		// The alias holds the new membership; only activation is outstanding.
		s.confirm(out.State)
		s.pendingReload = true
		s.logger.Warn("switch change written, reload pending", "intent", intent.String(), "error", err)
	default:
		s.confirmed = domain.Unknown
		s.logger.Error("switch change failed", "intent", intent.String(), "error", err)
	}
	return out, err
}

// Refresh reads the authoritative state. A reload left over from an earlier partial failure is
// re-issued first.
func (s *Switch) Refresh(ctx context.Context) (domain.SwitchState, error) {
	s.mu.RLock()
	pending := s.pendingReload
	s.mu.RUnlock()

	var reloadErr error
	if pending {
		reloadErr = s.ctrl.Reload(ctx, s.binding)
		if reloadErr != nil {
			s.logger.Warn("pending reload still failing", "error", reloadErr)
		}
	}

	state, err := s.ctrl.Query(ctx, s.binding)

	s.mu.Lock()
	defer s.mu.Unlock()
	if pending && reloadErr == nil {
		s.pendingReload = false
	}
	if err != nil {
		s.confirmed = domain.Unknown
		s.lastErr = err
		s.logger.Warn("switch refresh failed", "error", err)
		return domain.Unknown, err
	}

	s.confirm(state)
	s.intended = state
	s.lastErr = reloadErr
	return state, reloadErr
}

// Reload re-issues only the pending filter reload.
func (s *Switch) Reload(ctx context.Context) error {
	err := s.ctrl.Reload(ctx, s.binding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.pendingReload = false
	}
	return err
}

// CurrentState is the confirmed state when known, otherwise the intended one.
func (s *Switch) CurrentState() domain.SwitchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current()
}

// StateOr returns CurrentState, or def when that is Unknown.
func (s *Switch) StateOr(def domain.SwitchState) domain.SwitchState {
	if st := s.CurrentState(); st != domain.Unknown {
		return st
	}
	return def
}

// PendingReload reports whether a written change still awaits activation.
func (s *Switch) PendingReload() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingReload
}

// View returns a snapshot of the switch for display.
func (s *Switch) View() domain.SwitchView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := domain.SwitchView{
		Name:          s.binding.DisplayName,
		Address:       s.binding.Address,
		Alias:         s.binding.AliasName,
		MAC:           s.binding.MAC,
		State:         s.current(),
		Intended:      s.intended,
		Confirmed:     s.confirmed,
		PendingReload: s.pendingReload,
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	if !s.confirmedAt.IsZero() {
		t := s.confirmedAt
		v.ConfirmedAt = &t
	}
	return v
}

// Snapshot returns the persistable state.
func (s *Switch) Snapshot() domain.SwitchSnapshot {
	v := s.View()
	return domain.SwitchSnapshot{
		Device:        v.Name,
		Address:       v.Address,
		Intended:      v.Intended.String(),
		Confirmed:     v.Confirmed.String(),
		PendingReload: v.PendingReload,
		LastError:     v.LastError,
		ConfirmedAt:   v.ConfirmedAt,
		UpdatedAt:     s.now(),
	}
}

// Restore seeds cached state from a persisted snapshot. Snapshots for a different address
// are ignored.
func (s *Switch) Restore(snap domain.SwitchSnapshot) {
	if snap.Address != s.binding.Address {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intended = domain.ParseSwitchState(snap.Intended)
	s.confirmed = domain.ParseSwitchState(snap.Confirmed)
	s.pendingReload = snap.PendingReload
	if snap.LastError != "" {
		s.lastErr = errors.New(snap.LastError)
	}
	if snap.ConfirmedAt != nil {
		s.confirmedAt = *snap.ConfirmedAt
	}
}

func (s *Switch) confirm(state domain.SwitchState) {
	s.confirmed = state
	s.confirmedAt = s.now()
}

func (s *Switch) current() domain.SwitchState {
	if s.confirmed != domain.Unknown {
		return s.confirmed
	}
	return s.intended
}
