package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bcnelson/opnsense-access-control/internal/device"
	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

// Recorder receives service-level measurements. *metrics.Registry implements it.
type Recorder interface {
	ObserveToggle(intent, status string)
	ObserveRefresh(err error)
	SetSwitchState(device string, state domain.SwitchState)
	SetPendingReloads(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveToggle(string, string) {}
func (nopRecorder) ObserveRefresh(error) {}
func (nopRecorder) SetSwitchState(string, domain.SwitchState) {}
func (nopRecorder) SetPendingReloads(int) {}

// Options configures an AccessService.
type Options struct {
	PollInterval time.Duration // zero disables the poll loop
	ConfirmDelay time.Duration // zero disables confirmation refreshes
	Concurrency  int
	Recorder     Recorder
	Logger       *slog.Logger
}

// AccessService toggles switches, records every toggle, and keeps cached state fresh.
type AccessService struct {
	store    storage.Storage
	registry *device.Registry
	opts     Options
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	confirmTimers map[string]*time.Timer
}

// NewAccessService creates a new AccessService.
func NewAccessService(store storage.Storage, registry *device.Registry, opts Options) *AccessService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &AccessService{
		store:         store,
		registry:      registry,
		opts:          opts,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		now:           time.Now,
		confirmTimers: make(map[string]*time.Timer),
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// List returns every switch view ordered by name.
func (s *AccessService) List() []domain.SwitchView {
	switches := s.registry.List()
	views := make([]domain.SwitchView, 0, len(switches))
	for _, sw := range switches {
		views = append(views, sw.View())
	}
	return views
}

// Get returns one switch view.
func (s *AccessService) Get(name string) (domain.SwitchView, error) {
	sw, err := s.registry.Get(name)
	if err != nil {
		return domain.SwitchView{}, err
	}
	return sw.View(), nil
}

// TurnOn allows internet access for the named device.
func (s *AccessService) TurnOn(ctx context.Context, name string) (*domain.ToggleResponse, error) {
	return s.Toggle(ctx, name, domain.Allow)
}

// TurnOff blocks internet access for the named device.
func (s *AccessService) TurnOff(ctx context.Context, name string) (*domain.ToggleResponse, error) {
	return s.Toggle(ctx, name, domain.Block)
}

// Toggle applies intent to the named device and records the attempt.
//
// A write whose reload failed is not an error: the response carries a warning and the reload
// is retried on the next refresh. Any other failure is returned together with the response
// holding the failed record.
func (s *AccessService) Toggle(ctx context.Context, name string, intent domain.MembershipIntent) (*domain.ToggleResponse, error) {
	sw, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	b := sw.Binding()

	record := &domain.ToggleRecord{
		ID:        uuid.New().String(),
		Device:    b.DisplayName,
		Address:   b.Address,
		Alias:     b.AliasName,
		Intent:    intent.String(),
		Status:    domain.ToggleStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateToggleRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("creating toggle record: %w", err)
	}

	out, applyErr := sw.Set(ctx, intent)

	completed := s.now()
	record.CompletedAt = &completed
	resp := &domain.ToggleResponse{Record: record}
	switch {
	case applyErr == nil && !out.Changed:
		record.Status = domain.ToggleStatusNoop
	case applyErr == nil:
		record.Status = domain.ToggleStatusSuccess
	case errors.Is(applyErr, domain.ErrReloadFailed):
		record.Status = domain.ToggleStatusReloadFailed
		record.Error = applyErr.Error()
		resp.Warning = applyErr.Error()
	default:
		record.Status = domain.ToggleStatusFailed
		record.Error = applyErr.Error()
	}

	if err := s.persistToggle(ctx, record, sw); err != nil {
		s.logger.Warn("failed to persist toggle", "device", name, "record", record.ID, "error", err)
	}
	s.recorder.ObserveToggle(record.Intent, record.Status)
	s.observeSwitch(sw)
	resp.Switch = sw.View()

	if record.Status == domain.ToggleStatusFailed {
		return resp, applyErr
	}
	if record.Status != domain.ToggleStatusNoop {
		s.scheduleConfirm(name)
	}
	return resp, nil
}

func (s *AccessService) persistToggle(ctx context.Context, record *domain.ToggleRecord, sw *device.Switch) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.UpdateToggleRecord(ctx, record); err != nil {
		_ = tx.Rollback()
		return err
	}
	snap := sw.Snapshot()
	if err := tx.UpsertSwitchSnapshot(ctx, &snap); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Refresh reads the named switch's state from the appliance.
func (s *AccessService) Refresh(ctx context.Context, name string) (domain.SwitchView, error) {
	sw, err := s.registry.Get(name)
	if err != nil {
		return domain.SwitchView{}, err
	}
	err = s.refresh(ctx, sw)
	return sw.View(), err
}

func (s *AccessService) refresh(ctx context.Context, sw *device.Switch) error {
	_, err := sw.Refresh(ctx)
	s.recorder.ObserveRefresh(err)
	s.observeSwitch(sw)
	s.saveSnapshot(ctx, sw)
	return err
}

// Reload re-issues only the filter reload for the named switch.
func (s *AccessService) Reload(ctx context.Context, name string) (domain.SwitchView, error) {
	sw, err := s.registry.Get(name)
	if err != nil {
		return domain.SwitchView{}, err
	}
	err = sw.Reload(ctx)
	s.observeSwitch(sw)
	s.saveSnapshot(ctx, sw)
	if err != nil {
		return sw.View(), err
	}
	s.scheduleConfirm(name)
	return sw.View(), nil
}

// RefreshAll refreshes every switch with bounded concurrency. Individual failures do not stop
// the others; they are joined into the returned error.
func (s *AccessService) RefreshAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.opts.Concurrency)

	for _, sw := range s.registry.List() {
		g.Go(func() error {
			if err := s.refresh(ctx, sw); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sw.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// History lists recorded toggles, newest first.
func (s *AccessService) History(ctx context.Context, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	return s.store.ListToggleRecords(ctx, filter)
}

// Restore seeds switches from persisted snapshots.
func (s *AccessService) Restore(ctx context.Context) error {
	snaps, err := s.store.ListSwitchSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("loading switch snapshots: %w", err)
	}
	restored := 0
	for _, snap := range snaps {
		sw, err := s.registry.Get(snap.Device)
		if err != nil {
			continue
		}
		sw.Restore(*snap)
		s.observeSwitch(sw)
		restored++
	}
	s.logger.Info("restored switch snapshots", "count", restored)
	return nil
}

// Start refreshes every switch, then keeps polling until ctx is done.
func (s *AccessService) Start(ctx context.Context) {
	if err := s.RefreshAll(ctx); err != nil {
		s.logger.Warn("initial refresh incomplete", "error", err)
	}
	if s.opts.PollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshAll(ctx); err != nil {
				s.logger.Warn("poll refresh incomplete", "error", err)
			}
		}
	}
}

// Stop cancels pending confirmation refreshes.
func (s *AccessService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.confirmTimers {
		t.Stop()
		delete(s.confirmTimers, name)
	}
}

// scheduleConfirm triggers a debounced refresh of one switch.
// Multiple triggers within the delay result in a single refresh.
func (s *AccessService) scheduleConfirm(name string) {
	if s.opts.ConfirmDelay <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.confirmTimers[name]; ok {
		t.Stop()
	}
	s.confirmTimers[name] = time.AfterFunc(s.opts.ConfirmDelay, func() {
		s.mu.Lock()
		delete(s.confirmTimers, name)
		s.mu.Unlock()

		if _, err := s.Refresh(context.Background(), name); err != nil {
			s.logger.Warn("confirmation refresh failed", "device", name, "error", err)
		}
	})
}

func (s *AccessService) saveSnapshot(ctx context.Context, sw *device.Switch) {
	snap := sw.Snapshot()
	if err := s.store.UpsertSwitchSnapshot(ctx, &snap); err != nil {
		s.logger.Warn("failed to save switch snapshot", "device", sw.Name(), "error", err)
	}
}

func (s *AccessService) observeSwitch(sw *device.Switch) {
	s.recorder.SetSwitchState(sw.Name(), sw.View().Confirmed)

	pending := 0
	for _, other := range s.registry.List() {
		if other.PendingReload() {
			pending++
		}
	}
	s.recorder.SetPendingReloads(pending)
}
