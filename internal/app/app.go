// Package app wires configuration into a running access-control stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bcnelson/opnsense-access-control/internal/config"
	"github.com/bcnelson/opnsense-access-control/internal/device"
	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/membership"
	"github.com/bcnelson/opnsense-access-control/internal/metrics"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
	"github.com/bcnelson/opnsense-access-control/internal/service"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
	"github.com/bcnelson/opnsense-access-control/internal/storage/sql"
)

// Client is everything the app needs from an appliance.
type Client interface {
	opnsense.FirewallClient
	opnsense.LeaseClient
}

// App is the assembled stack.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	Store    storage.Storage
	Client   Client
	Registry *device.Registry
	Service  *service.AccessService
}

// New builds the stack from cfg. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Store = store

	a.Client = a.newClient()

	registry, err := a.buildRegistry(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.Registry = registry

	a.Service = service.NewAccessService(store, registry, service.Options{
		PollInterval: cfg.Sync.PollInterval,
		ConfirmDelay: cfg.Sync.ConfirmDelay,
		Concurrency:  cfg.Sync.RefreshConcurrency,
		Recorder:     a.Metrics,
		Logger:       logger,
	})
	return a, nil
}

// Close stops pending work and closes storage.
func (a *App) Close() error {
	if a.Service != nil {
		a.Service.Stop()
	}
	return a.Store.Close()
}

func openStore(cfg config.DatabaseConfig) (storage.Storage, error) {
	if cfg.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}
	store, err := sql.New(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

func (a *App) newClient() Client {
	cfg := a.Config
	policy := opnsense.RetryPolicy{
		MaxAttempts:     cfg.Sync.RetryMaxAttempts,
		InitialInterval: cfg.Sync.RetryInitialInterval,
		MaxInterval:     cfg.Sync.RetryMaxInterval,
	}

	if cfg.UseFileShim() {
		a.Logger.Info("using file shim for OPNsense API", "path", cfg.OPNsense.FileShim)
		return opnsense.WithRetry(opnsense.NewFileShim(cfg.OPNsense.FileShim, a.Logger), policy, a.Logger)
	}

	client := opnsense.NewClient(cfg.OPNsense.Appliance(),
		opnsense.WithTimeout(cfg.OPNsense.Timeout),
		opnsense.WithVerifyTLS(cfg.OPNsense.VerifyTLS),
		opnsense.WithLogger(a.Logger),
		opnsense.WithObserver(a.Metrics),
	)
	return opnsense.WithRetry(client, policy, a.Logger)
}

func (a *App) buildRegistry(ctx context.Context) (*device.Registry, error) {
	cfg := a.Config
	appliance := cfg.OPNsense.Appliance()

	var static []domain.DeviceBinding
	if cfg.Devices.File != "" {
		devices, err := config.LoadDevices(cfg.Devices.File)
		if err != nil {
			return nil, err
		}
		static = device.FromDevices(devices, cfg.OPNsense.Alias, appliance)
	}

	var discovered []domain.DeviceBinding
	if cfg.Devices.DiscoverLeases {
		bindings, err := device.Discover(ctx, a.Client, cfg.OPNsense.Alias, appliance)
		switch {
		case err != nil && len(static) == 0:
			return nil, fmt.Errorf("discovering devices: %w", err)
		case err != nil:
			a.Logger.Warn("DHCP lease discovery failed, using static devices only", "error", err)
		default:
			a.Logger.Info("discovered devices from DHCP leases", "count", len(bindings))
			discovered = bindings
		}
	}

	ctrl := membership.NewController(a.Client, membership.WithLogger(a.Logger))
	registry := device.NewRegistry()
	var errs []error
	for _, b := range device.Merge(static, discovered) {
		sw := device.NewSwitch(b, ctrl, a.Logger)
		if err := registry.Add(sw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		a.Logger.Warn("no devices configured")
	}
	return registry, nil
}
