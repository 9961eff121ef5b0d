// Package membership applies and queries an address's membership in a firewall alias.
package membership

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
)

// Outcome is the result of Apply.
type Outcome struct {
	State   domain.SwitchState
	Changed bool
	Members domain.MemberSet
}

// Controller runs fetch, compute, write and reload against one appliance. Every Apply and
// Reload holds the alias lock for its whole sequence, so concurrent toggles against the same
// alias cannot overwrite each other.
type Controller struct {
	client opnsense.FirewallClient
	locks  *Locks
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocks shares alias locks between controllers that talk to the same appliance.
func WithLocks(l *Locks) Option {
	return func(c *Controller) {
		c.locks = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates a controller on top of client.
func NewController(client opnsense.FirewallClient, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = NewLocks()
	}
	return c
}

// Apply moves binding's address into or out of its alias.
//
// On failure before a write the state is Unknown. When the write lands but the reload fails,
// the outcome carries the intended state together with a *domain.ReloadFailedError.
func (c *Controller) Apply(ctx context.Context, b domain.DeviceBinding, intent domain.MembershipIntent) (*Outcome, error) {
	if err := checkBinding(b); err != nil {
		return &Outcome{State: domain.Unknown}, err
	}
	if intent != domain.Allow && intent != domain.Block {
		return &Outcome{State: domain.Unknown}, fmt.Errorf("%w: intent %s", domain.ErrInvalidInput, intent)
	}

	unlock := c.locks.Lock(lockKey(b))
	defer unlock()

	snap, alias, err := c.resolve(ctx, b)
	if err != nil {
		return &Outcome{State: domain.Unknown}, err
	}

	next := alias.Members
	switch intent {
	case domain.Allow:
		next = alias.Members.Without(b.Address)
	case domain.Block:
		next = alias.Members.With(b.Address)
	}

	state := domain.StateFor(next.Contains(b.Address))
	if next.Equal(alias.Members) {
		c.logger.Debug("alias already in requested state",
			"alias", b.AliasName, "address", b.Address, "intent", intent.String())
		return &Outcome{State: state, Members: next}, nil
	}

	if alias.Handle == "" {
		return &Outcome{State: domain.Unknown}, &domain.ParseError{Reason: fmt.Sprintf("alias %q has no handle", alias.Name)}
	}

	body, err := snap.EncodeWrite(alias, next)
	if err != nil {
		return &Outcome{State: domain.Unknown}, fmt.Errorf("encoding alias %q: %w", alias.Name, err)
	}

	if err := c.client.WriteAlias(ctx, alias.Handle, body); err != nil {
		c.logger.Error("alias write failed", "alias", b.AliasName, "address", b.Address, "error", err)
		return &Outcome{State: domain.Unknown}, fmt.Errorf("writing alias %q: %w", alias.Name, err)
	}

	outcome := &Outcome{State: state, Changed: true, Members: next}
	if err := c.client.Reload(ctx); err != nil {
		c.logger.Warn("alias written but reload failed",
			"alias", b.AliasName, "address", b.Address, "error", err)
		return outcome, &domain.ReloadFailedError{Alias: b.AliasName, Err: err}
	}

	c.logger.Info("alias updated",
		"alias", b.AliasName, "address", b.Address, "intent", intent.String(), "members", next.Len())
	return outcome, nil
}

// Query derives the switch state from current membership without changing anything.
// Concurrent queries against the same appliance share one fetch. A caller whose ctx ends
// stops waiting without failing the others.
func (c *Controller) Query(ctx context.Context, b domain.DeviceBinding) (domain.SwitchState, error) {
	if err := checkBinding(b); err != nil {
		return domain.Unknown, err
	}

	// The shared fetch must outlive any one caller; the client timeout still bounds it.
	ch := c.group.DoChan(b.Appliance.BaseURL, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.Unknown, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.Unknown, res.Err
	}

	alias, ok := res.Val.(*opnsense.Snapshot).Lookup(b.AliasName)
	if !ok {
		return domain.Unknown, &domain.AliasNotFoundError{Alias: b.AliasName}
	}
	return domain.StateFor(alias.Members.Contains(b.Address)), nil
}

// Reload re-issues only the filter reload, for a write that landed earlier.
func (c *Controller) Reload(ctx context.Context, b domain.DeviceBinding) error {
	unlock := c.locks.Lock(lockKey(b))
	defer unlock()

	if err := c.client.Reload(ctx); err != nil {
		return &domain.ReloadFailedError{Alias: b.AliasName, Err: err}
	}
	c.logger.Info("filter reloaded", "alias", b.AliasName)
	return nil
}

func (c *Controller) resolve(ctx context.Context, b domain.DeviceBinding) (*opnsense.Snapshot, domain.Alias, error) {
	snap, err := c.fetch(ctx)
	if err != nil {
		return nil, domain.Alias{}, err
	}
	alias, ok := snap.Lookup(b.AliasName)
	if !ok {
		return nil, domain.Alias{}, &domain.AliasNotFoundError{Alias: b.AliasName}
	}
	return snap, alias, nil
}

func (c *Controller) fetch(ctx context.Context) (*opnsense.Snapshot, error) {
	raw, err := c.client.FetchAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching aliases: %w", err)
	}
	snap, err := opnsense.ParseAliases(raw)
	if err != nil {
		c.logger.Warn("unrecognized alias listing", "error", err)
		return nil, err
	}
	return snap, nil
}

func checkBinding(b domain.DeviceBinding) error {
	if b.Address == "" {
		return fmt.Errorf("%w: binding has no address", domain.ErrInvalidInput)
	}
	if b.AliasName == "" {
		return fmt.Errorf("%w: binding has no alias", domain.ErrInvalidInput)
	}
	return nil
}

func lockKey(b domain.DeviceBinding) string {
	return b.Appliance.BaseURL + "|" + b.AliasName
}
