package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccountCreated      []OnAccountCreated
	onAccountDeleted      []OnAccountDeleted
	onMovementCreated     []OnMovementCreated
	onMovementEdited      []OnMovementEdited
	onMovementDeleted     []OnMovementDeleted
	onCreditPaid          []OnCreditPaid
	onTransferCreated     []OnTransferCreated
	onTransferEdited      []OnTransferEdited
	onInsufficientBalance []OnInsufficientBalance
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnAccountDeleted); ok {
		r.onAccountDeleted = append(r.onAccountDeleted, v)
	}
	if v, ok := p.(OnMovementCreated); ok {
		r.onMovementCreated = append(r.onMovementCreated, v)
	}
	if v, ok := p.(OnMovementEdited); ok {
		r.onMovementEdited = append(r.onMovementEdited, v)
	}
	if v, ok := p.(OnMovementDeleted); ok {
		r.onMovementDeleted = append(r.onMovementDeleted, v)
	}
	if v, ok := p.(OnCreditPaid); ok {
		r.onCreditPaid = append(r.onCreditPaid, v)
	}
	if v, ok := p.(OnTransferCreated); ok {
		r.onTransferCreated = append(r.onTransferCreated, v)
	}
	if v, ok := p.(OnTransferEdited); ok {
		r.onTransferEdited = append(r.onTransferEdited, v)
	}
	if v, ok := p.(OnInsufficientBalance); ok {
		r.onInsufficientBalance = append(r.onInsufficientBalance, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountCreated", reflect.TypeFor[OnAccountCreated]()},
	{"OnAccountDeleted", reflect.TypeFor[OnAccountDeleted]()},
	{"OnMovementCreated", reflect.TypeFor[OnMovementCreated]()},
	{"OnMovementEdited", reflect.TypeFor[OnMovementEdited]()},
	{"OnMovementDeleted", reflect.TypeFor[OnMovementDeleted]()},
	{"OnCreditPaid", reflect.TypeFor[OnCreditPaid]()},
	{"OnTransferCreated", reflect.TypeFor[OnTransferCreated]()},
	{"OnTransferEdited", reflect.TypeFor[OnTransferEdited]()},
	{"OnInsufficientBalance", reflect.TypeFor[OnInsufficientBalance]()},
}

// implementedInterfaces lists the hooks p implements, for logging.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every hook in list, logging failures under hook.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list(r)
	logger := r.logger
	timeout := r.timeout
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := callWithTimeout(ctx, timeout, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, t any) {
	emit(ctx, r, "OnInit",
		func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, t) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown",
		func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountCreated",
		func(r *Registry) []OnAccountCreated { return r.onAccountCreated },
		func(p OnAccountCreated) error { return p.OnAccountCreated(ctx, a) })
}

// EmitAccountDeleted emits an account deleted event.
func (r *Registry) EmitAccountDeleted(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountDeleted",
		func(r *Registry) []OnAccountDeleted { return r.onAccountDeleted },
		func(p OnAccountDeleted) error { return p.OnAccountDeleted(ctx, a) })
}

// EmitMovementCreated emits a movement created event.
func (r *Registry) EmitMovementCreated(ctx context.Context, m *movement.Movement) {
	emit(ctx, r, "OnMovementCreated",
		func(r *Registry) []OnMovementCreated { return r.onMovementCreated },
		func(p OnMovementCreated) error { return p.OnMovementCreated(ctx, m) })
}

// EmitMovementEdited emits a movement edited event.
func (r *Registry) EmitMovementEdited(ctx context.Context, before, after *movement.Movement) {
	emit(ctx, r, "OnMovementEdited",
		func(r *Registry) []OnMovementEdited { return r.onMovementEdited },
		func(p OnMovementEdited) error { return p.OnMovementEdited(ctx, before, after) })
}

// EmitMovementDeleted emits a movement deleted event.
func (r *Registry) EmitMovementDeleted(ctx context.Context, m *movement.Movement) {
	emit(ctx, r, "OnMovementDeleted",
		func(r *Registry) []OnMovementDeleted { return r.onMovementDeleted },
		func(p OnMovementDeleted) error { return p.OnMovementDeleted(ctx, m) })
}

// EmitCreditPaid emits a credit paid event.
func (r *Registry) EmitCreditPaid(ctx context.Context, m *movement.Movement) {
	emit(ctx, r, "OnCreditPaid",
		func(r *Registry) []OnCreditPaid { return r.onCreditPaid },
		func(p OnCreditPaid) error { return p.OnCreditPaid(ctx, m) })
}

// EmitTransferCreated emits a transfer created event.
func (r *Registry) EmitTransferCreated(ctx context.Context, m *movement.Movement) {
	emit(ctx, r, "OnTransferCreated",
		func(r *Registry) []OnTransferCreated { return r.onTransferCreated },
		func(p OnTransferCreated) error { return p.OnTransferCreated(ctx, m) })
}

// EmitTransferEdited emits a transfer edited event.
func (r *Registry) EmitTransferEdited(ctx context.Context, before, after *movement.Movement) {
	emit(ctx, r, "OnTransferEdited",
		func(r *Registry) []OnTransferEdited { return r.onTransferEdited },
		func(p OnTransferEdited) error { return p.OnTransferEdited(ctx, before, after) })
}

// EmitInsufficientBalance emits a rejected-for-balance event.
func (r *Registry) EmitInsufficientBalance(ctx context.Context, accountID string, available, required types.Money) {
	emit(ctx, r, "OnInsufficientBalance",
		func(r *Registry) []OnInsufficientBalance { return r.onInsufficientBalance },
		func(p OnInsufficientBalance) error {
			return p.OnInsufficientBalance(ctx, accountID, available, required)
		})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func callWithTimeout(ctx context.Context, timeout time.Duration, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
