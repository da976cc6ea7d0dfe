package tally

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/tally/code"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// Tally is the ledger consistency engine. It owns the movement lifecycle
// and is the only writer of account balances.
type Tally struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	codes    code.Generator
	clock    func() time.Time
	currency string
	locks    *lockSet
}

// New creates a new Tally instance.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		clock:    time.Now,
		currency: types.DefaultCurrency,
		locks:    newLockSet(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.codes == nil {
		t.codes = code.NewSequence(s)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		if err := t.plugins.Register(p); err != nil {
			t.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithCodeGenerator replaces the default per-minute code sequence.
func WithCodeGenerator(g code.Generator) Option {
	return func(t *Tally) { t.codes = g }
}

// WithClock sets the time source used for codes, timestamps and default
// occurrence dates.
func WithClock(clock func() time.Time) Option {
	return func(t *Tally) { t.clock = clock }
}

// WithCurrency sets the ISO 4217 currency of all amounts (default INR).
func WithCurrency(currency string) Option {
	return func(t *Tally) { t.currency = strings.ToUpper(currency) }
}

// Currency returns the engine's currency code.
func (t *Tally) Currency() string { return t.currency }

// Store returns the underlying store.
func (t *Tally) Store() store.Store { return t.store }

// Start migrates the store and initializes plugins.
func (t *Tally) Start(ctx context.Context) error {
	if err := t.store.Migrate(ctx); err != nil {
		return err
	}

	t.plugins.EmitInit(ctx, t)

	t.logger.Info("tally started",
		"currency", t.currency,
		"plugins", t.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (t *Tally) Stop() error {
	t.plugins.EmitShutdown(context.Background())

	t.logger.Info("tally stopped")

	return t.store.Close()
}

func (t *Tally) now() time.Time { return t.clock().UTC() }
