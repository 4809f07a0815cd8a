// Package dex assembles a trading venue: the token ledgers, the custodial
// exchange, per-identity replay protection and the event log they share.
// Signed transactions enter through App.Apply.
package dex

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coboltblu/exchange/pkg/app/core/exchange"
	"github.com/coboltblu/exchange/pkg/app/core/token"
	"github.com/coboltblu/exchange/pkg/app/core/transaction"
	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
	"github.com/coboltblu/exchange/pkg/util"
)

type App struct {
	cfg      Config
	log      *events.Log
	store    *storage.PebbleStore // nil when running without persistence
	tokens   []*token.Ledger
	byAddr   map[types.Identity]*token.Ledger
	exchange *exchange.Exchange
	verifier *transaction.Verifier

	// last accepted nonce per signer; guarded by the event log
	nonces map[types.Identity]uint64

	logger  *zap.SugaredLogger
	metrics *Metrics
}

// Options are the optional collaborators of an App.
type Options struct {
	Store   *storage.PebbleStore
	Clock   util.Clock
	Logger  *zap.SugaredLogger
	Metrics *Metrics
}

// New builds a venue for cfg. With a store, an empty store receives the
// genesis state and a non-empty one is loaded back; the store must have been
// created with the same config.
func New(cfg Config, opts Options) (*App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	var sink events.Sink
	if opts.Store != nil {
		sink = opts.Store
	}
	a := &App{
		cfg:     cfg,
		log:     events.NewLog(opts.Clock, sink),
		store:   opts.Store,
		byAddr:  make(map[types.Identity]*token.Ledger, len(cfg.Tokens)),
		nonces:  make(map[types.Identity]uint64),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	for i, spec := range cfg.Tokens {
		l, err := token.New(a.log, token.Params{
			Name:     spec.Name,
			Symbol:   spec.Symbol,
			Supply:   spec.Supply,
			Deployer: cfg.Deployer,
			Address:  cfg.TokenAddress(i),
		})
		if err != nil {
			return nil, err
		}
		a.tokens = append(a.tokens, l)
		a.byAddr[l.Address()] = l
	}

	ex, err := exchange.New(a.log, exchange.Config{
		Address:        cfg.ExchangeAddress(),
		FeeAccount:     cfg.FeeAccount,
		FeePercent:     cfg.FeePercent,
		AllowSelfTrade: cfg.AllowSelfTrade,
	})
	if err != nil {
		return nil, err
	}
	for _, l := range a.tokens {
		if err := ex.RegisterToken(l); err != nil {
			return nil, err
		}
	}
	a.exchange = ex
	a.verifier = transaction.NewVerifier(crypto.DefaultDomain(cfg.ChainID, ex.Address()))

	if err := a.init(); err != nil {
		return nil, err
	}

	a.logger.Infow("venue_ready",
		"exchange", ex.Address().Hex(),
		"tokens", len(a.tokens),
		"fee_account", cfg.FeeAccount.Hex(),
		"fee_percent", cfg.FeePercent,
		"events", a.log.Len(),
	)
	return a, nil
}

func (a *App) Config() Config               { return a.cfg }
func (a *App) Log() *events.Log             { return a.log }
func (a *App) Exchange() *exchange.Exchange { return a.exchange }
func (a *App) Domain() crypto.EIP712Domain  { return a.verifier.Domain() }

// Tokens returns the ledgers in deployment order.
func (a *App) Tokens() []*token.Ledger {
	return append([]*token.Ledger(nil), a.tokens...)
}

// Token looks a ledger up by address.
func (a *App) Token(addr types.Identity) (*token.Ledger, error) {
	l, ok := a.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownToken, addr.Hex())
	}
	return l, nil
}

// ResolveToken accepts a token address or a symbol (case-insensitive).
func (a *App) ResolveToken(s string) (*token.Ledger, error) {
	if id, err := types.ParseIdentity(s); err == nil {
		return a.Token(id)
	}
	for _, l := range a.tokens {
		if strings.EqualFold(l.Symbol(), s) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnknownToken, s)
}

// Nonce is the last nonce accepted from id, 0 if none.
func (a *App) Nonce(id types.Identity) uint64 {
	var n uint64
	a.log.View(func() { n = a.nonces[id] })
	return n
}

// Close stops subscriptions and closes the store.
func (a *App) Close() error {
	a.log.Close()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
