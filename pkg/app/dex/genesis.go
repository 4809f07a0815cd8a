package dex

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
)

const metaGenesis = "genesis"

// init writes the genesis state to an empty store or loads an existing one.
func (a *App) init() error {
	if a.store == nil {
		return nil
	}
	want, err := json.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal genesis config: %w", err)
	}

	have, ok, err := a.store.Meta(metaGenesis)
	if err != nil {
		return err
	}
	if !ok {
		_, err := a.log.Update(func(tx *events.Tx) error {
			for _, l := range a.tokens {
				l.GenesisTx(tx)
			}
			tx.Put(storage.MetaKey(metaGenesis), want)
			return nil
		})
		if err != nil {
			return err
		}
		a.logger.Infow("genesis_written", "tokens", len(a.tokens), "deployer", a.cfg.Deployer.Hex())
		return nil
	}
	if !bytes.Equal(have, want) {
		return fmt.Errorf("store was created with a different venue config: %s", have)
	}
	return a.load()
}

func (a *App) load() error {
	evs, err := a.store.LoadEvents()
	if err != nil {
		return err
	}
	if err := a.log.Restore(evs); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	for _, l := range a.tokens {
		if err := l.Load(a.store); err != nil {
			return err
		}
	}
	if err := a.exchange.Load(a.store); err != nil {
		return err
	}

	// The app is not shared yet, so nonces are filled in directly.
	prefix := storage.NoncePrefix()
	err = a.store.Iterate(prefix, func(key, value []byte) error {
		addrs, err := storage.AddressesAfter(key, prefix)
		if err != nil || len(addrs) != 1 {
			return fmt.Errorf("bad nonce key %q: %v", key, err)
		}
		n, err := storage.DecodeUint64(value)
		if err != nil {
			return err
		}
		a.nonces[addrs[0]] = n
		return nil
	})
	if err != nil {
		return err
	}

	head, hash := a.log.Head()
	a.logger.Infow("venue_loaded", "events", head, "head", hash.Hex(), "nonces", len(a.nonces))
	return nil
}
