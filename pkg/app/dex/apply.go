package dex

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/app/core/exchange"
	"github.com/coboltblu/exchange/pkg/app/core/transaction"
	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// Receipt describes a committed transaction.
type Receipt struct {
	Type   transaction.TxType `json:"type"`
	Signer types.Identity     `json:"signer"`
	Nonce  uint64             `json:"nonce"`
	Events []events.Event     `json:"events"`

	Order *exchange.Order `json:"order,omitempty"` // makeOrder, cancelOrder
	Trade *exchange.Trade `json:"trade,omitempty"` // fillOrder
}

// Apply authenticates tx and executes it. The signer's nonce check, the
// operation itself and the nonce update commit together: a rejected
// transaction leaves no trace and does not consume its nonce.
func (a *App) Apply(tx *transaction.SignedTransaction) (*Receipt, error) {
	p, err := a.verifier.Verify(tx)
	if err != nil {
		a.reject(typeLabel(tx.Type), types.None, 0, err)
		return nil, err
	}

	r := &Receipt{Type: p.Type(), Signer: p.From(), Nonce: p.TxNonce()}
	evs, err := a.log.Update(func(etx *events.Tx) error {
		signer := p.From()
		if last := a.nonces[signer]; p.TxNonce() <= last {
			return fmt.Errorf("%w: nonce %d, last accepted %d", types.ErrNonceTooLow, p.TxNonce(), last)
		}
		if err := a.dispatch(etx, p, r); err != nil {
			return err
		}
		a.nonces[signer] = p.TxNonce()
		etx.Put(storage.NonceKey(signer), storage.EncodeUint64(p.TxNonce()))
		return nil
	})
	if err != nil {
		a.reject(string(p.Type()), p.From(), p.TxNonce(), err)
		return nil, err
	}
	r.Events = evs

	a.metrics.observeTx(string(r.Type), "ok")
	a.metrics.observeCommit(evs, a.log.Len(), a.exchange.OpenCount())
	a.logger.Infow("tx_applied",
		"type", r.Type,
		"signer", r.Signer.Hex(),
		"nonce", r.Nonce,
		"events", len(evs),
		"seq", lastSeq(evs),
	)
	return r, nil
}

func (a *App) dispatch(tx *events.Tx, p transaction.Payload, r *Receipt) error {
	signer := p.From()
	switch p := p.(type) {
	case *transaction.TransferPayload:
		l, err := a.Token(p.Token)
		if err != nil {
			return err
		}
		return l.TransferTx(tx, signer, p.To, p.Amount)

	case *transaction.ApprovePayload:
		l, err := a.Token(p.Token)
		if err != nil {
			return err
		}
		return l.ApproveTx(tx, signer, p.Spender, p.Amount)

	case *transaction.TransferFromPayload:
		l, err := a.Token(p.Token)
		if err != nil {
			return err
		}
		return l.TransferFromTx(tx, signer, p.Owner, p.To, p.Amount)

	case *transaction.DepositPayload:
		return a.exchange.DepositTx(tx, signer, p.Token, p.Amount)

	case *transaction.WithdrawPayload:
		return a.exchange.WithdrawTx(tx, signer, p.Token, p.Amount)

	case *transaction.MakeOrderPayload:
		o, err := a.exchange.MakeOrderTx(tx, signer, p.TokenGet, p.AmountGet, p.TokenGive, p.AmountGive)
		if err != nil {
			return err
		}
		r.Order = o
		return nil

	case *transaction.CancelOrderPayload:
		o, err := a.exchange.CancelOrderTx(tx, signer, p.OrderID)
		if err != nil {
			return err
		}
		r.Order = o
		return nil

	case *transaction.FillOrderPayload:
		t, err := a.exchange.FillOrderTx(tx, signer, p.OrderID)
		if err != nil {
			return err
		}
		r.Trade = &t
		return nil
	}
	return fmt.Errorf("%w: unsupported payload %T", types.ErrMalformedTransaction, p)
}

func (a *App) reject(typ string, signer types.Identity, nonce uint64, err error) {
	kind := types.KindOf(err)
	a.metrics.observeTx(typ, kind)
	if types.IsFatal(err) {
		a.logger.Errorw("tx_storage_failure", "type", typ, "signer", signer.Hex(), "nonce", nonce, "err", err)
		return
	}
	a.logger.Debugw("tx_rejected", "type", typ, "signer", signer.Hex(), "nonce", nonce, "kind", kind, "err", err)
}

// typeLabel keeps client-chosen type strings out of metric labels.
func typeLabel(t transaction.TxType) string {
	if t.Known() {
		return string(t)
	}
	return "invalid"
}

func lastSeq(evs []events.Event) uint64 {
	if len(evs) == 0 {
		return 0
	}
	return evs[len(evs)-1].Seq
}
