package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/coboltblu/exchange/pkg/app/core/transaction"
	"github.com/coboltblu/exchange/pkg/app/dex"
	"github.com/coboltblu/exchange/pkg/crypto"
)

type rootOpts struct {
	key      string
	dev      int
	nonce    uint64
	chainID  int64
	exchange string
	typed    bool
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{}
	def := dex.DefaultConfig()

	root := &cobra.Command{
		Use:           "signtx",
		Short:         "Sign transactions for a coboltblu venue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&o.key, "key", "", "hex private key (overrides --dev)")
	f.IntVar(&o.dev, "dev", 0, "index of the development account to sign with")
	f.Uint64Var(&o.nonce, "nonce", 1, "transaction nonce, greater than the signer's last")
	f.Int64Var(&o.chainID, "chain-id", def.ChainID, "chain id of the signing domain")
	f.StringVar(&o.exchange, "exchange", def.ExchangeAddress().Hex(), "exchange address of the signing domain")
	f.BoolVar(&o.typed, "typed", false, "print the EIP-712 typed data instead of the transaction")

	root.AddCommand(
		transferCmd(o),
		approveCmd(o),
		transferFromCmd(o),
		custodyCmd(o, "deposit", "Move tokens from the signer's wallet into exchange custody"),
		custodyCmd(o, "withdraw", "Move tokens from exchange custody back to the signer's wallet"),
		makeOrderCmd(o),
		orderCmd(o, "cancel-order", "Cancel one of the signer's open orders"),
		orderCmd(o, "fill-order", "Fill an open order in full"),
		addressCmd(o),
	)
	return root
}

func (o *rootOpts) signer() (*crypto.Signer, error) {
	if o.key != "" {
		return crypto.FromPrivateKeyHex(o.key)
	}
	if o.dev < 0 {
		return nil, fmt.Errorf("--dev must not be negative")
	}
	return crypto.DevSigner(o.dev), nil
}

func (o *rootOpts) header(s *crypto.Signer) transaction.Header {
	return transaction.Header{Signer: s.Address(), Nonce: o.nonce}
}

func (o *rootOpts) emit(cmd *cobra.Command, s *crypto.Signer, p transaction.Payload) error {
	if !common.IsHexAddress(o.exchange) {
		return fmt.Errorf("invalid --exchange %q", o.exchange)
	}
	e := crypto.NewEIP712Signer(crypto.DefaultDomain(o.chainID, common.HexToAddress(o.exchange)))
	if o.typed {
		js, err := e.JSON(p.TypedMessage())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), js)
		return nil
	}
	tx, err := transaction.Sign(e, s, p)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// tokenAddress accepts a hex address or the symbol of a default token.
func tokenAddress(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	cfg := dex.DefaultConfig()
	for i, t := range cfg.Tokens {
		if strings.EqualFold(t.Symbol, s) {
			return cfg.TokenAddress(i), nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown token %q", s)
}

func address(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid --%s %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func amount(name, s string) (*uint256.Int, error) {
	a, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return a, nil
}

func transferCmd(o *rootOpts) *cobra.Command {
	var tok, to, amt string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer tokens from the signer to a recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.TransferPayload{Header: o.header(s)}
			if p.Token, err = tokenAddress(tok); err != nil {
				return err
			}
			if p.To, err = address("to", to); err != nil {
				return err
			}
			if p.Amount, err = amount("amount", amt); err != nil {
				return err
			}
			return o.emit(cmd, s, p)
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "token address or symbol")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amt, "amount", "", "amount in base units")
	markRequired(cmd, "token", "to", "amount")
	return cmd
}

func approveCmd(o *rootOpts) *cobra.Command {
	var tok, spender, amt string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Set a spender's allowance over the signer's tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.ApprovePayload{Header: o.header(s)}
			if p.Token, err = tokenAddress(tok); err != nil {
				return err
			}
			if spender == "" {
				p.Spender = common.HexToAddress(o.exchange)
			} else if p.Spender, err = address("spender", spender); err != nil {
				return err
			}
			if p.Amount, err = amount("amount", amt); err != nil {
				return err
			}
			return o.emit(cmd, s, p)
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "token address or symbol")
	cmd.Flags().StringVar(&spender, "spender", "", "spender address (default the exchange)")
	cmd.Flags().StringVar(&amt, "amount", "", "allowance in base units")
	markRequired(cmd, "token", "amount")
	return cmd
}

func transferFromCmd(o *rootOpts) *cobra.Command {
	var tok, from, to, amt string
	cmd := &cobra.Command{
		Use:   "transfer-from",
		Short: "Spend an allowance granted to the signer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.TransferFromPayload{Header: o.header(s)}
			if p.Token, err = tokenAddress(tok); err != nil {
				return err
			}
			if p.Owner, err = address("from", from); err != nil {
				return err
			}
			if p.To, err = address("to", to); err != nil {
				return err
			}
			if p.Amount, err = amount("amount", amt); err != nil {
				return err
			}
			return o.emit(cmd, s, p)
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "token address or symbol")
	cmd.Flags().StringVar(&from, "from", "", "owner address")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amt, "amount", "", "amount in base units")
	markRequired(cmd, "token", "from", "to", "amount")
	return cmd
}

func custodyCmd(o *rootOpts, use, short string) *cobra.Command {
	var tok, amt string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.DepositPayload{Header: o.header(s)}
			if p.Token, err = tokenAddress(tok); err != nil {
				return err
			}
			if p.Amount, err = amount("amount", amt); err != nil {
				return err
			}
			if use == "withdraw" {
				return o.emit(cmd, s, (*transaction.WithdrawPayload)(p))
			}
			return o.emit(cmd, s, p)
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "token address or symbol")
	cmd.Flags().StringVar(&amt, "amount", "", "amount in base units")
	markRequired(cmd, "token", "amount")
	return cmd
}

func makeOrderCmd(o *rootOpts) *cobra.Command {
	var get, amtGet, give, amtGive string
	cmd := &cobra.Command{
		Use:   "make-order",
		Short: "Offer amount-give of one token for amount-get of another",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.MakeOrderPayload{Header: o.header(s)}
			if p.TokenGet, err = tokenAddress(get); err != nil {
				return err
			}
			if p.AmountGet, err = amount("amount-get", amtGet); err != nil {
				return err
			}
			if p.TokenGive, err = tokenAddress(give); err != nil {
				return err
			}
			if p.AmountGive, err = amount("amount-give", amtGive); err != nil {
				return err
			}
			return o.emit(cmd, s, p)
		},
	}
	cmd.Flags().StringVar(&get, "get", "", "token the maker wants")
	cmd.Flags().StringVar(&amtGet, "amount-get", "", "amount the maker wants")
	cmd.Flags().StringVar(&give, "give", "", "token the maker offers")
	cmd.Flags().StringVar(&amtGive, "amount-give", "", "amount the maker offers")
	markRequired(cmd, "get", "amount-get", "give", "amount-give")
	return cmd
}

func orderCmd(o *rootOpts, use, short string) *cobra.Command {
	var id uint64
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			p := &transaction.OrderPayload{Header: o.header(s), OrderID: id}
			if use == "cancel-order" {
				return o.emit(cmd, s, (*transaction.CancelOrderPayload)(p))
			}
			return o.emit(cmd, s, (*transaction.FillOrderPayload)(p))
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "order id")
	markRequired(cmd, "id")
	return cmd
}

func addressCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the signer's address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.signer()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Address().Hex())
			return nil
		},
	}
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}
