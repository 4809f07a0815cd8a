// Command signtx builds and signs venue transactions and prints the JSON
// accepted by POST /tx.
//
//	signtx --dev 1 --nonce 1 deposit --token BLU --amount 100
//	signtx --key 0x... --nonce 2 make-order --get mETH --amount-get 10 --give BLU --amount-give 20
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
