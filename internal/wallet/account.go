package wallet

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alien-id/miniapp-sdk/internal/contract"
)

var Chains = []contract.SolanaChain{
	contract.SolanaMainnet,
	contract.SolanaDevnet,
	contract.SolanaTestnet,
}

// Feature names exposed by an account.
const (
	FeatureConnect                = "standard:connect"
	FeatureDisconnect             = "standard:disconnect"
	FeatureEvents                 = "standard:events"
	FeatureSignTransaction        = "solana:signTransaction"
	FeatureSignAndSendTransaction = "solana:signAndSendTransaction"
	FeatureSignMessage            = "solana:signMessage"
)

var accountFeatures = []string{
	FeatureSignTransaction,
	FeatureSignAndSendTransaction,
	FeatureSignMessage,
}

// Account is the single account a connected wallet tracks.
type Account struct {
	Address   string
	PublicKey solana.PublicKey
	Chains    []contract.SolanaChain
	Features  []string
}

// NewAccount builds an account from a base58 public key.
func NewAccount(address string) (Account, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Account{}, fmt.Errorf("parse public key %q: %w", address, err)
	}
	return Account{
		Address:   pk.String(),
		PublicKey: pk,
		Chains:    Chains,
		Features:  accountFeatures,
	}, nil
}

func isChain(c contract.SolanaChain) bool {
	for _, known := range Chains {
		if c == known {
			return true
		}
	}
	return false
}
