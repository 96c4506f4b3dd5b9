package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest mirrors the eth_sendTransaction parameter object. Nil Gas or
// Value leave the choice to the provider.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Gas   *uint64
	Data  []byte
}

// Provider is the wallet that holds account authorization and signs transactions.
type Provider interface {
	HasProvider() bool
	// QueryAccounts returns the already authorized accounts without prompting.
	QueryAccounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts prompts for authorization.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// Revoker is implemented by providers that can drop an authorization on request.
type Revoker interface {
	Revoke()
}
