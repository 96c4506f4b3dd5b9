package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/pkg/errno"
)

// KeyBackend is the part of ethclient.Client the key provider needs.
type KeyBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Approver stands in for the wallet's confirmation dialogs.
type Approver interface {
	ApproveConnect(ctx context.Context, account common.Address) bool
	ApproveTransaction(ctx context.Context, req TxRequest) bool
}

type AutoApprove struct{}

func (AutoApprove) ApproveConnect(context.Context, common.Address) bool { return true }

func (AutoApprove) ApproveTransaction(context.Context, TxRequest) bool { return true }

// KeyProvider signs with a locally held private key and broadcasts through a node.
type KeyProvider struct {
	backend  KeyBackend
	approver Approver
	key      *ecdsa.PrivateKey
	address  common.Address

	mu         sync.Mutex
	authorized bool
	// sendMu serializes nonce allocation.
	sendMu sync.Mutex
}

func NewKeyProvider(backend KeyBackend, privKeyHex string, approver Approver, preauthorized bool) (*KeyProvider, error) {
	address, key, err := GetAddressFromPrivKey(privKeyHex)
	if err != nil {
		return nil, err
	}
	if approver == nil {
		approver = AutoApprove{}
	}
	logrus.Infof("key provider loaded for account %s", address.Hex())
	return &KeyProvider{
		backend:    backend,
		approver:   approver,
		key:        key,
		address:    address,
		authorized: preauthorized,
	}, nil
}

func (p *KeyProvider) HasProvider() bool {
	return p.backend != nil && p.key != nil
}

func (p *KeyProvider) QueryAccounts(ctx context.Context) ([]common.Address, error) {
	if !p.HasProvider() {
		return nil, errno.ErrProviderUnavailable
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if !p.HasProvider() {
		return nil, errno.ErrProviderUnavailable
	}
	if !p.approver.ApproveConnect(ctx, p.address) {
		return nil, errno.ErrUserRejected
	}
	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
	return []common.Address{p.address}, nil
}

// Revoke drops the authorization, the next QueryAccounts returns nothing.
func (p *KeyProvider) Revoke() {
	p.mu.Lock()
	p.authorized = false
	p.mu.Unlock()
}

func (p *KeyProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if !p.HasProvider() {
		return common.Hash{}, errno.ErrProviderUnavailable
	}
	if req.From != p.address {
		return common.Hash{}, errors.Errorf("unknown account %s", req.From.Hex())
	}
	if !p.approver.ApproveTransaction(ctx, req) {
		return common.Hash{}, errno.ErrWalletRejected
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "chain id")
	}
	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pending nonce")
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "gas price")
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	var gas uint64
	if req.Gas != nil {
		gas = *req.Gas
	} else {
		gas, err = p.backend.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "estimate gas")
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "broadcast transaction")
	}
	logrus.WithFields(logrus.Fields{
		"hash":  signed.Hash().Hex(),
		"to":    to.Hex(),
		"nonce": nonce,
	}).Info("transaction broadcast")
	return signed.Hash(), nil
}
