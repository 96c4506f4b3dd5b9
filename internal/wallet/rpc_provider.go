package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/pkg/errno"
)

// EIP-1193 and JSON-RPC codes the provider distinguishes.
const (
	codeUserRejected   = 4001
	codeMethodNotFound = -32601
)

type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCProvider talks to an external signer (a wallet extension bridge, clef or
// a node with unlocked accounts) over JSON-RPC.
type RPCProvider struct {
	client rpcCaller
}

func NewRPCProvider(client rpcCaller) *RPCProvider {
	return &RPCProvider{client: client}
}

// DialRPCProvider never fails: an unreachable endpoint yields a provider that
// reports HasProvider() == false.
func DialRPCProvider(ctx context.Context, url string) *RPCProvider {
	if url == "" {
		logrus.Warn("wallet provider url is empty, running without a provider")
		return &RPCProvider{}
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		logrus.Warnf("wallet provider %s unavailable: %s", url, err)
		return &RPCProvider{}
	}
	return &RPCProvider{client: client}
}

func (p *RPCProvider) HasProvider() bool {
	return p.client != nil
}

func (p *RPCProvider) QueryAccounts(ctx context.Context) ([]common.Address, error) {
	if !p.HasProvider() {
		return nil, errno.ErrProviderUnavailable
	}
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, errors.Wrapf(errno.ErrProviderUnavailable, "eth_accounts: %v", err)
	}
	return accounts, nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if !p.HasProvider() {
		return nil, errno.ErrProviderUnavailable
	}
	var accounts []common.Address
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	switch rpcErrorCode(err) {
	case 0:
		if err != nil {
			return nil, errors.Wrapf(errno.ErrProviderUnavailable, "eth_requestAccounts: %v", err)
		}
		return accounts, nil
	case codeUserRejected:
		return nil, errors.Wrap(errno.ErrUserRejected, err.Error())
	case codeMethodNotFound:
		// Plain nodes do not prompt; their unlocked accounts count as authorized.
		return p.QueryAccounts(ctx)
	default:
		return nil, errors.Wrapf(errno.ErrProviderUnavailable, "eth_requestAccounts: %v", err)
	}
}

func (p *RPCProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if !p.HasProvider() {
		return common.Hash{}, errno.ErrProviderUnavailable
	}
	var hash common.Hash
	err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", toCallArg(req))
	if err == nil {
		return hash, nil
	}
	if rpcErrorCode(err) == codeUserRejected {
		return common.Hash{}, errors.Wrap(errno.ErrWalletRejected, err.Error())
	}
	return common.Hash{}, errors.Wrap(err, "eth_sendTransaction")
}

func toCallArg(req TxRequest) map[string]interface{} {
	arg := map[string]interface{}{
		"from": req.From,
		"to":   req.To,
	}
	if req.Value != nil {
		arg["value"] = (*hexutil.Big)(req.Value)
	}
	if req.Gas != nil {
		arg["gas"] = hexutil.Uint64(*req.Gas)
	}
	if len(req.Data) > 0 {
		arg["data"] = hexutil.Bytes(req.Data)
	}
	return arg
}

func rpcErrorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}
