package ledgerclient

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/internal/wallet"
	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
	"transfer_ledger_back/pkg/units"
)

// TransferGas is the fixed gas allowance of the native value transfer (0x5208).
const TransferGas uint64 = 21000

const (
	DefaultConfirmTimeout = 5 * time.Minute
	DefaultPollInterval   = 2 * time.Second
)

// ChainBackend is the read side of ethclient.Client used by the ledger client.
type ChainBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	Contract       string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// LedgerClient is a stateless adapter over the ledger contract and the
// wallet provider. Every operation takes the account it acts for.
type LedgerClient struct {
	backend  ChainBackend
	provider wallet.Provider
	contract common.Address
	abi      abi.ABI

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

func NewLedgerClient(backend ChainBackend, provider wallet.Provider, cfg Config) (*LedgerClient, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, errors.Errorf("invalid ledger contract address %q", cfg.Contract)
	}
	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse ledger abi")
	}
	c := &LedgerClient{
		backend:        backend,
		provider:       provider,
		contract:       common.HexToAddress(cfg.Contract),
		abi:            parsed,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = DefaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c, nil
}

func (c *LedgerClient) Contract() common.Address {
	return c.contract
}

// FetchAllTransactions reads the whole ledger log in one call. The order is
// the ledger's own enumeration order.
func (c *LedgerClient) FetchAllTransactions(ctx context.Context, account models.Account) ([]models.TransactionRecord, error) {
	out, err := c.call(ctx, account, methodGetAll)
	if err != nil {
		return nil, err
	}
	raws := *abi.ConvertType(out[0], new([]rawTransfer)).(*[]rawTransfer)

	records := make([]models.TransactionRecord, 0, len(raws))
	for _, raw := range raws {
		records = append(records, toRecord(raw))
	}
	logrus.WithFields(logrus.Fields{"account": account, "count": len(records)}).Debug("ledger log fetched")
	return records, nil
}

func (c *LedgerClient) FetchCount(ctx context.Context, account models.Account) (uint64, error) {
	out, err := c.call(ctx, account, methodGetCount)
	if err != nil {
		return 0, err
	}
	count := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !count.IsUint64() {
		return 0, errors.Wrapf(errno.ErrLedgerCallFailed, "transaction count %s overflows", count)
	}
	return count.Uint64(), nil
}

func (c *LedgerClient) call(ctx context.Context, account models.Account, method string) ([]interface{}, error) {
	input, err := c.abi.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(errno.ErrLedgerCallFailed, "pack %s: %v", method, err)
	}
	msg := ethereum.CallMsg{To: &c.contract, Data: input}
	if !account.Empty() {
		msg.From = common.HexToAddress(account.String())
	}
	data, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(errno.ErrLedgerUnreachable, "%s: %v", method, err)
	}
	out, err := c.abi.Unpack(method, data)
	if err != nil {
		return nil, errors.Wrapf(errno.ErrLedgerCallFailed, "unpack %s: %v", method, err)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errno.ErrLedgerCallFailed, "%s returned nothing", method)
	}
	return out, nil
}

func toRecord(raw rawTransfer) models.TransactionRecord {
	var ts time.Time
	if raw.Timestamp != nil && raw.Timestamp.IsInt64() {
		ts = time.Unix(raw.Timestamp.Int64(), 0).UTC()
	}
	return models.TransactionRecord{
		Sender:    strings.ToLower(raw.Sender.Hex()),
		Receiver:  strings.ToLower(raw.Receiver.Hex()),
		Amount:    units.FromCanonical(raw.Amount),
		Message:   raw.Message,
		Keyword:   raw.Keyword,
		Timestamp: ts,
	}
}
