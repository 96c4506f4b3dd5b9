package ledgerclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/internal/wallet"
	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
	"transfer_ledger_back/pkg/units"
)

// Stage names the half of a submission that failed.
type Stage int

const (
	StageTransfer Stage = iota
	StageLedgerAppend
)

func (s Stage) String() string {
	if s == StageTransfer {
		return "transfer"
	}
	return "ledger_append"
}

// Handle identifies the two transactions of one submission.
type Handle struct {
	TransferHash common.Hash
	LedgerHash   common.Hash
}

// SubmitError reports which half of a submission failed. A failure in the
// ledger append stage leaves a completed value transfer behind.
type SubmitError struct {
	Stage        Stage
	TransferHash common.Hash
	Err          error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Partial reports whether the value transfer went out without its ledger record.
func (e *SubmitError) Partial() bool {
	return e.Stage == StageLedgerAppend
}

// Submit performs the native transfer and then the ledger append. The two are
// independent transactions; nothing rolls back the transfer if the append fails.
func (c *LedgerClient) Submit(ctx context.Context, account models.Account, receiver string, amount *big.Int, message, keyword string) (Handle, error) {
	if account.Empty() {
		return Handle{}, &SubmitError{Stage: StageTransfer, Err: errno.ErrNotSynced}
	}
	if !common.IsHexAddress(receiver) {
		return Handle{}, &SubmitError{Stage: StageTransfer, Err: errors.Wrapf(errno.ErrInvalidDraft, "receiver %q", receiver)}
	}
	if amount == nil || amount.Sign() < 0 {
		return Handle{}, &SubmitError{Stage: StageTransfer, Err: errors.Wrap(errno.ErrInvalidDraft, "amount must be non-negative")}
	}
	if amount.BitLen() > units.MaxBits {
		return Handle{}, &SubmitError{Stage: StageTransfer, Err: errors.Wrapf(errno.ErrInvalidDraft, "amount exceeds %d bits", units.MaxBits)}
	}
	from := common.HexToAddress(account.String())
	to := common.HexToAddress(receiver)

	// Encoded up front so a local packing error never follows a sent transfer.
	data, err := c.abi.Pack(methodAppend, to, amount, message, keyword)
	if err != nil {
		return Handle{}, &SubmitError{
			Stage: StageTransfer,
			Err:   errors.Wrapf(errno.ErrInvalidDraft, "pack %s: %v", methodAppend, err),
		}
	}

	gas := TransferGas
	transferHash, err := c.provider.SendTransaction(ctx, wallet.TxRequest{
		From:  from,
		To:    to,
		Value: amount,
		Gas:   &gas,
	})
	if err != nil {
		return Handle{}, &SubmitError{Stage: StageTransfer, Err: classifyTransferError(err)}
	}
	logrus.WithFields(logrus.Fields{
		"account": account,
		"to":      to.Hex(),
		"hash":    transferHash.Hex(),
	}).Info("native transfer sent")

	ledgerHash, err := c.provider.SendTransaction(ctx, wallet.TxRequest{
		From: from,
		To:   c.contract,
		Data: data,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"account":  account,
			"transfer": transferHash.Hex(),
		}).Errorf("ledger append failed after value transfer: %s", err)
		return Handle{}, &SubmitError{
			Stage:        StageLedgerAppend,
			TransferHash: transferHash,
			Err:          errors.Wrap(errno.ErrLedgerCallFailed, err.Error()),
		}
	}
	logrus.WithFields(logrus.Fields{"account": account, "hash": ledgerHash.Hex()}).Info("ledger append sent")
	return Handle{TransferHash: transferHash, LedgerHash: ledgerHash}, nil
}

func classifyTransferError(err error) error {
	switch {
	case errors.Is(err, errno.ErrWalletRejected), errors.Is(err, errno.ErrProviderUnavailable):
		return err
	default:
		return errors.Wrap(errno.ErrTransferFailed, err.Error())
	}
}

// AwaitConfirmation waits until the ledger append is mined and returns the
// refreshed transaction count. If only the count refresh fails the error
// wraps errno.ErrLedgerUnreachable; the append itself is confirmed then.
func (c *LedgerClient) AwaitConfirmation(ctx context.Context, account models.Account, h Handle) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := c.waitMined(waitCtx, h.LedgerHash)
	if err != nil {
		return 0, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return 0, errors.Wrapf(errno.ErrConfirmationReverted, "transaction %s reverted in block %s", h.LedgerHash.Hex(), receipt.BlockNumber)
	}
	logrus.WithFields(logrus.Fields{"hash": h.LedgerHash.Hex(), "block": receipt.BlockNumber}).Info("ledger append confirmed")

	return c.FetchCount(ctx, account)
}

func (c *LedgerClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logrus.Warnf("receipt lookup for %s failed: %s", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(errno.ErrConfirmationTimeout, "transaction %s: %v", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
