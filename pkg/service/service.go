package service

import (
	"context"
	"math/big"

	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/ledgerclient"
)

type AccountSession interface {
	Restore(ctx context.Context) (models.Account, error)
	Request(ctx context.Context) (models.Account, error)
	Current() models.Account
	Forget()
}

type Ledger interface {
	FetchAllTransactions(ctx context.Context, account models.Account) ([]models.TransactionRecord, error)
	FetchCount(ctx context.Context, account models.Account) (uint64, error)
	Submit(ctx context.Context, account models.Account, receiver string, amount *big.Int, message, keyword string) (ledgerclient.Handle, error)
	AwaitConfirmation(ctx context.Context, account models.Account, h ledgerclient.Handle) (uint64, error)
}

type CountCache interface {
	Get(ctx context.Context) (uint64, bool)
	Set(ctx context.Context, n uint64) error
}

type Transactions interface {
	Start(ctx context.Context) error
	Connect(ctx context.Context) error
	Refresh(ctx context.Context) error
	Submit(ctx context.Context, draft models.DraftInput) error
	Acknowledge() bool
	AccountChanged(ctx context.Context, account models.Account)
	Disconnect(ctx context.Context)
	Snapshot() models.Snapshot
}

type Decoration interface {
	Fetch(ctx context.Context, keyword string) string
	FetchAsync(ctx context.Context, keyword string, done func(url string))
	FallbackURL() string
}

type Service struct {
	Transactions
	Decoration
}

func NewService(session AccountSession, ledger Ledger, cache CountCache, decoration Decoration) *Service {
	return &Service{
		Transactions: NewLifecycle(session, ledger, cache),
		Decoration:   decoration,
	}
}
