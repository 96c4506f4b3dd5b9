package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/cache"
	"transfer_ledger_back/pkg/errno"
	"transfer_ledger_back/pkg/ledgerclient"
)

const (
	accountA  = models.Account("0x00000000000000000000000000000000000000aa")
	receiverB = "0x00000000000000000000000000000000000000bb"
)

type fakeSession struct {
	mu         sync.Mutex
	account    models.Account
	restore    models.Account
	restoreErr error
	request    models.Account
	requestErr error
}

func (s *fakeSession) Restore(context.Context) (models.Account, error) {
	if s.restoreErr != nil {
		return "", s.restoreErr
	}
	s.set(s.restore)
	return s.restore, nil
}

func (s *fakeSession) Request(context.Context) (models.Account, error) {
	if s.requestErr != nil {
		return "", s.requestErr
	}
	s.set(s.request)
	return s.request, nil
}

func (s *fakeSession) Current() models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *fakeSession) Forget() { s.set("") }

func (s *fakeSession) set(a models.Account) {
	s.mu.Lock()
	s.account = a
	s.mu.Unlock()
}

type fakeLedger struct {
	mu             sync.Mutex
	records        []models.TransactionRecord
	fetchErr       error
	countErr       error
	submitErr      error
	confirmErr     error
	submitBlock    chan struct{}
	submitStarted  chan struct{}
	confirmBlock   chan struct{}
	confirmStarted chan struct{}
	submitCalls    int
	fetchAllCalls  int
	lastAmount     *big.Int
}

func (f *fakeLedger) FetchAllTransactions(context.Context, models.Account) ([]models.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchAllCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]models.TransactionRecord{}, f.records...), nil
}

func (f *fakeLedger) FetchCount(context.Context, models.Account) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.records)), nil
}

func (f *fakeLedger) Submit(_ context.Context, account models.Account, receiver string, amount *big.Int, message, keyword string) (ledgerclient.Handle, error) {
	f.mu.Lock()
	f.submitCalls++
	f.lastAmount = amount
	started, block := f.submitStarted, f.submitBlock
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if f.submitErr != nil {
		return ledgerclient.Handle{}, f.submitErr
	}
	f.mu.Lock()
	f.records = append(f.records, models.TransactionRecord{Sender: account.String(), Receiver: receiver, Message: message, Keyword: keyword})
	f.mu.Unlock()
	return ledgerclient.Handle{
		TransferHash: common.HexToHash("0x1"),
		LedgerHash:   common.HexToHash("0x2"),
	}, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, account models.Account, _ ledgerclient.Handle) (uint64, error) {
	f.mu.Lock()
	started, block := f.confirmStarted, f.confirmBlock
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if f.confirmErr != nil {
		return 0, f.confirmErr
	}
	return f.FetchCount(ctx, account)
}

func seedRecord() models.TransactionRecord {
	return models.TransactionRecord{
		Sender:    receiverB,
		Receiver:  accountA.String(),
		Amount:    decimal.RequireFromString("0.25"),
		Message:   "old",
		Keyword:   "cat",
		Timestamp: time.Unix(1650000000, 0).UTC(),
	}
}

var fixedNow = time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

func newSyncedLifecycle(t *testing.T, ledger *fakeLedger) (*Lifecycle, *fakeSession, *cache.TransactionCache) {
	session := &fakeSession{restore: accountA}
	counts := cache.NewTransactionCache(cache.NewMemoryStore())
	l := NewLifecycle(session, ledger, counts)
	l.now = func() time.Time { return fixedNow }
	require.NoError(t, l.Start(context.Background()))
	require.Equal(t, models.Synced, l.Snapshot().State)
	return l, session, counts
}

func validDraft() models.DraftInput {
	return models.DraftInput{Receiver: receiverB, Amount: "1.5", Keyword: "party", Message: "hi"}
}

func TestStartWithoutAuthorizedAccount(t *testing.T) {
	l := NewLifecycle(&fakeSession{}, &fakeLedger{}, cache.NewTransactionCache(cache.NewMemoryStore()))

	require.NoError(t, l.Start(context.Background()))
	snap := l.Snapshot()
	assert.Equal(t, models.Disconnected, snap.State)
	assert.True(t, snap.Account.Empty())
	assert.Empty(t, snap.Transactions)
}

func TestStartProviderUnavailable(t *testing.T) {
	session := &fakeSession{restoreErr: errno.ErrProviderUnavailable}
	l := NewLifecycle(session, &fakeLedger{}, cache.NewTransactionCache(cache.NewMemoryStore()))

	err := l.Start(context.Background())
	assert.True(t, errors.Is(err, errno.ErrProviderUnavailable))
	snap := l.Snapshot()
	assert.Equal(t, models.Disconnected, snap.State)
	assert.NotEmpty(t, snap.LastError)
}

func TestStartSyncsAndPrimesCache(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord(), seedRecord()}}
	l, _, counts := newSyncedLifecycle(t, ledger)

	snap := l.Snapshot()
	assert.Equal(t, accountA, snap.Account)
	assert.Len(t, snap.Transactions, 2)
	require.NotNil(t, snap.CachedCount)
	assert.Equal(t, uint64(2), *snap.CachedCount)

	n, ok := counts.Get(context.Background())
	assert.True(t, ok)
	assert.Equal(t, uint64(2), n)
}

func TestStartExposesCachedHintBeforeSync(t *testing.T) {
	counts := cache.NewTransactionCache(cache.NewMemoryStore())
	require.NoError(t, counts.Set(context.Background(), 9))
	l := NewLifecycle(&fakeSession{}, &fakeLedger{}, counts)

	require.NoError(t, l.Start(context.Background()))
	snap := l.Snapshot()
	require.NotNil(t, snap.CachedCount)
	assert.Equal(t, uint64(9), *snap.CachedCount)
	assert.Equal(t, models.Disconnected, snap.State)
}

func TestStartSyncFailure(t *testing.T) {
	ledger := &fakeLedger{fetchErr: errors.Wrap(errno.ErrLedgerUnreachable, "down")}
	l := NewLifecycle(&fakeSession{restore: accountA}, ledger, cache.NewTransactionCache(cache.NewMemoryStore()))

	err := l.Start(context.Background())
	assert.True(t, errors.Is(err, errno.ErrLedgerUnreachable))
	assert.Equal(t, models.Disconnected, l.Snapshot().State)
}

func TestConnectRejected(t *testing.T) {
	session := &fakeSession{requestErr: errors.Wrap(errno.ErrUserRejected, "denied")}
	l := NewLifecycle(session, &fakeLedger{}, cache.NewTransactionCache(cache.NewMemoryStore()))
	require.NoError(t, l.Start(context.Background()))

	err := l.Connect(context.Background())
	assert.True(t, errors.Is(err, errno.ErrUserRejected))
	snap := l.Snapshot()
	assert.True(t, snap.Account.Empty())
	assert.Equal(t, models.Disconnected, snap.State)
}

func TestConnectSyncs(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l := NewLifecycle(&fakeSession{request: accountA}, ledger, cache.NewTransactionCache(cache.NewMemoryStore()))
	require.NoError(t, l.Start(context.Background()))

	require.NoError(t, l.Connect(context.Background()))
	snap := l.Snapshot()
	assert.Equal(t, models.Synced, snap.State)
	assert.Equal(t, accountA, snap.Account)
	assert.Len(t, snap.Transactions, 1)

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, 1, ledger.fetchAllCalls)
}

func TestSubmitSuccessAppendsDraft(t *testing.T) {
	ledger := &fakeLedger{}
	l, _, counts := newSyncedLifecycle(t, ledger)
	before := len(l.Snapshot().Transactions)

	require.NoError(t, l.Submit(context.Background(), validDraft()))

	snap := l.Snapshot()
	require.Len(t, snap.Transactions, before+1)
	got := snap.Transactions[len(snap.Transactions)-1]
	assert.Equal(t, models.TransactionRecord{
		Sender:    accountA.String(),
		Receiver:  receiverB,
		Amount:    got.Amount,
		Message:   "hi",
		Keyword:   "party",
		Timestamp: fixedNow,
	}, got)
	assert.True(t, decimal.RequireFromString("1.5").Equal(got.Amount))
	assert.Equal(t, "1500000000000000000", ledger.lastAmount.String())

	assert.Equal(t, models.Synced, snap.State)
	assert.Equal(t, models.SubmissionSucceeded, snap.Submission.Phase)
	assert.Equal(t, common.HexToHash("0x2").Hex(), snap.Submission.LedgerHash)
	assert.False(t, snap.Loading)

	n, ok := counts.Get(context.Background())
	assert.True(t, ok)
	assert.Equal(t, uint64(1), n)
}

func TestSubmitValidation(t *testing.T) {
	ledger := &fakeLedger{}
	l, _, _ := newSyncedLifecycle(t, ledger)

	drafts := []models.DraftInput{
		{Amount: "1", Keyword: "k", Message: "m"},
		{Receiver: receiverB, Keyword: "k", Message: "m"},
		{Receiver: receiverB, Amount: "1", Message: "m"},
		{Receiver: receiverB, Amount: "1", Keyword: "k"},
		{Receiver: receiverB, Amount: "  ", Keyword: "k", Message: "m"},
		{Receiver: "0xB", Amount: "1", Keyword: "k", Message: "m"},
		{Receiver: receiverB, Amount: "-1", Keyword: "k", Message: "m"},
		{Receiver: receiverB, Amount: "1e60", Keyword: "k", Message: "m"},
	}
	for _, d := range drafts {
		err := l.Submit(context.Background(), d)
		assert.True(t, errors.Is(err, errno.ErrInvalidDraft), "%+v", d)
	}
	assert.Equal(t, 0, ledger.submitCalls)
	snap := l.Snapshot()
	assert.Equal(t, models.Synced, snap.State)
	assert.Equal(t, models.SubmissionIdle, snap.Submission.Phase)
}

func TestSubmitRequiresSync(t *testing.T) {
	ledger := &fakeLedger{}
	l := NewLifecycle(&fakeSession{}, ledger, cache.NewTransactionCache(cache.NewMemoryStore()))
	require.NoError(t, l.Start(context.Background()))

	err := l.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, errno.ErrNotSynced))
	assert.Equal(t, 0, ledger.submitCalls)
}

func TestConcurrentSubmitRejected(t *testing.T) {
	ledger := &fakeLedger{submitBlock: make(chan struct{}), submitStarted: make(chan struct{})}
	l, _, _ := newSyncedLifecycle(t, ledger)

	done := make(chan error, 1)
	go func() { done <- l.Submit(context.Background(), validDraft()) }()
	<-ledger.submitStarted

	snap := l.Snapshot()
	assert.Equal(t, models.Submitting, snap.State)
	assert.Equal(t, models.AwaitingWalletConfirmation, snap.Submission.Phase)
	assert.True(t, snap.Loading)

	err := l.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, errno.ErrSubmissionInProgress))
	assert.Error(t, l.Refresh(context.Background()))
	assert.Empty(t, l.Snapshot().Transactions)

	close(ledger.submitBlock)
	require.NoError(t, <-done)
	assert.Len(t, l.Snapshot().Transactions, 1)
	assert.Equal(t, 1, ledger.submitCalls)
}

func TestSubmitLedgerCallFailedAfterTransfer(t *testing.T) {
	ledger := &fakeLedger{submitErr: &ledgerclient.SubmitError{
		Stage:        ledgerclient.StageLedgerAppend,
		TransferHash: common.HexToHash("0x1"),
		Err:          errors.Wrap(errno.ErrLedgerCallFailed, "execution reverted"),
	}}
	l, _, _ := newSyncedLifecycle(t, ledger)

	err := l.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, errno.ErrLedgerCallFailed))

	snap := l.Snapshot()
	assert.Equal(t, models.Synced, snap.State)
	assert.Empty(t, snap.Transactions)
	assert.Equal(t, models.SubmissionFailed, snap.Submission.Phase)
	assert.True(t, snap.Submission.Partial)
	assert.Equal(t, errno.ErrLedgerCallFailed.Code, snap.Submission.Code)
	assert.Equal(t, common.HexToHash("0x1").Hex(), snap.Submission.TransferHash)
}

func TestSubmitWalletRejectedIsNotPartial(t *testing.T) {
	ledger := &fakeLedger{submitErr: &ledgerclient.SubmitError{
		Stage: ledgerclient.StageTransfer,
		Err:   errors.Wrap(errno.ErrWalletRejected, "denied"),
	}}
	l, _, _ := newSyncedLifecycle(t, ledger)

	err := l.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, errno.ErrWalletRejected))
	snap := l.Snapshot()
	assert.False(t, snap.Submission.Partial)
	assert.Equal(t, models.SubmissionFailed, snap.Submission.Phase)
}

func TestSubmitConfirmationFailures(t *testing.T) {
	for _, confirmErr := range []error{
		errors.Wrap(errno.ErrConfirmationReverted, "reverted"),
		errors.Wrap(errno.ErrConfirmationTimeout, "timeout"),
	} {
		ledger := &fakeLedger{confirmErr: confirmErr}
		l, _, counts := newSyncedLifecycle(t, ledger)

		err := l.Submit(context.Background(), validDraft())
		assert.Error(t, err)

		snap := l.Snapshot()
		assert.Equal(t, models.Synced, snap.State)
		assert.Empty(t, snap.Transactions)
		assert.Equal(t, models.SubmissionFailed, snap.Submission.Phase)
		assert.Equal(t, common.HexToHash("0x2").Hex(), snap.Submission.LedgerHash)
		n, _ := counts.Get(context.Background())
		assert.Equal(t, uint64(0), n)
	}
}

func TestSubmitConfirmedButCountUnavailable(t *testing.T) {
	ledger := &fakeLedger{confirmErr: errors.Wrap(errno.ErrLedgerUnreachable, "count")}
	l, _, counts := newSyncedLifecycle(t, ledger)

	require.NoError(t, l.Submit(context.Background(), validDraft()))
	snap := l.Snapshot()
	assert.Len(t, snap.Transactions, 1)
	assert.Equal(t, models.SubmissionSucceeded, snap.Submission.Phase)
	n, _ := counts.Get(context.Background())
	assert.Equal(t, uint64(0), n)
}

func TestAcknowledge(t *testing.T) {
	l, _, _ := newSyncedLifecycle(t, &fakeLedger{})
	assert.False(t, l.Acknowledge())

	require.NoError(t, l.Submit(context.Background(), validDraft()))
	assert.True(t, l.Acknowledge())
	assert.Equal(t, models.SubmissionIdle, l.Snapshot().Submission.Phase)
	assert.False(t, l.Acknowledge())

	require.NoError(t, l.Submit(context.Background(), validDraft()))
	assert.Len(t, l.Snapshot().Transactions, 2)
}

func TestRefreshSkipsFullFetchWhenCountMatches(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l, _, _ := newSyncedLifecycle(t, ledger)
	require.Equal(t, 1, ledger.fetchAllCalls)

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, 1, ledger.fetchAllCalls)
	assert.Len(t, l.Snapshot().Transactions, 1)

	ledger.mu.Lock()
	ledger.records = append(ledger.records, seedRecord())
	ledger.mu.Unlock()

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, 2, ledger.fetchAllCalls)
	snap := l.Snapshot()
	assert.Len(t, snap.Transactions, 2)
	assert.Equal(t, uint64(2), *snap.CachedCount)
}

func TestRefreshFailureKeepsList(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l, _, _ := newSyncedLifecycle(t, ledger)

	ledger.mu.Lock()
	ledger.countErr = errors.Wrap(errno.ErrLedgerUnreachable, "down")
	ledger.mu.Unlock()

	err := l.Refresh(context.Background())
	assert.True(t, errors.Is(err, errno.ErrLedgerUnreachable))
	snap := l.Snapshot()
	assert.Equal(t, models.Synced, snap.State)
	assert.Len(t, snap.Transactions, 1)
}

func TestAccountLoss(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l, session, _ := newSyncedLifecycle(t, ledger)

	session.set("")
	l.AccountChanged(context.Background(), "")

	snap := l.Snapshot()
	assert.Equal(t, models.Disconnected, snap.State)
	assert.Empty(t, snap.Transactions)
	assert.True(t, snap.Account.Empty())

	err := l.Submit(context.Background(), validDraft())
	assert.True(t, errors.Is(err, errno.ErrNotSynced))
}

func TestAccountSwitchResyncs(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l, session, _ := newSyncedLifecycle(t, ledger)

	other := models.Account(receiverB)
	session.set(other)
	l.AccountChanged(context.Background(), other)

	snap := l.Snapshot()
	assert.Equal(t, models.Synced, snap.State)
	assert.Equal(t, other, snap.Account)
	assert.Len(t, snap.Transactions, 1)
}

func TestDisconnect(t *testing.T) {
	ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
	l, session, _ := newSyncedLifecycle(t, ledger)

	l.Disconnect(context.Background())
	assert.True(t, session.Current().Empty())
	snap := l.Snapshot()
	assert.Equal(t, models.Disconnected, snap.State)
	assert.Empty(t, snap.Transactions)
}

func TestAccountChangeDuringSubmission(t *testing.T) {
	cases := []struct {
		name       string
		confirming bool
		next       models.Account
	}{
		{name: "loss while submitting"},
		{name: "loss while confirming", confirming: true},
		{name: "switch while submitting", next: models.Account(receiverB)},
		{name: "switch while confirming", confirming: true, next: models.Account(receiverB)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &fakeLedger{records: []models.TransactionRecord{seedRecord()}}
			release := make(chan struct{})
			started := make(chan struct{})
			if tc.confirming {
				ledger.confirmBlock, ledger.confirmStarted = release, started
			} else {
				ledger.submitBlock, ledger.submitStarted = release, started
			}
			l, session, _ := newSyncedLifecycle(t, ledger)

			done := make(chan error, 1)
			go func() { done <- l.Submit(context.Background(), validDraft()) }()
			<-started

			session.set(tc.next)
			l.AccountChanged(context.Background(), tc.next)

			snap := l.Snapshot()
			if tc.next.Empty() {
				assert.Equal(t, models.Disconnected, snap.State)
				assert.Empty(t, snap.Transactions)
			} else {
				assert.Equal(t, models.Synced, snap.State)
				assert.Equal(t, tc.next, snap.Account)
			}
			assert.False(t, snap.Submission.Phase.Terminal())
			assert.True(t, snap.Loading)
			held := len(snap.Transactions)

			err := l.Submit(context.Background(), validDraft())
			assert.True(t, errors.Is(err, errno.ErrSubmissionInProgress))

			close(release)
			require.NoError(t, <-done)

			snap = l.Snapshot()
			assert.Len(t, snap.Transactions, held)
			assert.Equal(t, models.SubmissionSucceeded, snap.Submission.Phase)
			assert.False(t, snap.Loading)
			if tc.next.Empty() {
				assert.Equal(t, models.Disconnected, snap.State)
			} else {
				assert.Equal(t, models.Synced, snap.State)
			}
		})
	}
}
