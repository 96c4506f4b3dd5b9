package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
	"transfer_ledger_back/pkg/ledgerclient"
	"transfer_ledger_back/pkg/units"
)

// Lifecycle owns the transaction list and the submission state. It moves
// Disconnected -> Connecting -> Synced -> Submitting -> Confirming -> Synced.
// Illegal transitions are rejected, never queued. I/O runs outside mu.
type Lifecycle struct {
	session AccountSession
	ledger  Ledger
	cache   CountCache
	now     func() time.Time

	mu           sync.Mutex
	state        models.LifecycleState
	transactions []models.TransactionRecord
	submission   models.Submission
	cachedCount  *uint64
	lastErr      string
}

func NewLifecycle(session AccountSession, ledger Ledger, cache CountCache) *Lifecycle {
	return &Lifecycle{
		session: session,
		ledger:  ledger,
		cache:   cache,
		now:     time.Now,
		state:   models.Disconnected,
	}
}

// Start loads the cached count hint and tries a silent reconnect. A nil error
// with state Disconnected means the user simply has not authorized yet.
func (l *Lifecycle) Start(ctx context.Context) error {
	if n, ok := l.cache.Get(ctx); ok {
		l.mu.Lock()
		l.cachedCount = &n
		l.mu.Unlock()
	}

	if err := l.begin(models.Disconnected); err != nil {
		return err
	}
	account, err := l.session.Restore(ctx)
	if err != nil {
		logrus.Warnf("silent reconnect failed: %s", err)
		l.settle(models.Disconnected, err)
		return err
	}
	if account.Empty() {
		logrus.Info("no authorized account, staying disconnected")
		l.settle(models.Disconnected, nil)
		return nil
	}
	return l.sync(ctx, account, models.Disconnected, false)
}

// Connect prompts for an account. It is a no-op when already synced.
func (l *Lifecycle) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state == models.Synced {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.begin(models.Disconnected); err != nil {
		return err
	}
	account, err := l.session.Request(ctx)
	if err != nil {
		logrus.Warnf("account request failed: %s", err)
		l.settle(models.Disconnected, err)
		return err
	}
	return l.sync(ctx, account, models.Disconnected, false)
}

// Refresh re-syncs from the ledger. The full log is only re-read when the
// authoritative count differs from the list held in memory.
func (l *Lifecycle) Refresh(ctx context.Context) error {
	if err := l.begin(models.Synced); err != nil {
		return err
	}
	return l.sync(ctx, l.session.Current(), models.Synced, true)
}

// AccountChanged handles the provider reporting a different (or no) account.
func (l *Lifecycle) AccountChanged(ctx context.Context, account models.Account) {
	l.mu.Lock()
	l.state = models.Disconnected
	l.transactions = nil
	l.mu.Unlock()

	if account.Empty() {
		logrus.Info("account lost, lifecycle disconnected")
		return
	}
	if err := l.begin(models.Disconnected); err != nil {
		return
	}
	if err := l.sync(ctx, account, models.Disconnected, false); err != nil {
		logrus.Warnf("sync for %s failed: %s", account, err)
	}
}

// Disconnect forgets the current account and clears the list.
func (l *Lifecycle) Disconnect(ctx context.Context) {
	l.session.Forget()
	l.AccountChanged(ctx, "")
}

// begin moves from the expected state to Connecting.
func (l *Lifecycle) begin(from models.LifecycleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return stateError(l.state)
	}
	l.state = models.Connecting
	return nil
}

func (l *Lifecycle) settle(state models.LifecycleState, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == models.Connecting {
		l.state = state
	}
	l.setError(err)
}

func (l *Lifecycle) setError(err error) {
	if err != nil {
		l.lastErr = err.Error()
	} else {
		l.lastErr = ""
	}
}

func (l *Lifecycle) sync(ctx context.Context, account models.Account, fallback models.LifecycleState, reuse bool) error {
	log := logrus.WithField("account", account)

	count, err := l.ledger.FetchCount(ctx, account)
	if err != nil {
		log.Errorf("fetch transaction count: %s", err)
		l.settle(fallback, err)
		return err
	}

	l.mu.Lock()
	held := uint64(len(l.transactions))
	l.mu.Unlock()

	fetch := !reuse || count != held
	var records []models.TransactionRecord
	if fetch {
		records, err = l.ledger.FetchAllTransactions(ctx, account)
		if err != nil {
			log.Errorf("fetch transactions: %s", err)
			l.settle(fallback, err)
			return err
		}
		if uint64(len(records)) != count {
			log.Warnf("ledger reported %d transactions but returned %d", count, len(records))
		}
	}

	l.mu.Lock()
	if l.state != models.Connecting || l.session.Current() != account {
		l.mu.Unlock()
		return errors.Wrap(errno.ErrNotSynced, "account changed during sync")
	}
	if fetch {
		l.transactions = records
	}
	l.cachedCount = &count
	l.state = models.Synced
	l.lastErr = ""
	l.mu.Unlock()

	if err := l.cache.Set(ctx, count); err != nil {
		log.Warnf("cache transaction count: %s", err)
	}
	log.WithField("count", count).Info("transactions synced")
	return nil
}

// Submit validates the draft and runs the transfer + ledger append flow to
// completion. The caller's cancellation does not interrupt a started flow.
func (l *Lifecycle) Submit(ctx context.Context, draft models.DraftInput) error {
	if err := draft.Validate(); err != nil {
		return errors.Wrap(errno.ErrInvalidDraft, err.Error())
	}
	amount, err := units.ParseAmount(draft.Amount)
	if err != nil {
		return errors.Wrap(errno.ErrInvalidDraft, err.Error())
	}
	receiver := strings.TrimSpace(draft.Receiver)

	l.mu.Lock()
	if !l.submission.Phase.Terminal() || l.state == models.Submitting || l.state == models.Confirming {
		l.mu.Unlock()
		return errno.ErrSubmissionInProgress
	}
	if l.state != models.Synced {
		err := stateError(l.state)
		l.mu.Unlock()
		return err
	}
	account := l.session.Current()
	l.state = models.Submitting
	l.submission = models.Submission{Phase: models.AwaitingWalletConfirmation}
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	log := logrus.WithFields(logrus.Fields{"account": account, "receiver": receiver, "amount": draft.Amount})

	handle, err := l.ledger.Submit(ctx, account, receiver, amount, draft.Message, draft.Keyword)
	if err != nil {
		log.Errorf("submit failed: %s", err)
		l.failSubmission(err, ledgerclient.Handle{})
		return err
	}

	l.mu.Lock()
	if l.state == models.Submitting {
		l.state = models.Confirming
	}
	l.submission = models.Submission{
		Phase:        models.AwaitingLedgerConfirmation,
		TransferHash: handle.TransferHash.Hex(),
		LedgerHash:   handle.LedgerHash.Hex(),
	}
	l.mu.Unlock()

	count, err := l.ledger.AwaitConfirmation(ctx, account, handle)
	countKnown := err == nil
	if err != nil && !errors.Is(err, errno.ErrLedgerUnreachable) {
		log.Errorf("confirmation failed: %s", err)
		l.failSubmission(err, handle)
		return err
	}
	if !countKnown {
		log.Warnf("append confirmed but count refresh failed: %s", err)
	}

	record := models.TransactionRecord{
		Sender:    account.String(),
		Receiver:  receiver,
		Amount:    units.FromCanonical(amount),
		Message:   draft.Message,
		Keyword:   draft.Keyword,
		Timestamp: l.now().UTC(),
	}

	l.mu.Lock()
	if l.state == models.Confirming {
		l.transactions = append(l.transactions, record)
		l.state = models.Synced
	}
	l.submission = models.Submission{
		Phase:        models.SubmissionSucceeded,
		TransferHash: handle.TransferHash.Hex(),
		LedgerHash:   handle.LedgerHash.Hex(),
	}
	if countKnown {
		l.cachedCount = &count
	}
	l.lastErr = ""
	l.mu.Unlock()

	if countKnown {
		if err := l.cache.Set(ctx, count); err != nil {
			log.Warnf("cache transaction count: %s", err)
		}
	}
	log.WithField("count", count).Info("submission confirmed")
	return nil
}

func (l *Lifecycle) failSubmission(err error, h ledgerclient.Handle) {
	sub := models.Submission{
		Phase:  models.SubmissionFailed,
		Reason: err.Error(),
		Code:   errno.Kind(err).Code,
	}
	if h.TransferHash != (common.Hash{}) {
		sub.TransferHash = h.TransferHash.Hex()
	}
	if h.LedgerHash != (common.Hash{}) {
		sub.LedgerHash = h.LedgerHash.Hex()
	}
	var subErr *ledgerclient.SubmitError
	if errors.As(err, &subErr) {
		sub.Partial = subErr.Partial()
		if subErr.TransferHash != (common.Hash{}) {
			sub.TransferHash = subErr.TransferHash.Hex()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.submission = sub
	if l.state == models.Submitting || l.state == models.Confirming {
		l.state = models.Synced
	}
	l.lastErr = err.Error()
}

// Acknowledge resets a finished submission to Idle.
func (l *Lifecycle) Acknowledge() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.submission.Phase {
	case models.SubmissionSucceeded, models.SubmissionFailed:
		l.submission = models.Submission{Phase: models.SubmissionIdle}
		return true
	default:
		return false
	}
}

func (l *Lifecycle) Snapshot() models.Snapshot {
	account := l.session.Current()

	l.mu.Lock()
	defer l.mu.Unlock()
	snap := models.Snapshot{
		State:        l.state,
		Account:      account,
		Transactions: make([]models.TransactionRecord, len(l.transactions)),
		Submission:   l.submission,
		Loading:      l.state == models.Submitting || l.state == models.Confirming || !l.submission.Phase.Terminal(),
		LastError:    l.lastErr,
	}
	copy(snap.Transactions, l.transactions)
	if l.cachedCount != nil {
		n := *l.cachedCount
		snap.CachedCount = &n
	}
	return snap
}

func stateError(state models.LifecycleState) error {
	switch state {
	case models.Submitting, models.Confirming:
		return errno.ErrSubmissionInProgress
	case models.Connecting:
		return errno.ErrBusy
	default:
		return errors.Wrapf(errno.ErrNotSynced, "lifecycle is %s", state)
	}
}
