package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/internal/wallet"
	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
)

// Session owns the single currently authorized account.
const DefaultWatchInterval = 3 * time.Second

type Session struct {
	provider wallet.Provider

	mu      sync.RWMutex
	account models.Account
}

func NewSession(provider wallet.Provider) *Session {
	return &Session{provider: provider}
}

func (s *Session) Current() models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) set(account models.Account) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

// Forget drops the account and, where the provider supports it, its
// authorization, so a later Restore does not bring it back.
func (s *Session) Forget() {
	if r, ok := s.provider.(wallet.Revoker); ok {
		r.Revoke()
	}
	s.set("")
	logrus.Info("account forgotten")
}

// Restore asks the provider for already authorized accounts without prompting.
// An empty account with a nil error means the user has not authorized yet;
// errno.ErrProviderUnavailable means there is nobody to ask.
func (s *Session) Restore(ctx context.Context) (models.Account, error) {
	if s.provider == nil || !s.provider.HasProvider() {
		return "", errno.ErrProviderUnavailable
	}
	accounts, err := s.provider.QueryAccounts(ctx)
	if err != nil {
		s.set("")
		if errors.Is(err, errno.ErrProviderUnavailable) {
			return "", err
		}
		return "", errors.Wrap(errno.ErrProviderUnavailable, err.Error())
	}
	if len(accounts) == 0 {
		logrus.Info("no authorized accounts found")
		s.set("")
		return "", nil
	}
	account := normalize(accounts[0].Hex())
	s.set(account)
	return account, nil
}

// Request prompts the user. On success the returned account replaces any previous one.
func (s *Session) Request(ctx context.Context) (models.Account, error) {
	if s.provider == nil || !s.provider.HasProvider() {
		return "", errno.ErrProviderUnavailable
	}
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", errors.Wrap(errno.ErrUserRejected, "provider returned no accounts")
	}
	account := normalize(accounts[0].Hex())
	s.set(account)
	logrus.WithField("account", account).Info("account connected")
	return account, nil
}

// Watch polls the provider until ctx is done and calls onChange whenever the
// authorized account differs from the current one. A failed query counts as
// account loss. A non-positive interval falls back to DefaultWatchInterval.
func (s *Session) Watch(ctx context.Context, interval time.Duration, onChange func(models.Account)) {
	if interval <= 0 {
		logrus.Warnf("watch interval %s is not positive, using %s", interval, DefaultWatchInterval)
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, onChange)
		}
	}
}

func (s *Session) poll(ctx context.Context, onChange func(models.Account)) {
	before := s.Current()
	if before.Empty() {
		return
	}
	var after models.Account
	if s.provider != nil && s.provider.HasProvider() {
		accounts, err := s.provider.QueryAccounts(ctx)
		if err != nil {
			logrus.Warnf("account poll failed: %s", err)
		} else if len(accounts) > 0 {
			after = normalize(accounts[0].Hex())
		}
	}
	if after == before {
		return
	}
	s.set(after)
	logrus.WithFields(logrus.Fields{"from": before, "to": after}).Info("authorized account changed")
	if onChange != nil {
		onChange(after)
	}
}

func normalize(hex string) models.Account {
	return models.Account(strings.ToLower(hex))
}
