package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
)

// AccountHeader optionally pins a request to the account the caller expects.
const AccountHeader = "X-Wallet-Account"

// RequireAccount rejects the request unless an account is connected.
// When AccountHeader is set it must name that same account.
func RequireAccount(snapshot func() models.Snapshot) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := snapshot()
		if snap.Account.Empty() {
			abort(c, errors.Wrap(errno.ErrNotSynced, "no wallet account connected"))
			return
		}
		if want := c.GetHeader(AccountHeader); want != "" && !strings.EqualFold(want, snap.Account.String()) {
			logrus.Warnf("RequireAccount: header %s does not match connected %s", want, snap.Account)
			abort(c, errors.Wrapf(errno.ErrNotSynced, "connected account is %s", snap.Account))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errno.HTTPStatus(err), errno.NewResponse(err))
}
