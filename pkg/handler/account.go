package handler

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetState(c *gin.Context) {
	snap := h.service.Snapshot()
	wrapOkJSON(c, map[string]interface{}{
		"state":        snap.State,
		"account":      snap.Account,
		"transactions": h.views(snap.Transactions),
		"submission":   snap.Submission,
		"cached_count": snap.CachedCount,
		"loading":      snap.Loading,
		"last_error":   snap.LastError,
	})
}

func (h *Handler) GetAccount(c *gin.Context) {
	snap := h.service.Snapshot()
	wrapOkJSON(c, map[string]interface{}{
		"account": snap.Account,
		"state":   snap.State,
	})
}

// Connect prompts the wallet for an account and syncs its transactions.
func (h *Handler) Connect(c *gin.Context) {
	if err := h.service.Connect(c.Request.Context()); err != nil {
		newErrnoResponse(c, err)
		return
	}
	snap := h.service.Snapshot()
	wrapOkJSON(c, map[string]interface{}{
		"account": snap.Account,
		"state":   snap.State,
	})
}

func (h *Handler) Disconnect(c *gin.Context) {
	h.service.Disconnect(c.Request.Context())
	wrapOkJSON(c, map[string]interface{}{
		"state": h.service.Snapshot().State,
	})
}
