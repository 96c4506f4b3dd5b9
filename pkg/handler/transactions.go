package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/models"
	"transfer_ledger_back/pkg/errno"
)

func (h *Handler) views(records []models.TransactionRecord) []models.TransactionView {
	out := make([]models.TransactionView, 0, len(records))
	for _, r := range records {
		out = append(out, models.NewTransactionView(r, h.explorer))
	}
	return out
}

func (h *Handler) GetTransactions(c *gin.Context) {
	snap := h.service.Snapshot()
	wrapOkJSON(c, map[string]interface{}{
		"transactions": h.views(snap.Transactions),
		"count":        len(snap.Transactions),
	})
}

// SubmitTransaction runs the whole transfer and blocks until the ledger
// append is confirmed or failed. Body: {receiver, amount, keyword, message}.
func (h *Handler) SubmitTransaction(c *gin.Context) {
	var input models.DraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, errno.ErrInvalidDraft.Message+": "+err.Error())
		return
	}

	err := h.service.Submit(c.Request.Context(), input)
	snap := h.service.Snapshot()
	if err != nil {
		code, message := errno.Decode(err)
		c.AbortWithStatusJSON(errno.HTTPStatus(err), map[string]interface{}{
			"code":       code,
			"message":    message,
			"submission": snap.Submission,
		})
		return
	}

	// Warm the image cache for the new record's keyword.
	h.service.FetchAsync(context.WithoutCancel(c.Request.Context()), input.Keyword, func(url string) {
		logrus.WithFields(logrus.Fields{"keyword": input.Keyword, "url": url}).Debug("decoration prefetched")
	})

	wrapOkJSON(c, map[string]interface{}{
		"submission":   snap.Submission,
		"transactions": h.views(snap.Transactions),
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	if err := h.service.Refresh(c.Request.Context()); err != nil {
		newErrnoResponse(c, err)
		return
	}
	snap := h.service.Snapshot()
	wrapOkJSON(c, map[string]interface{}{
		"transactions": h.views(snap.Transactions),
		"count":        len(snap.Transactions),
	})
}

func (h *Handler) Acknowledge(c *gin.Context) {
	wrapOkJSON(c, map[string]interface{}{
		"reset":      h.service.Acknowledge(),
		"submission": h.service.Snapshot().Submission,
	})
}

// GetDecoration never fails; a lookup problem yields the fallback image.
func (h *Handler) GetDecoration(c *gin.Context) {
	keyword := c.Query("keyword")
	url := h.service.Fetch(c.Request.Context(), keyword)
	wrapOkJSON(c, map[string]interface{}{
		"keyword":  keyword,
		"url":      url,
		"fallback": url == h.service.FallbackURL(),
	})
}
