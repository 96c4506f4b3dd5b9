package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/pkg/errno"
)

type Error = errno.Response

func newErrorResponse(c *gin.Context, statusCode int, message string) {
	logrus.Error(message)
	c.AbortWithStatusJSON(statusCode, Error{Message: message})
}

// newErrnoResponse picks the status and code from the error kind.
func newErrnoResponse(c *gin.Context, err error) {
	body := errno.NewResponse(err)
	logrus.WithField("code", body.Code).Error(body.Message)
	c.AbortWithStatusJSON(errno.HTTPStatus(err), body)
}

func wrapOkJSON(c *gin.Context, response map[string]interface{}) {
	c.JSON(http.StatusOK, response)
}
