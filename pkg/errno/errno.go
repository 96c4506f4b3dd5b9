package errno

import (
	"net/http"

	"github.com/pkg/errors"
)

// Errno is a tagged error kind. Call sites wrap it with errors.Wrap so that
// callers can branch with errors.Is without string matching.
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
)

// Wallet provider
var (
	ErrProviderUnavailable = Errno{Code: 20101, Message: "wallet provider unavailable"}
	ErrUserRejected        = Errno{Code: 20102, Message: "user rejected the request"}
	ErrWalletRejected      = Errno{Code: 20103, Message: "wallet rejected the transfer"}
	ErrTransferFailed      = Errno{Code: 20104, Message: "native transfer failed"}
)

// Ledger contract
var (
	ErrLedgerUnreachable    = Errno{Code: 20201, Message: "ledger unreachable"}
	ErrLedgerCallFailed     = Errno{Code: 20202, Message: "ledger call failed"}
	ErrConfirmationTimeout  = Errno{Code: 20203, Message: "confirmation timed out"}
	ErrConfirmationReverted = Errno{Code: 20204, Message: "ledger transaction reverted"}
)

// Lifecycle
var (
	ErrInvalidDraft         = Errno{Code: 20301, Message: "invalid submission input"}
	ErrSubmissionInProgress = Errno{Code: 20302, Message: "a submission is already in progress"}
	ErrNotSynced            = Errno{Code: 20303, Message: "account is not connected and synced"}
	ErrBusy                 = Errno{Code: 20304, Message: "a connect or sync is already running"}
)

var statusByCode = map[int]int{
	ErrBind.Code:                 http.StatusBadRequest,
	ErrProviderUnavailable.Code:  http.StatusServiceUnavailable,
	ErrUserRejected.Code:         http.StatusForbidden,
	ErrWalletRejected.Code:       http.StatusForbidden,
	ErrTransferFailed.Code:       http.StatusBadGateway,
	ErrLedgerUnreachable.Code:    http.StatusBadGateway,
	ErrLedgerCallFailed.Code:     http.StatusBadGateway,
	ErrConfirmationTimeout.Code:  http.StatusGatewayTimeout,
	ErrConfirmationReverted.Code: http.StatusBadGateway,
	ErrInvalidDraft.Code:         http.StatusBadRequest,
	ErrSubmissionInProgress.Code: http.StatusConflict,
	ErrNotSynced.Code:            http.StatusConflict,
	ErrBusy.Code:                 http.StatusConflict,
}

// Kind returns the innermost Errno of err, or InternalServerError if there is none.
func Kind(err error) Errno {
	if err == nil {
		return OK
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return InternalServerError
}

// Decode tries to convert an error to a code and a human readable message.
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}
	return Kind(err).Code, err.Error()
}

// Response is the JSON error body of the HTTP API.
type Response struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func NewResponse(err error) Response {
	code, message := Decode(err)
	return Response{Code: code, Message: message}
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[Kind(err).Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
