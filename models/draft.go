package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const maxAmountDecimals = 18

// DraftInput is the submission form as handed over by the presentation layer.
type DraftInput struct {
	Receiver string `json:"receiver" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Keyword  string `json:"keyword" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// Validate checks that every field is filled in and that receiver and amount are well formed.
func (d DraftInput) Validate() error {
	if strings.TrimSpace(d.Receiver) == "" || strings.TrimSpace(d.Amount) == "" ||
		strings.TrimSpace(d.Keyword) == "" || strings.TrimSpace(d.Message) == "" {
		return errors.New("receiver, amount, keyword and message are required")
	}
	if !common.IsHexAddress(strings.TrimSpace(d.Receiver)) {
		return errors.Errorf("receiver %q is not a valid account", d.Receiver)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(d.Amount))
	if err != nil {
		return errors.Wrapf(err, "amount %q", d.Amount)
	}
	if amount.IsNegative() {
		return errors.Errorf("amount %s is negative", amount)
	}
	if !amount.Equal(amount.Truncate(maxAmountDecimals)) {
		return errors.Errorf("amount %s has more than %d decimals", amount, maxAmountDecimals)
	}
	return nil
}
