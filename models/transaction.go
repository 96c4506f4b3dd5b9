package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const displayTimeLayout = "2006-01-02 15:04:05"

// TransactionRecord is one entry of the ledger log, already scaled to display units.
type TransactionRecord struct {
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	Keyword   string          `json:"keyword"`
	Timestamp time.Time       `json:"timestamp"`
}

// DisplayTime renders the timestamp in the local zone of the process.
func (r TransactionRecord) DisplayTime() string {
	return r.Timestamp.Local().Format(displayTimeLayout)
}

type TransactionView struct {
	TransactionRecord
	DisplayTime string `json:"display_time"`
	SenderURL   string `json:"sender_url,omitempty"`
	ReceiverURL string `json:"receiver_url,omitempty"`
}

func NewTransactionView(r TransactionRecord, explorerBase string) TransactionView {
	v := TransactionView{
		TransactionRecord: r,
		DisplayTime:       r.DisplayTime(),
	}
	if explorerBase != "" {
		v.SenderURL = explorerBase + "/address/" + r.Sender
		v.ReceiverURL = explorerBase + "/address/" + r.Receiver
	}
	return v
}
