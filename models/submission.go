package models

type SubmissionPhase int

const (
	SubmissionIdle SubmissionPhase = iota
	AwaitingWalletConfirmation
	AwaitingLedgerConfirmation
	SubmissionSucceeded
	SubmissionFailed
)

func (p SubmissionPhase) String() string {
	switch p {
	case SubmissionIdle:
		return "idle"
	case AwaitingWalletConfirmation:
		return "awaiting_wallet_confirmation"
	case AwaitingLedgerConfirmation:
		return "awaiting_ledger_confirmation"
	case SubmissionSucceeded:
		return "succeeded"
	case SubmissionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p SubmissionPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether a new submission may start from this phase.
func (p SubmissionPhase) Terminal() bool {
	return p == SubmissionIdle || p == SubmissionSucceeded || p == SubmissionFailed
}

// Submission describes the single in-flight (or last finished) submission.
// Partial is set when the native transfer went through but the ledger append did not.
type Submission struct {
	Phase        SubmissionPhase `json:"phase"`
	Reason       string          `json:"reason,omitempty"`
	Code         int             `json:"code,omitempty"`
	Partial      bool            `json:"partial,omitempty"`
	TransferHash string          `json:"transfer_hash,omitempty"`
	LedgerHash   string          `json:"ledger_hash,omitempty"`
}
