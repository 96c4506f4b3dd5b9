package models

// LifecycleState is the coarse state of the transaction lifecycle.
type LifecycleState int

const (
	Disconnected LifecycleState = iota
	Connecting
	Synced
	Submitting
	Confirming
)

func (s LifecycleState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Synced:
		return "synced"
	case Submitting:
		return "submitting"
	case Confirming:
		return "confirming"
	default:
		return "unknown"
	}
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is the read-only view of the lifecycle handed to the presentation layer.
type Snapshot struct {
	State        LifecycleState      `json:"state"`
	Account      Account             `json:"account"`
	Transactions []TransactionRecord `json:"transactions"`
	Submission   Submission          `json:"submission"`
	CachedCount  *uint64             `json:"cached_count,omitempty"`
	Loading      bool                `json:"loading"`
	LastError    string              `json:"last_error,omitempty"`
}
