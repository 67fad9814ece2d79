package model

// ItemState represents where an item is in the download state machine
type ItemState string

const (
	// ItemStatePending means the item has not been looked at in this run
	ItemStatePending ItemState = "pending"

	// ItemStateResolving means the transfer locator is being resolved
	ItemStateResolving ItemState = "resolving"

	// ItemStateTransferring means bytes are being streamed
	ItemStateTransferring ItemState = "transferring"

	// ItemStateCompleted means the destination file is complete
	ItemStateCompleted ItemState = "completed"

	// ItemStateIgnored means the user excluded the item
	ItemStateIgnored ItemState = "ignored"

	// ItemStateSkipped means the item was filtered out for this run
	ItemStateSkipped ItemState = "skipped"

	// ItemStateFailed means an attempt failed and another one will follow
	ItemStateFailed ItemState = "failed"

	// ItemStateExhausted means the attempt budget ran out for this run
	ItemStateExhausted ItemState = "exhausted"

	// ItemStateCancelled means the transfer was cancelled on request
	ItemStateCancelled ItemState = "cancelled"
)

// String returns the string representation of ItemState
func (s ItemState) String() string {
	return string(s)
}

// IsActive returns true if a transfer attempt is running in this state
func (s ItemState) IsActive() bool {
	return s == ItemStateResolving || s == ItemStateTransferring
}

// IsFinished returns true if the state is terminal for the current run
func (s ItemState) IsFinished() bool {
	switch s {
	case ItemStateCompleted, ItemStateIgnored, ItemStateSkipped,
		ItemStateExhausted, ItemStateCancelled:
		return true
	}
	return false
}
