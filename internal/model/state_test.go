package model

import "testing"

func TestItemState_IsActive(t *testing.T) {
	tests := []struct {
		state    ItemState
		expected bool
	}{
		{ItemStatePending, false},
		{ItemStateResolving, true},
		{ItemStateTransferring, true},
		{ItemStateCompleted, false},
		{ItemStateIgnored, false},
		{ItemStateSkipped, false},
		{ItemStateFailed, false},
		{ItemStateExhausted, false},
		{ItemStateCancelled, false},
	}

	for _, test := range tests {
		result := test.state.IsActive()
		if result != test.expected {
			t.Errorf("ItemState(%s).IsActive() = %v, expected %v", test.state, result, test.expected)
		}
	}
}

func TestItemState_IsFinished(t *testing.T) {
	tests := []struct {
		state    ItemState
		expected bool
	}{
		{ItemStatePending, false},
		{ItemStateResolving, false},
		{ItemStateTransferring, false},
		{ItemStateFailed, false},
		{ItemStateCompleted, true},
		{ItemStateIgnored, true},
		{ItemStateSkipped, true},
		{ItemStateExhausted, true},
		{ItemStateCancelled, true},
	}

	for _, test := range tests {
		result := test.state.IsFinished()
		if result != test.expected {
			t.Errorf("ItemState(%s).IsFinished() = %v, expected %v", test.state, result, test.expected)
		}
	}
}

func TestItemState_String(t *testing.T) {
	state := ItemStateTransferring
	expected := "transferring"
	result := state.String()

	if result != expected {
		t.Errorf("ItemState.String() = %s, expected %s", result, expected)
	}
}
