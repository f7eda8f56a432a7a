package claim

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []State{
		StateNew, StateAssigned, StateInitialReview, StateCodingReview,
		StateBillingReview, StateReadyForSubmission, StateBatchCreated,
		StateSubmittedToClearinghouse, StateSentToPayer, StateUnderPayerReview,
		StatePaid, StatePaymentPosted, StateClosed,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsSkips(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateNew, StateCodingReview},
		{StateNew, StateClosed},
		{StateInitialReview, StateBillingReview},
		{StateAssigned, StateReadyForSubmission},
		{StateSentToPayer, StatePaid},
		{StateDenied, StatePaid},
		{StatePaid, StateDenied},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	if !StateClosed.IsTerminal() {
		t.Fatal("closed must be terminal")
	}
	if len(NextStates(StateClosed)) != 0 {
		t.Fatal("closed must have no outgoing edges")
	}
	for from := range adjacency {
		if from == StateClosed {
			continue
		}
		if from.IsTerminal() {
			t.Errorf("%s must not be terminal", from)
		}
	}
}

func TestEveryStateReachesClosed(t *testing.T) {
	// Closed must be reachable from every state, otherwise a claim can be
	// stranded forever.
	reaches := map[State]bool{StateClosed: true}
	for i := 0; i < len(adjacency); i++ {
		for from, edges := range adjacency {
			for _, to := range edges {
				if reaches[to] {
					reaches[from] = true
				}
			}
		}
	}
	for from := range adjacency {
		if !reaches[from] {
			t.Errorf("%s cannot reach closed", from)
		}
	}
}

func TestAdjacencyTargetsAreValid(t *testing.T) {
	for from, edges := range adjacency {
		for _, to := range edges {
			if !to.IsValid() {
				t.Errorf("%s lists unknown target %q", from, to)
			}
		}
	}
}

func TestRejectedBatchReturnsClaims(t *testing.T) {
	// A clearinghouse rejection unwinds the submission stages back to
	// ready_for_submission.
	if !CanTransition(StateBatchCreated, StateReadyForSubmission) {
		t.Error("batch_created must be able to fall back to ready_for_submission")
	}
	if !CanTransition(StateSubmittedToClearinghouse, StateReadyForSubmission) {
		t.Error("submitted_to_clearinghouse must be able to fall back to ready_for_submission")
	}
}

func TestIsValid(t *testing.T) {
	if State("bogus").IsValid() {
		t.Error("unknown state must not validate")
	}
	if !StateFloatingPool.IsValid() {
		t.Error("floating_pool must validate")
	}
}

func TestIsTimed(t *testing.T) {
	timed := []State{StateAssigned, StateInitialReview, StateCodingReview, StateBillingReview, StateReadyForSubmission}
	for _, s := range timed {
		if !s.IsTimed() {
			t.Errorf("%s should carry an SLA timer", s)
		}
	}
	untimed := []State{StateNew, StateFloatingPool, StateBatchCreated, StateSentToPayer, StateClosed}
	for _, s := range untimed {
		if s.IsTimed() {
			t.Errorf("%s should not carry an SLA timer", s)
		}
	}
}

func TestUrgencyOrdering(t *testing.T) {
	if StateDenied.Urgency() <= StateInitialReview.Urgency() {
		t.Error("denial work must outrank routine review")
	}
	if StateClosed.Urgency() != 0 {
		t.Error("terminal states carry no urgency")
	}
}

func TestGroupingKey(t *testing.T) {
	a := &Claim{SOWRef: "sow-1", ClaimFormat: "837P", ContractType: "ffs"}
	b := &Claim{SOWRef: "sow-1", ClaimFormat: "837P", ContractType: "ffs"}
	c := &Claim{SOWRef: "sow-1", ClaimFormat: "837I", ContractType: "ffs"}
	if a.GroupingKey() != b.GroupingKey() {
		t.Error("identical sow/format/contract must share a grouping key")
	}
	if a.GroupingKey() == c.GroupingKey() {
		t.Error("different claim formats must not share a grouping key")
	}
}
