package escrow

// transitions maps each post-creation operation to the statuses it may be
// applied from and the status it produces. Refund from Funded additionally
// requires the timeout to have elapsed; the engine checks that lazily.
var transitions = map[Operation]struct {
	from []Status
	to   Status
}{
	OpFund:    {from: []Status{StatusPending}, to: StatusFunded},
	OpSubmit:  {from: []Status{StatusFunded}, to: StatusSubmitted},
	OpApprove: {from: []Status{StatusSubmitted}, to: StatusApproved},
	OpRelease: {from: []Status{StatusApproved}, to: StatusComplete},
	OpDispute: {from: []Status{StatusFunded, StatusSubmitted}, to: StatusDisputed},
	OpRefund:  {from: []Status{StatusDisputed, StatusFunded}, to: StatusRefunded},
}

// CanTransition reports whether op is allowed from status.
func CanTransition(op Operation, from Status) bool {
	edge, ok := transitions[op]
	if !ok {
		return false
	}
	for _, s := range edge.from {
		if s == from {
			return true
		}
	}
	return false
}

// TargetStatus returns the status op produces. Create yields Pending.
func TargetStatus(op Operation) (Status, bool) {
	if op == OpCreate {
		return StatusPending, true
	}
	edge, ok := transitions[op]
	return edge.to, ok
}

func statusError(op Operation, current Status) error {
	return &StatusError{Op: op, Status: current}
}
