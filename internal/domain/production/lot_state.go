package production

// DecisionOutcome returns the lot status a QC decision leads to from the
// current status. changed is false when the decision confirms the status.
func DecisionOutcome(current, decision string) (next string, changed bool, err error) {
	if !IsDecision(decision) {
		return current, false, Errorf(ErrValidation, "unknown QC decision %q", decision)
	}
	switch current {
	case LotQuarantine:
		switch decision {
		case DecisionPass:
			return LotReleased, true, nil
		case DecisionHold:
			return LotHold, true, nil
		default:
			return LotRejected, true, nil
		}
	case LotHold:
		switch decision {
		case DecisionPass:
			return LotReleased, true, nil
		case DecisionHold:
			return LotHold, false, nil
		default:
			return LotRejected, true, nil
		}
	case LotReleased:
		switch decision {
		case DecisionPass:
			return LotReleased, false, nil
		case DecisionHold:
			return LotHold, true, nil
		default:
			return LotRejected, true, nil
		}
	}
	return current, false, Errorf(ErrStateConflict, "lot in status %s cannot take a QC decision", current)
}

// CanLinkAsParent reports whether a lot may feed a child lot.
func CanLinkAsParent(status string) bool {
	return status == LotReleased || status == LotConsumed
}

// IsTerminalLot reports statuses where core fields are frozen.
func IsTerminalLot(status string) bool {
	return status == LotConsumed || status == LotFinished
}

// CanFinish reports whether a CONSUMED lot has been fully processed: it has
// at least one child and every child is FINISHED or REJECTED.
func CanFinish(status string, childStatuses []string) bool {
	if status != LotConsumed || len(childStatuses) == 0 {
		return false
	}
	for _, s := range childStatuses {
		if s != LotFinished && s != LotRejected {
			return false
		}
	}
	return true
}

// HoldOnTemperatureViolation reports whether a violation should put the lot on HOLD.
func HoldOnTemperatureViolation(status string) bool {
	return status == LotReleased || status == LotQuarantine || status == LotCreated
}
