package ledger

// Recompute refreshes a session's derived financial figures in place:
// every line subtotal, the budget (unless manual mode holds it), and the
// balance. It is total and idempotent; malformed numeric input (negative
// price or quantity) is treated as zero rather than rejected, because a
// transient bad keystroke must never block charting.
func Recompute(s *Session, manualBudget bool) {
	var activeTotal int64
	for i := range s.Lines {
		line := &s.Lines[i]
		line.Subtotal = nonNegative(line.UnitPrice) * nonNegative(line.Quantity)
		if line.Active {
			activeTotal += line.Subtotal
		}
	}

	if !manualBudget {
		s.Budget = activeTotal
	}
	s.Balance = s.Budget - s.Discount - s.Payment
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
