package ledger

// PreviousBalance sums the balances of every saved session that strictly
// precedes current in (date, id) order. Saved balances are frozen at save
// time and are not recomputed here. Drafts never contribute.
func PreviousBalance(sessions []*Session, current *Session) int64 {
	var sum int64
	for _, s := range sessions {
		if !s.Saved() || s.Key == current.Key {
			continue
		}
		if sessionBefore(s, current) {
			sum += s.Balance
		}
	}
	return sum
}

// TotalOwed is the display figure: everything outstanding through the
// current session. It may be negative, meaning credit in the patient's
// favor.
func TotalOwed(sessions []*Session, current *Session) int64 {
	return PreviousBalance(sessions, current) + current.Balance
}
