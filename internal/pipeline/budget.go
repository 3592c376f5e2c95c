package pipeline

// Budget bounds the page fetches of one invocation. Every fetch counts,
// including one that returns no rows.
type Budget struct {
	limit int
	used  int
}

// NewBudget creates a budget of limit calls. Negative limits count as zero.
func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Take consumes one call, reporting false when none are left.
func (b *Budget) Take() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Used returns the number of calls consumed.
func (b *Budget) Used() int { return b.used }

// Limit returns the configured number of calls.
func (b *Budget) Limit() int { return b.limit }

// Remaining returns the number of calls left.
func (b *Budget) Remaining() int { return b.limit - b.used }
