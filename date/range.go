package date

import "iter"

// Range represents an inclusive range of calendar days.
type Range struct{ From, To Date }

// NewRange returns the range [from, to].
func NewRange(from, to Date) Range { return Range{From: from, To: to} }

// LastDays returns the range of the n calendar days ending on end (included).
// n lower than 1 is treated as 1.
func LastDays(end Date, n int) Range {
	if n < 1 {
		n = 1
	}
	return Range{From: end.Add(1 - n), To: end}
}

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Extend returns the range with its start moved n days earlier.
func (r Range) Extend(n int) Range { return Range{From: r.From.Add(-n), To: r.To} }

// Days iterates over every calendar day of the range in chronological order.
func (r Range) Days() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.From; !d.After(r.To); d = d.Add(1) {
			if !yield(d) {
				return
			}
		}
	}
}
