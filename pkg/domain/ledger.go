package domain

import "math"

// Batch is a (quantity, age) record inside a container's ledger. Quantity is
// strictly positive for any batch stored in a ledger; age is expressed in
// spoilage periods and never decreases.
type Batch struct {
	Quantity float64 `json:"quantity"`
	Age      float64 `json:"age"`
}

// Ledger is an ordered sequence of batches, oldest first. All mutating
// operations preserve FIFO order and never leave a zero or negative
// quantity batch behind.
type Ledger []Batch

// DefaultMergeAgeTolerance bounds batch-count growth from many small
// incremental adds: batches whose ages differ by no more than this are
// collapsed on insert.
const DefaultMergeAgeTolerance = 0.1

// Add appends a batch with the given quantity and age, then merges similar
// batches. Non-finite or non-positive quantities are ignored.
func (l *Ledger) Add(quantity, age float64) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		return
	}
	if math.IsNaN(age) || math.IsInf(age, 0) || age < 0 {
		age = 0
	}
	*l = append(*l, Batch{Quantity: quantity, Age: age})
	l.MergeSimilar(DefaultMergeAgeTolerance)
}

// AgeAll increments the age of every batch by the given amount. Negative
// increments are ignored; age only moves forward.
func (l Ledger) AgeAll(increment float64) {
	if increment <= 0 || math.IsNaN(increment) || math.IsInf(increment, 0) {
		return
	}
	for i := range l {
		l[i].Age += increment
	}
}

// RemoveExpired removes, in place, every batch whose age has reached the
// threshold, preserving the relative order of survivors. It returns the
// total quantity removed.
func (l *Ledger) RemoveExpired(threshold float64) float64 {
	var removed float64
	kept := (*l)[:0]
	for _, b := range *l {
		if b.Age >= threshold {
			removed += b.Quantity
			continue
		}
		kept = append(kept, b)
	}
	*l = kept
	return removed
}

// MergeSimilar collapses batches whose ages fall within ageTolerance of one
// another into a single batch carrying the quantity-weighted average age.
// Only adjacent batches are considered so FIFO order is preserved; the
// operation is idempotent for an already-merged ledger.
func (l *Ledger) MergeSimilar(ageTolerance float64) {
	if len(*l) < 2 || ageTolerance < 0 {
		return
	}
	merged := make(Ledger, 0, len(*l))
	for _, b := range *l {
		if b.Quantity <= 0 {
			continue
		}
		if n := len(merged); n > 0 && math.Abs(merged[n-1].Age-b.Age) <= ageTolerance {
			prev := merged[n-1]
			total := prev.Quantity + b.Quantity
			merged[n-1] = Batch{
				Quantity: total,
				Age:      (prev.Age*prev.Quantity + b.Age*b.Quantity) / total,
			}
			continue
		}
		merged = append(merged, b)
	}
	*l = merged
}

// ConsumeFIFO removes up to amount from the ledger, oldest batch first. It
// may consume less than requested when the ledger holds insufficient
// quantity. The exact (quantity, age) records removed are returned for
// downstream transfer correlation.
func (l *Ledger) ConsumeFIFO(amount float64) (float64, []Batch) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, nil
	}
	var consumed float64
	var records []Batch
	remaining := amount
	out := (*l)[:0]
	for i, b := range *l {
		if remaining <= 0 {
			out = append(out, (*l)[i:]...)
			break
		}
		if b.Quantity <= remaining {
			records = append(records, b)
			consumed += b.Quantity
			remaining -= b.Quantity
			continue
		}
		records = append(records, Batch{Quantity: remaining, Age: b.Age})
		consumed += remaining
		out = append(out, Batch{Quantity: b.Quantity - remaining, Age: b.Age})
		remaining = 0
	}
	*l = out
	return consumed, records
}

// Peek performs the same oldest-first walk as ConsumeFIFO without mutating
// the ledger. It previews which batches a transfer of the given amount
// would carry.
func (l Ledger) Peek(amount float64) (float64, []Batch) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, nil
	}
	var total float64
	var records []Batch
	remaining := amount
	for _, b := range l {
		if remaining <= 0 {
			break
		}
		if b.Quantity <= remaining {
			records = append(records, b)
			total += b.Quantity
			remaining -= b.Quantity
			continue
		}
		records = append(records, Batch{Quantity: remaining, Age: b.Age})
		total += remaining
		remaining = 0
	}
	return total, records
}

// Total returns the sum of all batch quantities.
func (l Ledger) Total() float64 {
	var total float64
	for _, b := range l {
		total += b.Quantity
	}
	return total
}

// OldestAge returns the age of the oldest batch, or zero for an empty ledger.
func (l Ledger) OldestAge() float64 {
	if len(l) == 0 {
		return 0
	}
	return l[0].Age
}
