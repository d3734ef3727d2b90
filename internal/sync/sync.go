// Package sync holds the per-entity upload use cases: inspection
// forms, maintenance records, images, and master data.
package sync

// Tally counts per-item outcomes inside one sync pass. Item failures
// are recorded here rather than aborting the pass; remaining items
// still get their attempt.
type Tally struct {
	Succeeded int
	Failed    int
}

// Add merges another tally into this one.
func (t *Tally) Add(other Tally) {
	t.Succeeded += other.Succeeded
	t.Failed += other.Failed
}

// Clean reports whether no item failed.
func (t Tally) Clean() bool {
	return t.Failed == 0
}
