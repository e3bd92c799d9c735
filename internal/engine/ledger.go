package engine

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// Ledger is the ordered record of resources created during a run. Insertion
// order is creation order. It is the only input to rollback.
//
// A Ledger has a single writer and is not safe for concurrent use.
type Ledger struct {
	entries []cloud.Resource
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// LedgerFrom builds a ledger from resources already known to exist, in
// creation order. Used to re-run rollback against discovered resources.
func LedgerFrom(resources []cloud.Resource) (*Ledger, error) {
	l := NewLedger()
	for _, res := range resources {
		if err := l.Record(res); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Record appends a successfully created resource.
func (l *Ledger) Record(res cloud.Resource) error {
	if res.ID == "" {
		return errors.New("cannot record resource without an ID")
	}
	if l.index(res.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, res)
	}
	l.entries = append(l.entries, res)
	return nil
}

// Reverse yields entries from most recently created to first created. The
// sequence walks a snapshot taken when iteration starts, so entries may be
// removed while iterating.
func (l *Ledger) Reverse() iter.Seq[cloud.Resource] {
	return func(yield func(cloud.Resource) bool) {
		snapshot := slices.Clone(l.entries)
		for i := len(snapshot) - 1; i >= 0; i-- {
			if !yield(snapshot[i]) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries in creation order.
func (l *Ledger) Entries() []cloud.Resource {
	return slices.Clone(l.entries)
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Remove drops the entry with the given ID. It reports whether an entry was removed.
func (l *Ledger) Remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.entries = nil
}

func (l *Ledger) index(id string) int {
	return slices.IndexFunc(l.entries, func(r cloud.Resource) bool { return r.ID == id })
}
