package sarchive

import "iter"

// Enumerator walks an entry tree depth-first in pre-order.
//
// Children are read lazily as the walk descends, so mutating the tree while
// an Enumerator is in use gives undefined results. An Enumerator is single
// use: once exhausted it stays exhausted. It is not safe for concurrent use.
type Enumerator struct {
	// stack holds pending siblings, last element first to visit.
	stack []*Entry
	// last is the entry most recently returned; its children are pushed on
	// the following call unless SkipChildren was called.
	last *Entry
	skip bool
	done bool
}

func newEnumerator(roots []*Entry) *Enumerator {
	en := &Enumerator{}
	en.push(roots)
	return en
}

func (en *Enumerator) push(entries []*Entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		en.stack = append(en.stack, entries[i])
	}
}

// Next returns the next entry.
func (en *Enumerator) Next() (*Entry, bool) {
	if en.done {
		return nil, false
	}
	if en.last != nil && !en.skip {
		en.push(en.last.children)
	}
	en.last, en.skip = nil, false
	if len(en.stack) == 0 {
		en.done = true
		en.stack = nil
		return nil, false
	}
	e := en.stack[len(en.stack)-1]
	en.stack = en.stack[:len(en.stack)-1]
	en.last = e
	return e, true
}

// SkipChildren prevents the walk from descending into the entry most
// recently returned by Next.
func (en *Enumerator) SkipChildren() {
	en.skip = true
}

// All returns the remaining entries as an iterator.
func (en *Enumerator) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for {
			e, ok := en.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}
