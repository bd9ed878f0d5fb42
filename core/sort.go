package core

import (
	"cmp"
	"slices"
)

// sortedStep holds the Morton-ordered view of one step.
type sortedStep struct {
	idx   []uint32
	codes []uint64
	aabbs []AABB // len(idx)+1; the last row is the global box
	nLive int    // objects with data; they occupy idx[:nLive]
}

// sortByMorton orders the objects of a step by (no data, key, index).
// Objects without data go last even when a live object holds the all-ones
// key. aabbs carries the global box at row len(codes).
func sortByMorton(aabbs []AABB, codes []uint64) sortedStep {
	n := len(codes)
	live := make([]bool, n)
	idx := make([]uint32, n)
	nLive := 0
	for i := range idx {
		idx[i] = uint32(i)
		live[i] = aabbs[i].IsFinite()
		if live[i] {
			nLive++
		}
	}

	slices.SortFunc(idx, func(a, b uint32) int {
		if live[a] != live[b] {
			if live[a] {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(codes[a], codes[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	s := sortedStep{
		idx:   idx,
		codes: make([]uint64, n),
		aabbs: make([]AABB, n+1),
		nLive: nLive,
	}
	for p, i := range idx {
		s.codes[p] = codes[i]
		s.aabbs[p] = aabbs[i]
	}
	s.aabbs[n] = aabbs[n]
	return s
}
