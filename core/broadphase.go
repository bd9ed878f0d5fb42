package core

import (
	"cmp"
	"slices"

	"github.com/signalsfoundry/conjunction-screener/model"
)

// broadPhase returns the pairs of live objects whose boxes overlap in the
// step described by s and tree, after filtering by object type. The result
// is sorted by (I, J).
func broadPhase(s sortedStep, tree []model.BVHNode, otypes []model.ObjectType) []model.AABBCollision {
	if len(tree) == 0 {
		return nil
	}

	var out []model.AABBCollision
	stack := make([]int32, 0, 64)
	for p := 0; p < s.nLive; p++ {
		i := s.idx[p]
		ti := otypes[i]
		if ti == model.ObjectMasked {
			continue
		}
		box := s.aabbs[p]

		stack = append(stack[:0], 0)
		for len(stack) > 0 {
			n := tree[stack[len(stack)-1]]
			stack = stack[:len(stack)-1]

			// Pairs are reported from the lower sorted position only.
			if int(n.End) <= p+1 || !nodeAABB(n).Overlaps(box) {
				continue
			}
			if !n.IsLeaf() {
				stack = append(stack, n.Left, n.Right)
				continue
			}
			for q := max(int(n.Begin), p+1); q < int(n.End); q++ {
				j := s.idx[q]
				if !model.PairAllowed(ti, otypes[j]) || !box.Overlaps(s.aabbs[q]) {
					continue
				}
				out = append(out, model.AABBCollision{I: min(i, j), J: max(i, j)})
			}
		}
	}

	slices.SortFunc(out, func(a, b model.AABBCollision) int {
		if c := cmp.Compare(a.I, b.I); c != 0 {
			return c
		}
		return cmp.Compare(a.J, b.J)
	})
	return out
}
