package core

import (
	"math/bits"
	"sort"

	"github.com/signalsfoundry/conjunction-screener/model"
)

// splitResult tells the builder how to treat a range of sorted keys: either
// it cannot be split (all keys identical) or it splits at the given bit.
type splitResult struct {
	leaf bool
	bit  int
}

// findSplit returns the most significant bit in which the first and last
// keys of codes[begin:end] differ.
func findSplit(codes []uint64, begin, end int) splitResult {
	diff := codes[begin] ^ codes[end-1]
	if diff == 0 {
		return splitResult{leaf: true}
	}
	return splitResult{bit: 63 - bits.LeadingZeros64(diff)}
}

// splitIndex returns the first position in codes[begin:end] whose key has
// the given bit set. Keys in the range share every bit above it, so the
// position is a partition point.
func splitIndex(codes []uint64, begin, end, bit int) int {
	mask := uint64(1) << bit
	return begin + sort.Search(end-begin, func(i int) bool {
		return codes[begin+i]&mask != 0
	})
}

// buildBVH builds a binary radix tree over the first nLive sorted keys.
// Nodes are laid out breadth first with the root at index 0, so every child
// has a larger index than its parent.
func buildBVH(codes []uint64, aabbs []AABB, nLive int) []model.BVHNode {
	if nLive == 0 {
		return nil
	}

	nodes := []model.BVHNode{{Begin: 0, End: int32(nLive), Left: -1, Right: -1, Parent: -1}}
	for cur := 0; cur < len(nodes); cur++ {
		begin, end := int(nodes[cur].Begin), int(nodes[cur].End)
		if end-begin < 2 {
			continue
		}
		sr := findSplit(codes, begin, end)
		if sr.leaf {
			continue
		}
		split := splitIndex(codes, begin, end, sr.bit)

		left := int32(len(nodes))
		nodes = append(nodes,
			model.BVHNode{Begin: int32(begin), End: int32(split), Left: -1, Right: -1, Parent: int32(cur)},
			model.BVHNode{Begin: int32(split), End: int32(end), Left: -1, Right: -1, Parent: int32(cur)},
		)
		nodes[cur].Left, nodes[cur].Right = left, left+1
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		n := &nodes[i]
		var box AABB
		if n.IsLeaf() {
			box = EmptyAABB()
			for p := n.Begin; p < n.End; p++ {
				box = box.Union(aabbs[p])
			}
		} else {
			l, r := nodes[n.Left], nodes[n.Right]
			box = nodeAABB(l).Union(nodeAABB(r))
		}
		n.LB, n.UB = box.LB, box.UB
	}
	return nodes
}

func nodeAABB(n model.BVHNode) AABB { return AABB{LB: n.LB, UB: n.UB} }
