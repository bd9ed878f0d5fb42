package core

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/conjunction-screener/model"
)

func unitBox(x float32) AABB {
	return AABB{LB: [4]float32{x, x, x, 0}, UB: [4]float32{x + 1, x + 1, x + 1, 1}}
}

type nodeShape struct {
	Begin, End, Left, Right, Parent int32
}

func shapes(nodes []model.BVHNode) []nodeShape {
	out := make([]nodeShape, len(nodes))
	for i, n := range nodes {
		out[i] = nodeShape{n.Begin, n.End, n.Left, n.Right, n.Parent}
	}
	return out
}

func TestBuildBVHLayout(t *testing.T) {
	codes := []uint64{0b0001, 0b0010, 0b1000, 0b1000}
	aabbs := []AABB{unitBox(0), unitBox(1), unitBox(5), unitBox(6)}

	tree := buildBVH(codes, aabbs, len(codes))

	want := []nodeShape{
		{0, 4, 1, 2, -1},
		{0, 2, 3, 4, 0},
		{2, 4, -1, -1, 0},
		{0, 1, -1, -1, 1},
		{1, 2, -1, -1, 1},
	}
	if diff := cmp.Diff(want, shapes(tree)); diff != "" {
		t.Fatalf("tree layout mismatch (-want +got):\n%s", diff)
	}

	root := nodeAABB(tree[0])
	for i, b := range aabbs {
		if !root.Contains(b) {
			t.Fatalf("root box %v does not contain object %d box %v", root, i, b)
		}
	}
	if got, want := nodeAABB(tree[2]), unitBox(5).Union(unitBox(6)); got != want {
		t.Fatalf("leaf box = %v, want %v", got, want)
	}
}

func TestBuildBVHIdenticalKeysMakeSingleLeaf(t *testing.T) {
	codes := []uint64{42, 42}
	aabbs := []AABB{unitBox(0), unitBox(0)}

	tree := buildBVH(codes, aabbs, 2)
	want := []nodeShape{{0, 2, -1, -1, -1}}
	if diff := cmp.Diff(want, shapes(tree)); diff != "" {
		t.Fatalf("tree layout mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildBVHSkipsExpiredTail(t *testing.T) {
	codes := []uint64{1, 2, MortonSentinel}
	aabbs := []AABB{unitBox(0), unitBox(1), EmptyAABB()}

	tree := buildBVH(codes, aabbs, 2)
	if tree[0].Begin != 0 || tree[0].End != 2 {
		t.Fatalf("root spans [%d, %d), want [0, 2)", tree[0].Begin, tree[0].End)
	}
	for i, n := range tree {
		if !nodeAABB(n).IsFinite() {
			t.Fatalf("node %d has a non-finite box", i)
		}
	}
	if got := buildBVH(codes, aabbs, 0); got != nil {
		t.Fatalf("expected nil tree with no live objects, got %v", got)
	}
}

func TestBuildBVHChildrenFollowParents(t *testing.T) {
	codes := make([]uint64, 64)
	aabbs := make([]AABB, 64)
	for i := range codes {
		codes[i] = uint64(i * i)
		aabbs[i] = unitBox(float32(i))
	}
	tree := buildBVH(codes, aabbs, len(codes))

	leafCover := 0
	for i, n := range tree {
		if n.IsLeaf() {
			leafCover += int(n.End - n.Begin)
			continue
		}
		l, r := tree[n.Left], tree[n.Right]
		if int(n.Left) <= i || int(n.Right) <= i {
			t.Fatalf("node %d has children %d/%d before it", i, n.Left, n.Right)
		}
		if l.Begin != n.Begin || l.End != r.Begin || r.End != n.End {
			t.Fatalf("node %d [%d,%d) split into [%d,%d) and [%d,%d)", i, n.Begin, n.End, l.Begin, l.End, r.Begin, r.End)
		}
		if l.Parent != int32(i) || r.Parent != int32(i) {
			t.Fatalf("children of node %d carry wrong parent", i)
		}
		if !nodeAABB(n).Contains(nodeAABB(l)) || !nodeAABB(n).Contains(nodeAABB(r)) {
			t.Fatalf("node %d box does not contain its children", i)
		}
	}
	if leafCover != len(codes) {
		t.Fatalf("leaves cover %d objects, want %d", leafCover, len(codes))
	}
}

func TestSortByMortonPutsExpiredLast(t *testing.T) {
	aabbs := []AABB{EmptyAABB(), unitBox(3), unitBox(1), EmptyAABB(), unitBox(2)}
	codes := []uint64{MortonSentinel, math.MaxUint64, 7, MortonSentinel, 7}
	global := globalAABB(aabbs)
	aabbs = append(aabbs, global)

	s := sortByMorton(aabbs, codes)

	// Live objects first by (key, index), then the expired ones by index,
	// even though object 1 holds the all-ones key.
	if diff := cmp.Diff([]uint32{2, 4, 1, 0, 3}, s.idx); diff != "" {
		t.Fatalf("sorted order mismatch (-want +got):\n%s", diff)
	}
	if s.nLive != 3 {
		t.Fatalf("nLive = %d, want 3", s.nLive)
	}
	for p, i := range s.idx {
		if s.codes[p] != codes[i] || s.aabbs[p] != aabbs[i] {
			t.Fatalf("sorted row %d does not match object %d", p, i)
		}
	}
	if s.aabbs[5] != global {
		t.Fatalf("global box not carried to the sorted view")
	}
}
