package model

// AABBCollision is a pair of objects whose bounding boxes overlap within a
// conjunction step. I < J always holds.
type AABBCollision struct {
	I, J uint32
}

// BVHNode is a node of the bounding volume hierarchy built for one
// conjunction step. Begin and End delimit a range of the Morton-sorted
// object array. Leaves have Left == Right == -1; the root has Parent == -1.
type BVHNode struct {
	Begin, End  int32
	Left, Right int32
	Parent      int32
	LB, UB      [4]float32
}

// IsLeaf reports whether n has no children.
func (n BVHNode) IsLeaf() bool { return n.Left == -1 }

// Conjunction is a close approach between objects I and J (I < J). TCA is
// measured from the polyjectory origin in its native time unit.
type Conjunction struct {
	I, J   uint32
	TCA    float64
	DCA    float64
	RI, VI [3]float64
	RJ, VJ [3]float64
}
