package model

import "fmt"

// ObjectType is the role of an object in conjunction screening.
type ObjectType uint8

const (
	// ObjectPrimary objects are screened against every non-masked object.
	ObjectPrimary ObjectType = 1
	// ObjectSecondary objects are screened against primaries only.
	ObjectSecondary ObjectType = 2
	// ObjectMasked objects are excluded from screening.
	ObjectMasked ObjectType = 4
)

// ValidObjectTypes lists the accepted ObjectType values.
var ValidObjectTypes = []ObjectType{ObjectPrimary, ObjectSecondary, ObjectMasked}

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectPrimary, ObjectSecondary, ObjectMasked:
		return true
	}
	return false
}

func (t ObjectType) String() string {
	switch t {
	case ObjectPrimary:
		return "PRIMARY"
	case ObjectSecondary:
		return "SECONDARY"
	case ObjectMasked:
		return "MASKED"
	default:
		return fmt.Sprintf("ObjectType(%d)", uint8(t))
	}
}

// PairAllowed reports whether a conjunction between objects of types a and b
// may be reported.
func PairAllowed(a, b ObjectType) bool {
	if a == ObjectMasked || b == ObjectMasked {
		return false
	}
	return !(a == ObjectSecondary && b == ObjectSecondary)
}
