package frame

// InsertResult describes what an insert did to the targeted slot.
type InsertResult int

const (
	// InsertNew means the slot was previously empty or newly created.
	InsertNew InsertResult = iota
	// InsertReplaced means an existing value was overwritten with a different one.
	InsertReplaced
	// InsertIdentical means the slot already held an equal value.
	InsertIdentical
)

func (r InsertResult) String() string {
	switch r {
	case InsertNew:
		return "new"
	case InsertReplaced:
		return "replaced"
	case InsertIdentical:
		return "identical"
	default:
		return "unknown"
	}
}
