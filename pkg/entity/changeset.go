package entity

// Change is one property delta.
type Change struct {
	Property string
	Old      any
	New      any
}

// ChangeSet is an ordered list of property deltas. Recording a property
// twice keeps its first position and original old value and takes the
// latest new value.
type ChangeSet struct {
	changes []Change
}

// NewChangeSet builds a change set from changes, merged as by Record.
func NewChangeSet(changes ...Change) ChangeSet {
	var cs ChangeSet
	for _, c := range changes {
		cs.Record(c.Property, c.Old, c.New)
	}
	return cs
}

// Record adds a delta for property.
func (cs *ChangeSet) Record(property string, oldValue, newValue any) {
	for i := range cs.changes {
		if cs.changes[i].Property == property {
			cs.changes[i].New = newValue
			return
		}
	}
	cs.changes = append(cs.changes, Change{Property: property, Old: oldValue, New: newValue})
}

// Get returns the delta for property.
func (cs ChangeSet) Get(property string) (Change, bool) {
	for _, c := range cs.changes {
		if c.Property == property {
			return c, true
		}
	}
	return Change{}, false
}

func (cs ChangeSet) Has(property string) bool {
	_, ok := cs.Get(property)
	return ok
}

// Changes returns a copy of the deltas in recording order.
func (cs ChangeSet) Changes() []Change {
	return append([]Change(nil), cs.changes...)
}

// Properties returns the changed property names in recording order.
func (cs ChangeSet) Properties() []string {
	props := make([]string, 0, len(cs.changes))
	for _, c := range cs.changes {
		props = append(props, c.Property)
	}
	return props
}

func (cs ChangeSet) Len() int {
	return len(cs.changes)
}

func (cs ChangeSet) IsEmpty() bool {
	return len(cs.changes) == 0
}

// Filter returns the deltas whose property is in props, in recording order.
func (cs ChangeSet) Filter(props ...string) ChangeSet {
	var out ChangeSet
	for _, c := range cs.changes {
		for _, p := range props {
			if c.Property == p {
				out.changes = append(out.changes, c)
				break
			}
		}
	}
	return out
}
