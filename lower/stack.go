package lower

import (
	"strings"

	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// Slot is one operand stack entry: the statically inferred type of the
// value and the source offset of the instruction that produced it.
type Slot struct {
	Type   *catalog.Type
	Source int
}

// Dynamic returns a slot of unknown type.
func Dynamic() Slot {
	return Slot{Type: catalog.Object, Source: -1}
}

// Of returns a slot of type t with no producing instruction.
func Of(t *catalog.Type) Slot {
	return Slot{Type: t, Source: -1}
}

// typ returns the slot's type, treating nil as unknown.
func (s Slot) typ() *catalog.Type {
	if s.Type == nil {
		return catalog.Object
	}
	return s.Type
}

// Kind returns the value kind used to spill the slot.
func (s Slot) Kind() host.Kind {
	return s.typ().Kind()
}

// Stack is an operand stack snapshot, bottom first. Methods never modify
// the receiver.
type Stack []Slot

// NewStack builds a snapshot from types, bottom first.
func NewStack(types ...*catalog.Type) Stack {
	s := make(Stack, len(types))
	for i, t := range types {
		s[i] = Of(t)
	}
	return s
}

// Clone returns an independent copy.
func (s Stack) Clone() Stack {
	return append(Stack(nil), s...)
}

// Depth returns the number of slots.
func (s Stack) Depth() int {
	return len(s)
}

// Peek returns the slot at depth d, where 0 is the top.
func (s Stack) Peek(d int) Slot {
	return s[len(s)-1-d]
}

// Push returns s with slots added on top.
func (s Stack) Push(slots ...Slot) Stack {
	out := make(Stack, 0, len(s)+len(slots))
	out = append(out, s...)
	return append(out, slots...)
}

// Pop returns s without its top n slots.
func (s Stack) Pop(n int) Stack {
	return s[:len(s)-n].Clone()
}

// Compatible reports whether control may join with both snapshots: equal
// depth and, slot by slot, the same kind and related types.
func (s Stack) Compatible(other Stack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Kind() != other[i].Kind() {
			return false
		}
		if !catalog.Related(s[i].typ(), other[i].typ()) {
			return false
		}
	}
	return true
}

func (s Stack) String() string {
	parts := make([]string, len(s))
	for i, slot := range s {
		parts[i] = slot.typ().Name
	}
	return "[" + strings.Join(parts, " ") + "]"
}
