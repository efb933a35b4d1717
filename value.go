package lsim

// Value is the state of a pin or node. Besides the two defined logic
// levels there is ValueUndefined for floating (high impedance) signals
// and ValueError for electrical conflicts.
type Value uint8

const (
	ValueFalse Value = iota
	ValueTrue
	ValueUndefined
	ValueError
)

func (v Value) String() string {
	switch v {
	case ValueFalse:
		return "false"
	case ValueTrue:
		return "true"
	case ValueUndefined:
		return "undefined"
	case ValueError:
		return "error"
	}
	return "invalid"
}

// Defined reports whether v is one of the two driven logic levels.
func (v Value) Defined() bool {
	return v == ValueFalse || v == ValueTrue
}

// Negate returns the boolean complement of v. Undefined and error
// values negate to themselves.
func (v Value) Negate() Value {
	switch v {
	case ValueTrue:
		return ValueFalse
	case ValueFalse:
		return ValueTrue
	}
	return v
}

// boolValue maps a Go bool onto the defined logic levels.
func boolValue(b bool) Value {
	if b {
		return ValueTrue
	}
	return ValueFalse
}

// combineDrivers merges the contribution of one more active driver into
// an accumulated node value. An undefined contribution floats and never
// competes; an error contribution wins outright; two opposing defined
// contributions conflict into an error.
func combineDrivers(acc, v Value) Value {
	switch {
	case v == ValueUndefined:
		return acc
	case v == ValueError || acc == ValueError:
		return ValueError
	case acc == ValueUndefined:
		return v
	case acc != v:
		return ValueError
	}
	return acc
}
