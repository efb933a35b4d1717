package lsim

import "strconv"

// A Property is a named, typed value attached to a component: bit
// widths, constant values, connector names, nested circuit references.
// Each property holds one of string, int64 or bool and can be read
// through any of the three views.
type Property struct {
	key string
	val interface{}
}

func newProperty(key string, val interface{}) *Property {
	return &Property{key: key, val: val}
}

// Key returns the property name.
func (p *Property) Key() string { return p.key }

// AsString returns the property value coerced to a string.
func (p *Property) AsString() string {
	switch v := p.val.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// AsInt returns the property value coerced to an integer. Strings that
// do not parse and booleans map to 0/1 semantics where sensible.
func (p *Property) AsInt() int64 {
	switch v := p.val.(type) {
	case int64:
		return v
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// AsBool returns the property value coerced to a boolean.
func (p *Property) AsBool() bool {
	switch v := p.val.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false
		}
		return b
	}
	return false
}

// Set replaces the property value and its dynamic type. Plain ints are
// stored as int64.
func (p *Property) Set(val interface{}) {
	switch val.(type) {
	case string, int64, bool:
		p.val = val
	case int:
		p.val = int64(val.(int))
	default:
		panic("lsim: unsupported property type")
	}
}
