package lsim

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// A PortDecl is one parsed port declaration: a name and a bit width.
type PortDecl struct {
	Name string
	Bits int
}

// ParsePortSpec parses a comma separated port declaration list where
// each entry is a name with an optional bus width. For example:
//
//	ParsePortSpec("a, b, sel[2]") // [{a 1} {b 1} {sel 2}]
//
func ParsePortSpec(spec string) ([]PortDecl, error) {
	var out []PortDecl
	pos := 0
	s := spec
	for {
		s = skipSpace(s, &pos)
		if s == "" {
			if len(out) == 0 {
				return nil, nil
			}
			return nil, parseError(spec, pos, "expected port name")
		}
		name, rest := scanIdent(s)
		if name == "" {
			return nil, parseError(spec, pos, "expected port name")
		}
		pos += len(name)
		s = skipSpace(rest, &pos)

		bits := 1
		if strings.HasPrefix(s, "[") {
			s = s[1:]
			pos++
			s = skipSpace(s, &pos)
			num, rest := scanInt(s)
			if num == "" {
				return nil, parseError(spec, pos, "missing bus size")
			}
			pos += len(num)
			s = skipSpace(rest, &pos)
			if !strings.HasPrefix(s, "]") {
				return nil, parseError(spec, pos, "missing close bracket")
			}
			s = s[1:]
			pos++
			n, err := strconv.Atoi(num)
			if err != nil || n < 1 {
				return nil, parseError(spec, pos, "invalid bus size "+num)
			}
			bits = n
			s = skipSpace(s, &pos)
		}
		out = append(out, PortDecl{Name: name, Bits: bits})

		if s == "" {
			return out, nil
		}
		if !strings.HasPrefix(s, ",") {
			return nil, parseError(spec, pos, "expected comma or end of input")
		}
		s = s[1:]
		pos++
	}
}

func skipSpace(s string, pos *int) string {
	t := strings.TrimLeftFunc(s, unicode.IsSpace)
	*pos += len(s) - len(t)
	return t
}

func scanIdent(s string) (ident, rest string) {
	for i, r := range s {
		if unicode.IsLetter(r) || r == '_' || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return s[:i], s[i:]
	}
	return s, ""
}

func scanInt(s string) (num, rest string) {
	for i, r := range s {
		if !unicode.IsDigit(r) {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func parseError(in string, pos int, msg string) error {
	return errors.Errorf("in %q at pos %d: %s", in, pos+1, msg)
}

// AddConnectorsIn declares one input connector per parsed port.
func (d *CircuitDescription) AddConnectorsIn(spec string) ([]*Component, error) {
	decls, err := ParsePortSpec(spec)
	if err != nil {
		return nil, err
	}
	comps := make([]*Component, len(decls))
	for i, p := range decls {
		comps[i] = d.AddConnectorIn(p.Name, p.Bits)
	}
	return comps, nil
}

// AddConnectorsOut declares one output connector per parsed port.
func (d *CircuitDescription) AddConnectorsOut(spec string) ([]*Component, error) {
	decls, err := ParsePortSpec(spec)
	if err != nil {
		return nil, err
	}
	comps := make([]*Component, len(decls))
	for i, p := range decls {
		comps[i] = d.AddConnectorOut(p.Name, p.Bits)
	}
	return comps, nil
}
