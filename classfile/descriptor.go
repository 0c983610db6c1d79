package classfile

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// FieldType is a single field descriptor such as "I", "J" or
// "Ljava/lang/String;". The empty string never appears; void is "V".
type FieldType string

// Size returns the number of local slots a value of this type occupies:
// 0 for void, 2 for long and double, 1 otherwise.
func (t FieldType) Size() int {
	switch t {
	case "V":
		return 0
	case "J", "D":
		return 2
	default:
		return 1
	}
}

// IsReference reports whether the type is an object or array type.
func (t FieldType) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []FieldType
	Return FieldType
}

// ParamSize returns the total slot size of the parameters.
func (m MethodType) ParamSize() int {
	n := 0
	for _, p := range m.Params {
		n += p.Size()
	}
	return n
}

func (m MethodType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(string(p))
	}
	b.WriteByte(')')
	b.WriteString(string(m.Return))
	return b.String()
}

// ParseMethodDescriptor parses a descriptor of the form "(params)return".
func ParseMethodDescriptor(desc string) (MethodType, error) {
	var mt MethodType
	if len(desc) < 3 || desc[0] != '(' {
		return mt, errors.Newf("malformed method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := scanFieldType(desc, i)
		if err != nil {
			return mt, err
		}
		if t == "V" {
			return mt, errors.Newf("void parameter in method descriptor %q", desc)
		}
		mt.Params = append(mt.Params, t)
		i = n
	}
	if i >= len(desc) {
		return mt, errors.Newf("unterminated parameter list in method descriptor %q", desc)
	}
	ret, n, err := scanFieldType(desc, i+1)
	if err != nil {
		return mt, err
	}
	if n != len(desc) {
		return mt, errors.Newf("trailing characters in method descriptor %q", desc)
	}
	mt.Return = ret
	return mt, nil
}

// ParseFieldType validates a single field descriptor.
func ParseFieldType(desc string) (FieldType, error) {
	t, n, err := scanFieldType(desc, 0)
	if err != nil {
		return "", err
	}
	if n != len(desc) {
		return "", errors.Newf("trailing characters in field descriptor %q", desc)
	}
	return t, nil
}

func scanFieldType(desc string, i int) (FieldType, int, error) {
	start := i
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return "", 0, errors.Newf("truncated type at offset %d in descriptor %q", start, desc)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		i++
	case 'V':
		if i != start {
			return "", 0, errors.Newf("array of void at offset %d in descriptor %q", start, desc)
		}
		i++
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 2 {
			return "", 0, errors.Newf("unterminated class type at offset %d in descriptor %q", i, desc)
		}
		i += end + 1
	default:
		return "", 0, errors.Newf("invalid type character %q at offset %d in descriptor %q", desc[i], i, desc)
	}
	return FieldType(desc[start:i]), i, nil
}
