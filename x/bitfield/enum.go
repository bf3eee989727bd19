package bitfield

import (
	"slices"
	"strconv"

	"gaugecode-go/errcode"

	"golang.org/x/exp/constraints"
)

// DecodeError reports a raw field value with no matching enum variant.
type DecodeError struct {
	Enum string
	Raw  uint64
}

func (e *DecodeError) Error() string {
	return "bitfield: " + e.Enum + ": no variant for raw value " + strconv.FormatUint(e.Raw, 10)
}

func (e *DecodeError) Code() errcode.Code { return errcode.EnumDecode }

// Enum is a closed set of discriminants of type E.
type Enum[E constraints.Integer] struct {
	name  string
	names map[E]string
}

// NewEnum builds an Enum from its variant names.
func NewEnum[E constraints.Integer](name string, variants map[E]string) Enum[E] {
	return Enum[E]{name: name, names: variants}
}

// Name returns the enum's type name.
func (e Enum[E]) Name() string { return e.name }

// Decode converts raw to a variant, failing with *DecodeError when raw does
// not fit E or names no variant.
func (e Enum[E]) Decode(raw uint64) (E, error) {
	v := E(raw)
	if uint64(v) != raw {
		return 0, &DecodeError{Enum: e.name, Raw: raw}
	}
	if _, ok := e.names[v]; !ok {
		return 0, &DecodeError{Enum: e.name, Raw: raw}
	}
	return v, nil
}

// Valid reports whether v is a known variant.
func (e Enum[E]) Valid(v E) bool {
	_, ok := e.names[v]
	return ok
}

// String names v, falling back to "Name(n)" for unknown values.
func (e Enum[E]) String(v E) string {
	if s, ok := e.names[v]; ok {
		return s
	}
	return e.name + "(" + strconv.FormatInt(int64(v), 10) + ")"
}

// Values lists the variants in ascending order.
func (e Enum[E]) Values() []E {
	out := make([]E, 0, len(e.names))
	for v := range e.names {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// LoadEnum reads width bits at offset and decodes them through e.
func LoadEnum[E constraints.Integer](buf []byte, offset, width int, e Enum[E]) (E, error) {
	raw, err := LoadUint64(buf, offset, width)
	if err != nil {
		return 0, err
	}
	return e.Decode(raw)
}
