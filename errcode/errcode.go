package errcode

import "errors"

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"

	// Codec
	BitRange      Code = "bit_range"
	EnumDecode    Code = "enum_decode"
	ValueOverflow Code = "value_overflow"

	// Register map
	InvalidMap      Code = "invalid_map"
	UnknownRegister Code = "unknown_register"
	UnknownField    Code = "unknown_field"
	FieldKind       Code = "field_kind"
	BadLength       Code = "bad_length"

	// Device / transport
	ReadOnly      Code = "read_only"
	WriteOnly     Code = "write_only"
	ShortResponse Code = "short_response"
	Mismatch      Code = "mismatch"
	Bus           Code = "bus"

	Error Code = "error" // generic fallback
)

// E wraps a cause with a code, the failing operation and an optional message.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns nil for a nil err, otherwise an *E carrying c and op.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
