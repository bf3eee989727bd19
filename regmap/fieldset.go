package regmap

import (
	"strconv"
	"strings"

	"gaugecode-go/errcode"
	"gaugecode-go/x/bitfield"

	"go.uber.org/multierr"
)

// ValueError reports a value that does not fit its field.
type ValueError struct {
	Block, Field string
	Width        int
	Value        string
}

func (e *ValueError) Error() string {
	return "regmap: " + e.Block + "." + e.Field + ": " + e.Value +
		" does not fit " + strconv.Itoa(e.Width) + "-bit field"
}

func (e *ValueError) Code() errcode.Code { return errcode.ValueOverflow }

// FieldSet is the raw little-endian encoding of one block with typed
// access to its fields.
type FieldSet struct {
	b   *Block
	buf []byte
}

// New returns a zero-valued FieldSet.
func (b *Block) New() *FieldSet {
	return &FieldSet{b: b, buf: make([]byte, b.Size())}
}

// NewReset returns a FieldSet holding the block's power-on-reset value.
func (b *Block) NewReset() *FieldSet {
	fs := b.New()
	if b.Reset != nil && b.Bits > 0 {
		// Reset was checked against the block width at load.
		_ = bitfield.StoreUint64(fs.buf, 0, min(b.Bits, 64), *b.Reset)
	}
	return fs
}

// FromBytes wraps a copy of p, which must be exactly Size bytes.
func (b *Block) FromBytes(p []byte) (*FieldSet, error) {
	if len(p) != b.Size() {
		return nil, &errcode.E{C: errcode.BadLength, Op: "regmap.FromBytes",
			Msg: b.Name + ": got " + strconv.Itoa(len(p)) + " bytes, want " + strconv.Itoa(b.Size())}
	}
	return &FieldSet{b: b, buf: append([]byte(nil), p...)}, nil
}

// Block returns the descriptor.
func (fs *FieldSet) Block() *Block { return fs.b }

// Bytes returns the live buffer.
func (fs *FieldSet) Bytes() []byte { return fs.buf }

func (fs *FieldSet) field(name string, kinds ...Kind) (*Field, error) {
	f, ok := fs.b.Field(name)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownField, Op: "regmap", Msg: fs.b.Name + "." + name}
	}
	for _, k := range kinds {
		if f.Kind == k {
			return f, nil
		}
	}
	return nil, &errcode.E{C: errcode.FieldKind, Op: "regmap",
		Msg: fs.b.Name + "." + f.Name + " is " + string(f.Kind)}
}

// Raw returns the field's bits zero-extended, whatever its kind.
func (fs *FieldSet) Raw(name string) (uint64, error) {
	f, err := fs.field(name, KindUint, KindInt, KindBool, KindEnum)
	if err != nil {
		return 0, err
	}
	return bitfield.LoadUint64(fs.buf, f.Offset, f.Width)
}

// Uint reads an unsigned field.
func (fs *FieldSet) Uint(name string) (uint64, error) {
	f, err := fs.field(name, KindUint)
	if err != nil {
		return 0, err
	}
	return bitfield.LoadUint64(fs.buf, f.Offset, f.Width)
}

// Int reads a signed field, sign-extended from its width.
func (fs *FieldSet) Int(name string) (int64, error) {
	f, err := fs.field(name, KindInt)
	if err != nil {
		return 0, err
	}
	return bitfield.LoadSigned[int64](fs.buf, f.Offset, f.Width)
}

// Bool reads a one-bit field.
func (fs *FieldSet) Bool(name string) (bool, error) {
	f, err := fs.field(name, KindBool)
	if err != nil {
		return false, err
	}
	return bitfield.LoadBool(fs.buf, f.Offset)
}

// Enum reads an enum field. Raw values without a variant yield a
// *bitfield.DecodeError.
func (fs *FieldSet) Enum(name string) (Variant, error) {
	f, err := fs.field(name, KindEnum)
	if err != nil {
		return Variant{}, err
	}
	return f.enum.Load(fs.buf, f.Offset, f.Width)
}

// SetUint writes an unsigned field.
func (fs *FieldSet) SetUint(name string, v uint64) error {
	f, err := fs.field(name, KindUint)
	if err != nil {
		return err
	}
	if !bitfield.Fits(v, f.Width) {
		return &ValueError{Block: fs.b.Name, Field: f.Name, Width: f.Width, Value: strconv.FormatUint(v, 10)}
	}
	return bitfield.StoreUint64(fs.buf, f.Offset, f.Width, v)
}

// SetInt writes a signed field.
func (fs *FieldSet) SetInt(name string, v int64) error {
	f, err := fs.field(name, KindInt)
	if err != nil {
		return err
	}
	if !bitfield.FitsSigned(v, f.Width) {
		return &ValueError{Block: fs.b.Name, Field: f.Name, Width: f.Width, Value: strconv.FormatInt(v, 10)}
	}
	return bitfield.Store(fs.buf, f.Offset, f.Width, v)
}

// SetBool writes a one-bit field.
func (fs *FieldSet) SetBool(name string, v bool) error {
	f, err := fs.field(name, KindBool)
	if err != nil {
		return err
	}
	return bitfield.StoreBool(fs.buf, f.Offset, v)
}

// SetEnum writes an enum field by variant name.
func (fs *FieldSet) SetEnum(name, variant string) error {
	f, err := fs.field(name, KindEnum)
	if err != nil {
		return err
	}
	v, ok := f.enum.ByName(variant)
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "regmap.SetEnum",
			Msg: f.enum.Name + " has no variant " + strconv.Quote(variant)}
	}
	return bitfield.StoreUint64(fs.buf, f.Offset, f.Width, v.Value)
}

// SetString parses s according to the field's kind and writes it.
// Integers accept Go literal prefixes (0x, 0b, 0o).
func (fs *FieldSet) SetString(name, s string) error {
	f, ok := fs.b.Field(name)
	if !ok {
		return &errcode.E{C: errcode.UnknownField, Op: "regmap", Msg: fs.b.Name + "." + name}
	}
	bad := func(err error) error {
		return &errcode.E{C: errcode.InvalidParams, Op: "regmap.SetString", Msg: f.Name + "=" + s, Err: err}
	}
	switch f.Kind {
	case KindBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return bad(err)
		}
		return fs.SetBool(name, v)
	case KindInt:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return bad(err)
		}
		return fs.SetInt(name, v)
	case KindEnum:
		if u, err := strconv.ParseUint(s, 0, 64); err == nil {
			vr, err := f.enum.Lookup(u)
			if err != nil {
				return err
			}
			return fs.SetEnum(name, vr.Name)
		}
		return fs.SetEnum(name, s)
	default:
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return bad(err)
		}
		return fs.SetUint(name, v)
	}
}

// Value is one decoded field.
type Value struct {
	Field *Field
	Raw   uint64
	// Value is uint64, int64, bool or the variant name.
	Value any
	Err   error
}

func (v Value) String() string {
	if v.Err != nil {
		return v.Field.Name + "=?" + strconv.FormatUint(v.Raw, 10)
	}
	switch x := v.Value.(type) {
	case uint64:
		return v.Field.Name + "=" + strconv.FormatUint(x, 10)
	case int64:
		return v.Field.Name + "=" + strconv.FormatInt(x, 10)
	case bool:
		return v.Field.Name + "=" + strconv.FormatBool(x)
	case string:
		return v.Field.Name + "=" + x
	}
	return v.Field.Name
}

// Values decodes every field in declaration order. Enum decode failures are
// recorded on the affected Value and combined into the returned error.
func (fs *FieldSet) Values() ([]Value, error) {
	out := make([]Value, 0, len(fs.b.Fields))
	var errs error
	for i := range fs.b.Fields {
		f := &fs.b.Fields[i]
		raw, err := bitfield.LoadUint64(fs.buf, f.Offset, f.Width)
		if err != nil {
			return nil, err
		}
		v := Value{Field: f, Raw: raw}
		switch f.Kind {
		case KindUint:
			v.Value = raw
		case KindInt:
			v.Value = bitfield.SignExtend(raw, f.Width)
		case KindBool:
			v.Value = raw != 0
		case KindEnum:
			vr, err := f.enum.Lookup(raw)
			if err != nil {
				v.Err = err
				errs = multierr.Append(errs, err)
			} else {
				v.Value = vr.Name
			}
		}
		out = append(out, v)
	}
	return out, errs
}

// String renders "Block{f=v, ...}". Bool fields that are clear are omitted
// for bit-flag registers with many fields.
func (fs *FieldSet) String() string {
	var sb strings.Builder
	sb.WriteString(fs.b.Name)
	sb.WriteByte('{')
	vals, _ := fs.Values()
	first := true
	for _, v := range vals {
		if b, ok := v.Value.(bool); ok && !b && len(vals) > 8 {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(v.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
