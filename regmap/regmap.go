// Package regmap describes a device's registers and manufacturer-access
// commands as data: blocks of bits with named fields, parsed from YAML and
// validated once at load time. Values are read and written through the
// generic codec in x/bitfield rather than through per-field functions.
package regmap

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"gaugecode-go/errcode"
	"gaugecode-go/x/bitfield"
	"gaugecode-go/x/mathx"

	"gopkg.in/yaml.v3"
)

// Kind is a field's numeric interpretation.
type Kind string

const (
	KindUint Kind = "uint"
	KindInt  Kind = "int"
	KindBool Kind = "bool"
	KindEnum Kind = "enum"
)

// Access is the bus direction a block supports.
type Access string

const (
	AccessRO Access = "ro"
	AccessRW Access = "rw"
	AccessWO Access = "wo"
)

func (a Access) Readable() bool { return a == AccessRO || a == AccessRW }
func (a Access) Writable() bool { return a == AccessWO || a == AccessRW }

// Encoding selects the SMBus transfer used for a register.
type Encoding string

const (
	EncodingWord   Encoding = "word"
	EncodingBlock  Encoding = "block"
	EncodingString Encoding = "string"
)

// MaxBlockBytes is the largest payload a block transfer carries.
const MaxBlockBytes = 32

// Variant is one named discriminant of an Enum.
type Variant struct {
	Name        string `yaml:"name"`
	Value       uint64 `yaml:"value"`
	Description string `yaml:"description,omitempty"`
}

// Enum is a closed set of variants shared by enum fields.
type Enum struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Variants    []Variant `yaml:"variants"`

	codec   bitfield.Enum[uint64]
	byValue map[uint64]int
}

// Lookup decodes raw into its variant.
func (e *Enum) Lookup(raw uint64) (Variant, error) {
	v, err := e.codec.Decode(raw)
	if err != nil {
		return Variant{}, err
	}
	return e.Variants[e.byValue[v]], nil
}

// Load reads width bits at offset of buf and decodes them.
func (e *Enum) Load(buf []byte, offset, width int) (Variant, error) {
	v, err := bitfield.LoadEnum(buf, offset, width, e.codec)
	if err != nil {
		return Variant{}, err
	}
	return e.Variants[e.byValue[v]], nil
}

// ByName finds a variant by case-insensitive name.
func (e *Enum) ByName(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Variant{}, false
}

// Field is a named bit range within a Block.
type Field struct {
	Name        string `yaml:"name"`
	Offset      int    `yaml:"offset"`
	Width       int    `yaml:"width"`
	Kind        Kind   `yaml:"type"`
	Enum        string `yaml:"enum,omitempty"`
	Unit        string `yaml:"unit,omitempty"`
	Description string `yaml:"description,omitempty"`

	enum *Enum
}

// EnumDef returns the resolved enum of a KindEnum field, or nil.
func (f *Field) EnumDef() *Enum { return f.enum }

// Block is a register or a manufacturer-access command payload.
type Block struct {
	Name        string   `yaml:"name"`
	Address     uint16   `yaml:"address"`
	Bits        int      `yaml:"bits"`
	Access      Access   `yaml:"access"`
	Encoding    Encoding `yaml:"encoding,omitempty"`
	Reset       *uint64  `yaml:"reset,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Fields      []Field  `yaml:"fields,omitempty"`

	command bool
	byName  map[string]*Field
}

// Size is the payload length in bytes.
func (b *Block) Size() int { return int(mathx.CeilDiv(uint(b.Bits), 8)) }

// IsCommand reports whether b is a manufacturer-access command.
func (b *Block) IsCommand() bool { return b.command }

// Field finds a field by case-insensitive name.
func (b *Block) Field(name string) (*Field, bool) {
	f, ok := b.byName[strings.ToLower(name)]
	return f, ok
}

// Map is a validated device description.
type Map struct {
	Device    string  `yaml:"device"`
	Address   uint16  `yaml:"address"`
	Enums     []Enum  `yaml:"enums,omitempty"`
	Registers []Block `yaml:"registers"`
	Commands  []Block `yaml:"commands,omitempty"`

	enums   map[string]*Enum
	regs    map[string]*Block
	cmds    map[string]*Block
	regAddr map[uint16]*Block
	cmdAddr map[uint16]*Block
}

// Parse decodes and validates a YAML register map.
func Parse(data []byte) (*Map, error) {
	var m Map
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, &errcode.E{C: errcode.InvalidMap, Op: "regmap.Parse", Err: err}
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a register map file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Register finds a register by case-insensitive name.
func (m *Map) Register(name string) (*Block, bool) {
	b, ok := m.regs[strings.ToLower(name)]
	return b, ok
}

// Command finds a manufacturer-access command by case-insensitive name.
func (m *Map) Command(name string) (*Block, bool) {
	b, ok := m.cmds[strings.ToLower(name)]
	return b, ok
}

// RegisterAt finds a register by command code.
func (m *Map) RegisterAt(addr uint16) (*Block, bool) {
	b, ok := m.regAddr[addr]
	return b, ok
}

// CommandAt finds a command by subcommand code.
func (m *Map) CommandAt(code uint16) (*Block, bool) {
	b, ok := m.cmdAddr[code]
	return b, ok
}

// Lookup resolves name as a register first, then as a command.
func (m *Map) Lookup(name string) (*Block, error) {
	if b, ok := m.Register(name); ok {
		return b, nil
	}
	if b, ok := m.Command(name); ok {
		return b, nil
	}
	return nil, &errcode.E{C: errcode.UnknownRegister, Op: "regmap.Lookup", Msg: name}
}

// EnumByName finds an enum definition.
func (m *Map) EnumByName(name string) (*Enum, bool) {
	e, ok := m.enums[strings.ToLower(name)]
	return e, ok
}

func invalid(block, field, msg string) error {
	where := block
	if field != "" {
		where += "." + field
	}
	return &errcode.E{C: errcode.InvalidMap, Op: "regmap", Msg: where + ": " + msg}
}

func (m *Map) init() error {
	m.enums = make(map[string]*Enum, len(m.Enums))
	for i := range m.Enums {
		e := &m.Enums[i]
		key := strings.ToLower(e.Name)
		if e.Name == "" {
			return invalid("enum", "", "missing name")
		}
		if _, dup := m.enums[key]; dup {
			return invalid(e.Name, "", "duplicate enum")
		}
		if len(e.Variants) == 0 {
			return invalid(e.Name, "", "enum has no variants")
		}
		names := make(map[uint64]string, len(e.Variants))
		seen := make(map[string]bool, len(e.Variants))
		e.byValue = make(map[uint64]int, len(e.Variants))
		for j, v := range e.Variants {
			if v.Name == "" {
				return invalid(e.Name, "", "variant missing name")
			}
			if _, dup := names[v.Value]; dup {
				return invalid(e.Name, v.Name, "duplicate variant value")
			}
			// ByName and SetEnum match case-insensitively.
			lower := strings.ToLower(v.Name)
			if seen[lower] {
				return invalid(e.Name, v.Name, "duplicate variant name")
			}
			seen[lower] = true
			names[v.Value] = v.Name
			e.byValue[v.Value] = j
		}
		e.codec = bitfield.NewEnum(e.Name, names)
		m.enums[key] = e
	}

	m.regs = make(map[string]*Block, len(m.Registers))
	m.regAddr = make(map[uint16]*Block, len(m.Registers))
	for i := range m.Registers {
		b := &m.Registers[i]
		if err := m.initBlock(b, false); err != nil {
			return err
		}
		if _, dup := m.regAddr[b.Address]; dup {
			return invalid(b.Name, "", "duplicate register address")
		}
		m.regs[strings.ToLower(b.Name)] = b
		m.regAddr[b.Address] = b
	}

	m.cmds = make(map[string]*Block, len(m.Commands))
	m.cmdAddr = make(map[uint16]*Block, len(m.Commands))
	for i := range m.Commands {
		b := &m.Commands[i]
		if err := m.initBlock(b, true); err != nil {
			return err
		}
		if _, dup := m.cmdAddr[b.Address]; dup {
			return invalid(b.Name, "", "duplicate command code")
		}
		m.cmds[strings.ToLower(b.Name)] = b
		m.cmdAddr[b.Address] = b
	}
	return nil
}

func (m *Map) initBlock(b *Block, command bool) error {
	b.command = command
	if b.Name == "" {
		return invalid("block@"+strconv.Itoa(int(b.Address)), "", "missing name")
	}
	key := strings.ToLower(b.Name)
	if _, dup := m.regs[key]; dup {
		return invalid(b.Name, "", "duplicate name")
	}
	if _, dup := m.cmds[key]; dup {
		return invalid(b.Name, "", "duplicate name")
	}
	switch b.Access {
	case AccessRO, AccessRW, AccessWO:
	default:
		return invalid(b.Name, "", "access must be ro, rw or wo")
	}

	if command {
		if b.Encoding != "" && b.Encoding != EncodingBlock {
			return invalid(b.Name, "", "commands use block encoding")
		}
		b.Encoding = EncodingBlock
		if b.Bits == 0 && (b.Access != AccessWO || len(b.Fields) != 0) {
			return invalid(b.Name, "", "payload-less commands must be write-only without fields")
		}
	} else {
		if b.Address > 0xFF {
			return invalid(b.Name, "", "register command codes are one byte")
		}
		if b.Encoding == "" {
			b.Encoding = EncodingWord
		}
		switch b.Encoding {
		case EncodingWord:
			if b.Bits < 1 || b.Bits > 16 {
				return invalid(b.Name, "", "word registers hold 1..16 bits")
			}
		case EncodingBlock, EncodingString:
			if b.Bits < 8 {
				return invalid(b.Name, "", "block registers hold at least one byte")
			}
		default:
			return invalid(b.Name, "", "unknown encoding "+strconv.Quote(string(b.Encoding)))
		}
		if b.Encoding == EncodingString && len(b.Fields) != 0 {
			return invalid(b.Name, "", "string registers have no fields")
		}
	}
	if b.Bits < 0 || b.Size() > MaxBlockBytes {
		return invalid(b.Name, "", "size exceeds "+strconv.Itoa(MaxBlockBytes)+" bytes")
	}
	if b.Reset != nil && !bitfield.Fits(*b.Reset, min(b.Bits, 64)) {
		return invalid(b.Name, "", "reset value wider than block")
	}

	b.byName = make(map[string]*Field, len(b.Fields))
	used := make([]bool, b.Bits)
	for i := range b.Fields {
		f := &b.Fields[i]
		if err := m.initField(b, f); err != nil {
			return err
		}
		fk := strings.ToLower(f.Name)
		if _, dup := b.byName[fk]; dup {
			return invalid(b.Name, f.Name, "duplicate field")
		}
		for bit := f.Offset; bit < f.Offset+f.Width; bit++ {
			if used[bit] {
				return invalid(b.Name, f.Name, "overlaps another field")
			}
			used[bit] = true
		}
		b.byName[fk] = f
	}
	return nil
}

func (m *Map) initField(b *Block, f *Field) error {
	if f.Name == "" {
		return invalid(b.Name, "", "field without name")
	}
	if err := bitfield.Check(b.Size(), f.Offset, f.Width); err != nil || f.Offset+f.Width > b.Bits {
		return invalid(b.Name, f.Name, "bit range outside block")
	}
	switch f.Kind {
	case KindUint, KindInt:
	case KindBool:
		if f.Width != 1 {
			return invalid(b.Name, f.Name, "bool fields are one bit wide")
		}
	case KindEnum:
		e, ok := m.enums[strings.ToLower(f.Enum)]
		if !ok {
			return invalid(b.Name, f.Name, "unknown enum "+strconv.Quote(f.Enum))
		}
		for _, v := range e.Variants {
			if !bitfield.Fits(v.Value, f.Width) {
				return invalid(b.Name, f.Name, "variant "+v.Name+" wider than field")
			}
		}
		f.enum = e
	default:
		return invalid(b.Name, f.Name, "unknown type "+strconv.Quote(string(f.Kind)))
	}
	return nil
}
