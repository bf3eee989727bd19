package bq40z50

import (
	"bytes"

	"gaugecode-go/errcode"
	"gaugecode-go/regmap"
	"gaugecode-go/x/bitfield"

	"tinygo.org/x/drivers"
)

// Config holds the driver configuration.
type Config struct {
	Address uint16
	// Map describes registers and commands; nil selects the embedded map.
	Map *regmap.Map
}

// DefaultConfig targets the standard smart-battery address.
func DefaultConfig() Config {
	return Config{Address: AddressDefault}
}

// Device is a BQ40Z50 on an SMBus segment.
//
// Methods are not safe for concurrent use; serialise calls externally.
type Device struct {
	i2c  drivers.I2C
	addr uint16
	m    *regmap.Map

	// Fixed buffers to avoid per-call heap allocations.
	w [2 + maxBlock]byte
	r [1 + maxBlock]byte
}

// New constructs a Device with the supplied config.
func New(i2c drivers.I2C, cfg Config) *Device {
	m := cfg.Map
	if m == nil {
		m = regmap.Default()
	}
	addr := cfg.Address
	if addr == 0 {
		addr = m.Address
	}
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr, m: m}
}

// Introspection.
func (d *Device) Address() uint16  { return d.addr }
func (d *Device) Map() *regmap.Map { return d.m }

func busErr(op string, err error) error { return errcode.Wrap(errcode.Bus, op, err) }

func (d *Device) register(op, name string) (*regmap.Block, error) {
	b, ok := d.m.Register(name)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownRegister, Op: op, Msg: name}
	}
	return b, nil
}

func (d *Device) command(op, name string) (*regmap.Block, error) {
	b, ok := d.m.Command(name)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownRegister, Op: op, Msg: name}
	}
	return b, nil
}

// ReadRegister reads a register by name into a FieldSet.
func (d *Device) ReadRegister(name string) (*regmap.FieldSet, error) {
	return d.readRegister("bq40z50.ReadRegister", name)
}

func (d *Device) readRegister(op, name string) (*regmap.FieldSet, error) {
	b, err := d.register(op, name)
	if err != nil {
		return nil, err
	}
	return d.readBlockInto(op, b)
}

func (d *Device) readBlockInto(op string, b *regmap.Block) (*regmap.FieldSet, error) {
	if !b.Access.Readable() {
		return nil, &errcode.E{C: errcode.WriteOnly, Op: op, Msg: b.Name, Err: ErrWriteOnly}
	}
	cmd := byte(b.Address)
	switch b.Encoding {
	case regmap.EncodingWord:
		if err := d.readWord(cmd); err != nil {
			return nil, busErr(op, err)
		}
		return b.FromBytes(d.r[:b.Size()])
	case regmap.EncodingString:
		p, err := d.readString(op, b)
		if err != nil {
			return nil, err
		}
		fs := b.New()
		copy(fs.Bytes(), p)
		return fs, nil
	default:
		p, err := d.readBlock(cmd, regmap.MaxBlockBytes)
		if err != nil {
			return nil, busErr(op, err)
		}
		if len(p) < b.Size() {
			return nil, &errcode.E{C: errcode.ShortResponse, Op: op, Msg: b.Name, Err: ErrShortResponse}
		}
		return b.FromBytes(p[:b.Size()])
	}
}

// readString returns the raw payload of a string register, which must fit
// the register's declared size.
func (d *Device) readString(op string, b *regmap.Block) ([]byte, error) {
	p, err := d.readBlock(byte(b.Address), regmap.MaxBlockBytes)
	if err != nil {
		return nil, busErr(op, err)
	}
	if len(p) > b.Size() {
		return nil, &errcode.E{C: errcode.BadLength, Op: op, Msg: b.Name, Err: ErrStringLength}
	}
	return p, nil
}

// WriteRegister writes fs to its register.
func (d *Device) WriteRegister(fs *regmap.FieldSet) error {
	return d.writeRegister("bq40z50.WriteRegister", fs)
}

func (d *Device) writeRegister(op string, fs *regmap.FieldSet) error {
	b := fs.Block()
	if b.IsCommand() {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: b.Name + " is a command"}
	}
	if !b.Access.Writable() {
		return &errcode.E{C: errcode.ReadOnly, Op: op, Msg: b.Name, Err: ErrReadOnly}
	}
	cmd := byte(b.Address)
	if b.Encoding == regmap.EncodingWord {
		var word [2]byte
		copy(word[:], fs.Bytes())
		v, _ := bitfield.Load[uint16](word[:], 0, 16)
		return busErr(op, d.writeWord(cmd, v))
	}
	return busErr(op, d.writeBlock(cmd, fs.Bytes()))
}

// ReadString reads a string register, trimming trailing NULs.
func (d *Device) ReadString(name string) (string, error) {
	const op = "bq40z50.ReadString"
	b, err := d.register(op, name)
	if err != nil {
		return "", err
	}
	if b.Encoding != regmap.EncodingString {
		return "", &errcode.E{C: errcode.FieldKind, Op: op, Msg: b.Name + " is not a string register"}
	}
	p, err := d.readString(op, b)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(p, "\x00")), nil
}

// ReadCommand runs a ManufacturerAccess subcommand and returns its payload.
func (d *Device) ReadCommand(name string) (*regmap.FieldSet, error) {
	return d.readCommand("bq40z50.ReadCommand", name)
}

func (d *Device) readCommand(op, name string) (*regmap.FieldSet, error) {
	b, err := d.command(op, name)
	if err != nil {
		return nil, err
	}
	if !b.Access.Readable() {
		return nil, &errcode.E{C: errcode.WriteOnly, Op: op, Msg: b.Name, Err: ErrWriteOnly}
	}
	p, err := d.mac(b.Address)
	switch err {
	case nil:
	case ErrShortResponse:
		return nil, &errcode.E{C: errcode.ShortResponse, Op: op, Msg: b.Name, Err: err}
	case ErrSubcommandMismatch:
		return nil, &errcode.E{C: errcode.Mismatch, Op: op, Msg: b.Name, Err: err}
	default:
		return nil, busErr(op, err)
	}
	if len(p) < b.Size() {
		return nil, &errcode.E{C: errcode.ShortResponse, Op: op, Msg: b.Name, Err: ErrShortResponse}
	}
	return b.FromBytes(p[:b.Size()])
}

// WriteCommand block-writes fs behind its subcommand code.
func (d *Device) WriteCommand(fs *regmap.FieldSet) error {
	const op = "bq40z50.WriteCommand"
	b := fs.Block()
	if !b.IsCommand() {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: b.Name + " is a register"}
	}
	if !b.Access.Writable() {
		return &errcode.E{C: errcode.ReadOnly, Op: op, Msg: b.Name, Err: ErrReadOnly}
	}
	var p [maxBlock]byte
	_ = bitfield.Store(p[:2], 0, 16, b.Address)
	n := copy(p[2:], fs.Bytes())
	return busErr(op, d.writeBlock(regManufacturerBlockAccess, p[:2+n]))
}

// SendCommand writes a subcommand to ManufacturerAccess. Use it for
// commands that take no payload.
func (d *Device) SendCommand(name string) error {
	return d.sendCommand("bq40z50.SendCommand", name)
}

func (d *Device) sendCommand(op, name string) error {
	b, err := d.command(op, name)
	if err != nil {
		return err
	}
	if !b.Access.Writable() {
		return &errcode.E{C: errcode.ReadOnly, Op: op, Msg: b.Name, Err: ErrReadOnly}
	}
	return busErr(op, d.writeWord(regManufacturerAccess, b.Address))
}
