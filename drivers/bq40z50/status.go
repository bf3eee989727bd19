package bq40z50

import (
	"gaugecode-go/regmap"
	"gaugecode-go/x/bitfield"
)

// Flag names a one-bit field of a status register in the map.
type Flag string

// Bits is a status register decoded through the map. The zero value, left
// behind by a failed read, has no flags set.
type Bits struct{ fs *regmap.FieldSet }

// Valid reports whether the register was read.
func (b Bits) Valid() bool { return b.fs != nil }

// FieldSet returns the underlying fields, or nil if unread.
func (b Bits) FieldSet() *regmap.FieldSet { return b.fs }

func (b Bits) Has(f Flag) bool {
	if b.fs == nil {
		return false
	}
	v, err := b.fs.Bool(string(f))
	return err == nil && v
}

// Raw returns the register's low 64 bits.
func (b Bits) Raw() uint64 {
	if b.fs == nil {
		return 0
	}
	p := b.fs.Bytes()
	v, _ := bitfield.LoadUint64(p, 0, min(8*len(p), 64))
	return v
}

func (b Bits) String() string {
	if b.fs == nil {
		return "<unread>"
	}
	return b.fs.String()
}

func (b Bits) variant(field string) (regmap.Variant, error) {
	if b.fs == nil {
		return regmap.Variant{}, ErrNotRead
	}
	return b.fs.Enum(field)
}

func (d *Device) readBits(op, reg string) (Bits, error) {
	fs, err := d.readRegister(op, reg)
	if err != nil {
		return Bits{}, err
	}
	return Bits{fs: fs}, nil
}

// BatteryStatus. The low nibble carries the last command's ErrorCode.
type BatteryStatus struct{ Bits }

const (
	StatusFullyDischarged    Flag = "fd"
	StatusFullyCharged       Flag = "fc"
	StatusDischarging        Flag = "dsg"
	StatusInitialized        Flag = "init"
	StatusRemainingTimeAlarm Flag = "rta"
	StatusRemainingCapAlarm  Flag = "rca"
	StatusTermDischargeAlarm Flag = "tda"
	StatusOverTempAlarm      Flag = "ota"
	StatusTermChargeAlarm    Flag = "tca"
	StatusOverChargeAlarm    Flag = "oca"
)

var statusAlarms = []Flag{
	StatusRemainingTimeAlarm, StatusRemainingCapAlarm, StatusTermDischargeAlarm,
	StatusOverTempAlarm, StatusTermChargeAlarm, StatusOverChargeAlarm,
}

// Alarms reports whether any alarm bit is set.
func (s BatteryStatus) Alarms() bool {
	for _, f := range statusAlarms {
		if s.Has(f) {
			return true
		}
	}
	return false
}

// ErrorCode names a variant of the map's ErrorCode enum.
type ErrorCode string

const (
	ErrorOK                 ErrorCode = "ok"
	ErrorBusy               ErrorCode = "busy"
	ErrorReservedCommand    ErrorCode = "reserved_command"
	ErrorUnsupportedCommand ErrorCode = "unsupported_command"
	ErrorAccessDenied       ErrorCode = "access_denied"
	ErrorOverflowUnderflow  ErrorCode = "overflow_underflow"
	ErrorBadSize            ErrorCode = "bad_size"
	ErrorUnknown            ErrorCode = "unknown_error"
)

// ErrorCode decodes the ec field. Raw values without a variant yield a
// *bitfield.DecodeError.
func (s BatteryStatus) ErrorCode() (ErrorCode, error) {
	v, err := s.variant("ec")
	return ErrorCode(v.Name), err
}

func (d *Device) ReadBatteryStatus() (BatteryStatus, error) {
	b, err := d.readBits("bq40z50.ReadBatteryStatus", "BatteryStatus")
	return BatteryStatus{b}, err
}

// BatteryMode
type BatteryMode struct{ Bits }

const (
	ModeInternalChargeController Flag = "icc"
	ModePrimaryBatterySupport    Flag = "pbs"
	ModeConditionFlag            Flag = "cf"
	ModeChargeControllerEnabled  Flag = "cc"
	ModePrimaryBattery           Flag = "pb"
	ModeAlarmDisable             Flag = "am"
	ModeChargerDisable           Flag = "chgm"
	ModeCapacity10mW             Flag = "capm"
)

func (d *Device) ReadBatteryMode() (BatteryMode, error) {
	b, err := d.readBits("bq40z50.ReadBatteryMode", "BatteryMode")
	return BatteryMode{b}, err
}

func (d *Device) SetBatteryModeBits(flags ...Flag) error {
	return d.UpdateBatteryMode(flags, nil)
}

func (d *Device) ClearBatteryModeBits(flags ...Flag) error {
	return d.UpdateBatteryMode(nil, flags)
}

// UpdateBatteryMode sets then clears flags in one read-modify-write.
func (d *Device) UpdateBatteryMode(set, clear []Flag) error {
	const op = "bq40z50.UpdateBatteryMode"
	fs, err := d.readRegister(op, "BatteryMode")
	if err != nil {
		return err
	}
	for _, f := range set {
		if err := fs.SetBool(string(f), true); err != nil {
			return err
		}
	}
	for _, f := range clear {
		if err := fs.SetBool(string(f), false); err != nil {
			return err
		}
	}
	return d.writeRegister(op, fs)
}

// OperationStatus. The sec field is decoded by SecurityMode.
type OperationStatus struct{ Bits }

const (
	OpPresent          Flag = "pres"
	OpDSG              Flag = "dsg"
	OpCHG              Flag = "chg"
	OpPCHG             Flag = "pchg"
	OpFuse             Flag = "fuse"
	OpBTPInt           Flag = "btp_int"
	OpShutdownLowV     Flag = "sdv"
	OpSafetyStatus     Flag = "ss"
	OpPermanentFailure Flag = "pf"
	OpDischargeOff     Flag = "xdsg"
	OpChargeOff        Flag = "xchg"
	OpSleep            Flag = "sleep"
	OpCellBalancing    Flag = "cb"
	OpEmergencyShut    Flag = "emshut"
)

// SecurityMode decodes the sec field. The reserved value 0 is an error.
func (s OperationStatus) SecurityMode() (SecurityMode, error) {
	v, err := s.variant("sec")
	return SecurityMode(v.Name), err
}

func (d *Device) ReadOperationStatus() (OperationStatus, error) {
	b, err := d.readBits("bq40z50.ReadOperationStatus", "OperationStatus")
	return OperationStatus{b}, err
}
