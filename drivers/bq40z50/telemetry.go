package bq40z50

import (
	"strconv"
	"time"

	"gaugecode-go/errcode"
	"gaugecode-go/regmap"
	"gaugecode-go/x/mathx"
)

// Typed accessors resolve their registers by name, so a custom map that
// moves or resizes a register moves them with it.

func (d *Device) uintValue(op, reg string) (uint64, error) {
	fs, err := d.readRegister(op, reg)
	if err != nil {
		return 0, err
	}
	return fs.Uint(valueField)
}

func (d *Device) intValue(op, reg string) (int64, error) {
	fs, err := d.readRegister(op, reg)
	if err != nil {
		return 0, err
	}
	return fs.Int(valueField)
}

func (d *Device) setUintValue(op, reg string, v uint64) error {
	b, err := d.register(op, reg)
	if err != nil {
		return err
	}
	fs := b.New()
	if err := fs.SetUint(valueField, v); err != nil {
		return err
	}
	return d.writeRegister(op, fs)
}

// Voltages

func (d *Device) Voltage_mV() (int32, error) {
	v, err := d.uintValue("bq40z50.Voltage_mV", "Voltage")
	return int32(v), err
}

// CellVoltage_mV reads cell 1..4; cell 1 is the bottom of the stack.
func (d *Device) CellVoltage_mV(cell int) (int32, error) {
	const op = "bq40z50.CellVoltage_mV"
	if cell < 1 || cell > 4 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: op, Err: ErrInvalidCell}
	}
	v, err := d.uintValue(op, "CellVoltage"+strconv.Itoa(cell))
	return int32(v), err
}

// Currents (positive while charging)

func (d *Device) Current_mA() (int32, error) {
	v, err := d.intValue("bq40z50.Current_mA", "Current")
	return int32(v), err
}

func (d *Device) AverageCurrent_mA() (int32, error) {
	v, err := d.intValue("bq40z50.AverageCurrent_mA", "AverageCurrent")
	return int32(v), err
}

// Power_mW is Voltage × Current, rounded; negative while discharging.
func (d *Device) Power_mW() (int32, error) {
	mV, err := d.Voltage_mV()
	if err != nil {
		return 0, err
	}
	mA, err := d.Current_mA()
	if err != nil {
		return 0, err
	}
	return int32(mathx.RoundDiv(int64(mV)*int64(mA), 1000)), nil
}

// Temperature

// Temperature_mC converts the 0.1 K reading to milli-degrees Celsius.
func (d *Device) Temperature_mC() (int32, error) {
	v, err := d.uintValue("bq40z50.Temperature_mC", "Temperature")
	if err != nil {
		return 0, err
	}
	return int32(v)*100 - 273150, nil
}

// Charge

func (d *Device) RelativeSOC_pct() (uint8, error) {
	v, err := d.uintValue("bq40z50.RelativeSOC_pct", "RelativeStateOfCharge")
	return uint8(v), err
}

func (d *Device) AbsoluteSOC_pct() (uint8, error) {
	v, err := d.uintValue("bq40z50.AbsoluteSOC_pct", "AbsoluteStateOfCharge")
	return uint8(v), err
}

func (d *Device) StateOfHealth_pct() (uint8, error) {
	v, err := d.uintValue("bq40z50.StateOfHealth_pct", "StateOfHealth")
	return uint8(v), err
}

func (d *Device) RemainingCapacity_mAh() (uint16, error) {
	v, err := d.uintValue("bq40z50.RemainingCapacity_mAh", "RemainingCapacity")
	return uint16(v), err
}

func (d *Device) FullChargeCapacity_mAh() (uint16, error) {
	v, err := d.uintValue("bq40z50.FullChargeCapacity_mAh", "FullChargeCapacity")
	return uint16(v), err
}

func (d *Device) CycleCount() (uint16, error) {
	v, err := d.uintValue("bq40z50.CycleCount", "CycleCount")
	return uint16(v), err
}

func (d *Device) SerialNumber() (uint16, error) {
	v, err := d.uintValue("bq40z50.SerialNumber", "SerialNumber")
	return uint16(v), err
}

// Times (65535 means not applicable)

func (d *Device) RunTimeToEmpty_min() (uint16, error) {
	v, err := d.uintValue("bq40z50.RunTimeToEmpty_min", "RunTimeToEmpty")
	return uint16(v), err
}

func (d *Device) AverageTimeToEmpty_min() (uint16, error) {
	v, err := d.uintValue("bq40z50.AverageTimeToEmpty_min", "AverageTimeToEmpty")
	return uint16(v), err
}

func (d *Device) AverageTimeToFull_min() (uint16, error) {
	v, err := d.uintValue("bq40z50.AverageTimeToFull_min", "AverageTimeToFull")
	return uint16(v), err
}

// Alarms

func (d *Device) RemainingCapacityAlarm_mAh() (uint16, error) {
	v, err := d.uintValue("bq40z50.RemainingCapacityAlarm_mAh", "RemainingCapacityAlarm")
	return uint16(v), err
}

func (d *Device) SetRemainingCapacityAlarm_mAh(mAh uint16) error {
	return d.setUintValue("bq40z50.SetRemainingCapacityAlarm_mAh", "RemainingCapacityAlarm", uint64(mAh))
}

func (d *Device) RemainingTimeAlarm_min() (uint16, error) {
	v, err := d.uintValue("bq40z50.RemainingTimeAlarm_min", "RemainingTimeAlarm")
	return uint16(v), err
}

func (d *Device) SetRemainingTimeAlarm_min(minutes uint16) error {
	return d.setUintValue("bq40z50.SetRemainingTimeAlarm_min", "RemainingTimeAlarm", uint64(minutes))
}

// ManufactureDate decodes the day, month and year fields; year counts from
// 1980.
func (d *Device) ManufactureDate() (time.Time, error) {
	const op = "bq40z50.ManufactureDate"
	fs, err := d.readRegister(op, "ManufactureDate")
	if err != nil {
		return time.Time{}, err
	}
	return decodeDate(op, fs)
}

func decodeDate(op string, fs *regmap.FieldSet) (time.Time, error) {
	day, err := fs.Uint("day")
	if err != nil {
		return time.Time{}, err
	}
	month, err := fs.Uint("month")
	if err != nil {
		return time.Time{}, err
	}
	year, err := fs.Uint("year")
	if err != nil {
		return time.Time{}, err
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, &errcode.E{C: errcode.InvalidParams, Op: op, Err: ErrInvalidDate}
	}
	t := time.Date(1980+int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	if t.Day() != int(day) {
		return time.Time{}, &errcode.E{C: errcode.InvalidParams, Op: op, Err: ErrInvalidDate}
	}
	return t, nil
}
