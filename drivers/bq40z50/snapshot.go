package bq40z50

import "go.uber.org/multierr"

// Snapshot collects commonly used telemetry and status.
// Zero values remain where individual reads fail.
type Snapshot struct {
	Voltage_mV            int32
	Cell_mV               [4]int32
	Current_mA            int32
	AverageCurrent_mA     int32
	Temperature_mC        int32
	RelativeSOC_pct       uint8
	AbsoluteSOC_pct       uint8
	RemainingCap_mAh      uint16
	FullChargeCap_mAh     uint16
	CycleCount            uint16
	RunTimeToEmpty_min    uint16
	AverageTimeToFull_min uint16
	Status                BatteryStatus
	Mode                  BatteryMode
	Operation             OperationStatus
}

// Snapshot reads every field and returns the combined error of failed reads.
func (d *Device) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := d.SnapshotInto(&s)
	return s, err
}

func (d *Device) SnapshotInto(out *Snapshot) error {
	var (
		s    Snapshot
		errs error
	)
	if v, e := d.Voltage_mV(); e == nil {
		s.Voltage_mV = v
	} else {
		errs = multierr.Append(errs, e)
	}
	for i := range s.Cell_mV {
		if v, e := d.CellVoltage_mV(i + 1); e == nil {
			s.Cell_mV[i] = v
		} else {
			errs = multierr.Append(errs, e)
		}
	}
	if v, e := d.Current_mA(); e == nil {
		s.Current_mA = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.AverageCurrent_mA(); e == nil {
		s.AverageCurrent_mA = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.Temperature_mC(); e == nil {
		s.Temperature_mC = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.RelativeSOC_pct(); e == nil {
		s.RelativeSOC_pct = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.AbsoluteSOC_pct(); e == nil {
		s.AbsoluteSOC_pct = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.RemainingCapacity_mAh(); e == nil {
		s.RemainingCap_mAh = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.FullChargeCapacity_mAh(); e == nil {
		s.FullChargeCap_mAh = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.CycleCount(); e == nil {
		s.CycleCount = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.RunTimeToEmpty_min(); e == nil {
		s.RunTimeToEmpty_min = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.AverageTimeToFull_min(); e == nil {
		s.AverageTimeToFull_min = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.ReadBatteryStatus(); e == nil {
		s.Status = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.ReadBatteryMode(); e == nil {
		s.Mode = v
	} else {
		errs = multierr.Append(errs, e)
	}
	if v, e := d.ReadOperationStatus(); e == nil {
		s.Operation = v
	} else {
		errs = multierr.Append(errs, e)
	}
	*out = s
	return errs
}
