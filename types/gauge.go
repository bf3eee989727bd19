package types

// ------------------------
// Fuel gauge (bq40z50)
// ------------------------

type GaugeInfo struct {
	Device string `json:"device"`
	Bus    string `json:"bus"`
	Addr   uint16 `json:"addr"`
	Name   string `json:"name,omitempty"` // DeviceName string register
	Type   uint16 `json:"type,omitempty"` // MAC DeviceType
}

// Published value: one gauge snapshot.
type GaugeValue struct {
	PackMilliV     int32    `json:"pack_mV"`
	CellMilliV     [4]int32 `json:"cell_mV"`
	IBatMilliA     int32    `json:"ibat_mA"`
	IAvgMilliA     int32    `json:"iavg_mA"`
	TempMilliC     int32    `json:"temp_mC"`
	RSOCPct        uint8    `json:"rsoc_pct"`
	ASOCPct        uint8    `json:"asoc_pct"`
	RemainingMAh   uint16   `json:"remaining_mAh"`
	FullChargeMAh  uint16   `json:"full_charge_mAh"`
	Cycles         uint16   `json:"cycles"`
	TimeToEmptyMin uint16   `json:"tte_min"`
	TimeToFullMin  uint16   `json:"ttf_min"`
	Status         uint16   `json:"status"`    // raw BatteryStatus bits
	Mode           uint16   `json:"mode"`      // raw BatteryMode bits
	Operation      uint32   `json:"operation"` // raw OperationStatus bits
	Security       string   `json:"security,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}
