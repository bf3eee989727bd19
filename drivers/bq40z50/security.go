package bq40z50

// SecurityMode names a variant of the map's SecurityMode enum.
type SecurityMode string

const (
	SecurityFullAccess SecurityMode = "full_access"
	SecurityUnsealed   SecurityMode = "unsealed"
	SecuritySealed     SecurityMode = "sealed"
)

// Factory keys shipped in unprogrammed data flash.
const (
	DefaultUnsealKey1     uint16 = 0x0414
	DefaultUnsealKey2     uint16 = 0x3672
	DefaultFullAccessKey1 uint16 = 0xFFFF
	DefaultFullAccessKey2 uint16 = 0xFFFF
)

// SecurityMode reads OperationStatus and decodes the access level.
func (d *Device) SecurityMode() (SecurityMode, error) {
	st, err := d.ReadOperationStatus()
	if err != nil {
		return "", err
	}
	return st.SecurityMode()
}

// Seal returns the gauge to sealed mode.
func (d *Device) Seal() error {
	return d.sendCommand("bq40z50.Seal", "SealDevice")
}

// Unseal sends the two unseal key words. The gauge gives no response;
// check SecurityMode afterwards.
func (d *Device) Unseal(key1, key2 uint16) error {
	return d.sendKeys("bq40z50.Unseal", key1, key2)
}

// FullAccess sends the full-access key words. The gauge must be unsealed.
func (d *Device) FullAccess(key1, key2 uint16) error {
	return d.sendKeys("bq40z50.FullAccess", key1, key2)
}

func (d *Device) sendKeys(op string, key1, key2 uint16) error {
	if err := d.writeWord(regManufacturerAccess, key1); err != nil {
		return busErr(op, err)
	}
	return busErr(op, d.writeWord(regManufacturerAccess, key2))
}

// Reset restarts the gauge firmware.
func (d *Device) Reset() error {
	return d.sendCommand("bq40z50.Reset", "DeviceReset")
}

// DeviceType reads the part number through ManufacturerBlockAccess.
func (d *Device) DeviceType() (uint16, error) {
	fs, err := d.readCommand("bq40z50.DeviceType", "DeviceType")
	if err != nil {
		return 0, err
	}
	v, err := fs.Uint(valueField)
	return uint16(v), err
}
