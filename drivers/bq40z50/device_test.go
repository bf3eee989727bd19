package bq40z50

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gaugecode-go/errcode"
	"gaugecode-go/regmap"
	"gaugecode-go/x/bitfield"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fakeGauge)(nil)

// SBS command codes the fake answers on, as laid out in the embedded map.
const (
	regRemainingCapacityAlarm = 0x01
	regBatteryMode            = 0x03
	regTemperature            = 0x08
	regVoltage                = 0x09
	regCurrent                = 0x0A
	regAverageCurrent         = 0x0B
	regRelativeStateOfCharge  = 0x0D
	regFullChargeCapacity     = 0x10
	regBatteryStatus          = 0x16
	regManufactureDate        = 0x1B
	regDeviceChemistry        = 0x22
	regCellVoltage4           = 0x3C
	regCellVoltage1           = 0x3F
	regOperationStatus        = 0x54

	macDeviceType       = 0x0001
	macManufacturerInfo = 0x0070
)

// Scripted smart-battery fake: word and block registers plus the
// ManufacturerBlockAccess subcommand protocol.
type fakeGauge struct {
	mu sync.Mutex

	words  map[byte]uint16
	blocks map[byte][]byte
	macs   map[uint16][]byte

	lastMAC   uint16
	echo      *uint16 // overrides the echoed subcommand
	access    []uint16
	blockOut  map[byte][]byte
	rawLength *byte
	fail      error
}

func newFakeGauge() *fakeGauge {
	return &fakeGauge{
		words:    map[byte]uint16{},
		blocks:   map[byte][]byte{},
		macs:     map[uint16][]byte{},
		blockOut: map[byte][]byte{},
	}
}

func (f *fakeGauge) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return f.fail
	}
	if addr != AddressDefault || len(w) == 0 {
		return errors.New("nack")
	}
	cmd := w[0]

	switch {
	// Word read
	case len(w) == 1 && len(r) == 2:
		v := f.words[cmd]
		r[0], r[1] = byte(v), byte(v>>8)
		return nil

	// Block read
	case len(w) == 1 && len(r) > 2:
		var p []byte
		if cmd == regManufacturerBlockAccess {
			echo := f.lastMAC
			if f.echo != nil {
				echo = *f.echo
			}
			p = append([]byte{byte(echo), byte(echo >> 8)}, f.macs[f.lastMAC]...)
		} else {
			p = f.blocks[cmd]
		}
		r[0] = byte(len(p))
		if f.rawLength != nil {
			r[0] = *f.rawLength
		}
		copy(r[1:], p)
		return nil

	// Block write
	case cmd == regManufacturerBlockAccess && r == nil:
		if int(w[1]) != len(w)-2 {
			return errors.New("bad block length")
		}
		f.blockOut[cmd] = append([]byte(nil), w[2:]...)
		if len(w) >= 4 {
			f.lastMAC = uint16(w[2]) | uint16(w[3])<<8
		}
		return nil

	// Word write
	case len(w) == 3 && r == nil:
		v := uint16(w[1]) | uint16(w[2])<<8
		if cmd == regManufacturerAccess {
			f.access = append(f.access, v)
			return nil
		}
		f.words[cmd] = v
		return nil
	}
	return errors.New("unexpected transfer")
}

func newTestDevice(t *testing.T) (*Device, *fakeGauge) {
	t.Helper()
	f := newFakeGauge()
	return New(f, DefaultConfig()), f
}

func TestNewDefaults(t *testing.T) {
	d := New(newFakeGauge(), Config{})
	assert.Equal(t, uint16(AddressDefault), d.Address())
	require.NotNil(t, d.Map())
	assert.Equal(t, "bq40z50", d.Map().Device)
}

func TestReadWriteWordRegister(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regRemainingCapacityAlarm] = 0x012C

	fs, err := d.ReadRegister("RemainingCapacityAlarm")
	require.NoError(t, err)
	v, err := fs.Uint("value")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)

	require.NoError(t, fs.SetUint("value", 500))
	assert.Equal(t, []byte{0xF4, 0x01}, fs.Bytes())
	require.NoError(t, d.WriteRegister(fs))
	assert.Equal(t, uint16(500), f.words[regRemainingCapacityAlarm])

	got, err := d.RemainingCapacityAlarm_mAh()
	require.NoError(t, err)
	assert.Equal(t, uint16(500), got)
}

func TestWriteRegisterAccess(t *testing.T) {
	d, _ := newTestDevice(t)
	b, _ := d.Map().Register("Voltage")
	err := d.WriteRegister(b.New())
	require.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, errcode.ReadOnly, errcode.Of(err))

	cmd, _ := d.Map().Command("SecurityKeys")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(d.WriteRegister(cmd.New())))

	_, err = d.ReadRegister("NoSuchRegister")
	assert.Equal(t, errcode.UnknownRegister, errcode.Of(err))
}

func TestReadBlockRegister(t *testing.T) {
	d, f := newTestDevice(t)
	f.blocks[regOperationStatus] = []byte{0x07, 0x03, 0x00, 0x10}

	fs, err := d.ReadRegister("OperationStatus")
	require.NoError(t, err)
	sec, err := fs.Enum("sec")
	require.NoError(t, err)
	assert.Equal(t, "sealed", sec.Name)
	cb, _ := fs.Bool("cb")
	assert.True(t, cb)

	f.blocks[regOperationStatus] = []byte{0x07}
	_, err = d.ReadRegister("OperationStatus")
	assert.Equal(t, errcode.ShortResponse, errcode.Of(err))
}

func TestReadString(t *testing.T) {
	d, f := newTestDevice(t)
	f.blocks[0x21] = []byte("bq40z50\x00\x00")

	s, err := d.ReadString("DeviceName")
	require.NoError(t, err)
	assert.Equal(t, "bq40z50", s)

	fs, err := d.ReadRegister("DeviceName")
	require.NoError(t, err)
	assert.Equal(t, byte('b'), fs.Bytes()[0])

	_, err = d.ReadString("Voltage")
	assert.Equal(t, errcode.FieldKind, errcode.Of(err))
}

func TestReadCommand(t *testing.T) {
	d, f := newTestDevice(t)
	f.macs[0x0054] = []byte{0x06, 0x02, 0x00, 0x00}

	fs, err := d.ReadCommand("OperationStatusMAC")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x54, 0x00}, f.blockOut[regManufacturerBlockAccess])
	sec, err := fs.Enum("sec")
	require.NoError(t, err)
	assert.Equal(t, "unsealed", sec.Name)

	wrong := uint16(0x0055)
	f.echo = &wrong
	_, err = d.ReadCommand("OperationStatusMAC")
	require.ErrorIs(t, err, ErrSubcommandMismatch)
	assert.Equal(t, errcode.Mismatch, errcode.Of(err))
	f.echo = nil

	f.macs[0x0054] = []byte{0x06}
	_, err = d.ReadCommand("OperationStatusMAC")
	assert.Equal(t, errcode.ShortResponse, errcode.Of(err))

	_, err = d.ReadCommand("SealDevice")
	require.ErrorIs(t, err, ErrWriteOnly)
	assert.Equal(t, errcode.WriteOnly, errcode.Of(err))
}

func TestWriteAndSendCommand(t *testing.T) {
	d, f := newTestDevice(t)

	b, _ := d.Map().Command("SecurityKeys")
	fs := b.New()
	copy(fs.Bytes(), []byte{0x14, 0x04, 0x72, 0x36, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, d.WriteCommand(fs))
	assert.Equal(t,
		[]byte{0x35, 0x00, 0x14, 0x04, 0x72, 0x36, 0xFF, 0xFF, 0xFF, 0xFF},
		f.blockOut[regManufacturerBlockAccess])

	require.NoError(t, d.SendCommand("LEDToggle"))
	lt, _ := d.Map().Command("LEDToggle")
	assert.Equal(t, []uint16{lt.Address}, f.access)

	reg, _ := d.Map().Register("AtRate")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(d.WriteCommand(reg.New())))

	dt, _ := d.Map().Command("DeviceType")
	assert.Equal(t, errcode.ReadOnly, errcode.Of(d.SendCommand(dt.Name)))
}

func TestTelemetry(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regVoltage] = 16400
	f.words[regCurrent] = 0xFC18 // -1000
	f.words[regAverageCurrent] = 250
	f.words[regTemperature] = 2982
	f.words[regRelativeStateOfCharge] = 87
	f.words[regCellVoltage1] = 4100
	f.words[regCellVoltage4] = 4090

	v, err := d.Voltage_mV()
	require.NoError(t, err)
	assert.Equal(t, int32(16400), v)

	i, err := d.Current_mA()
	require.NoError(t, err)
	assert.Equal(t, int32(-1000), i)

	pw, err := d.Power_mW()
	require.NoError(t, err)
	assert.Equal(t, int32(-16400), pw)

	ai, _ := d.AverageCurrent_mA()
	assert.Equal(t, int32(250), ai)

	mc, err := d.Temperature_mC()
	require.NoError(t, err)
	assert.Equal(t, int32(25050), mc)

	soc, _ := d.RelativeSOC_pct()
	assert.Equal(t, uint8(87), soc)

	c1, err := d.CellVoltage_mV(1)
	require.NoError(t, err)
	assert.Equal(t, int32(4100), c1)
	c4, _ := d.CellVoltage_mV(4)
	assert.Equal(t, int32(4090), c4)

	for _, n := range []int{0, 5} {
		_, err = d.CellVoltage_mV(n)
		require.ErrorIs(t, err, ErrInvalidCell)
	}
}

func TestManufactureDate(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regManufactureDate] = 44<<9 | 3<<5 | 15

	got, err := d.ManufactureDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), got)

	f.words[regManufactureDate] = 0
	_, err = d.ManufactureDate()
	assert.ErrorIs(t, err, ErrInvalidDate)

	f.words[regManufactureDate] = 44<<9 | 2<<5 | 31 // 31 February
	_, err = d.ManufactureDate()
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestBatteryStatus(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regBatteryStatus] = 0x02C4

	st, err := d.ReadBatteryStatus()
	require.NoError(t, err)
	assert.True(t, st.Valid())
	assert.Equal(t, uint64(0x02C4), st.Raw())
	assert.True(t, st.Has(StatusDischarging))
	assert.True(t, st.Has(StatusInitialized))
	assert.False(t, st.Has(StatusFullyCharged))
	assert.True(t, st.Alarms())

	ec, err := st.ErrorCode()
	require.NoError(t, err)
	assert.Equal(t, ErrorAccessDenied, ec)

	f.words[regBatteryStatus] = 0x0008
	st, err = d.ReadBatteryStatus()
	require.NoError(t, err)
	_, err = st.ErrorCode()
	var de *bitfield.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint64(8), de.Raw)
	assert.Equal(t, errcode.EnumDecode, errcode.Of(err))

	var unread BatteryStatus
	assert.False(t, unread.Has(StatusDischarging))
	assert.Zero(t, unread.Raw())
	_, err = unread.ErrorCode()
	assert.ErrorIs(t, err, ErrNotRead)
}

func TestBatteryModeReadModifyWrite(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regBatteryMode] = 0x6001

	require.NoError(t, d.UpdateBatteryMode([]Flag{ModeCapacity10mW}, []Flag{ModeChargerDisable}))
	assert.Equal(t, uint16(0xA001), f.words[regBatteryMode])

	require.NoError(t, d.ClearBatteryModeBits(ModeInternalChargeController))
	require.NoError(t, d.SetBatteryModeBits(ModePrimaryBattery))
	m, err := d.ReadBatteryMode()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA200), m.Raw())
	assert.True(t, m.Has(ModeCapacity10mW))

	err = d.SetBatteryModeBits(Flag("nope"))
	assert.Equal(t, errcode.UnknownField, errcode.Of(err))
	assert.Equal(t, uint16(0xA200), f.words[regBatteryMode])
}

func TestSecurityMode(t *testing.T) {
	d, f := newTestDevice(t)

	f.blocks[regOperationStatus] = []byte{0x00, 0x02, 0x00, 0x00}
	m, err := d.SecurityMode()
	require.NoError(t, err)
	assert.Equal(t, SecurityUnsealed, m)

	f.blocks[regOperationStatus] = []byte{0x01, 0x07, 0x00, 0x00}
	m, err = d.SecurityMode()
	require.NoError(t, err)
	assert.Equal(t, SecuritySealed, m)

	f.blocks[regOperationStatus] = []byte{0xFF, 0xFC, 0xFF, 0xFF}
	_, err = d.SecurityMode()
	assert.Equal(t, errcode.EnumDecode, errcode.Of(err))
}

const movedMap = `
device: bq40z50-rev
enums:
  - name: SecurityMode
    variants:
      - { name: full_access, value: 1 }
      - { name: unsealed, value: 2 }
      - { name: sealed, value: 3 }
registers:
  - name: Voltage
    address: 0x29
    bits: 16
    access: ro
    fields:
      - { name: value, offset: 0, width: 16, type: uint, unit: mV }
  - name: OperationStatus
    address: 0x54
    bits: 32
    access: ro
    encoding: block
    fields:
      - { name: sec, offset: 0, width: 2, type: enum, enum: SecurityMode }
`

func TestTypedAccessorsFollowMap(t *testing.T) {
	m, err := regmap.Parse([]byte(movedMap))
	require.NoError(t, err)
	f := newFakeGauge()
	d := New(f, Config{Map: m})
	f.words[regVoltage] = 1
	f.words[0x29] = 12000
	f.blocks[regOperationStatus] = []byte{0x03, 0x00, 0x00, 0x00}

	v, err := d.Voltage_mV()
	require.NoError(t, err)
	assert.Equal(t, int32(12000), v)

	sec, err := d.SecurityMode()
	require.NoError(t, err)
	assert.Equal(t, SecuritySealed, sec)

	_, err = d.Current_mA()
	assert.Equal(t, errcode.UnknownRegister, errcode.Of(err))
	_, err = d.DeviceType()
	assert.Equal(t, errcode.UnknownRegister, errcode.Of(err))
	assert.Equal(t, errcode.UnknownRegister, errcode.Of(d.Seal()))
}

func TestSealUnsealReset(t *testing.T) {
	d, f := newTestDevice(t)

	require.NoError(t, d.Unseal(DefaultUnsealKey1, DefaultUnsealKey2))
	require.NoError(t, d.FullAccess(DefaultFullAccessKey1, DefaultFullAccessKey2))
	require.NoError(t, d.Seal())
	require.NoError(t, d.Reset())
	assert.Equal(t, []uint16{0x0414, 0x3672, 0xFFFF, 0xFFFF, 0x0030, 0x0041}, f.access)
}

func TestDeviceType(t *testing.T) {
	d, f := newTestDevice(t)
	f.macs[macDeviceType] = []byte{0x50, 0x45}

	v, err := d.DeviceType()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4550), v)

	wrong := uint16(0x0002)
	f.echo = &wrong
	_, err = d.DeviceType()
	require.ErrorIs(t, err, ErrSubcommandMismatch)
	assert.Equal(t, errcode.Mismatch, errcode.Of(err))
	f.echo = nil

	f.macs[macDeviceType] = []byte{0x50}
	_, err = d.DeviceType()
	require.ErrorIs(t, err, ErrShortResponse)
	assert.Equal(t, errcode.ShortResponse, errcode.Of(err))
}

func TestBlockLengthLimit(t *testing.T) {
	d, f := newTestDevice(t)
	n := byte(regmap.MaxBlockBytes + 1)
	f.rawLength = &n

	_, err := d.ReadString("ManufacturerName")
	require.ErrorIs(t, err, ErrBlockLength)
	assert.Equal(t, errcode.Bus, errcode.Of(err))

	_, err = d.ReadRegister("OperationStatus")
	require.ErrorIs(t, err, ErrBlockLength)

	// MAC replies may carry the two-byte echo on top of a full payload.
	f.rawLength = nil
	f.macs[macManufacturerInfo] = make([]byte, regmap.MaxBlockBytes)
	fs, err := d.ReadCommand("ManufacturerInfo")
	require.NoError(t, err)
	assert.Len(t, fs.Bytes(), regmap.MaxBlockBytes)
}

func TestStringLongerThanRegister(t *testing.T) {
	d, f := newTestDevice(t)
	f.blocks[regDeviceChemistry] = []byte("LiPo!")

	_, err := d.ReadString("DeviceChemistry")
	require.ErrorIs(t, err, ErrStringLength)
	assert.Equal(t, errcode.BadLength, errcode.Of(err))

	_, err = d.ReadRegister("DeviceChemistry")
	require.ErrorIs(t, err, ErrStringLength)

	f.blocks[regDeviceChemistry] = []byte("LION")
	s, err := d.ReadString("DeviceChemistry")
	require.NoError(t, err)
	assert.Equal(t, "LION", s)
}

func TestBusErrorsWrapped(t *testing.T) {
	d, f := newTestDevice(t)
	f.fail = errors.New("i2c: arbitration lost")

	_, err := d.Voltage_mV()
	require.ErrorIs(t, err, f.fail)
	assert.Equal(t, errcode.Bus, errcode.Of(err))
	assert.Contains(t, err.Error(), "bq40z50.Voltage_mV")
}

func TestSnapshot(t *testing.T) {
	d, f := newTestDevice(t)
	f.words[regVoltage] = 16400
	f.words[regCellVoltage1] = 4100
	f.words[regFullChargeCapacity] = 5000
	f.words[regBatteryStatus] = 0x00C0
	f.blocks[regOperationStatus] = []byte{0x06, 0x03, 0x00, 0x00}

	s, err := d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int32(16400), s.Voltage_mV)
	assert.Equal(t, int32(4100), s.Cell_mV[0])
	assert.Equal(t, uint16(5000), s.FullChargeCap_mAh)
	assert.True(t, s.Status.Has(StatusDischarging))
	assert.True(t, s.Operation.Has(OpCHG))

	f.fail = errors.New("bus down")
	s, err = d.Snapshot()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 18)
	assert.Zero(t, s.Voltage_mV)
	assert.False(t, s.Operation.Valid())
}
