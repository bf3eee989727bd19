package bitfield

import (
	"errors"
	"testing"

	"gaugecode-go/errcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemainingCapacityAlarmExample(t *testing.T) {
	buf := []byte{0x2C, 0x01}

	v, err := Load[uint16](buf, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, uint16(300), v)

	require.NoError(t, Store[uint16](buf, 0, 16, 500))
	assert.Equal(t, []byte{0xF4, 0x01}, buf)

	v, err = Load[uint16](buf, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), v)
}

func TestRoundTripAllOffsetsAndWidths(t *testing.T) {
	const size = 9
	for width := 1; width <= 64; width++ {
		mask := ^uint64(0)
		if width < 64 {
			mask = 1<<uint(width) - 1
		}
		patterns := []uint64{0, 1, mask, mask >> 1, 0xA5A5A5A5A5A5A5A5 & mask, 0x5A5A5A5A5A5A5A5A & mask}
		for offset := 0; offset+width <= size*8; offset++ {
			for _, p := range patterns {
				buf := make([]byte, size)
				require.NoError(t, StoreUint64(buf, offset, width, p))
				got, err := LoadUint64(buf, offset, width)
				require.NoError(t, err)
				if got != p {
					t.Fatalf("width=%d offset=%d: stored %#x, loaded %#x", width, offset, p, got)
				}
			}
		}
	}
}

func TestRoundTripTypedStorage(t *testing.T) {
	buf := make([]byte, 4)

	require.NoError(t, Store[uint8](buf, 3, 8, 0xAB))
	u8, err := Load[uint8](buf, 3, 8)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	require.NoError(t, Store[uint32](buf, 1, 30, 0x2BCDEF01))
	u32, err := Load[uint32](buf, 1, 30)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2BCDEF01), u32)

	require.NoError(t, Store[int16](buf, 5, 16, -12345))
	i16, err := LoadSigned[int16](buf, 5, 16)
	require.NoError(t, err)
	assert.Equal(t, int16(-12345), i16)
}

func TestNonInterference(t *testing.T) {
	for _, marker := range []byte{0x00, 0xFF, 0xA5, 0x5A} {
		for width := 1; width <= 24; width++ {
			for offset := 0; offset+width <= 32; offset++ {
				buf := []byte{marker, marker, marker, marker}
				orig := append([]byte(nil), buf...)

				require.NoError(t, StoreUint64(buf, offset, width, 0xFFFFFF&^uint64(marker)))

				for bit := 0; bit < 32; bit++ {
					if bit >= offset && bit < offset+width {
						continue
					}
					was := orig[bit/8] >> (bit % 8) & 1
					now := buf[bit/8] >> (bit % 8) & 1
					if was != now {
						t.Fatalf("marker=%#x width=%d offset=%d: bit %d changed", marker, width, offset, bit)
					}
				}
			}
		}
	}
}

func TestSignExtension(t *testing.T) {
	buf := make([]byte, 2)

	require.NoError(t, Store[int16](buf, 0, 15, -1))
	v, err := LoadSigned[int16](buf, 0, 15)
	require.NoError(t, err)
	assert.Equal(t, int16(-1), v)
	assert.Equal(t, byte(0x00), buf[1]&0x80, "bit 15 is outside the field")

	require.NoError(t, Store[int16](buf, 2, 12, -2048))
	v, err = LoadSigned[int16](buf, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, int16(-2048), v)

	require.NoError(t, Store[int16](buf, 2, 12, 2047))
	v, err = LoadSigned[int16](buf, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, int16(2047), v)

	u, err := Load[uint16](buf, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, uint16(2047), u)
}

func TestSignExtendHelper(t *testing.T) {
	assert.Equal(t, int64(-1), SignExtend(0x7FFF, 15))
	assert.Equal(t, int64(0x3FFF), SignExtend(0x3FFF, 15))
	assert.Equal(t, int64(-8), SignExtend(0x8, 4))
	assert.Equal(t, int64(-1), SignExtend(^uint64(0), 64))
}

func TestBoolIgnoresNeighbours(t *testing.T) {
	buf := []byte{0xFF &^ (1 << 3)}

	b, err := LoadBool(buf, 3)
	require.NoError(t, err)
	assert.False(t, b)

	require.NoError(t, StoreBool(buf, 3, true))
	assert.Equal(t, byte(0xFF), buf[0])
	b, err = LoadBool(buf, 3)
	require.NoError(t, err)
	assert.True(t, b)

	buf[0] = 1 << 3
	b, err = LoadBool(buf, 3)
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, StoreBool(buf, 3, false))
	assert.Equal(t, byte(0), buf[0])
}

func TestCrossByteField(t *testing.T) {
	buf := []byte{0x0F, 0xF0}

	v, err := Load[uint8](buf, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x00), v)

	require.NoError(t, Store[uint8](buf, 4, 8, 0xC3))
	assert.Equal(t, []byte{0x3F, 0xFC}, buf)

	v, err = Load[uint8](buf, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xC3), v)
}

func TestStoreMasksHighBits(t *testing.T) {
	buf := []byte{0x00}
	require.NoError(t, Store[uint8](buf, 2, 3, 0xFF))
	assert.Equal(t, byte(0x1C), buf[0])
}

func TestRangeErrors(t *testing.T) {
	buf := make([]byte, 2)

	_, err := Load[uint16](buf, 8, 9)
	var re *RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 16, re.Bits)
	assert.Equal(t, errcode.BitRange, errcode.Of(err))

	_, err = Load[uint8](buf, 0, 9)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 8, re.TypeBits)

	assert.Error(t, Store[uint16](buf, -1, 4, 1))
	assert.Error(t, Store[uint16](buf, 0, 0, 1))
	_, err = LoadBool(buf, 16)
	assert.Error(t, err)
	assert.Error(t, StoreBool(nil, 0, true))

	assert.NoError(t, Check(2, 0, 16))
	assert.Error(t, Check(2, 1, 16))
	assert.Error(t, Check(16, 0, 65))
}

func TestFits(t *testing.T) {
	assert.True(t, Fits(255, 8))
	assert.False(t, Fits(256, 8))
	assert.True(t, Fits(^uint64(0), 64))
	assert.True(t, FitsSigned(-128, 8))
	assert.False(t, FitsSigned(-129, 8))
	assert.True(t, FitsSigned(127, 8))
	assert.False(t, FitsSigned(128, 8))
}

type mode uint8

const (
	modeA mode = iota
	modeB
	modeC
)

var modes = NewEnum("Mode", map[mode]string{modeA: "A", modeB: "B", modeC: "C"})

func TestEnumDecode(t *testing.T) {
	buf := []byte{0b1000_0000}

	v, err := LoadEnum(buf, 6, 2, modes)
	require.NoError(t, err)
	assert.Equal(t, modeC, v)
	assert.Equal(t, "C", modes.String(v))

	buf[0] = 0b1100_0000
	_, err = LoadEnum(buf, 6, 2, modes)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Mode", de.Enum)
	assert.Equal(t, uint64(3), de.Raw)
	assert.Equal(t, errcode.EnumDecode, errcode.Of(err))

	_, err = modes.Decode(256)
	assert.Error(t, err)

	assert.Equal(t, []mode{modeA, modeB, modeC}, modes.Values())
	assert.Equal(t, "Mode(7)", modes.String(7))
	assert.False(t, modes.Valid(3))
}
