// Package bitfield packs and unpacks integer fields at arbitrary bit
// positions inside little-endian byte buffers.
//
// Bit numbering is lsb0: bit 0 is the least-significant bit of buf[0],
// bit 8 is the least-significant bit of buf[1], and so on. Fields may
// straddle byte boundaries. Bits outside a field are never touched.
package bitfield

import (
	"strconv"
	"unsafe"

	"gaugecode-go/errcode"

	"golang.org/x/exp/constraints"
)

// MaxWidth is the widest field the codec handles.
const MaxWidth = 64

// RangeError reports a bit range that does not fit its buffer or its
// storage type.
type RangeError struct {
	Offset, Width int
	Bits          int // bits available in the buffer
	TypeBits      int // bits of the storage type, 0 if not checked
}

func (e *RangeError) Error() string {
	s := "bitfield: range [" + strconv.Itoa(e.Offset) + "," + strconv.Itoa(e.Offset+e.Width) + ")"
	if e.TypeBits != 0 && e.Width > e.TypeBits {
		return s + " wider than " + strconv.Itoa(e.TypeBits) + "-bit storage"
	}
	return s + " outside " + strconv.Itoa(e.Bits) + "-bit buffer"
}

func (e *RangeError) Code() errcode.Code { return errcode.BitRange }

// Check validates a field of width bits at offset within a buffer of
// bufLen bytes.
func Check(bufLen, offset, width int) error {
	bits := bufLen * 8
	if offset < 0 || width < 1 || width > MaxWidth || offset+width > bits {
		return &RangeError{Offset: offset, Width: width, Bits: bits}
	}
	return nil
}

func checkType[T constraints.Integer](bufLen, offset, width int) error {
	if err := Check(bufLen, offset, width); err != nil {
		return err
	}
	if tb := bitsOf[T](); width > tb {
		return &RangeError{Offset: offset, Width: width, Bits: bufLen * 8, TypeBits: tb}
	}
	return nil
}

func bitsOf[T constraints.Integer]() int {
	var z T
	return int(unsafe.Sizeof(z)) * 8
}

// Load reads width bits at offset and zero-extends them into T.
func Load[T constraints.Unsigned](buf []byte, offset, width int) (T, error) {
	if err := checkType[T](len(buf), offset, width); err != nil {
		return 0, err
	}
	return T(loadRaw(buf, offset, width)), nil
}

// LoadSigned reads width bits at offset and sign-extends them from bit
// width-1 into T.
func LoadSigned[T constraints.Signed](buf []byte, offset, width int) (T, error) {
	if err := checkType[T](len(buf), offset, width); err != nil {
		return 0, err
	}
	return T(SignExtend(loadRaw(buf, offset, width), width)), nil
}

// LoadBool reads the single bit at offset.
func LoadBool(buf []byte, offset int) (bool, error) {
	if err := Check(len(buf), offset, 1); err != nil {
		return false, err
	}
	return loadRaw(buf, offset, 1) != 0, nil
}

// Store writes the low width bits of v at offset. Higher bits of v are
// discarded; bits of buf outside the field are preserved.
func Store[T constraints.Integer](buf []byte, offset, width int, v T) error {
	if err := checkType[T](len(buf), offset, width); err != nil {
		return err
	}
	storeRaw(buf, offset, width, uint64(v))
	return nil
}

// StoreBool writes a single bit at offset.
func StoreBool(buf []byte, offset int, v bool) error {
	if err := Check(len(buf), offset, 1); err != nil {
		return err
	}
	var u uint64
	if v {
		u = 1
	}
	storeRaw(buf, offset, 1, u)
	return nil
}

// LoadUint64 is Load without the storage type parameter.
func LoadUint64(buf []byte, offset, width int) (uint64, error) {
	return Load[uint64](buf, offset, width)
}

// StoreUint64 is Store without the storage type parameter.
func StoreUint64(buf []byte, offset, width int, v uint64) error {
	return Store(buf, offset, width, v)
}

// SignExtend interprets the low width bits of u as two's complement.
func SignExtend(u uint64, width int) int64 {
	if width <= 0 || width >= 64 {
		return int64(u)
	}
	sh := uint(64 - width)
	return int64(u<<sh) >> sh
}

// Fits reports whether v is representable in an unsigned field of width bits.
func Fits(v uint64, width int) bool {
	return width >= 64 || v>>uint(width) == 0
}

// FitsSigned reports whether v is representable in a two's complement
// field of width bits.
func FitsSigned(v int64, width int) bool {
	if width >= 64 {
		return true
	}
	lo := -(int64(1) << uint(width-1))
	hi := int64(1)<<uint(width-1) - 1
	return v >= lo && v <= hi
}

// loadRaw assumes the range was checked.
func loadRaw(buf []byte, offset, width int) uint64 {
	var v uint64
	for i := 0; i < width; {
		bit := offset + i
		sh := uint(bit & 7)
		n := min(8-int(sh), width-i)
		m := byte(1)<<uint(n) - 1
		v |= uint64(buf[bit>>3]>>sh&m) << uint(i)
		i += n
	}
	return v
}

func storeRaw(buf []byte, offset, width int, v uint64) {
	for i := 0; i < width; {
		bit := offset + i
		sh := uint(bit & 7)
		n := min(8-int(sh), width-i)
		m := (byte(1)<<uint(n) - 1) << sh
		b := &buf[bit>>3]
		*b = *b&^m | byte(v>>uint(i))<<sh&m
		i += n
	}
}
