package bq40z50

import (
	"gaugecode-go/x/bitfield"
)

// SMBus word and block operations. Words are little-endian: LOW then HIGH.
// Block reads return a length byte followed by the payload.

// readWord leaves the two data bytes in d.r[:2].
func (d *Device) readWord(cmd byte) error {
	d.w[0] = cmd
	return d.i2c.Tx(d.addr, d.w[:1], d.r[:2])
}

func (d *Device) writeWord(cmd byte, val uint16) error {
	d.w[0] = cmd
	if err := bitfield.Store(d.w[1:3], 0, 16, val); err != nil {
		return err
	}
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}

// readBlock returns the payload of a block read, rejecting length bytes
// above limit. The slice aliases the device's receive buffer and is valid
// until the next transfer.
func (d *Device) readBlock(cmd byte, limit int) ([]byte, error) {
	d.w[0] = cmd
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:]); err != nil {
		return nil, err
	}
	n := int(d.r[0])
	if n > limit {
		return nil, ErrBlockLength
	}
	return d.r[1 : 1+n], nil
}

func (d *Device) writeBlock(cmd byte, p []byte) error {
	if len(p) > maxBlock {
		return ErrBlockLength
	}
	d.w[0] = cmd
	d.w[1] = byte(len(p))
	copy(d.w[2:], p)
	return d.i2c.Tx(d.addr, d.w[:2+len(p)], nil)
}

// mac issues a ManufacturerBlockAccess read of subcommand code and returns
// the payload after the echoed subcommand.
func (d *Device) mac(code uint16) ([]byte, error) {
	var sub [2]byte
	_ = bitfield.Store(sub[:], 0, 16, code)
	if err := d.writeBlock(regManufacturerBlockAccess, sub[:]); err != nil {
		return nil, err
	}
	p, err := d.readBlock(regManufacturerBlockAccess, maxBlock)
	if err != nil {
		return nil, err
	}
	if len(p) < 2 {
		return nil, ErrShortResponse
	}
	echo, _ := bitfield.Load[uint16](p, 0, 16)
	if echo != code {
		return nil, ErrSubcommandMismatch
	}
	return p[2:], nil
}
