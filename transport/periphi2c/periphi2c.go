// Package periphi2c exposes a periph.io I²C bus as a tinygo drivers.I2C so
// the gauge driver runs unchanged on a Linux host.
package periphi2c

import (
	"io"

	"gaugecode-go/errcode"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*Bus)(nil)

// Bus adapts an i2c.Bus. periph serialises transactions on the bus.
type Bus struct {
	b    i2c.Bus
	name string
}

// Open initialises the host drivers and opens the named bus. An empty name
// selects the first bus found.
func Open(name string) (*Bus, error) {
	const op = "periphi2c.Open"
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Bus, op, err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errcode.Wrap(errcode.Bus, op, err)
	}
	return &Bus{b: b, name: b.String()}, nil
}

// New wraps an already-open bus.
func New(b i2c.Bus) *Bus { return &Bus{b: b, name: b.String()} }

// Buses lists the registered bus names.
func Buses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Bus, "periphi2c.Buses", err)
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.b.Tx(addr, w, r)
}

// SetSpeed_kHz sets the bus clock. SMBus gauges run at 100 kHz.
func (b *Bus) SetSpeed_kHz(kHz int64) error {
	if kHz <= 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "periphi2c.SetSpeed_kHz", Msg: "speed must be positive"}
	}
	return b.b.SetSpeed(physic.Frequency(kHz) * physic.KiloHertz)
}

func (b *Bus) String() string { return b.name }

// Close releases the bus when the underlying handle owns it.
func (b *Bus) Close() error {
	if c, ok := b.b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
