package regmap

import (
	"gaugecode-go/errcode"

	"github.com/fxamacker/cbor/v2"
)

// Dump is a set of captured blocks, stored as CBOR.
type Dump struct {
	Device  string      `cbor:"device"`
	Entries []DumpEntry `cbor:"entries"`
}

// DumpEntry is one captured block. Fields is informational; Raw is
// authoritative when restoring.
type DumpEntry struct {
	Name    string         `cbor:"name"`
	Address uint16         `cbor:"addr"`
	Command bool           `cbor:"cmd,omitempty"`
	Raw     []byte         `cbor:"raw"`
	Fields  map[string]any `cbor:"fields,omitempty"`
	Err     string         `cbor:"err,omitempty"`
}

// Entry captures fs for a dump.
func Entry(fs *FieldSet) DumpEntry {
	b := fs.Block()
	e := DumpEntry{
		Name:    b.Name,
		Address: b.Address,
		Command: b.IsCommand(),
		Raw:     append([]byte(nil), fs.Bytes()...),
	}
	vals, err := fs.Values()
	if err != nil {
		e.Err = err.Error()
	}
	if len(vals) > 0 {
		e.Fields = make(map[string]any, len(vals))
		for _, v := range vals {
			if v.Err != nil {
				e.Fields[v.Field.Name] = v.Raw
				continue
			}
			e.Fields[v.Field.Name] = v.Value
		}
	}
	return e
}

var dumpEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeDump serialises d with deterministic CBOR.
func EncodeDump(d Dump) ([]byte, error) {
	return dumpEnc.Marshal(d)
}

// DecodeDump parses a CBOR dump.
func DecodeDump(p []byte) (Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(p, &d); err != nil {
		return Dump{}, &errcode.E{C: errcode.InvalidParams, Op: "regmap.DecodeDump", Err: err}
	}
	return d, nil
}

// Restore rebuilds the FieldSet of a dump entry against m.
func (m *Map) Restore(e DumpEntry) (*FieldSet, error) {
	var (
		b  *Block
		ok bool
	)
	if e.Command {
		b, ok = m.Command(e.Name)
	} else {
		b, ok = m.Register(e.Name)
	}
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownRegister, Op: "regmap.Restore", Msg: e.Name}
	}
	if b.Address != e.Address {
		return nil, &errcode.E{C: errcode.Mismatch, Op: "regmap.Restore",
			Msg: e.Name + ": address differs from map"}
	}
	return b.FromBytes(e.Raw)
}
