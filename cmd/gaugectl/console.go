package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"time"

	"gaugecode-go/drivers/bq40z50"
	"gaugecode-go/errcode"
	"gaugecode-go/regmap"
	"gaugecode-go/types"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"go.uber.org/multierr"
)

var errExit = errors.New("exit")

// errNoDevice is returned by bus commands when the console runs offline.
var errNoDevice = &errcode.E{C: errcode.Unsupported, Op: "gaugectl", Msg: "no gauge attached; start with -bus"}

// Console executes gauge commands. dev is nil in offline mode, where only
// map and decode commands work.
type Console struct {
	ctx  context.Context
	dev  *bq40z50.Device
	m    *regmap.Map
	cfg  Config
	info types.GaugeInfo
	out  io.Writer
	log  *slog.Logger

	// interrupt scopes Ctrl-C to one long-running command.
	interrupt func(context.Context) (context.Context, context.CancelFunc)
}

func NewConsole(dev *bq40z50.Device, m *regmap.Map, cfg Config, out io.Writer, log *slog.Logger) *Console {
	c := &Console{ctx: context.Background(), dev: dev, m: m, cfg: cfg, out: out, log: log}
	c.interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(ctx, os.Interrupt)
	}
	c.info = types.GaugeInfo{Device: m.Device, Bus: cfg.Bus, Addr: cfg.Address}
	return c
}

type command struct {
	usage string
	help  string
	run   func(c *Console, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {"help", "show this help", (*Console).cmdHelp},
		"regs":     {"regs", "list registers", (*Console).cmdRegs},
		"cmds":     {"cmds", "list manufacturer-access commands", (*Console).cmdCmds},
		"read":     {"read <reg>", "read and decode a register", (*Console).cmdRead},
		"mac":      {"mac <cmd>", "read a manufacturer-access command", (*Console).cmdMAC},
		"write":    {"write <reg|cmd> field=value...", "read-modify-write fields", (*Console).cmdWrite},
		"send":     {"send <cmd>", "send a subcommand without payload", (*Console).cmdSend},
		"string":   {"string <reg>", "read a string register", (*Console).cmdString},
		"snapshot": {"snapshot", "print telemetry as JSON", (*Console).cmdSnapshot},
		"watch":    {"watch <interval> [count]", "print a JSON snapshot per interval", (*Console).cmdWatch},
		"dump":     {"dump <file>", "capture readable blocks to a CBOR file", (*Console).cmdDump},
		"load":     {"load <file>", "decode a CBOR dump against the map", (*Console).cmdLoad},
		"decode":   {"decode <reg|cmd> <hex>", "decode raw little-endian bytes offline", (*Console).cmdDecode},
		"security": {"security", "show the security mode", (*Console).cmdSecurity},
		"seal":     {"seal", "seal the gauge", (*Console).cmdSeal},
		"unseal":   {"unseal [key1 key2]", "unseal with the given or configured keys", (*Console).cmdUnseal},
		"fullaccess": {"fullaccess [key1 key2]", "enter full access with the given or configured keys",
			(*Console).cmdFullAccess},
		"reset": {"reset", "reset the gauge", (*Console).cmdReset},
		"exit":  {"exit", "leave the console", func(*Console, []string) error { return errExit }},
	}
	commands["quit"] = commands["exit"]
	commands["?"] = commands["help"]
}

// Exec runs one command line.
func (c *Console) Exec(line string) error {
	parts, err := shlex.Split(line)
	if err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl", Err: err}
	}
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(parts[0])
	cmd, ok := commands[name]
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl", Msg: "unknown command " + strconv.Quote(name)}
	}
	c.log.Debug("exec", "cmd", name, "args", parts[1:])
	return cmd.run(c, parts[1:])
}

// Run reads commands interactively until exit or EOF. ctx parents every
// command; Ctrl-C at the prompt only clears the line.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.m.Device + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.ctx = ctx
	c.out = rl.Stdout()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		switch err := c.Exec(line); {
		case err == errExit:
			return nil
		case err != nil:
			c.log.Error("command failed", "code", errcode.Of(err), "err", err)
		}
	}
}

func (c *Console) completer() readline.AutoCompleter {
	var blocks []readline.PrefixCompleterInterface
	for _, b := range c.m.Registers {
		blocks = append(blocks, readline.PcItem(b.Name))
	}
	for _, b := range c.m.Commands {
		blocks = append(blocks, readline.PcItem(b.Name))
	}
	var items []readline.PrefixCompleterInterface
	for name := range commands {
		items = append(items, readline.PcItem(name, blocks...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl", Msg: "usage: " + usage}
	}
	return nil
}

func (c *Console) device() (*bq40z50.Device, error) {
	if c.dev == nil {
		return nil, errNoDevice
	}
	return c.dev, nil
}

func (c *Console) cmdHelp([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		if name == "quit" || name == "?" {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		cmd := commands[name]
		c.printf("  %-34s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (c *Console) listBlocks(blocks []regmap.Block, width int) {
	for i := range blocks {
		b := &blocks[i]
		c.printf("  0x%0*X  %-24s %-6s %-2s %3d bits\n", width, b.Address, b.Name, b.Encoding, b.Access, b.Bits)
	}
}

func (c *Console) cmdRegs([]string) error {
	c.listBlocks(c.m.Registers, 2)
	return nil
}

func (c *Console) cmdCmds([]string) error {
	c.listBlocks(c.m.Commands, 4)
	return nil
}

// printFields writes one line per field. Decode errors are shown inline and
// returned combined.
func (c *Console) printFields(fs *regmap.FieldSet) error {
	b := fs.Block()
	c.printf("%s [% X]\n", b.Name, fs.Bytes())
	vals, err := fs.Values()
	for _, v := range vals {
		unit := ""
		if v.Field.Unit != "" {
			unit = " " + v.Field.Unit
		}
		c.printf("  %s%s\n", v.String(), unit)
	}
	return err
}

func (c *Console) cmdRead(args []string) error {
	if err := need(args, 1, commands["read"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	b, err := c.m.Lookup(args[0])
	if err != nil {
		return err
	}
	if b.IsCommand() {
		return c.cmdMAC(args)
	}
	fs, err := d.ReadRegister(b.Name)
	if err != nil {
		return err
	}
	if b.Encoding == regmap.EncodingString {
		c.printf("%s %q\n", b.Name, strings.TrimRight(string(fs.Bytes()), "\x00"))
		return nil
	}
	return c.printFields(fs)
}

func (c *Console) cmdMAC(args []string) error {
	if err := need(args, 1, commands["mac"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	fs, err := d.ReadCommand(args[0])
	if err != nil {
		return err
	}
	return c.printFields(fs)
}

func (c *Console) cmdWrite(args []string) error {
	if err := need(args, 2, commands["write"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	b, err := c.m.Lookup(args[0])
	if err != nil {
		return err
	}

	type assignment struct{ field, value string }
	var sets []assignment
	for _, kv := range args[1:] {
		field, value, ok := strings.Cut(kv, "=")
		if !ok {
			return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl.write", Msg: "expected field=value, got " + strconv.Quote(kv)}
		}
		sets = append(sets, assignment{field, value})
	}

	// Start from the current contents so untouched fields are preserved.
	var fs *regmap.FieldSet
	switch {
	case b.Access.Readable() && b.IsCommand():
		fs, err = d.ReadCommand(b.Name)
	case b.Access.Readable():
		fs, err = d.ReadRegister(b.Name)
	default:
		fs = b.NewReset()
	}
	if err != nil {
		return err
	}
	for _, a := range sets {
		if err := fs.SetString(a.field, a.value); err != nil {
			return err
		}
	}
	c.log.Info("write", "block", b.Name, "bytes", hex.EncodeToString(fs.Bytes()))
	if b.IsCommand() {
		return d.WriteCommand(fs)
	}
	return d.WriteRegister(fs)
}

func (c *Console) cmdSend(args []string) error {
	if err := need(args, 1, commands["send"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	return d.SendCommand(args[0])
}

func (c *Console) cmdString(args []string) error {
	if err := need(args, 1, commands["string"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	s, err := d.ReadString(args[0])
	if err != nil {
		return err
	}
	c.printf("%s\n", s)
	return nil
}

func gaugeValue(s bq40z50.Snapshot) types.GaugeValue {
	return types.GaugeValue{
		PackMilliV:     s.Voltage_mV,
		CellMilliV:     s.Cell_mV,
		IBatMilliA:     s.Current_mA,
		IAvgMilliA:     s.AverageCurrent_mA,
		TempMilliC:     s.Temperature_mC,
		RSOCPct:        s.RelativeSOC_pct,
		ASOCPct:        s.AbsoluteSOC_pct,
		RemainingMAh:   s.RemainingCap_mAh,
		FullChargeMAh:  s.FullChargeCap_mAh,
		Cycles:         s.CycleCount,
		TimeToEmptyMin: s.RunTimeToEmpty_min,
		TimeToFullMin:  s.AverageTimeToFull_min,
		Status:         uint16(s.Status.Raw()),
		Mode:           uint16(s.Mode.Raw()),
		Operation:      uint32(s.Operation.Raw()),
	}
}

func (c *Console) cmdSnapshot([]string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	v := c.snapshotValue(d)
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Info  types.GaugeInfo  `json:"info"`
		Value types.GaugeValue `json:"value"`
	}{c.info, v})
}

func (c *Console) snapshotValue(d *bq40z50.Device) types.GaugeValue {
	s, err := d.Snapshot()
	v := gaugeValue(s)
	for _, e := range multierr.Errors(err) {
		v.Errors = append(v.Errors, e.Error())
	}
	if sec, err := s.Operation.SecurityMode(); err == nil {
		v.Security = string(sec)
	}
	return v
}

// cmdWatch polls snapshots until count is reached or Ctrl-C. A count of 0
// runs until interrupted; either way the console keeps running.
func (c *Console) cmdWatch(args []string) error {
	if err := need(args, 1, commands["watch"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	every, err := time.ParseDuration(args[0])
	if err != nil || every <= 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl.watch", Msg: "interval " + strconv.Quote(args[0])}
	}
	count := 0
	if len(args) > 1 {
		if count, err = strconv.Atoi(args[1]); err != nil || count < 0 {
			return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl.watch", Msg: "count " + strconv.Quote(args[1])}
		}
	}

	ctx, stop := c.interrupt(c.ctx)
	defer stop()

	enc := json.NewEncoder(c.out)
	t := time.NewTicker(every)
	defer t.Stop()
	for n := 0; count == 0 || n < count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
		if err := enc.Encode(c.snapshotValue(d)); err != nil {
			return err
		}
	}
	return nil
}

// captureAll reads every readable register and payload command. Blocks that
// fail are logged and skipped.
func (c *Console) captureAll(d *bq40z50.Device) (regmap.Dump, error) {
	dump := regmap.Dump{Device: c.m.Device}
	var errs error
	capture := func(b *regmap.Block, read func(string) (*regmap.FieldSet, error)) {
		if !b.Access.Readable() || b.Bits == 0 {
			return
		}
		fs, err := read(b.Name)
		if err != nil {
			c.log.Warn("dump: skipped", "block", b.Name, "err", err)
			errs = multierr.Append(errs, err)
			return
		}
		dump.Entries = append(dump.Entries, regmap.Entry(fs))
	}
	for i := range c.m.Registers {
		capture(&c.m.Registers[i], d.ReadRegister)
	}
	for i := range c.m.Commands {
		capture(&c.m.Commands[i], d.ReadCommand)
	}
	return dump, errs
}

func (c *Console) cmdDump(args []string) error {
	if err := need(args, 1, commands["dump"].usage); err != nil {
		return err
	}
	d, err := c.device()
	if err != nil {
		return err
	}
	dump, capErr := c.captureAll(d)
	p, err := regmap.EncodeDump(dump)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], p, 0o644); err != nil {
		return err
	}
	c.log.Info("dump written", "file", args[0], "entries", len(dump.Entries),
		"skipped", len(multierr.Errors(capErr)), "bytes", len(p))
	return nil
}

func (c *Console) cmdLoad(args []string) error {
	if err := need(args, 1, commands["load"].usage); err != nil {
		return err
	}
	p, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	dump, err := regmap.DecodeDump(p)
	if err != nil {
		return err
	}
	if dump.Device != c.m.Device {
		c.log.Warn("dump device differs from map", "dump", dump.Device, "map", c.m.Device)
	}
	var errs error
	for _, e := range dump.Entries {
		fs, err := c.m.Restore(e)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, c.printFields(fs))
	}
	return errs
}

func (c *Console) cmdDecode(args []string) error {
	if err := need(args, 2, commands["decode"].usage); err != nil {
		return err
	}
	b, err := c.m.Lookup(args[0])
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.Join(args[1:], ""), "0x"))
	if err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "gaugectl.decode", Err: err}
	}
	fs, err := b.FromBytes(raw)
	if err != nil {
		return err
	}
	return c.printFields(fs)
}

func (c *Console) cmdSecurity([]string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	m, err := d.SecurityMode()
	if err != nil {
		return err
	}
	c.printf("%s\n", m)
	return nil
}

func (c *Console) cmdSeal([]string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	return d.Seal()
}

func parseKeys(args []string, def [2]uint16) ([2]uint16, error) {
	switch len(args) {
	case 0:
		return def, nil
	case 2:
		var keys [2]uint16
		for i, a := range args {
			v, err := strconv.ParseUint(a, 0, 16)
			if err != nil {
				return keys, &errcode.E{C: errcode.InvalidParams, Op: "gaugectl", Msg: "key " + strconv.Quote(a), Err: err}
			}
			keys[i] = uint16(v)
		}
		return keys, nil
	}
	return def, &errcode.E{C: errcode.InvalidParams, Op: "gaugectl", Msg: "expected two keys"}
}

func (c *Console) cmdUnseal(args []string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	keys, err := parseKeys(args, c.cfg.Keys.Unseal)
	if err != nil {
		return err
	}
	return d.Unseal(keys[0], keys[1])
}

func (c *Console) cmdFullAccess(args []string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	keys, err := parseKeys(args, c.cfg.Keys.FullAccess)
	if err != nil {
		return err
	}
	return d.FullAccess(keys[0], keys[1])
}

func (c *Console) cmdReset([]string) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	return d.Reset()
}
