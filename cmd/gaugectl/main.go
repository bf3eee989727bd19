// Command gaugectl inspects and configures a BQ40Z50 fuel gauge over SMBus.
//
// Usage:
//
//	gaugectl [flags] [command [args...]]
//
// With a command, gaugectl runs it once and exits. Without one it starts an
// interactive console. Without -bus it runs offline: map listing, decode and
// load work, bus commands fail.
//
// Flags:
//
//	-config string  YAML configuration file
//	-bus string     I²C bus name, e.g. /dev/i2c-1 or 1
//	-addr uint      7-bit gauge address (default 0x0B)
//	-map string     register map YAML (default: embedded bq40z50 map)
//	-v              debug logging
//	-list           list I²C buses and exit
//
// Examples:
//
//	gaugectl -bus 1 snapshot
//	gaugectl -bus 1 write RemainingCapacityAlarm value=500
//	gaugectl decode OperationStatus 07030000
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gaugecode-go/drivers/bq40z50"
	"gaugecode-go/errcode"
	"gaugecode-go/regmap"
	"gaugecode-go/transport/periphi2c"
)

type flags struct {
	config  string
	bus     string
	addr    uint
	mapPath string
	verbose bool
	list    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.StringVar(&f.config, "config", "", "YAML configuration file")
	fs.StringVar(&f.bus, "bus", "", "I²C bus name; empty runs offline")
	fs.UintVar(&f.addr, "addr", bq40z50.AddressDefault, "7-bit gauge address")
	fs.StringVar(&f.mapPath, "map", "", "register map YAML (default: embedded)")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.BoolVar(&f.list, "list", false, "list I²C buses and exit")
	return f, fs.Parse(args)
}

// resolveConfig loads the config file and applies explicitly set flags.
func resolveConfig(fs *flag.FlagSet, f flags) (Config, error) {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return cfg, err
	}
	var addrErr error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "bus":
			cfg.Bus = f.bus
		case "addr":
			if f.addr > 0x7F {
				addrErr = &errcode.E{C: errcode.InvalidParams, Op: "gaugectl",
					Msg: fmt.Sprintf("-addr 0x%X is not a 7-bit address", f.addr)}
				return
			}
			cfg.Address = uint16(f.addr)
		case "map":
			cfg.Map = f.mapPath
		case "v":
			if f.verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	if addrErr != nil {
		return cfg, addrErr
	}
	return cfg, cfg.Validate()
}

func loadMap(path string) (*regmap.Map, error) {
	if path == "" {
		return regmap.Default(), nil
	}
	return regmap.Load(path)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("gaugectl", flag.ContinueOnError)
	f, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}
	cfg, err := resolveConfig(fs, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gaugectl:", err)
		return 2
	}
	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if f.list {
		names, err := periphi2c.Buses()
		if err != nil {
			logger.Error("list buses", "err", err)
			return 1
		}
		fmt.Println(strings.Join(names, "\n"))
		return 0
	}

	m, err := loadMap(cfg.Map)
	if err != nil {
		logger.Error("load map", "path", cfg.Map, "code", errcode.Of(err), "err", err)
		return 1
	}

	var dev *bq40z50.Device
	if cfg.Bus != "" {
		bus, err := periphi2c.Open(cfg.Bus)
		if err != nil {
			logger.Error("open bus", "bus", cfg.Bus, "err", err)
			return 1
		}
		defer bus.Close()
		if err := bus.SetSpeed_kHz(cfg.SpeedKHz); err != nil {
			logger.Warn("set bus speed", "kHz", cfg.SpeedKHz, "err", err)
		}
		dev = bq40z50.New(bus, bq40z50.Config{Address: cfg.Address, Map: m})
		logger.Debug("gauge attached", "bus", bus.String(), "addr", fmt.Sprintf("0x%02X", cfg.Address))
	} else {
		logger.Debug("offline mode")
	}

	c := NewConsole(dev, m, cfg, os.Stdout, logger)
	if rest := fs.Args(); len(rest) > 0 {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		c.ctx = ctx
		if err := c.Exec(shlexJoin(rest)); err != nil && err != errExit {
			logger.Error("command failed", "code", errcode.Of(err), "err", err)
			return 1
		}
		return 0
	}

	// Interactive: Ctrl-C is handled per command so it never closes the console.
	if err := c.Run(context.Background()); err != nil {
		logger.Error("console", "err", err)
		return 1
	}
	return 0
}

// shlexJoin re-quotes arguments so Exec tokenizes them unchanged.
func shlexJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\#") {
			a = "'" + strings.ReplaceAll(a, "'", `'"'"'`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
