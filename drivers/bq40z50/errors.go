package bq40z50

import "errors"

var (
	// Sentinel errors (TinyGo-safe; no fmt)
	ErrReadOnly           = errors.New("read-only")
	ErrWriteOnly          = errors.New("write-only")
	ErrShortResponse      = errors.New("response shorter than block")
	ErrSubcommandMismatch = errors.New("MAC response echoes a different subcommand")
	ErrBlockLength        = errors.New("block length exceeds SMBus limit")
	ErrInvalidCell        = errors.New("cell index must be 1..4")
	ErrInvalidDate        = errors.New("manufacture date out of range")
	ErrStringLength       = errors.New("string longer than register")
	ErrNotRead            = errors.New("status register not read")
)
