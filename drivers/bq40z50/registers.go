// Package bq40z50 drives the TI BQ40Z50 gas gauge over SMBus. Registers,
// commands and their fields come from a regmap.Map; only the SBS framing
// below is fixed by the protocol.
package bq40z50

const (
	// 7-bit SMBus address of a smart battery.
	AddressDefault = 0x0B

	// SMBus block payloads carry up to 32 bytes; MAC responses add a
	// two-byte subcommand echo.
	maxBlock = 34

	regManufacturerAccess      = 0x00 // W word: MAC subcommand or key
	regManufacturerBlockAccess = 0x44 // R/W block: MAC subcommand + payload

	// Single-field registers carry their reading here.
	valueField = "value"
)
