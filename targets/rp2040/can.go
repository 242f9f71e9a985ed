//go:build rp2040 || rp2350

package main

import (
	"canmotor/core"
	"canmotor/protocol"
	"errors"
	"machine"

	"go.einride.tech/can"
	"tinygo.org/x/drivers/mcp2515"
)

// spiBusConfig selects the SPI controller and pins wired to the CAN
// controller
type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
}

// Matches Klipper's RP2040 SPI bus definitions
var spiBuses = map[string]spiBusConfig{
	"spi0a": {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0},
	"spi0c": {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16},
	"spi1a": {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8},
	"spi1b": {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12},
}

var (
	errUnknownSPIBus = errors.New("unknown SPI bus")
	errRemoteTx      = errors.New("mcp2515: remote frames not supported")
	errExtendedTx    = errors.New("mcp2515: extended frames not supported")
)

// mcpTxTimeout is the text of the driver's error when every transmit
// buffer stayed busy
const mcpTxTimeout = "Tx: Tx timeout"

// mcpTransceiver adapts the MCP2515 to core.Transceiver. The driver does
// not expose the acceptance filter registers, so frames for other nodes
// are filtered here. It never aborts a pending buffer, so a transmit never
// bumps a frame.
type mcpTransceiver struct {
	dev  *mcp2515.Device
	node uint8

	filtered uint32
}

// newMCPTransceiver configures the SPI bus and brings the controller up at
// 500 kbit/s
func newMCPTransceiver(bus string, cs machine.Pin, crystal byte, node uint8) (*mcpTransceiver, error) {
	cfg, ok := spiBuses[bus]
	if !ok {
		return nil, errUnknownSPIBus
	}
	err := cfg.spi.Configure(machine.SPIConfig{
		Frequency: 4000000,
		SCK:       cfg.sck,
		SDO:       cfg.mosi,
		SDI:       cfg.miso,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}

	dev := mcp2515.New(cfg.spi, cs)
	dev.Configure()
	if err := dev.Begin(mcp2515.CAN500kBps, crystal); err != nil {
		return nil, err
	}
	return &mcpTransceiver{dev: dev, node: node}, nil
}

func (t *mcpTransceiver) Transmit(f can.Frame) (can.Frame, bool, error) {
	if f.IsRemote {
		return can.Frame{}, false, errRemoteTx
	}
	if f.IsExtended {
		return can.Frame{}, false, errExtendedTx
	}
	err := t.dev.Tx(f.ID, f.Length, f.Data[:f.Length])
	if err != nil {
		if err.Error() == mcpTxTimeout {
			return can.Frame{}, false, core.ErrWouldBlock
		}
		return can.Frame{}, false, err
	}
	return can.Frame{}, false, nil
}

// Receive returns the next frame addressed to this node
func (t *mcpTransceiver) Receive() (can.Frame, error) {
	for t.dev.Received() {
		msg, err := t.dev.Rx()
		if err != nil {
			return can.Frame{}, err
		}
		if msg.Ext {
			t.filtered++
			continue
		}
		if node, _ := protocol.SplitID(msg.ID); node != t.node {
			t.filtered++
			continue
		}

		f := can.Frame{
			ID:       msg.ID,
			Length:   msg.Dlc,
			IsRemote: msg.Rtr,
		}
		if f.Length > 8 {
			f.Length = 8
		}
		copy(f.Data[:], msg.Data)
		return f, nil
	}
	return can.Frame{}, core.ErrWouldBlock
}
