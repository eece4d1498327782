/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

// Package console implements the Horizon motherboard I/O ports: the
// standard serial console on ports 2/3 and the parallel keyboard input
// on ports 0/1. The terminal on the other end is a front end concern
// behind the Terminal interface.
package console

import (
	"sync"
)

// Port map of the stock motherboard.
const (
	portParallelA    = 0
	portParallelB    = 1
	portSerialData   = 2
	portSerialCtrl   = 3
	portSerial2Data  = 4
	portSerial2Ctrl  = 5
	portMotherboardA = 6
	portMotherboardB = 7
)

// Serial control status bits: transmit always ready, bit 1 set when a
// key is waiting, bit 7 always high on this board.
const (
	serialTxReady = 0x01
	serialRxReady = 0x02
	serialPresent = 0x80
)

// Motherboard control order that resets the parallel input flag.
const orderResetParallelInput = 30

// Terminal is the front end the console talks to. A nil terminal
// behaves like an unplugged one: no keys, output to nowhere.
type Terminal interface {
	KeyAvailable() bool
	ReadKey() byte
	WriteByte(data byte)
	Backspace()
	Bell()
}

// Device handles the IN/OUT port traffic. The parallel side latches
// the last key pressed until the guest resets the input flag.
type Device struct {
	mu sync.Mutex

	term Terminal

	lastKey byte
	piInput bool
}

func NewDevice(term Terminal) *Device {
	return &Device{term: term}
}

// PressKey latches a key on the parallel input port. Called by the
// front end's input thread, hence the lock.
func (d *Device) PressKey(key byte) {
	d.mu.Lock()
	d.lastKey = key
	d.piInput = true
	d.mu.Unlock()
}

func (d *Device) In(port uint16) byte {
	switch port {
	case portParallelA, portParallelB:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.piInput {
			return d.lastKey
		}
		return 0

	case portSerialData:
		if d.term != nil && d.term.KeyAvailable() {
			data := d.term.ReadKey()
			if data == '\n' {
				data = '\r'
			}
			return data
		}
		return 0

	case portSerialCtrl:
		status := byte(serialTxReady)
		if d.term != nil && d.term.KeyAvailable() {
			status = serialRxReady | serialTxReady
		}
		return status | serialPresent

	case portSerial2Data, portSerial2Ctrl:
		// Second serial board not populated.
		return 0

	case portMotherboardA, portMotherboardB:
		// Motherboard control reads act on the order in the A register,
		// which only the CPU core can see. The one order the stock
		// software uses arrives through Out as well, so reads are a
		// no-op here.
		return 0

	default:
		return 0
	}
}

func (d *Device) Out(port uint16, data byte) {
	switch port {
	case portSerialData:
		if d.term == nil {
			return
		}
		switch data {
		case 7:
			d.term.Bell()
		case 8:
			d.term.Backspace()
		default:
			d.term.WriteByte(data & 0x7F)
		}

	case portMotherboardA, portMotherboardB:
		if data == orderResetParallelInput {
			d.mu.Lock()
			d.piInput = false
			d.mu.Unlock()
		}

	default:
		// Parallel output and the second serial board are not wired.
	}
}
