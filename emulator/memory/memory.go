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

// Package memory implements the Horizon's 64K address space. Most of it
// is plain RAM; the floppy controller window and the two ScreenSplitter
// windows are passed through to their owners. No address is ever an
// error, exactly like a real bus wired to nothing in particular.
package memory

import (
	"math/rand"
	"time"

	"github.com/nstar-emu/horizon/emulator/peripheral/floppy"
	"github.com/nstar-emu/horizon/emulator/video"
)

type Bus struct {
	ram [0x10000]byte

	fdc floppy.Controller
	vid video.Video
	rng *rand.Rand

	fault error
}

// NewBus wires the bus to its two memory mapped collaborators. A nil
// rng gets a time-seeded one; tests pass their own.
func NewBus(fdc floppy.Controller, vid video.Video, rng *rand.Rand) *Bus {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := &Bus{fdc: fdc, vid: vid, rng: rng}
	b.ClearMemory()
	return b
}

// SetController swaps the floppy controller. Reboot replaces the whole
// controller when the boot image density changes.
func (b *Bus) SetController(fdc floppy.Controller) {
	b.fdc = fdc
}

func (b *Bus) Controller() floppy.Controller {
	return b.fdc
}

// ClearMemory fills RAM with random values, the power-on look of real
// core memory. Boot code relies on uninitialized memory not being all
// zeros, so this is behavior, not decoration.
func (b *Bus) ClearMemory() {
	for i := range b.ram {
		b.ram[i] = byte(b.rng.Intn(256))
	}
	b.fault = nil
}

// Err reports the first unrecoverable fault raised by a mapped device.
// The run loop polls it; a latched fault stops the machine.
func (b *Bus) Err() error {
	return b.fault
}

// ReadByte routes a CPU read. The floppy window is checked first, then
// the ScreenSplitter firmware and display windows, then plain RAM.
func (b *Bus) ReadByte(addr uint16) byte {
	switch {
	case addr >= floppy.RangeStart && addr <= floppy.RangeEnd:
		data, err := b.fdc.Read(addr)
		if err != nil && b.fault == nil {
			b.fault = err
		}
		return data

	case addr >= b.vid.FirmwareStart() && addr <= b.vid.FirmwareEnd():
		return b.vid.ReadFirmwareByte(addr)

	case addr >= b.vid.DisplayStart() && addr <= b.vid.DisplayEnd():
		return b.vid.ReadScreenByte(addr)

	default:
		return b.ram[addr]
	}
}

// WriteByte routes a CPU write. The floppy window and the firmware
// window are read only; writes there are accepted and discarded.
func (b *Bus) WriteByte(addr uint16, data byte) {
	switch {
	case addr >= floppy.RangeStart && addr <= floppy.RangeEnd:

	case addr >= b.vid.FirmwareStart() && addr <= b.vid.FirmwareEnd():

	case addr >= b.vid.DisplayStart() && addr <= b.vid.DisplayEnd():
		b.vid.WriteScreenByte(addr, data)

	default:
		b.ram[addr] = data
	}
}

// ReadWord reads a little-endian word as two byte reads. At the very
// top of memory the word degrades to the single low byte instead of
// wrapping into address zero.
func (b *Bus) ReadWord(addr uint16) uint16 {
	word := uint16(b.ReadByte(addr))
	if addr < 0xFFFF {
		word |= uint16(b.ReadByte(addr+1)) << 8
	}
	return word
}

// WriteWord writes a little-endian word as two byte writes, with the
// same top-of-memory degradation as ReadWord.
func (b *Bus) WriteWord(addr uint16, data uint16) {
	b.WriteByte(addr, byte(data))
	if addr < 0xFFFF {
		b.WriteByte(addr+1, byte(data>>8))
	}
}
