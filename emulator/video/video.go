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

// Package video holds the contract for the ScreenSplitter video board.
// The board itself lives outside this core; the memory bus only needs
// its two mapped address ranges and the byte accessors for them.
package video

// The ScreenSplitter board can be strapped to one of 8 base addresses.
// Each slot maps 1K of firmware and 4K of display memory.
const NumBoardAddresses = 8

func FirmwareStart(board int) uint16 { return uint16(board) * 0x2000 }
func FirmwareEnd(board int) uint16   { return FirmwareStart(board) + 0x03FF }
func DisplayStart(board int) uint16  { return uint16(board)*0x2000 + 0x1000 }
func DisplayEnd(board int) uint16    { return DisplayStart(board) + 0x0FFF }

type Video interface {
	FirmwareStart() uint16
	FirmwareEnd() uint16
	DisplayStart() uint16
	DisplayEnd() uint16

	ReadFirmwareByte(addr uint16) byte
	ReadScreenByte(addr uint16) byte
	WriteScreenByte(addr uint16, data byte)

	// Reboot resets the board to its power-on state.
	Reboot()
}

// Null is a headless stand-in for the real board. Display memory reads
// back what was written so memory-probing boot code still behaves, the
// firmware window reads as empty EPROM sockets.
type Null struct {
	Board  int
	screen [0x1000]byte
}

func (v *Null) FirmwareStart() uint16 { return FirmwareStart(v.Board) }
func (v *Null) FirmwareEnd() uint16   { return FirmwareEnd(v.Board) }
func (v *Null) DisplayStart() uint16  { return DisplayStart(v.Board) }
func (v *Null) DisplayEnd() uint16    { return DisplayEnd(v.Board) }

func (v *Null) ReadFirmwareByte(addr uint16) byte {
	return 0xFF
}

func (v *Null) ReadScreenByte(addr uint16) byte {
	return v.screen[addr-v.DisplayStart()]
}

func (v *Null) WriteScreenByte(addr uint16, data byte) {
	v.screen[addr-v.DisplayStart()] = data
}

func (v *Null) Reboot() {
	for i := range v.screen {
		v.screen[i] = 0
	}
}
