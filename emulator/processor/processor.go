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

package processor

import (
	"errors"
)

var ErrCPUHalt = errors.New("CPU HALT")

// Memory is the 64K bus the Z80 core runs against. Word access is
// little-endian and performed as two byte accesses.
type Memory interface {
	ReadByte(addr uint16) byte
	WriteByte(addr uint16, data byte)
	ReadWord(addr uint16) uint16
	WriteWord(addr uint16, data uint16)
}

// InputOutput handles the IN/OUT opcodes.
type InputOutput interface {
	In(port uint16) byte
	Out(port uint16, data byte)
}

// CPU is the contract for the external instruction interpreter. The
// emulator owns everything on the other side of the Memory and
// InputOutput interfaces but never executes instructions itself.
type CPU interface {
	// ExecuteOneInstruction runs a single instruction at the current PC.
	// It returns ErrCPUHalt, possibly wrapped, when a HALT was executed.
	ExecuteOneInstruction() error

	// TStates is the running count of emulated clock cycles, used by the
	// run loop to throttle to stock 4MHz speed.
	TStates() int64

	SetResetAddress(addr uint16)
	Reset()
}

// Factory creates the CPU core once the bus and port handler exist.
type Factory func(mem Memory, io InputOutput) (CPU, error)
