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

// Package floppy emulates the NorthStar MDS (single-density) and MDS-D
// (double-density) floppy controllers together with their drives. The
// controller occupies a 1K window of memory mapped addresses and every
// interaction with it, commands included, is expressed as a memory read.
package floppy

import (
	"errors"
	"time"
)

// Memory mapped range of the controller board.
const (
	RangeStart = 0xE800
	RangeEnd   = 0xEBFF
)

const motorTimeout = 5 * time.Second

var (
	// ErrDriveSelect is an unrecoverable host configuration error: the
	// boot code selected a drive unit the controller does not have.
	ErrDriveSelect = errors.New("invalid drive select")

	// ErrMachineState means controller dispatch and drive state machine
	// are out of sync. It never happens with a correct controller and is
	// kept as a defensive assertion.
	ErrMachineState = errors.New("floppy machine state not implemented")
)

// Drive is the surface of a single drive unit that front ends and the
// mount logic use. Everything else is driven through Controller.Read.
type Drive interface {
	InsertDisk(fileName string, data []byte)
	FileName() string
	HasDisk() bool

	SetWriteProtect(bool)
	WriteProtect() bool

	CommitPending() bool
	CommitChanges() error

	Reset()
}

// Controller is a floppy controller mapped at [RangeStart, RangeEnd].
type Controller interface {
	// Read decodes one bus read in the controller window, executes its
	// side effects and returns the byte the CPU sees. The returned error
	// is nil except for the unrecoverable conditions above.
	Read(addr uint16) (byte, error)

	// Drive returns the given unit, 1-based. Out of range unit numbers
	// yield the throw-away unit 0 sink.
	Drive(unit int) Drive
	TotalDrives() int

	AnyPendingWrites() bool
	TimeoutDriveMotors()
	MotorsRunning() bool
}

// controller carries the bookkeeping shared by both generations of the
// board: the selected unit and the advisory motor timeout state.
type controller struct {
	current int

	motorsRunning bool
	motorsActive  time.Time
	now           func() time.Time
}

// setMotorsRunning flags the motors to keep spinning for at least
// another timeout period. Called on every access to the controller.
func (c *controller) setMotorsRunning() {
	c.motorsRunning = true
	c.motorsActive = c.now()
}

// TimeoutDriveMotors spins the motors down after 5 seconds without
// activity. Polled once per outer emulation loop, presentation only.
func (c *controller) TimeoutDriveMotors() {
	if c.motorsRunning && c.now().After(c.motorsActive.Add(motorTimeout)) {
		c.motorsRunning = false
	}
}

func (c *controller) MotorsRunning() bool {
	return c.motorsRunning
}
