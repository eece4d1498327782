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

package floppy

import (
	"fmt"
	"log"

	"github.com/spf13/afero"

	"github.com/nstar-emu/horizon/emulator/peripheral/diskimage"
)

const (
	highestTrack = 34
	sectPerTrack = 10

	// Everything before this byte is lead-in padding on a sector write.
	syncCharacter = 0xFB

	stepOut = 0
	stepIn  = 1
)

// drive holds the mechanical state common to both drive generations.
// All mutation happens through controller dispatch; the drive never acts
// on its own.
type drive struct {
	num int
	fs  afero.Fs

	data     []byte
	fileName string

	writeProtect  bool
	autoCommit    bool
	commitPending bool

	// autoCommitPolicy is sampled at beginWrite time, not construction
	// time. The user can flip the setting mid-session.
	autoCommitPolicy func() bool

	stepFlipFlop  bool
	stepDirection int
	currentTrack  int
	currentSector int

	sectorHole bool
}

// initialize returns the mechanics to their power-on state. The disk
// itself is ejected; reboot re-inserts it through the mount logic.
func (d *drive) initialize() {
	d.data = nil
	d.stepDirection = stepOut
	d.stepFlipFlop = false
	d.currentTrack = 0
	d.currentSector = 0
	d.sectorHole = true
}

// InsertDisk mounts a raw image. A nil buffer means an empty drive bay.
func (d *drive) InsertDisk(fileName string, data []byte) {
	d.data = data
	if data == nil || fileName == "" {
		fileName = ""
	}
	d.fileName = fileName
	d.commitPending = false
}

func (d *drive) FileName() string { return d.fileName }
func (d *drive) HasDisk() bool    { return d.data != nil }

func (d *drive) SetWriteProtect(wp bool) { d.writeProtect = wp }
func (d *drive) WriteProtect() bool      { return d.writeProtect }

func (d *drive) CommitPending() bool { return d.commitPending }

// CommitChanges writes the whole in-memory image back to the mounted
// file. A failure leaves the pending flag alone so the caller can retry.
func (d *drive) CommitChanges() error {
	if d.fileName == "" || d.data == nil {
		return nil
	}
	if err := diskimage.Save(d.fs, d.fileName, d.data); err != nil {
		return fmt.Errorf("drive %d: %w", d.num, err)
	}
	d.commitPending = false
	return nil
}

// commitOrFlag runs at the end of a sector write. Depending on the
// auto-commit policy the image goes straight to the file system or the
// change is flagged for a later explicit commit.
func (d *drive) commitOrFlag() {
	if d.autoCommit {
		if err := d.CommitChanges(); err != nil {
			log.Printf("floppy: %v", err)
			d.commitPending = true
		}
	} else {
		d.commitPending = true
	}
}

// setStepDirection records which way the next head step moves us,
// in toward the spindle or out toward the edge.
func (d *drive) setStepDirection(dir int) {
	d.stepDirection = dir
}

// setStepFlipFlop latches the step signal. The controller sets the
// flip-flop and then clears it; only the falling edge moves the head,
// one track in the previously latched direction, clamped to the media.
func (d *drive) setStepFlipFlop(bit int) {
	if d.stepFlipFlop && bit == 0 {
		if d.stepDirection == stepOut {
			if d.currentTrack > 0 {
				d.currentTrack--
			}
		} else {
			if d.currentTrack < highestTrack {
				d.currentTrack++
			}
		}
	}
	d.stepFlipFlop = bit != 0
}

func (d *drive) sampleAutoCommit() {
	if d.autoCommitPolicy != nil {
		d.autoCommit = d.autoCommitPolicy()
	}
}

// crcByte folds one byte into the running checksum: XOR, then rotate
// left with the carry wrapping back into bit 0.
func crcByte(crc int, data byte) int {
	crc ^= int(data)
	crc <<= 1
	if crc > 0xFF {
		crc = (crc & 0xFF) + 1
	}
	return crc
}
