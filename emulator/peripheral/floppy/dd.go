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
)

const (
	ddTotalDrives = 4
	ddSectorSize  = 512

	// Raw image length thresholds for density classification.
	ddDensityMin = 100000
	ddDensityMax = 400000
)

// Double-density drive states. The drive handles both densities, so the
// read and write paths fork on the density detected at insert time.
const (
	ddStateSectorScan = iota
	ddStateWindowOpen
	ddStateWindowClose
	ddStateReadDataSD
	ddStateReadDataDD
	ddStateReadCRC
	ddStateReadEnd
	ddStateWriteSyncDD
	ddStateWritePostSync
	ddStateWriteSyncSD
	ddStateWriteData
	ddStateWriteCRC
)

// Status byte flags. Sector, index, density and motor bits are shared
// by all three status registers; the low nibble differs per register.
const (
	ddSectorFlag  = 0x80
	ddIndexFlag   = 0x40
	ddDensityFlag = 0x20
	ddMotorFlag   = 0x10

	ddWindowFlag = 0x08 // A status
	ddReadEnable = 0x04
	ddSyncFlag   = 0x01

	ddWriteFlag    = 0x08 // B status
	ddWriteProtect = 0x02
	ddTrack0Flag   = 0x01
)

// Order register bits.
const (
	ddCtrlDensity    = 0x80
	ddCtrlSideSelect = 0x40
	ddCtrlDP         = 0x20
	ddCtrlStep       = 0x10
)

// DDController is the MDS-D double-density controller: 256 byte
// bootstrap PROM and up to 4 double-sided drives.
type DDController struct {
	controller
	prom   []byte
	drives [ddTotalDrives + 1]*ddDrive
}

func NewDDController(prom []byte, cfg DriveConfig) *DDController {
	cfg.fill()
	c := &DDController{
		controller: controller{current: 1, now: cfg.Now},
		prom:       prom,
	}
	for i := range c.drives {
		d := &ddDrive{}
		d.num = i
		d.fs = cfg.Fs
		d.autoCommitPolicy = cfg.AutoCommit
		d.rng = cfg.Rand
		d.Reset()
		c.drives[i] = d
	}
	return c
}

// DoubleDensityImage reports whether a raw image's length classifies it
// as double density. Anything outside the window is treated as single
// density.
func DoubleDensityImage(data []byte) bool {
	return len(data) >= ddDensityMin && len(data) < ddDensityMax
}

func (c *DDController) TotalDrives() int {
	return ddTotalDrives
}

func (c *DDController) Drive(unit int) Drive {
	if unit < 0 || unit > ddTotalDrives {
		unit = 0
	}
	return c.drives[unit]
}

func (c *DDController) AnyPendingWrites() bool {
	for _, d := range c.drives {
		if d.CommitPending() {
			return true
		}
	}
	return false
}

// Read decodes one access in the controller window.
//
// Address bits 9:8 select the operation: 0 reads the bootstrap PROM,
// 1 shifts a data byte out to the selected drive, 2 loads the order
// register |DD|SS|DP|ST|--DS--|, 3 is a command |--DM--|--CC--|.
func (c *DDController) Read(addr uint16) (byte, error) {
	c.setMotorsRunning()

	fd := c.drives[c.current]
	opType := (addr >> 8) & 0x3
	params := byte(addr)

	switch opType {
	case 0:
		return c.prom[params], nil

	case 1:
		if err := fd.updateMachineState(false); err != nil {
			return 0, err
		}
		return fd.writeByte(params)

	case 2:
		// Order register. The drive select field is one-hot; anything
		// else lands on the unit 0 sink. The order bits themselves are
		// applied to the drive that was selected when the order byte
		// arrived, the new selection takes effect on the next access.
		switch {
		case params&0x01 != 0:
			c.current = 1
		case params&0x02 != 0:
			c.current = 2
		case params&0x04 != 0:
			c.current = 3
		case params&0x08 != 0:
			c.current = 4
		default:
			c.current = 0
		}
		if err := fd.updateMachineState(false); err != nil {
			return 0, err
		}
		return 0, fd.setControllerOrders(params)

	default: // 3
		dataMux := params >> 4
		if err := fd.updateMachineState(dataMux == 3); err != nil {
			return 0, err
		}
		readData := dataMux == 4
		commandCode := params & 0x0F

		switch commandCode {
		case 0:
			// NOP, just return the requested data.
		case 1:
			fd.setSectorHole(false)
		case 2, 3:
			// Disarm/arm interrupt. Optional and not used by the stock
			// Horizon.
		case 4:
			// Set diagnostic body. Not implemented.
		case 5:
			// Turn on drive motors. Emulated as always on.
		case 6:
			if !fd.beginWrite() {
				// Density mismatch; return a value that leads to an
				// error message in the guest OS.
				return 0, nil
			}
		case 7:
			// Reset controller, raise heads, stop motors.
		}

		if readData {
			return fd.readByte()
		}
		return fd.getStatus(int(dataMux)), nil
	}
}

// ddDrive is one double-density drive unit: 35 tracks per side of 10
// sectors, 256 or 512 bytes per sector depending on the mounted image.
type ddDrive struct {
	drive
	rng randSource

	state        int
	stateCounter int

	syncDetected bool
	inWindow     bool
	writeReady   bool
	indexFlag    bool
	readEnable   bool

	ddImage  bool
	diskSide int

	writeDoubleDensity bool

	bytesToXfer int
	crc         int
	bytePointer int
}

func (d *ddDrive) Reset() {
	d.initialize()
	d.state = ddStateSectorScan
	d.stateCounter = 0
	d.syncDetected = false
	d.inWindow = false
	d.writeReady = false
	d.indexFlag = false
	d.readEnable = false
	d.diskSide = 0
	d.crc = 0
}

// InsertDisk mounts an image and classifies its density from the raw
// byte length alone: under 100,000 bytes is single density, up to
// 400,000 is double, anything else falls back to single.
func (d *ddDrive) InsertDisk(fileName string, data []byte) {
	d.Reset()
	d.drive.InsertDisk(fileName, data)
	d.ddImage = data != nil && len(data) >= ddDensityMin && len(data) < ddDensityMax
}

func (d *ddDrive) setSectorHole(detected bool) {
	d.sectorHole = detected
	if !detected && d.state != ddStateSectorScan {
		d.state = ddStateSectorScan
		d.stateCounter = 0
		d.syncDetected = false
		d.crc = 0
	}
}

// setControllerOrders loads the order register: write density, side
// select, step direction and the step pulse itself. The DP bit is
// shared with write pre-compensation, so it only steers the head when
// no write is pending.
func (d *ddDrive) setControllerOrders(params byte) error {
	if err := d.updateMachineState(false); err != nil {
		return err
	}
	d.writeDoubleDensity = params&ddCtrlDensity != 0
	if params&ddCtrlSideSelect != 0 {
		d.diskSide = 1
	} else {
		d.diskSide = 0
	}
	if !d.writeReady {
		if params&ddCtrlDP != 0 {
			d.setStepDirection(stepIn)
		} else {
			d.setStepDirection(stepOut)
		}
	}
	var step int
	if params&ddCtrlStep != 0 {
		step = 1
	}
	d.setStepFlipFlop(step)
	return nil
}

// initializeBytePointer seats the transfer pointer for the current
// track, sector and side. Side 0 tracks are stored low to high, side 1
// tracks high to low, matching the interleaved layout of a double
// sided medium.
func (d *ddDrive) initializeBytePointer() {
	if d.diskSide > 0 {
		d.bytePointer = (highestTrack+1)*2 - 1 - d.currentTrack
	} else {
		d.bytePointer = d.currentTrack
	}
	d.bytePointer *= sectPerTrack
	d.bytePointer += d.currentSector
	if d.ddImage {
		d.bytePointer *= ddSectorSize
	} else {
		d.bytePointer *= sdSectorSize
	}
}

// beginWrite arms a sector write. Writing double density onto an image
// detected as single density is refused outright.
func (d *ddDrive) beginWrite() bool {
	if !d.ddImage && d.writeDoubleDensity {
		return false
	}

	d.initializeBytePointer()
	if d.writeDoubleDensity {
		d.state = ddStateWriteSyncDD
	} else {
		d.state = ddStateWriteSyncSD
	}
	d.stateCounter = transferTimeout
	d.writeReady = true
	d.inWindow = false
	d.sampleAutoCommit()
	return true
}

// getStatus builds the A (1), B (2) or C (anything else) status byte.
func (d *ddDrive) getStatus(dataMux int) byte {
	if d.fileName == "" {
		return ddSectorFlag
	}

	var status byte = ddMotorFlag
	if d.sectorHole {
		status |= ddSectorFlag
	}
	if d.indexFlag {
		status |= ddIndexFlag
	}
	if d.ddImage {
		status |= ddDensityFlag
	}

	switch dataMux {
	case 1:
		if d.inWindow {
			status |= ddWindowFlag
		}
		if d.readEnable {
			status |= ddReadEnable
		}
		if d.syncDetected {
			status |= ddSyncFlag
		}
	case 2:
		if d.writeReady {
			status |= ddWriteFlag
		}
		if d.writeProtect {
			status |= ddWriteProtect
		}
		if d.currentTrack == 0 {
			status |= ddTrack0Flag
		}
	default:
		status |= byte(d.currentSector)
	}
	return status
}

// fetchByte returns the next sequential sector byte and folds it into
// the running checksum. An empty bay reads as zero without moving the
// pointer.
func (d *ddDrive) fetchByte() byte {
	var data byte
	if d.data != nil && d.bytePointer < len(d.data) {
		data = d.data[d.bytePointer]
		d.bytePointer++
	}
	d.crc = crcByte(d.crc, data)
	return data
}

func (d *ddDrive) readByte() (byte, error) {
	if d.state != ddStateReadDataSD && d.state != ddStateReadDataDD && d.state != ddStateReadCRC {
		d.initializeBytePointer()
		if d.ddImage {
			d.state = ddStateReadDataDD
			d.bytesToXfer = ddSectorSize
		} else {
			d.state = ddStateReadDataSD
			d.bytesToXfer = sdSectorSize
		}
	}
	d.stateCounter = transferTimeout

	switch d.state {
	case ddStateReadDataSD, ddStateReadDataDD:
		d.bytesToXfer--
		if d.bytesToXfer <= 0 {
			d.state = ddStateReadCRC
		}
		return d.fetchByte(), nil

	case ddStateReadCRC:
		data := byte(d.crc)
		d.state = ddStateReadEnd
		d.stateCounter = 2
		return data, nil

	default:
		return 0, fmt.Errorf("%w: read in state %d", ErrMachineState, d.state)
	}
}

// writeByte accepts one byte of the write stream. Double density adds a
// second post-sync byte before the payload begins. Writing double
// density onto a single density image is a harmless no-op; the guest
// eventually reports a density error.
func (d *ddDrive) writeByte(data byte) (byte, error) {
	if !d.ddImage && d.writeDoubleDensity {
		return 0, nil
	}
	d.stateCounter = transferTimeout

	switch d.state {
	case ddStateWriteSyncDD:
		d.bytesToXfer = ddSectorSize
		if data == syncCharacter {
			d.state = ddStateWritePostSync
		}

	case ddStateWritePostSync:
		d.state = ddStateWriteData

	case ddStateWriteSyncSD:
		d.bytesToXfer = sdSectorSize
		if data == syncCharacter {
			d.state = ddStateWriteData
		}

	case ddStateWriteData:
		if d.bytesToXfer > 0 {
			if d.data != nil && d.bytePointer < len(d.data) {
				d.data[d.bytePointer] = data
				d.bytePointer++
			}
			d.bytesToXfer--
			if d.bytesToXfer <= 0 {
				d.state = ddStateWriteCRC
			}
		}

	case ddStateWriteCRC:
		// Checksum byte is recomputed on read, never stored.
		d.writeReady = false
		d.state = ddStateSectorScan
		d.commitOrFlag()

	default:
		return 0, fmt.Errorf("%w: write in state %d", ErrMachineState, d.state)
	}
	return data, nil
}

func (d *ddDrive) updateMachineState(returningSectorNumber bool) error {
	switch d.state {
	case ddStateSectorScan:
		randomize := false
		if returningSectorNumber {
			// Probing C status while idle is the RND() seeding trick,
			// same as the single-density board. See sdDrive.
			if d.stateCounter <= 0 {
				d.stateCounter = d.rng.Intn(256) + 10
				randomize = true
			} else {
				d.stateCounter--
				if d.stateCounter > 0 {
					randomize = true
				}
			}
		}

		if !randomize {
			d.currentSector = (d.currentSector + 1) % sectPerTrack
			d.indexFlag = d.currentSector == 0
			d.syncDetected = false
			d.crc = 0
			d.state = ddStateWindowOpen
			d.sectorHole = true
			d.stateCounter = 5
		}

	case ddStateWindowOpen:
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.state = ddStateWindowClose
			d.stateCounter = 3
		}
		d.inWindow = true
		d.readEnable = true

	case ddStateWindowClose:
		d.stateCounter--
		d.inWindow = false
		d.syncDetected = true
		if d.stateCounter <= 0 {
			d.state = ddStateSectorScan
		}

	case ddStateReadDataSD, ddStateReadDataDD,
		ddStateWriteSyncDD, ddStateWritePostSync, ddStateWriteSyncSD,
		ddStateWriteData, ddStateWriteCRC:
		// The OS may abandon a transfer mid-flight, typically when a
		// verify fails against a DOS area that changed underneath it.
		// Count down and give up.
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.writeReady = false
			d.state = ddStateSectorScan
		}

	case ddStateReadCRC:

	case ddStateReadEnd:
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.state = ddStateSectorScan
		}

	default:
		return fmt.Errorf("%w: %d", ErrMachineState, d.state)
	}
	return nil
}
