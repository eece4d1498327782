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
	sdTotalDrives = 3
	sdSectorSize  = 256
)

// Single-density drive states. Sector scan, window and sync framing run
// off the timer tick; read and write states are only entered through
// explicit data transfer calls.
const (
	sdStateSectorScan = iota
	sdStateWindowOpen
	sdStateWindowClose
	sdStateReadData
	sdStateReadCRC
	sdStateReadEnd
	sdStateWriteLeadin
	sdStateWriteData
	sdStateWriteCRC
	sdStateWriteEnd
)

// A/B status byte flags.
const (
	sdSectorFlag   = 0x80
	sdWindowFlag   = 0x40
	sdMotorFlag    = 0x10
	sdWriteReady   = 0x08
	sdSyncFlag     = 0x04
	sdWriteProtect = 0x02
	sdTrack0Flag   = 0x01
)

// SDController is the MDS single-density controller: 256 byte bootstrap
// PROM and up to 3 drives. Every register interaction is a memory read;
// the address low bits carry the command and its parameters.
type SDController struct {
	controller
	prom   []byte
	drives [sdTotalDrives + 1]*sdDrive
}

// NewSDController creates the controller and one drive per supported
// unit, plus the throw-away unit 0 that soaks up invalid selections.
func NewSDController(prom []byte, cfg DriveConfig) *SDController {
	cfg.fill()
	c := &SDController{
		controller: controller{current: 1, now: cfg.Now},
		prom:       prom,
	}
	for i := range c.drives {
		d := &sdDrive{}
		d.num = i
		d.fs = cfg.Fs
		d.autoCommitPolicy = cfg.AutoCommit
		d.rng = cfg.Rand
		d.Reset()
		c.drives[i] = d
	}
	return c
}

func (c *SDController) TotalDrives() int {
	return sdTotalDrives
}

func (c *SDController) Drive(unit int) Drive {
	if unit < 0 || unit > sdTotalDrives {
		unit = 0
	}
	return c.drives[unit]
}

func (c *SDController) AnyPendingWrites() bool {
	for _, d := range c.drives {
		if d.CommitPending() {
			return true
		}
	}
	return false
}

// Read decodes one access in the controller window.
//
// Address bits 9:8 select the operation: 0/1 read the bootstrap PROM,
// 2 shifts a data byte out to the selected drive, 3 is a controller
// command with the low byte laid out as |MO|RD|BST|--CC--|M1|M0|.
func (c *SDController) Read(addr uint16) (byte, error) {
	c.setMotorsRunning()

	fd := c.drives[c.current]
	opType := (addr >> 8) & 0x3
	params := byte(addr)

	switch opType {
	case 0, 1:
		// Optional and standard PROM addressing both land on the same
		// 256 byte bootstrap image here.
		return c.prom[params], nil

	case 2:
		if err := fd.updateMachineState(false); err != nil {
			return 0, err
		}
		if _, err := fd.writeByte(params); err != nil {
			return 0, err
		}
		return 0, nil

	default: // 3
		readShiftReg := (params >> 6) & 0x01
		gateBStatus := (params >> 5) & 0x01
		commandCode := (params >> 2) & 0x07

		if err := fd.updateMachineState(gateBStatus == 1); err != nil {
			return 0, err
		}

		switch commandCode {
		case 0:
			// Select drive and lower its head. The real controller has
			// no unit 0; boot code asking for it is a broken setup.
			c.current = int(params & 0x03)
			if c.current == 0 {
				return 0, fmt.Errorf("%w: unit 0 on single-density controller", ErrDriveSelect)
			}
			fd = c.drives[c.current]
		case 1:
			// Start a write sector sequence.
			fd.beginWrite()
		case 2:
			fd.setStepFlipFlop(int(params & 0x01))
		case 3:
			// Load interrupt armed flip-flop. Optional and not used by
			// the stock Horizon.
		case 4:
			// NOP, just return a status or data value.
		case 5:
			fd.setSectorHole(false)
		case 6:
			// Reset controller, raise heads, stop motors.
		case 7:
			fd.setStepDirection(int(params & 0x01))
		}

		if readShiftReg == 1 {
			return fd.readByte()
		}
		return fd.getStatus(int(gateBStatus)), nil
	}
}

// sdDrive is one single-density drive unit: 35 tracks of 10 sectors,
// 256 bytes per sector.
type sdDrive struct {
	drive
	rng randSource

	state        int
	stateCounter int

	syncDetected bool
	inWindow     bool
	writeReady   bool

	bytesToXfer int
	crc         int
	dataOffset  int
}

func (d *sdDrive) Reset() {
	d.initialize()
	d.state = sdStateSectorScan
	d.stateCounter = 0
	d.syncDetected = false
	d.inWindow = false
	d.writeReady = false
	d.crc = 0
}

func (d *sdDrive) InsertDisk(fileName string, data []byte) {
	d.Reset()
	d.drive.InsertDisk(fileName, data)
}

// setSectorHole clears or sets the sector flag. The disk routines clear
// it and then poll for it to come back high on the next sector hole;
// clearing it mid-transfer also drops the drive back to the scan state.
func (d *sdDrive) setSectorHole(detected bool) {
	d.sectorHole = detected
	if !detected && d.state != sdStateSectorScan {
		d.state = sdStateSectorScan
		d.stateCounter = 0
		d.syncDetected = false
		d.crc = 0
	}
}

// beginWrite arms a sector write: the head is positioned at the current
// track and sector and the drive waits for the sync byte in the lead-in
// stream. Always succeeds on the single-density controller.
func (d *sdDrive) beginWrite() bool {
	d.writeReady = true
	d.inWindow = false
	d.state = sdStateWriteLeadin
	d.stateCounter = transferTimeout
	d.dataOffset = (d.currentTrack*sectPerTrack + d.currentSector) * sdSectorSize
	d.bytesToXfer = sdSectorSize
	d.sampleAutoCommit()
	return true
}

// getStatus builds the A (gateBStatus 0) or B (gateBStatus 1) status
// byte. An empty drive bay reports only the sector flag, which the DOS
// takes as its no-disk indication.
func (d *sdDrive) getStatus(gateBStatus int) byte {
	if d.fileName == "" {
		return sdSectorFlag
	}

	var status byte = sdMotorFlag
	if d.sectorHole {
		status |= sdSectorFlag
	}
	if d.inWindow {
		status |= sdWindowFlag
	}

	if gateBStatus == 1 {
		status |= byte(d.currentSector)
	} else {
		if d.writeReady {
			status |= sdWriteReady
		}
		if d.syncDetected {
			status |= sdSyncFlag
		}
		if d.writeProtect {
			status |= sdWriteProtect
		}
		if d.currentTrack == 0 {
			status |= sdTrack0Flag
		}
	}
	return status
}

// readByte streams the current sector: first the payload bytes in
// order, then the accumulated checksum. There is no stored checksum on
// the image; it is recomputed while reading so a good read always
// verifies. With no disk mounted the data reads as zero and the
// checksum as 0xFF, forcing an error in the guest OS.
func (d *sdDrive) readByte() (byte, error) {
	if d.state != sdStateReadData && d.state != sdStateReadCRC {
		d.state = sdStateReadData
		d.dataOffset = (d.currentTrack*sectPerTrack + d.currentSector) * sdSectorSize
		d.bytesToXfer = sdSectorSize
	}
	d.stateCounter = transferTimeout

	switch d.state {
	case sdStateReadData:
		d.bytesToXfer--
		if d.bytesToXfer <= 0 {
			d.state = sdStateReadCRC
		}
		var data byte
		if d.data != nil && d.dataOffset < len(d.data) {
			data = d.data[d.dataOffset]
			d.dataOffset++
			d.crc = crcByte(d.crc, data)
		}
		return data, nil

	case sdStateReadCRC:
		data := byte(0xFF) // no disk: guarantee a checksum mismatch
		if d.data != nil {
			data = byte(d.crc)
		}
		d.state = sdStateReadEnd
		d.stateCounter = 2
		return data, nil

	default:
		return 0, fmt.Errorf("%w: read in state %d", ErrMachineState, d.state)
	}
}

// writeByte accepts one byte of the write stream. Lead-in padding is
// discarded until the sync character arrives, then the sector payload
// is stored, then the trailing checksum byte is swallowed and the
// sector is committed or flagged.
func (d *sdDrive) writeByte(data byte) (byte, error) {
	d.stateCounter = transferTimeout

	switch d.state {
	case sdStateWriteLeadin:
		if data == syncCharacter {
			d.state = sdStateWriteData
		}

	case sdStateWriteData:
		if d.data != nil {
			if d.dataOffset < len(d.data) {
				d.data[d.dataOffset] = data
			}
			d.dataOffset++
		}
		d.bytesToXfer--
		if d.bytesToXfer <= 0 {
			d.state = sdStateWriteCRC
		}

	case sdStateWriteCRC:
		// Checksum byte is recomputed on read, never stored.
		d.writeReady = false
		d.state = sdStateWriteEnd
		d.stateCounter = 2
		d.commitOrFlag()

	default:
		return 0, fmt.Errorf("%w: write in state %d", ErrMachineState, d.state)
	}
	return data, nil
}

// updateMachineState advances the rotational state machine one tick.
// Every controller dispatch lands here first, so the delays are counted
// in controller accesses, which is what the boot PROM polls with.
func (d *sdDrive) updateMachineState(returningSectorNumber bool) error {
	switch d.state {
	case sdStateSectorScan:
		randomize := false
		if returningSectorNumber {
			// Probing B status while idle is not disk I/O: BASIC reads
			// the sector position as timing jitter to seed RND(). Delay
			// the next sector hole by a random number of probes so that
			// seed stays unpredictable, most importantly right after
			// boot.
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
			d.syncDetected = false
			d.crc = 0
			d.state = sdStateWindowOpen
			d.sectorHole = true
			d.stateCounter = 5
		}

	case sdStateWindowOpen:
		d.writeReady = false
		d.inWindow = true
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.state = sdStateWindowClose
			d.stateCounter = 6
		}

	case sdStateWindowClose:
		d.inWindow = false
		d.syncDetected = true
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.state = sdStateSectorScan
		}

	case sdStateReadData, sdStateWriteLeadin, sdStateWriteData, sdStateWriteCRC:
		// The OS may abandon a transfer mid-flight. Count down and give
		// up instead of wedging the drive.
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.writeReady = false
			d.state = sdStateSectorScan
		}

	case sdStateReadCRC:

	case sdStateReadEnd, sdStateWriteEnd:
		d.stateCounter--
		if d.stateCounter <= 0 {
			d.state = sdStateSectorScan
		}

	default:
		return fmt.Errorf("%w: %d", ErrMachineState, d.state)
	}
	return nil
}
