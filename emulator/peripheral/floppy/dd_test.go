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
	"testing"

	"github.com/spf13/afero"

	"github.com/nstar-emu/horizon/emulator/peripheral/diskimage"
)

func newTestDD(cfg DriveConfig) *DDController {
	if cfg.Rand == nil {
		cfg.Rand = fixedRand{}
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewMemMapFs()
	}
	return NewDDController(testPROM(), cfg)
}

// DD controller address encodings: PROM read, data write, order register
// and command.
func ddWriteAddr(data byte) uint16 {
	return RangeStart | 0x100 | uint16(data)
}

func ddOrderAddr(params byte) uint16 {
	return RangeStart | 0x200 | uint16(params)
}

func ddCmdAddr(dataMux, command int) uint16 {
	return RangeStart | 0x300 | uint16(dataMux<<4|command)
}

func ddRead(t *testing.T, c *DDController, addr uint16) byte {
	t.Helper()
	data, err := c.Read(addr)
	if err != nil {
		t.Fatalf("read at %04X: %v", addr, err)
	}
	return data
}

func TestDDPROMRead(t *testing.T) {
	c := newTestDD(DriveConfig{})
	for i := 0; i < PROMSize; i++ {
		if data := ddRead(t, c, RangeStart+uint16(i)); data != byte(i) {
			t.Fatalf("PROM byte %d: got %02X", i, data)
		}
	}
}

func TestDoubleDensityImage(t *testing.T) {
	tests := []struct {
		size int
		dd   bool
	}{
		{diskimage.SSSDSize, false},
		{99999, false},
		{100000, true},
		{diskimage.SSDDSize, true},
		{diskimage.DSDDSize, true},
		{399999, true},
		{400000, false},
	}
	for _, tt := range tests {
		if got := DoubleDensityImage(make([]byte, tt.size)); got != tt.dd {
			t.Errorf("size %d: got %v want %v", tt.size, got, tt.dd)
		}
	}
}

func TestDDInsertClassifiesDensity(t *testing.T) {
	c := newTestDD(DriveConfig{})
	fd := c.drives[1]

	fd.InsertDisk("sd.nsi", testImage(diskimage.SSSDSize))
	if fd.ddImage {
		t.Error("single-density image classified as double")
	}
	status := ddRead(t, c, ddCmdAddr(1, 0))
	if status&ddDensityFlag != 0 {
		t.Error("density flag set for a single-density image")
	}

	fd.InsertDisk("dd.nsi", testImage(diskimage.SSDDSize))
	if !fd.ddImage {
		t.Error("double-density image classified as single")
	}
	status = ddRead(t, c, ddCmdAddr(1, 0))
	if status&ddDensityFlag == 0 {
		t.Error("density flag not set for a double-density image")
	}
}

func TestDDOrderAppliesToPreviousDrive(t *testing.T) {
	c := newTestDD(DriveConfig{})

	// The order byte selects unit 2 but its density bit still lands on
	// the drive that was selected when the byte arrived.
	ddRead(t, c, ddOrderAddr(ddCtrlDensity|0x02))
	if c.current != 2 {
		t.Fatalf("expected unit 2 selected, got %d", c.current)
	}
	if !c.drives[1].writeDoubleDensity {
		t.Error("density order missed the previously selected drive")
	}
	if c.drives[2].writeDoubleDensity {
		t.Error("density order hit the newly selected drive")
	}
}

func TestDDSelectSink(t *testing.T) {
	c := newTestDD(DriveConfig{})

	// A non one-hot select field lands on the unit 0 sink instead of
	// taking the machine down.
	if _, err := c.Read(ddOrderAddr(0x00)); err != nil {
		t.Fatal(err)
	}
	if c.current != 0 {
		t.Fatalf("expected the unit 0 sink, got %d", c.current)
	}
	if status := ddRead(t, c, ddCmdAddr(1, 0)); status != ddSectorFlag {
		t.Fatalf("sink status: got %02X", status)
	}
}

func TestDDStepping(t *testing.T) {
	c := newTestDD(DriveConfig{})
	fd := c.drives[1]
	fd.InsertDisk("a.nsi", testImage(diskimage.SSDDSize))

	step := func(dp byte) {
		ddRead(t, c, ddOrderAddr(dp|ddCtrlStep|0x01))
		ddRead(t, c, ddOrderAddr(dp|0x01))
	}

	step(ddCtrlDP)
	if fd.currentTrack != 1 {
		t.Fatalf("expected track 1 after one step in, got %d", fd.currentTrack)
	}

	for i := 0; i < 50; i++ {
		step(ddCtrlDP)
	}
	if fd.currentTrack != highestTrack {
		t.Fatalf("expected clamp at track %d, got %d", highestTrack, fd.currentTrack)
	}

	for i := 0; i < 50; i++ {
		step(0)
	}
	if fd.currentTrack != 0 {
		t.Fatalf("expected clamp at track 0, got %d", fd.currentTrack)
	}
}

func TestDDBytePointer(t *testing.T) {
	c := newTestDD(DriveConfig{})
	fd := c.drives[1]
	fd.InsertDisk("a.nsi", testImage(diskimage.DSDDSize))

	fd.currentTrack = 3
	fd.currentSector = 2

	fd.diskSide = 0
	fd.initializeBytePointer()
	if want := (3*sectPerTrack + 2) * ddSectorSize; fd.bytePointer != want {
		t.Errorf("side 0 pointer: got %d want %d", fd.bytePointer, want)
	}

	// Side 1 tracks are stored high to low.
	fd.diskSide = 1
	fd.initializeBytePointer()
	if want := (((highestTrack+1)*2-1-3)*sectPerTrack + 2) * ddSectorSize; fd.bytePointer != want {
		t.Errorf("side 1 pointer: got %d want %d", fd.bytePointer, want)
	}

	// Single-density images use 256 byte sectors.
	fd.InsertDisk("b.nsi", testImage(diskimage.SSSDSize))
	fd.currentTrack = 3
	fd.currentSector = 2
	fd.initializeBytePointer()
	if want := (3*sectPerTrack + 2) * sdSectorSize; fd.bytePointer != want {
		t.Errorf("single-density pointer: got %d want %d", fd.bytePointer, want)
	}
}

func TestDDReadSector(t *testing.T) {
	c := newTestDD(DriveConfig{})
	img := testImage(diskimage.SSDDSize)
	c.drives[1].InsertDisk("a.nsi", img)

	// The first dispatch ticks the drive from scan into the sector
	// window, so the transfer seats at sector 1 of track 0.
	want := img[1*ddSectorSize : 2*ddSectorSize]
	var crc int
	for i := range want {
		data := ddRead(t, c, ddCmdAddr(4, 0))
		if data != want[i] {
			t.Fatalf("payload byte %d: got %02X want %02X", i, data, want[i])
		}
		crc = crcByte(crc, data)
	}

	if sum := ddRead(t, c, ddCmdAddr(4, 0)); sum != byte(crc) {
		t.Fatalf("checksum: got %02X want %02X", sum, byte(crc))
	}
}

func TestDDReadSingleDensityImage(t *testing.T) {
	c := newTestDD(DriveConfig{})
	img := testImage(diskimage.SSSDSize)
	fd := c.drives[1]
	fd.InsertDisk("a.nsi", img)

	want := img[1*sdSectorSize : 2*sdSectorSize]
	for i := range want {
		data := ddRead(t, c, ddCmdAddr(4, 0))
		if data != want[i] {
			t.Fatalf("payload byte %d: got %02X want %02X", i, data, want[i])
		}
	}
	if fd.state != ddStateReadCRC {
		t.Fatalf("expected a 256 byte transfer, state %d", fd.state)
	}
}

func TestDDWriteSector(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := testImage(diskimage.SSDDSize)
	if err := diskimage.Save(fs, "a.nsi", img); err != nil {
		t.Fatal(err)
	}

	c := newTestDD(DriveConfig{Fs: fs, AutoCommit: func() bool { return true }})
	fd := c.drives[1]
	fd.InsertDisk("a.nsi", append([]byte(nil), img...))

	// Arm a double-density write on unit 1, then begin. The two order
	// and command dispatch ticks land us at sector 1 of track 0.
	ddRead(t, c, ddOrderAddr(ddCtrlDensity|0x01))
	ddRead(t, c, ddCmdAddr(0, 6))
	offset := 1 * ddSectorSize

	payload := make([]byte, ddSectorSize)
	for i := range payload {
		payload[i] = byte(i ^ 0x5A)
	}

	ddRead(t, c, ddWriteAddr(0)) // lead-in padding
	ddRead(t, c, ddWriteAddr(syncCharacter))
	ddRead(t, c, ddWriteAddr(0)) // post-sync byte, double density only
	for _, data := range payload {
		ddRead(t, c, ddWriteAddr(data))
	}
	ddRead(t, c, ddWriteAddr(0x55)) // checksum byte, discarded

	if fd.CommitPending() {
		t.Error("auto-commit left a pending write")
	}

	saved, err := diskimage.Load(fs, "a.nsi")
	if err != nil {
		t.Fatal(err)
	}
	for i, data := range payload {
		if saved[offset+i] != data {
			t.Fatalf("committed byte %d: got %02X want %02X", i, saved[offset+i], data)
		}
	}
}

func TestDDWriteDensityMismatch(t *testing.T) {
	c := newTestDD(DriveConfig{})
	fd := c.drives[1]
	img := testImage(diskimage.SSSDSize)
	fd.InsertDisk("a.nsi", append([]byte(nil), img...))

	// Double-density write onto a single-density image is refused.
	ddRead(t, c, ddOrderAddr(ddCtrlDensity|0x01))
	if data := ddRead(t, c, ddCmdAddr(0, 6)); data != 0 {
		t.Fatalf("refused begin write returned %02X", data)
	}
	if fd.writeReady {
		t.Fatal("drive armed a refused write")
	}

	// Streamed bytes are swallowed without touching the image.
	ddRead(t, c, ddWriteAddr(syncCharacter))
	for i := 0; i < 16; i++ {
		ddRead(t, c, ddWriteAddr(0xEE))
	}
	for i, data := range fd.data {
		if data != img[i] {
			t.Fatalf("image byte %d changed on a refused write", i)
		}
	}
}

func TestDDIndexFlagOnWrap(t *testing.T) {
	c := newTestDD(DriveConfig{})
	c.drives[1].InsertDisk("a.nsi", testImage(diskimage.SSDDSize))

	// Tick the drive through a few revolutions with C status probes
	// (data mux 0 avoids the jitter path). The index flag must track
	// sector 0 exactly.
	sawWrap := false
	for i := 0; i < 200; i++ {
		status := ddRead(t, c, ddCmdAddr(0, 0))
		sector := status & 0x0F
		index := status&ddIndexFlag != 0
		if i > 10 && index != (sector == 0) {
			t.Fatalf("tick %d: sector %d index %v", i, sector, index)
		}
		if index {
			sawWrap = true
		}
	}
	if !sawWrap {
		t.Fatal("never saw the index hole")
	}
}

func TestDDSectorJitter(t *testing.T) {
	c := newTestDD(DriveConfig{Rand: fixedRand{value: 5}})
	c.drives[1].InsertDisk("a.nsi", testImage(diskimage.SSDDSize))

	const holdProbes = 5 + 10
	for i := 0; i < holdProbes; i++ {
		status := ddRead(t, c, ddCmdAddr(3, 0))
		if sector := status & 0x0F; sector != 0 {
			t.Fatalf("sector advanced on probe %d: %d", i, sector)
		}
	}
	status := ddRead(t, c, ddCmdAddr(3, 0))
	if sector := status & 0x0F; sector != 1 {
		t.Fatalf("expected sector 1 after the hold expired, got %d", sector)
	}
}

func TestDDStepDirectionLockedDuringWrite(t *testing.T) {
	c := newTestDD(DriveConfig{})
	fd := c.drives[1]
	fd.InsertDisk("a.nsi", testImage(diskimage.SSDDSize))

	ddRead(t, c, ddOrderAddr(ddCtrlDensity|0x01))
	ddRead(t, c, ddCmdAddr(0, 6)) // begin write, DP now means pre-compensation
	if !fd.writeReady {
		t.Fatal("begin write did not arm the drive")
	}

	before := fd.stepDirection
	ddRead(t, c, ddOrderAddr(ddCtrlDensity|ddCtrlDP|0x01))
	if fd.stepDirection != before {
		t.Error("DP bit steered the head while a write was pending")
	}
}
