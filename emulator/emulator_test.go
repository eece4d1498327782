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

package emulator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/nstar-emu/horizon/emulator/peripheral/diskimage"
	"github.com/nstar-emu/horizon/emulator/processor"
)

// scriptedCPU runs a fixed number of instructions and halts.
type scriptedCPU struct {
	mem processor.Memory

	steps     int
	tstates   int64
	resetAddr uint16
	resets    int

	onStep func()
}

func (c *scriptedCPU) ExecuteOneInstruction() error {
	c.tstates += 4
	c.steps--
	if c.steps < 0 {
		return processor.ErrCPUHalt
	}
	if c.onStep != nil {
		c.onStep()
	}
	c.mem.ReadByte(c.resetAddr) // fetch from the boot PROM
	return nil
}

func (c *scriptedCPU) TStates() int64           { return c.tstates }
func (c *scriptedCPU) SetResetAddress(a uint16) { c.resetAddr = a }
func (c *scriptedCPU) Reset()                   { c.resets++ }

func scriptedFactory(cpu *scriptedCPU) processor.Factory {
	return func(mem processor.Memory, io processor.InputOutput) (processor.CPU, error) {
		cpu.mem = mem
		return cpu, nil
	}
}

func promDump() string {
	var sb strings.Builder
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&sb, "%02X ", byte(i))
		if i%16 == 15 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func testFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range []string{"sd.hex", "dd.hex"} {
		if err := afero.WriteFile(fs, name, []byte(promDump()), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func testConfig(t *testing.T) *Config {
	return &Config{
		Fs:         testFs(t),
		FullSpeed:  true,
		SDFirmware: "sd.hex",
		DDFirmware: "dd.hex",
	}
}

func writeBootImage(t *testing.T, cfg *Config, size int) {
	t.Helper()
	if err := diskimage.CreateBlank(cfg.Fs, "boot.nsi", size); err != nil {
		t.Fatal(err)
	}
	cfg.DriveImages[0] = "boot.nsi"
}

func TestMountSingleDensity(t *testing.T) {
	cfg := testConfig(t)
	writeBootImage(t, cfg, diskimage.SSSDSize)
	cfg.ReadOnly[0] = true

	e, err := New(cfg, nil, nil, scriptedFactory(&scriptedCPU{}))
	if err != nil {
		t.Fatal(err)
	}

	if n := e.Controller().TotalDrives(); n != 3 {
		t.Fatalf("expected the 3 drive single-density controller, got %d drives", n)
	}
	fd := e.Controller().Drive(1)
	if !fd.HasDisk() {
		t.Fatal("boot disk not mounted")
	}
	if !fd.WriteProtect() {
		t.Fatal("read-only flag not applied")
	}
}

func TestMountDoubleDensity(t *testing.T) {
	cfg := testConfig(t)
	writeBootImage(t, cfg, diskimage.SSDDSize)

	e, err := New(cfg, nil, nil, scriptedFactory(&scriptedCPU{}))
	if err != nil {
		t.Fatal(err)
	}
	if n := e.Controller().TotalDrives(); n != 4 {
		t.Fatalf("expected the 4 drive double-density controller, got %d drives", n)
	}
}

func TestMountMissingImage(t *testing.T) {
	cfg := testConfig(t)
	cfg.DriveImages[1] = "missing.nsi"

	// An unreadable image mounts as an empty bay instead of failing.
	e, err := New(cfg, nil, nil, scriptedFactory(&scriptedCPU{}))
	if err != nil {
		t.Fatal(err)
	}
	if e.Controller().Drive(2).HasDisk() {
		t.Fatal("missing image mounted a disk")
	}
}

func TestRunUntilHalt(t *testing.T) {
	cfg := testConfig(t)
	writeBootImage(t, cfg, diskimage.SSSDSize)

	cpu := &scriptedCPU{steps: 100}
	e, err := New(cfg, nil, nil, scriptedFactory(cpu))
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if cpu.resets != 1 {
		t.Errorf("resets: %d", cpu.resets)
	}
	if cpu.resetAddr != bootAddress {
		t.Errorf("reset address: %04X", cpu.resetAddr)
	}
}

func TestRunNoBootDisk(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, nil, nil, scriptedFactory(&scriptedCPU{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); !errors.Is(err, ErrNoBootDisk) {
		t.Fatalf("expected ErrNoBootDisk, got %v", err)
	}
}

func TestStopEndsTheRunLoop(t *testing.T) {
	cfg := testConfig(t)
	writeBootImage(t, cfg, diskimage.SSSDSize)

	cpu := &scriptedCPU{steps: 1 << 30}
	e, err := New(cfg, nil, nil, scriptedFactory(cpu))
	if err != nil {
		t.Fatal(err)
	}

	executed := 0
	cpu.onStep = func() {
		executed++
		if executed == 10 {
			e.Stop()
		}
	}

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if executed < 10 || executed > 11 {
		t.Fatalf("executed %d instructions", executed)
	}
}
