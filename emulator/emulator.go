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

// Package emulator ties the Horizon boards together: memory bus, floppy
// controller, ScreenSplitter and an externally supplied Z80 core, and
// runs them at stock speed.
package emulator

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/nstar-emu/horizon/emulator/memory"
	"github.com/nstar-emu/horizon/emulator/peripheral/diskimage"
	"github.com/nstar-emu/horizon/emulator/peripheral/floppy"
	"github.com/nstar-emu/horizon/emulator/processor"
	"github.com/nstar-emu/horizon/emulator/video"
)

// The PROM at the bottom of the floppy controller window is where a
// stock Horizon starts executing.
const bootAddress = floppy.RangeStart

// 4MHz clock, throttled in 100ms slices.
const (
	tstatesPerSlice = 400000
	slicePeriod     = 100 * time.Millisecond
	pauseDelay      = 500 * time.Millisecond
)

// ErrNoBootDisk is returned by Run when unit 1 is empty at reboot.
var ErrNoBootDisk = errors.New("no boot disk in unit 1")

type Emulator struct {
	cfg *Config

	bus   *memory.Bus
	fdc   floppy.Controller
	vid   video.Video
	ports processor.InputOutput
	cpu   processor.CPU
	rng   *rand.Rand

	running int32
	paused  int32
	reboot  int32

	nextSleep int64
	sliceTime time.Time
}

// New builds a machine from the configuration. The CPU core comes from
// the caller through the factory; everything it sees goes through the
// bus and the port device.
func New(cfg *Config, vid video.Video, ports processor.InputOutput, newCPU processor.Factory) (*Emulator, error) {
	cfg.fill()

	if vid == nil {
		vid = &video.Null{Board: cfg.VideoBoard}
	}

	e := &Emulator{
		cfg:   cfg,
		vid:   vid,
		ports: ports,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := e.mountDrives(); err != nil {
		return nil, err
	}
	e.bus = memory.NewBus(e.fdc, vid, e.rng)

	cpu, err := newCPU(e.bus, ports)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU: %w", err)
	}
	e.cpu = cpu
	return e, nil
}

func (e *Emulator) Bus() *memory.Bus {
	return e.bus
}

func (e *Emulator) Controller() floppy.Controller {
	return e.fdc
}

// AnyPendingWrites reports uncommitted sector writes on any drive. The
// front end checks it before letting the user quit.
func (e *Emulator) AnyPendingWrites() bool {
	return e.fdc.AnyPendingWrites()
}

// RequestReboot asks the run loop to cold start the machine: memory is
// scrambled and the drive images are remounted from the configuration.
func (e *Emulator) RequestReboot() {
	atomic.StoreInt32(&e.reboot, 1)
}

func (e *Emulator) Stop() {
	atomic.StoreInt32(&e.running, 0)
}

func (e *Emulator) SetPaused(p bool) {
	var v int32
	if p {
		v = 1
	}
	atomic.StoreInt32(&e.paused, v)
}

func (e *Emulator) Paused() bool {
	return atomic.LoadInt32(&e.paused) != 0
}

// mountDrives loads the configured images and builds the matching
// controller. The image in unit 1 decides the variant: anything over
// a single-density disk's worth of data needs the double-density
// controller, which also brings the fourth drive bay.
func (e *Emulator) mountDrives() error {
	cfg := e.cfg
	driveCfg := floppy.DriveConfig{
		Fs: cfg.Fs,
		AutoCommit: func() bool {
			return e.cfg.AutoCommit
		},
		Rand: e.rng,
	}

	images := make([][]byte, MaxDrives)
	names := make([]string, MaxDrives)
	for i, name := range cfg.DriveImages {
		if name == "" {
			continue
		}
		data, err := diskimage.Load(cfg.Fs, name)
		if err != nil {
			// A missing or unreadable image mounts as an empty bay.
			log.Print(err)
			continue
		}
		images[i] = data
		names[i] = name
	}

	var fdc floppy.Controller
	if floppy.DoubleDensityImage(images[0]) {
		prom, err := floppy.LoadFirmware(cfg.Fs, cfg.DDFirmware)
		if err != nil {
			return err
		}
		fdc = floppy.NewDDController(prom, driveCfg)
	} else {
		prom, err := floppy.LoadFirmware(cfg.Fs, cfg.SDFirmware)
		if err != nil {
			return err
		}
		fdc = floppy.NewSDController(prom, driveCfg)
	}

	for unit := 1; unit <= fdc.TotalDrives(); unit++ {
		if images[unit-1] == nil {
			continue
		}
		fd := fdc.Drive(unit)
		fd.InsertDisk(names[unit-1], images[unit-1])
		fd.SetWriteProtect(cfg.ReadOnly[unit-1])
	}

	e.fdc = fdc
	return nil
}

func (e *Emulator) coldStart() error {
	if err := e.mountDrives(); err != nil {
		return err
	}
	if !e.fdc.Drive(1).HasDisk() {
		return ErrNoBootDisk
	}

	e.bus.SetController(e.fdc)
	e.bus.ClearMemory()
	e.vid.Reboot()

	e.cpu.SetResetAddress(bootAddress)
	e.cpu.Reset()

	e.nextSleep = e.cpu.TStates() + tstatesPerSlice
	e.sliceTime = time.Now()
	return nil
}

// Run executes the machine until it halts, is stopped, or a mapped
// device raises an unrecoverable fault. It drives the motor timeout
// and the speed throttle between instructions.
func (e *Emulator) Run() error {
	atomic.StoreInt32(&e.running, 1)
	atomic.StoreInt32(&e.reboot, 1)

	for atomic.LoadInt32(&e.running) != 0 {
		if atomic.CompareAndSwapInt32(&e.reboot, 1, 0) {
			if err := e.coldStart(); err != nil {
				return err
			}
		}

		if e.Paused() {
			time.Sleep(pauseDelay)
			e.sliceTime = time.Now()
			continue
		}

		e.fdc.TimeoutDriveMotors()

		if err := e.cpu.ExecuteOneInstruction(); err != nil {
			if errors.Is(err, processor.ErrCPUHalt) {
				return nil
			}
			return fmt.Errorf("CPU fault: %w", err)
		}

		if err := e.bus.Err(); err != nil {
			return err
		}

		if !e.cfg.FullSpeed && e.cpu.TStates() >= e.nextSleep {
			if d := slicePeriod - time.Since(e.sliceTime); d > 0 {
				time.Sleep(d)
			}
			e.nextSleep = e.cpu.TStates() + tstatesPerSlice
			e.sliceTime = time.Now()
		}
	}
	return nil
}
