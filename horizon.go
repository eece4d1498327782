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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"

	"github.com/nstar-emu/horizon/emulator"
	"github.com/nstar-emu/horizon/emulator/peripheral/console"
	"github.com/nstar-emu/horizon/emulator/peripheral/diskimage"
	"github.com/nstar-emu/horizon/emulator/processor"
	"github.com/nstar-emu/horizon/platform"
	"github.com/nstar-emu/horizon/version"
)

// newCPU is the Z80 core hook. The core itself ships separately; a
// build that links one assigns its factory here.
var newCPU processor.Factory

var (
	genSSSD, genSSDD, genDSDD string

	disks     [emulator.MaxDrives]string
	readOnly  [emulator.MaxDrives]bool
	sdProm    string
	ddProm    string

	autoCommit,
	fullSpeed,
	ver bool
)

func init() {
	flag.BoolVar(&ver, "v", false, "Print version information")

	for i := range disks {
		unit := i + 1
		flag.StringVar(&disks[i], fmt.Sprintf("disk%d", unit), "", fmt.Sprintf("Mount image in drive unit %d", unit))
		flag.BoolVar(&readOnly[i], fmt.Sprintf("ro%d", unit), false, fmt.Sprintf("Write protect drive unit %d", unit))
	}

	flag.BoolVar(&autoCommit, "auto-commit", true, "Write sector changes back to the image file immediately")
	flag.BoolVar(&fullSpeed, "full-speed", false, "Run as fast as the host allows instead of 4MHz")

	flag.StringVar(&sdProm, "sd-prom", "", "Single-density controller PROM hex dump")
	flag.StringVar(&ddProm, "dd-prom", "", "Double-density controller PROM hex dump")

	flag.StringVar(&genSSSD, "gen-sssd", "", "Create a blank single-sided, single-density image")
	flag.StringVar(&genSSDD, "gen-ssdd", "", "Create a blank single-sided, double-density image")
	flag.StringVar(&genDSDD, "gen-dsdd", "", "Create a blank double-sided, double-density image")
}

func main() {
	flag.Parse()

	if ver {
		fmt.Printf("%s\n", version.Current.FullString())
		return
	}

	if genImage() {
		return
	}

	if newCPU == nil {
		fmt.Fprintln(os.Stderr, "no Z80 core is linked into this build")
		os.Exit(1)
	}

	term, err := platform.NewTerm()
	if err != nil {
		log.Fatal(err)
	}

	ports := console.NewDevice(term)
	term.KeyHook = ports.PressKey

	cfg := &emulator.Config{
		DriveImages: disks,
		ReadOnly:    readOnly,
		AutoCommit:  autoCommit,
		FullSpeed:   fullSpeed,
		SDFirmware:  sdProm,
		DDFirmware:  ddProm,
	}

	e, err := emulator.New(cfg, nil, ports, newCPU)
	if err != nil {
		term.Close()
		log.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- e.Run()
	}()

	select {
	case <-term.Done():
		e.Stop()
		<-errc
	case err = <-errc:
	}

	if e.AnyPendingWrites() {
		log.Print("uncommitted sector writes were discarded, run with -auto-commit")
	}

	term.Close()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("NorthStar Horizon v" + version.Current.String())
	fmt.Println(version.Copyright)
}

func genImage() bool {
	fs := afero.NewOsFs()

	gen := func(name string, size int) bool {
		if name == "" {
			return false
		}
		if err := diskimage.CreateBlank(fs, name, size); err != nil {
			fmt.Print(err)
		}
		return true
	}

	return gen(genSSSD, diskimage.SSSDSize) ||
		gen(genSSDD, diskimage.SSDDSize) ||
		gen(genDSDD, diskimage.DSDDSize)
}
