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
	"github.com/spf13/afero"
)

// MaxDrives is the most drive bays any controller variant offers.
const MaxDrives = 4

// Config is the user-facing knob surface. AutoCommit and FullSpeed may
// be flipped while the machine runs; the drive image slots are read on
// every reboot.
type Config struct {
	Fs afero.Fs

	// DriveImages holds the image path per drive slot; slot i maps to
	// unit i+1. Empty string means an empty bay. Slot 3 is only reachable
	// with the double-density controller.
	DriveImages [MaxDrives]string
	ReadOnly    [MaxDrives]bool

	// AutoCommit persists every completed sector write immediately.
	// When off, changes accumulate in memory until an explicit commit.
	AutoCommit bool

	// FullSpeed disables the 4MHz throttle.
	FullSpeed bool

	// VideoBoard selects which of the 8 strap positions the
	// ScreenSplitter occupies.
	VideoBoard int

	SDFirmware string
	DDFirmware string
}

func (cfg *Config) fill() {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.SDFirmware == "" {
		cfg.SDFirmware = "firmware/SDController.hex"
	}
	if cfg.DDFirmware == "" {
		cfg.DDFirmware = "firmware/DDController.hex"
	}
	if cfg.VideoBoard < 0 || cfg.VideoBoard > 7 {
		cfg.VideoBoard = 7
	}
}
