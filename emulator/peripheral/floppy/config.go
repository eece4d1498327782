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
	"math/rand"
	"time"

	"github.com/spf13/afero"
)

// transferTimeout is the number of controller accesses an abandoned
// read or write survives before the drive gives up and falls back to
// scanning for sector holes.
const transferTimeout = 10

// randSource is the bit of math/rand the drives use. Injected so tests
// can pin the sector-hole jitter sequence.
type randSource interface {
	Intn(n int) int
}

// DriveConfig carries the collaborators every drive needs. Zero values
// select the real OS file system, a time-seeded RNG, an always-off
// auto-commit policy and the wall clock.
type DriveConfig struct {
	Fs         afero.Fs
	AutoCommit func() bool
	Rand       randSource
	Now        func() time.Time
}

func (cfg *DriveConfig) fill() {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}
