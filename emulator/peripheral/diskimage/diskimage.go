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

// Package diskimage reads and writes raw NorthStar disk images. There is
// no header or structure; the byte length alone determines geometry.
package diskimage

import (
	"fmt"

	"github.com/spf13/afero"
)

const FileExtension = "nsi"

// The three canonical image sizes.
const (
	SSSDSize = 89600  // single-sided, single-density
	SSDDSize = 179200 // single-sided, double-density
	DSDDSize = 358400 // double-sided, double-density
)

// Load reads a whole disk image into memory.
func Load(fs afero.Fs, name string) ([]byte, error) {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("unable to read floppy image: %w", err)
	}
	return data, nil
}

// Save writes a whole disk image back out, creating the file if needed.
func Save(fs afero.Fs, name string, data []byte) error {
	if err := afero.WriteFile(fs, name, data, 0644); err != nil {
		return fmt.Errorf("unable to write floppy image: %w", err)
	}
	return nil
}

// CreateBlank writes an all-zero image of one of the canonical sizes.
func CreateBlank(fs afero.Fs, name string, size int) error {
	switch size {
	case SSSDSize, SSDDSize, DSDDSize:
	default:
		return fmt.Errorf("unsupported disk image size: %d", size)
	}
	return Save(fs, name, make([]byte, size))
}
