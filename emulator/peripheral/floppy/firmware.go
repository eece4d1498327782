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
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// PROMSize is the size of a controller bootstrap PROM.
const PROMSize = 256

var (
	promMu    sync.Mutex
	promCache = make(map[string][]byte)
)

// LoadFirmware reads a bootstrap PROM from a hex dump file. The dump
// format is lines of space separated two-digit hex pairs; lines that do
// not start with a hex digit are comments and are skipped. Images are
// cached for the life of the process since the PROM contents never
// change between reboots.
func LoadFirmware(fs afero.Fs, name string) ([]byte, error) {
	promMu.Lock()
	defer promMu.Unlock()

	if prom, ok := promCache[name]; ok {
		return prom, nil
	}

	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("failed reading floppy controller firmware: %w", err)
	}

	prom, err := parseHexDump(data)
	if err != nil {
		return nil, fmt.Errorf("failed reading floppy controller firmware %s: %w", name, err)
	}

	promCache[name] = prom
	return prom, nil
}

func parseHexDump(data []byte) ([]byte, error) {
	var prom []byte

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !isHexDigit(line[0]) {
			continue
		}
		for _, field := range strings.Fields(line) {
			if len(field) != 2 {
				continue
			}
			v, err := strconv.ParseUint(field, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("bad hex value %q", field)
			}
			prom = append(prom, byte(v))
		}
	}

	if len(prom) != PROMSize {
		return nil, fmt.Errorf("expected %d PROM bytes, got %d", PROMSize, len(prom))
	}
	return prom, nil
}

func isHexDigit(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'F':
		return true
	case c >= 'a' && c <= 'f':
		return true
	}
	return false
}
