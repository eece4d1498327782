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

// Package platform hosts the terminal front end. It renders the serial
// console in a tcell screen and feeds keystrokes back to the console
// device. Quit with Ctrl-].
package platform

import (
	"sync"

	"github.com/gdamore/tcell"
)

const (
	termCols = 80
	termRows = 24
)

type Term struct {
	mu sync.Mutex

	screen tcell.Screen
	cells  [termRows][termCols]rune
	col    int
	row    int

	keys chan byte
	done chan struct{}

	// KeyHook, when set, sees every key before it is queued for the
	// serial port. Used to latch the parallel input port.
	KeyHook func(byte)
}

func NewTerm() (*Term, error) {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	t := &Term{
		screen: screen,
		keys:   make(chan byte, 64),
		done:   make(chan struct{}),
	}
	t.clear()

	screen.ShowCursor(0, 0)
	screen.DisableMouse()
	screen.Clear()
	screen.Show()

	go t.eventLoop()
	return t, nil
}

// Done is closed when the user asks to quit.
func (t *Term) Done() <-chan struct{} {
	return t.done
}

func (t *Term) Close() {
	t.screen.Fini()
}

func (t *Term) clear() {
	for y := range t.cells {
		for x := range t.cells[y] {
			t.cells[y][x] = ' '
		}
	}
	t.col, t.row = 0, 0
}

func (t *Term) eventLoop() {
	for {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			var key byte
			switch ev.Key() {
			case tcell.KeyRune:
				if r := ev.Rune(); r > 0 && r < 0x80 {
					key = byte(r)
				}
			case tcell.KeyEnter:
				key = '\r'
			case tcell.KeyBackspace, tcell.KeyBackspace2:
				key = 8
			case tcell.KeyTab:
				key = '\t'
			case tcell.KeyEscape:
				key = 27
			case tcell.KeyCtrlRightSq:
				close(t.done)
				return
			default:
				if k := ev.Key(); k > 0 && k < 0x20 {
					key = byte(k)
				}
			}
			if key != 0 {
				if t.KeyHook != nil {
					t.KeyHook(key)
				}
				select {
				case t.keys <- key:
				default: // guest is not consuming, drop
				}
			}
		case *tcell.EventResize:
			t.screen.Sync()
		case nil:
			return
		}
	}
}

func (t *Term) KeyAvailable() bool {
	return len(t.keys) > 0
}

func (t *Term) ReadKey() byte {
	select {
	case key := <-t.keys:
		return key
	default:
		return 0
	}
}

func (t *Term) WriteByte(data byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch data {
	case '\r':
		t.col = 0
	case '\n':
		t.lineFeed()
	default:
		if data < 0x20 {
			break
		}
		t.cells[t.row][t.col] = rune(data)
		t.col++
		if t.col >= termCols {
			t.col = 0
			t.lineFeed()
		}
	}
	t.redraw()
}

func (t *Term) Backspace() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.col > 0 {
		t.col--
		t.cells[t.row][t.col] = ' '
	}
	t.redraw()
}

func (t *Term) Bell() {
	// No speaker to ring through tcell; swallow the BEL.
}

func (t *Term) lineFeed() {
	t.row++
	if t.row >= termRows {
		t.row = termRows - 1
		copy(t.cells[:], t.cells[1:])
		for x := range t.cells[t.row] {
			t.cells[t.row][x] = ' '
		}
	}
}

func (t *Term) redraw() {
	for y := range t.cells {
		for x := range t.cells[y] {
			t.screen.SetContent(x, y, t.cells[y][x], nil, tcell.StyleDefault)
		}
	}
	t.screen.ShowCursor(t.col, t.row)
	t.screen.Show()
}
