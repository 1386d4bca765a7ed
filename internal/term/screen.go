// Package term flattens raw pseudo-terminal output into stable text.
//
// Interactive CLIs repaint their screen with cursor-movement escape
// sequences rather than appending plain lines, so the literal byte stream
// contains duplicated and overwritten fragments. Screen interprets just
// enough of the VT100/xterm protocol (CSI cursor movement and erasure,
// OSC/DCS swallowing, charset designations) to reconstruct the final
// screen contents. It is a write-only sink: no input echo, no resizing,
// no user-facing display.
package term

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Default virtual terminal geometry. Sized generously so CLIs that wrap
// to the reported width produce readable lines.
const (
	DefaultRows = 50
	DefaultCols = 160
)

// Screen is a fixed-size virtual terminal screen buffer.
type Screen struct {
	rows    int
	cols    int
	cells   [][]rune
	curRow  int
	curCol  int
	top     int // scroll region top (inclusive)
	bottom  int // scroll region bottom (inclusive)
	pending []byte
}

// NewScreen returns a Screen with the given geometry. Non-positive
// dimensions fall back to the defaults.
func NewScreen(rows, cols int) *Screen {
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}
	s := &Screen{rows: rows, cols: cols}
	s.reset()
	return s
}

// Render feeds raw CLI output through a default-sized screen and returns
// the flattened text.
func Render(raw string) string {
	s := NewScreen(DefaultRows, DefaultCols)
	s.Feed([]byte(raw))
	return s.Text()
}

func (s *Screen) reset() {
	s.cells = make([][]rune, s.rows)
	for i := range s.cells {
		s.cells[i] = make([]rune, s.cols)
	}
	s.curRow = 0
	s.curCol = 0
	s.top = 0
	s.bottom = s.rows - 1
}

// Rows and Cols report the fixed geometry.
func (s *Screen) Rows() int { return s.rows }
func (s *Screen) Cols() int { return s.cols }

// Feed interprets a chunk of raw terminal output. Incomplete escape
// sequences and split UTF-8 runes at the chunk boundary are buffered
// until the next call.
func (s *Screen) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	data := append(append([]byte(nil), s.pending...), chunk...)
	s.pending = nil

	for i := 0; i < len(data); {
		b := data[i]
		if b == 0x1b {
			consumed, ok := s.feedEscape(data[i:])
			if !ok {
				s.pending = append(s.pending, data[i:]...)
				return
			}
			i += consumed
			continue
		}

		switch b {
		case '\r':
			s.curCol = 0
			i++
			continue
		case '\n':
			// Normalized: a bare LF also returns the cursor to column 0,
			// so captured plain text lines up the way a cooked terminal
			// would show it.
			s.curCol = 0
			s.lineFeed()
			i++
			continue
		case '\b', 0x7f:
			if s.curCol > 0 {
				s.curCol--
			}
			i++
			continue
		case '\t':
			next := (s.curCol/8 + 1) * 8
			if next >= s.cols {
				next = s.cols - 1
			}
			s.curCol = next
			i++
			continue
		}

		if b < 0x20 {
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(data[i:]) {
				s.pending = append(s.pending, data[i:]...)
				return
			}
			i++
			continue
		}
		s.putRune(r)
		i += size
	}
}

// feedEscape consumes one escape sequence starting at data[0] == ESC.
// Returns ok=false when the sequence is incomplete.
func (s *Screen) feedEscape(data []byte) (consumed int, ok bool) {
	if len(data) < 2 {
		return 0, false
	}
	switch data[1] {
	case '[':
		n, final, params, complete := parseCSI(data)
		if !complete {
			return 0, false
		}
		s.applyCSI(final, params)
		return n, true
	case ']', 'P', '^', '_':
		// OSC title updates, DCS, PM, APC: out-of-band metadata with no
		// screen effect. Swallow through BEL or ST.
		n, complete := parseStringSequence(data)
		if !complete {
			return 0, false
		}
		return n, true
	case '(', ')', '*', '+', '-', '.', '/', '%', '#':
		// Charset designation and similar two-byte-arg sequences.
		if len(data) < 3 {
			return 0, false
		}
		return 3, true
	case 'c':
		s.reset()
		return 2, true
	case 'D':
		s.lineFeed()
		return 2, true
	case 'M':
		if s.curRow > s.top {
			s.curRow--
		} else {
			s.scrollDown(1)
		}
		return 2, true
	case '7', '8', '=', '>':
		return 2, true
	default:
		return 2, true
	}
}

func (s *Screen) putRune(r rune) {
	w := runeCells(r)
	if s.curCol+w > s.cols {
		s.curCol = 0
		s.lineFeed()
	}
	s.cells[s.curRow][s.curCol] = r
	if w == 2 && s.curCol+1 < s.cols {
		s.cells[s.curRow][s.curCol+1] = wideFiller
	}
	s.curCol += w
}

// wideFiller marks the second cell of a double-width rune. It is a
// Unicode noncharacter, so real output never collides with it.
const wideFiller = '￾'

// runeCells reports how many screen columns a rune occupies.
func runeCells(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

func (s *Screen) lineFeed() {
	if s.curRow >= s.bottom {
		s.scrollUp(1)
		s.curRow = s.bottom
	} else {
		s.curRow++
	}
}

func (s *Screen) scrollUp(n int) {
	for ; n > 0; n-- {
		for row := s.top; row < s.bottom; row++ {
			s.cells[row] = s.cells[row+1]
		}
		s.cells[s.bottom] = make([]rune, s.cols)
	}
}

func (s *Screen) scrollDown(n int) {
	for ; n > 0; n-- {
		for row := s.bottom; row > s.top; row-- {
			s.cells[row] = s.cells[row-1]
		}
		s.cells[s.top] = make([]rune, s.cols)
	}
}

func (s *Screen) setCursor(row, col int) {
	s.curRow = clamp(row, 0, s.rows-1)
	s.curCol = clamp(col, 0, s.cols-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Screen) applyCSI(final byte, params []int) {
	param := func(idx, def int) int {
		if idx >= len(params) || params[idx] == 0 {
			return def
		}
		return params[idx]
	}

	switch final {
	case 'A':
		s.setCursor(s.curRow-param(0, 1), s.curCol)
	case 'B':
		s.setCursor(s.curRow+param(0, 1), s.curCol)
	case 'C':
		s.setCursor(s.curRow, s.curCol+param(0, 1))
	case 'D':
		s.setCursor(s.curRow, s.curCol-param(0, 1))
	case 'E':
		s.setCursor(s.curRow+param(0, 1), 0)
	case 'F':
		s.setCursor(s.curRow-param(0, 1), 0)
	case 'G':
		s.setCursor(s.curRow, param(0, 1)-1)
	case 'H', 'f':
		s.setCursor(param(0, 1)-1, param(1, 1)-1)
	case 'd':
		s.setCursor(param(0, 1)-1, s.curCol)
	case 'J':
		s.eraseDisplay(param(0, 0))
	case 'K':
		s.eraseLine(param(0, 0))
	case 'X':
		s.eraseChars(param(0, 1))
	case 'S':
		s.scrollUp(param(0, 1))
	case 'T':
		s.scrollDown(param(0, 1))
	case 'r':
		top := param(0, 1) - 1
		bottom := param(1, s.rows) - 1
		if top >= 0 && bottom < s.rows && top < bottom {
			s.top, s.bottom = top, bottom
		}
		s.setCursor(0, 0)
	case 'L':
		// Insert lines: shift the region below the cursor down.
		savedTop := s.top
		if s.curRow > s.top {
			s.top = s.curRow
		}
		s.scrollDown(param(0, 1))
		s.top = savedTop
	case 'M':
		savedTop := s.top
		if s.curRow > s.top {
			s.top = s.curRow
		}
		s.scrollUp(param(0, 1))
		s.top = savedTop
	}
	// SGR ('m'), mode sets ('h'/'l'), and device queries are deliberately
	// ignored: color and mode state never affect the flattened text.
}

func (s *Screen) eraseLine(mode int) {
	row := s.cells[s.curRow]
	switch mode {
	case 0:
		for c := s.curCol; c < s.cols; c++ {
			row[c] = 0
		}
	case 1:
		for c := 0; c <= s.curCol && c < s.cols; c++ {
			row[c] = 0
		}
	case 2:
		for c := range row {
			row[c] = 0
		}
	}
}

func (s *Screen) eraseChars(n int) {
	for c := s.curCol; c < s.curCol+n && c < s.cols; c++ {
		s.cells[s.curRow][c] = 0
	}
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(0)
		for r := s.curRow + 1; r < s.rows; r++ {
			s.cells[r] = make([]rune, s.cols)
		}
	case 1:
		s.eraseLine(1)
		for r := 0; r < s.curRow; r++ {
			s.cells[r] = make([]rune, s.cols)
		}
	case 2, 3:
		for r := range s.cells {
			s.cells[r] = make([]rune, s.cols)
		}
	}
}

// Text extracts the final screen contents: empty cells become spaces,
// each row is right-trimmed, and trailing blank rows are dropped.
func (s *Screen) Text() string {
	lines := make([]string, 0, s.rows)
	for _, row := range s.cells {
		var b strings.Builder
		for _, r := range row {
			switch r {
			case 0:
				b.WriteRune(' ')
			case wideFiller:
				// Second cell of a wide rune, already represented.
			default:
				b.WriteRune(r)
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// parseCSI consumes a CSI sequence. Parameter strings with private
// prefixes ("?", ">", etc.) parse the same way; the prefix is dropped.
func parseCSI(data []byte) (consumed int, final byte, params []int, complete bool) {
	if len(data) < 2 || data[0] != 0x1b || data[1] != '[' {
		return 0, 0, nil, false
	}
	for i := 2; i < len(data); i++ {
		if data[i] >= 0x40 && data[i] <= 0x7e {
			return i + 1, data[i], parseCSIParams(string(data[2:i])), true
		}
	}
	return 0, 0, nil, false
}

func parseCSIParams(raw string) []int {
	raw = strings.TrimLeft(raw, "?=><! ")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	params := make([]int, 0, len(parts))
	for _, part := range parts {
		n := 0
		for _, ch := range part {
			if ch < '0' || ch > '9' {
				n = 0
				break
			}
			n = n*10 + int(ch-'0')
		}
		params = append(params, n)
	}
	return params
}

// parseStringSequence consumes an OSC/DCS/PM/APC sequence terminated by
// BEL or ST (ESC \).
func parseStringSequence(data []byte) (consumed int, complete bool) {
	for i := 2; i < len(data); i++ {
		if data[i] == 0x07 {
			return i + 1, true
		}
		if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '\\' {
			return i + 2, true
		}
	}
	return 0, false
}
