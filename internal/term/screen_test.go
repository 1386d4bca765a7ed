package term

import (
	"strings"
	"testing"
)

func TestScreen_PlainText(t *testing.T) {
	s := NewScreen(10, 40)
	s.Feed([]byte("hello\r\nworld"))

	got := s.Text()
	want := "hello\nworld"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_BareLFReturnsToColumnZero(t *testing.T) {
	s := NewScreen(10, 40)
	s.Feed([]byte("first\nsecond"))

	got := s.Text()
	want := "first\nsecond"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_CursorHomeOverwrites(t *testing.T) {
	s := NewScreen(10, 40)
	// Paint a line, repaint it from home. Only the final contents count.
	s.Feed([]byte("loading...\x1b[HDone      "))

	got := s.Text()
	want := "Done"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_CursorAddressing(t *testing.T) {
	s := NewScreen(10, 40)
	s.Feed([]byte("\x1b[3;5Hx"))

	lines := strings.Split(s.Text(), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[2] != "    x" {
		t.Errorf("row 3 = %q, want %q", lines[2], "    x")
	}
}

func TestScreen_EraseLine(t *testing.T) {
	tests := []struct {
		name string
		feed string
		want string
	}{
		{"erase to end", "abcdef\x1b[4G\x1b[K", "abc"},
		{"erase to start", "abcdef\x1b[3G\x1b[1K", "   def"},
		{"erase whole line", "abcdef\x1b[2K", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScreen(5, 40)
			s.Feed([]byte(tt.feed))
			if got := s.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScreen_EraseDisplayBelow(t *testing.T) {
	s := NewScreen(10, 40)
	s.Feed([]byte("one\r\ntwo\r\nthree\x1b[2;1H\x1b[0J"))

	got := s.Text()
	want := "one"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_SGRIgnored(t *testing.T) {
	s := NewScreen(5, 40)
	s.Feed([]byte("\x1b[1;32mgreen\x1b[0m text"))

	got := s.Text()
	want := "green text"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_OSCTitleSwallowed(t *testing.T) {
	s := NewScreen(5, 40)
	s.Feed([]byte("\x1b]0;window title\x07visible"))

	got := s.Text()
	want := "visible"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_SplitEscapeAcrossFeeds(t *testing.T) {
	s := NewScreen(10, 40)
	// A CSI sequence split at an arbitrary byte boundary must not leak
	// fragments into the text.
	s.Feed([]byte("ab\x1b[3"))
	s.Feed([]byte(";1Hcd"))

	lines := strings.Split(s.Text(), "\n")
	if lines[0] != "ab" {
		t.Errorf("row 1 = %q, want %q", lines[0], "ab")
	}
	if len(lines) < 3 || lines[2] != "cd" {
		t.Errorf("row 3 = %q, want %q", lines[len(lines)-1], "cd")
	}
}

func TestScreen_SplitRuneAcrossFeeds(t *testing.T) {
	s := NewScreen(5, 40)
	raw := []byte("oké") // é is two bytes
	s.Feed(raw[:3])
	s.Feed(raw[3:])

	got := s.Text()
	want := "oké"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_WideRunesOccupyTwoCells(t *testing.T) {
	s := NewScreen(5, 40)
	s.Feed([]byte("漢字"))
	s.Feed([]byte("\x1b[1;5Hx")) // column 5 is just past two wide runes

	got := s.Text()
	want := "漢字x"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_ScrollOnOverflow(t *testing.T) {
	s := NewScreen(3, 40)
	s.Feed([]byte("one\r\ntwo\r\nthree\r\nfour"))

	got := s.Text()
	want := "two\nthree\nfour"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_ScrollRegion(t *testing.T) {
	s := NewScreen(5, 40)
	// Pin row 1, scroll only rows 2-5.
	s.Feed([]byte("header\r\n\x1b[2;5r\x1b[5;1Ha\r\nb\r\nc\r\nd"))

	lines := strings.Split(s.Text(), "\n")
	if lines[0] != "header" {
		t.Errorf("row 1 = %q, want %q (should be outside scroll region)", lines[0], "header")
	}
	if lines[len(lines)-1] != "d" {
		t.Errorf("last row = %q, want %q", lines[len(lines)-1], "d")
	}
}

func TestScreen_LineWrap(t *testing.T) {
	s := NewScreen(5, 4)
	s.Feed([]byte("abcdef"))

	got := s.Text()
	want := "abcd\nef"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_Backspace(t *testing.T) {
	s := NewScreen(5, 40)
	s.Feed([]byte("abX\bc"))

	got := s.Text()
	want := "abc"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_CarriageReturnOverwrite(t *testing.T) {
	s := NewScreen(5, 40)
	// Progress-style repainting with bare CR.
	s.Feed([]byte("10%\r20%\r30%"))

	got := s.Text()
	want := "30%"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestScreen_FullReset(t *testing.T) {
	s := NewScreen(5, 40)
	s.Feed([]byte("old contents\x1bcnew"))

	got := s.Text()
	want := "new"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestRender_RepaintedUsagePane(t *testing.T) {
	// A miniature version of a CLI repainting its usage pane in place.
	raw := "\x1b[2J\x1b[H" +
		"Current session\r\n" +
		"  42% left\r\n" +
		"\x1b[2;1H\x1b[K  41% left"

	got := Render(raw)
	if !strings.Contains(got, "41% left") {
		t.Errorf("Render() missing final percentage: %q", got)
	}
	if strings.Contains(got, "42% left") {
		t.Errorf("Render() kept overwritten percentage: %q", got)
	}
}
