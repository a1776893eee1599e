package escpos

import (
	"bytes"
	"strings"
	"testing"

	"PosPrint/app/models"
)

func TestEncoderOpcodes(t *testing.T) {
	cases := []struct {
		name  string
		build func(e *Encoder)
		want  []byte
	}{
		{"init", func(e *Encoder) { e.Init() }, []byte{0x1B, 0x40, 0x1B, 0x74, 0x02}},
		{"bold on", func(e *Encoder) { e.Bold(true) }, []byte{0x1B, 0x45, 0x01}},
		{"bold off", func(e *Encoder) { e.Bold(false) }, []byte{0x1B, 0x45, 0x00}},
		{"align center", func(e *Encoder) { e.Align(AlignCenter) }, []byte{0x1B, 0x61, 0x01}},
		{"align right", func(e *Encoder) { e.Align(AlignRight) }, []byte{0x1B, 0x61, 0x02}},
		{"feed", func(e *Encoder) { e.Feed(4) }, []byte{0x1B, 0x64, 0x04}},
		{"double size", func(e *Encoder) { e.Size(2, 2) }, []byte{0x1D, 0x21, 0x11}},
		{"normal size", func(e *Encoder) { e.Size(1, 1) }, []byte{0x1D, 0x21, 0x00}},
		{"size clamps", func(e *Encoder) { e.Size(0, 9) }, []byte{0x1D, 0x21, 0x07}},
		{"full cut", func(e *Encoder) { e.Cut() }, []byte{0x1D, 0x56, 0x00}},
		{"partial cut", func(e *Encoder) { e.PartialCut() }, []byte{0x1D, 0x56, 0x42, 0x00}},
		{"cash drawer", func(e *Encoder) { e.CashDrawer() }, []byte{0x1B, 0x70, 0x00, 0x19, 0xFA}},
	}
	for _, tc := range cases {
		e := NewEncoder(models.Paper80mm)
		tc.build(e)
		if got := e.Build(); !bytes.Equal(got, tc.want) {
			t.Fatalf("%s: got % X, want % X", tc.name, got, tc.want)
		}
	}
}

func TestEncoderChainingAndRepeatableBuild(t *testing.T) {
	e := NewEncoder(models.Paper58mm).Init().Align(AlignCenter).Bold(true).Line("HELLO").Bold(false).Cut()
	first := e.Build()
	second := e.Build()
	if !bytes.Equal(first, second) {
		t.Fatalf("Build is not repeatable")
	}

	first[0] = 0x00
	if e.Build()[0] != 0x1B {
		t.Fatalf("Build must return a copy of the buffer")
	}
}

func TestEncoderWidthFollowsPaper(t *testing.T) {
	if w := NewEncoder(models.Paper58mm).Width(); w != 32 {
		t.Fatalf("58mm width = %d, want 32", w)
	}
	if w := NewEncoder(models.Paper80mm).Width(); w != 48 {
		t.Fatalf("80mm width = %d, want 48", w)
	}
}

func TestEncoderLineWraps(t *testing.T) {
	e := NewEncoder(models.Paper58mm)
	e.Line("The quick brown fox jumps over the lazy dog again and again")
	lines := strings.Split(strings.TrimSuffix(string(e.Build()), "\n"), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapped output, got %q", lines)
	}
	for _, l := range lines {
		if len(l) > 32 {
			t.Fatalf("line %q exceeds 32 columns", l)
		}
	}
}

func TestEncoderColumnsKeepRightEdge(t *testing.T) {
	e := NewEncoder(models.Paper58mm)
	e.Columns("Extra long chicken tikka masala platter", "x12")
	e.Columns("Tea", "x1")
	lines := strings.Split(strings.TrimSuffix(string(e.Build()), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, l := range lines {
		if len(l) != 32 {
			t.Fatalf("line %q has %d columns, want 32", l, len(l))
		}
	}
	if !strings.HasSuffix(lines[0], " x12") || !strings.HasSuffix(lines[1], "x1") {
		t.Fatalf("right column shifted: %q", lines)
	}
}

func TestEncoderSeparators(t *testing.T) {
	e := NewEncoder(models.Paper80mm).Separator().SolidSeparator()
	want := strings.Repeat("-", 48) + "\n" + strings.Repeat("=", 48) + "\n"
	if got := string(e.Build()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Café":         "Cafe",
		"Piña\tcolada": "Pina colada",
		"naïve 日本":     "naive ??",
		"a\x07b":       "ab",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWrap(t *testing.T) {
	cases := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"one two three", 7, []string{"one two", "three"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"hi abcdefghij", 4, []string{"hi", "abcd", "efgh", "ij"}},
		{"  * no onions", 32, []string{"  * no onions"}},
		{"  * no onions please", 12, []string{"  * no", "  onions", "  please"}},
		{"Qty  Item", 32, []string{"Qty  Item"}},
		{"      deep", 8, []string{"deep"}},
	}
	for _, tc := range cases {
		got := Wrap(tc.text, tc.width)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("Wrap(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}

func TestTwoColumns(t *testing.T) {
	cases := []struct {
		left, right string
		width       int
		want        string
	}{
		{"Total", "$10.00", 16, "Total     $10.00"},
		{"Subtotal amount", "$10.00", 16, "Subtotal  $10.00"},
		{"Name", "0123456789ABCDEFGH", 16, "0123456789ABCDEF"},
	}
	for _, tc := range cases {
		if got := TwoColumns(tc.left, tc.right, tc.width); got != tc.want {
			t.Fatalf("TwoColumns(%q, %q) = %q, want %q", tc.left, tc.right, got, tc.want)
		}
	}
}
