// Package escpos builds ESC/POS command streams for thermal receipt printers.
// Nothing in this package performs I/O.
package escpos

import (
	"bytes"
	"strings"

	"PosPrint/app/models"
)

// ESC/POS Commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	NL  byte = 0x0A
)

// Alignment values for ESC a
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// Encoder accumulates a command stream. An Encoder is owned by a single
// build; it is not safe for concurrent use.
type Encoder struct {
	buf     bytes.Buffer
	columns int
}

// NewEncoder creates an encoder sized for the paper format
func NewEncoder(paper models.PaperFormat) *Encoder {
	return &Encoder{columns: paper.Columns()}
}

// Width returns the character width lines are fitted to
func (e *Encoder) Width() int {
	return e.columns
}

// Init resets the printer and selects code page 850
func (e *Encoder) Init() *Encoder {
	e.buf.Write([]byte{ESC, '@'})
	e.buf.Write([]byte{ESC, 't', 2})
	return e
}

// Align sets justification for following lines
func (e *Encoder) Align(a Alignment) *Encoder {
	e.buf.Write([]byte{ESC, 'a', byte(a)})
	return e
}

// Bold toggles emphasized mode
func (e *Encoder) Bold(on bool) *Encoder {
	var n byte
	if on {
		n = 1
	}
	e.buf.Write([]byte{ESC, 'E', n})
	return e
}

// Size sets character magnification, 1..8 in each direction
func (e *Encoder) Size(width, height int) *Encoder {
	w := byte(clamp(width, 1, 8) - 1)
	h := byte(clamp(height, 1, 8) - 1)
	e.buf.Write([]byte{GS, '!', w<<4 | h})
	return e
}

// Line writes text followed by a newline, wrapped to the paper width
func (e *Encoder) Line(text string) *Encoder {
	for _, l := range Wrap(Fold(text), e.columns) {
		e.buf.WriteString(l)
		e.buf.WriteByte(NL)
	}
	return e
}

// LineWidth writes a wrapped line using a reduced width, for text printed at
// double width where only half the columns fit.
func (e *Encoder) LineWidth(text string, width int) *Encoder {
	for _, l := range Wrap(Fold(text), width) {
		e.buf.WriteString(l)
		e.buf.WriteByte(NL)
	}
	return e
}

// Truncated writes a single line cut at the paper width
func (e *Encoder) Truncated(text string) *Encoder {
	e.buf.WriteString(Truncate(Fold(text), e.columns))
	e.buf.WriteByte(NL)
	return e
}

// Columns writes left and right text on one line. The right column is never
// shifted: the left side is truncated to make room for it.
func (e *Encoder) Columns(left, right string) *Encoder {
	e.buf.WriteString(TwoColumns(Fold(left), Fold(right), e.columns))
	e.buf.WriteByte(NL)
	return e
}

// Separator writes a dashed line across the paper
func (e *Encoder) Separator() *Encoder {
	e.buf.WriteString(strings.Repeat("-", e.columns))
	e.buf.WriteByte(NL)
	return e
}

// SolidSeparator writes a solid line across the paper
func (e *Encoder) SolidSeparator() *Encoder {
	e.buf.WriteString(strings.Repeat("=", e.columns))
	e.buf.WriteByte(NL)
	return e
}

// Feed prints the buffer and feeds n lines
func (e *Encoder) Feed(n int) *Encoder {
	e.buf.Write([]byte{ESC, 'd', byte(clamp(n, 0, 255))})
	return e
}

// Cut performs a full cut
func (e *Encoder) Cut() *Encoder {
	e.buf.Write([]byte{GS, 'V', 0})
	return e
}

// PartialCut feeds to the cutter and performs a partial cut
func (e *Encoder) PartialCut() *Encoder {
	e.buf.Write([]byte{GS, 'V', 66, 0})
	return e
}

// CashDrawer pulses drawer pin 2 (on 50ms, off 500ms)
func (e *Encoder) CashDrawer() *Encoder {
	e.buf.Write([]byte{ESC, 'p', 0, 25, 250})
	return e
}

// Raw appends bytes verbatim, e.g. a raster image block
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// Build returns a copy of the command stream. Calling it again returns the
// same bytes.
func (e *Encoder) Build() []byte {
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out
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
