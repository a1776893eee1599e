package escpos

import "strings"

var diacritics = map[rune]rune{
	'á': 'a', 'Á': 'A', 'à': 'a', 'À': 'A', 'â': 'a', 'ä': 'a',
	'é': 'e', 'É': 'E', 'è': 'e', 'È': 'E', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'Í': 'I', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'Ó': 'O', 'ò': 'o', 'ô': 'o', 'ö': 'o',
	'ú': 'u', 'Ú': 'U', 'ù': 'u', 'û': 'u', 'ü': 'u', 'Ü': 'U',
	'ñ': 'n', 'Ñ': 'N', 'ç': 'c', 'Ç': 'C',
	'¿': '?', '¡': '!', 'º': 'o', 'ª': 'a',
	'€': 'E', '₹': 'R', '£': 'L',
}

// Fold maps text onto printable ASCII. Accented letters lose their accent,
// anything else outside ASCII becomes '?', control characters are dropped.
// After folding one byte is one printed column.
func Fold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7F:
		case r < 0x80:
			b.WriteRune(r)
		default:
			if rep, ok := diacritics[r]; ok {
				b.WriteRune(rep)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}

// Wrap splits text into lines of at most width columns, breaking on spaces
// and hard-splitting words longer than a line. Text that already fits is
// returned untouched. Leading spaces are kept as an indent on every wrapped
// line. Empty input yields one empty line so blank lines still feed.
func Wrap(text string, width int) []string {
	if width <= 0 || len(text) <= width {
		return []string{text}
	}

	body := strings.TrimLeft(text, " ")
	indent := text[:len(text)-len(body)]
	if len(indent) >= width/2 {
		indent = ""
	}
	lines := wrapWords(strings.Fields(body), width-len(indent))
	for i := range lines {
		lines[i] = indent + lines[i]
	}
	return lines
}

func wrapWords(words []string, width int) []string {
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var cur strings.Builder
	for _, w := range words {
		for len(w) > width {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			lines = append(lines, w[:width])
			w = w[width:]
		}
		switch {
		case cur.Len() == 0:
			cur.WriteString(w)
		case cur.Len()+1+len(w) <= width:
			cur.WriteByte(' ')
			cur.WriteString(w)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(w)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// Truncate cuts text to width columns
func Truncate(text string, width int) string {
	if width < 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	return text[:width]
}

// TwoColumns lays out left and right on one line of width columns. Right is
// flush with the edge; left is truncated so at least one space separates
// them. A right column wider than the line is itself truncated.
func TwoColumns(left, right string, width int) string {
	right = Truncate(right, width)
	room := width - len(right) - 1
	if room < 0 {
		room = 0
	}
	left = Truncate(left, room)
	pad := width - len(left) - len(right)
	if pad < 0 {
		pad = 0
	}
	return left + strings.Repeat(" ", pad) + right
}
