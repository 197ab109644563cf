package tzconv

import (
	"strings"
	"time"
)

// tokens maps date-fns pattern letters, by run length, to Go layout elements.
// The last entry for a letter covers longer runs. Fractional seconds ('S')
// are handled separately because Go only recognizes them after a dot.
var tokens = map[rune][]string{
	'y': {"2006", "06", "2006", "2006"},
	'M': {"1", "01", "Jan", "January"},
	'd': {"2", "02"},
	'E': {"Mon", "Mon", "Mon", "Monday"},
	'H': {"15", "15"},
	'h': {"3", "03"},
	'm': {"4", "04"},
	's': {"5", "05"},
	'a': {"PM"},
	'z': {"MST"},
	'x': {"-07", "-0700", "-07:00"},
	'X': {"Z07", "Z0700", "Z07:00"},
}

const maxFractionDigits = 9

// segment is one piece of a compiled pattern: either literal text or a single
// Go layout element.
type segment struct {
	text    string
	literal bool
}

// Pattern is a compiled date-fns style pattern. Each field is formatted on
// its own and literal text is copied verbatim, so quoted words and digits are
// never reinterpreted as layout elements.
type Pattern struct {
	segments []segment
}

// CompilePattern parses a date-fns style pattern. Text wrapped in single
// quotes is literal; '' yields a single quote. Letters without a mapping and
// all other characters are literal too.
func CompilePattern(pattern string) Pattern {
	var (
		segs []segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String(), literal: true})
			lit.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\'' {
			j := i + 1
			if j < len(runes) && runes[j] == '\'' {
				lit.WriteRune('\'')
				i = j + 1
				continue
			}
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						lit.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				lit.WriteRune(runes[j])
				j++
			}
			i = j + 1
			continue
		}

		j := i
		for j < len(runes) && runes[j] == r {
			j++
		}
		run := j - i

		switch elems, ok := tokens[r]; {
		case r == 'S':
			flush()
			segs = append(segs, segment{text: "." + strings.Repeat("0", min(run, maxFractionDigits))})
		case ok:
			flush()
			segs = append(segs, segment{text: elems[min(run, len(elems))-1]})
		default:
			lit.WriteString(string(runes[i:j]))
		}
		i = j
	}
	flush()
	return Pattern{segments: segs}
}

// Format renders t field by field.
func (p Pattern) Format(t time.Time) string {
	var b strings.Builder
	for _, s := range p.segments {
		switch {
		case s.literal:
			b.WriteString(s.text)
		case s.text[0] == '.':
			b.WriteString(t.Format(s.text)[1:])
		default:
			b.WriteString(t.Format(s.text))
		}
	}
	return b.String()
}
