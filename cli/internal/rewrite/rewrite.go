package rewrite

import (
	"strings"

	"linefix/cli/internal/violation"
)

// _defaultIndentUnit is the standard continuation indent (spaces) when the
// caller does not override it.
const _defaultIndentUnit = 4

// Options configures Fix. Zero value uses defaults.
type Options struct {
	// IndentUnit is the number of spaces one continuation level adds. 0 = 4.
	IndentUnit int
}

func (o Options) indentUnit() int {
	if o.IndentUnit > 0 {
		return o.IndentUnit
	}
	return _defaultIndentUnit
}

// Fix attempts the deterministic rewrite catalogue on v. It returns a
// candidate and true when some catalogue entry produces lines that all fit
// the width ceiling and pass the structural check; otherwise nil and false.
// Fix never performs I/O and never returns an error; a miss simply falls
// through to the generative tier.
//
// Catalogue order (first hit wins): already-conforming fast path, break at
// top-level commas, break at top-level binary operators, hoist a long string
// literal, wrap in parentheses for implicit continuation.
func Fix(v violation.Violation, opts Options) (*violation.CandidateFix, bool) {
	width := v.EffectiveMaxWidth()

	// Conforming, empty, and whitespace-only input passes through unchanged.
	// A multi-line original whose every line already fits is the round-trip
	// case: an earlier fix resubmitted as-is.
	split := strings.Split(v.OriginalLine, "\n")
	if allWithin(split, width) || strings.TrimSpace(v.OriginalLine) == "" {
		return candidate(v, split), true
	}

	// The rules operate on one logical line; collapse embedded continuations
	// before scanning so no rule ever slices across a newline.
	line := v.OriginalLine
	if len(split) > 1 {
		line = joinLogical(split)
		if len(line) <= width {
			return candidate(v, []string{line}), true
		}
	}

	info := scanLogical(line)
	if !info.balanced {
		// Not a self-contained logical line; nothing mechanical applies.
		return nil, false
	}
	if info.commentAt >= 0 {
		// A trailing comment makes every split site ambiguous; leave the
		// line to the generative tier.
		return nil, false
	}

	for _, rule := range []func(string, lineInfo, int, int) ([]string, bool){
		breakAtCommas,
		breakAtOperators,
		hoistString,
		parenWrap,
	} {
		lines, ok := rule(line, info, opts.indentUnit(), width)
		if !ok {
			continue
		}
		if !allWithin(lines, width) || !CheckStatement(lines) {
			continue
		}
		return candidate(v, lines), true
	}
	return nil, false
}

func candidate(v violation.Violation, lines []string) *violation.CandidateFix {
	return &violation.CandidateFix{
		ViolationID: v.ID,
		Lines:       lines,
		Tier:        violation.Tier1,
		Confidence:  1.0,
	}
}

// joinLogical collapses a multi-line original back into one logical line:
// trailing backslash continuations are dropped, continuation indentation is
// stripped, and the pieces are joined with single spaces. The first line's
// indent survives as the line's indent.
func joinLogical(lines []string) string {
	parts := make([]string, 0, len(lines))
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		l = strings.TrimSuffix(l, "\\")
		l = strings.TrimRight(l, " \t")
		if i > 0 {
			l = strings.TrimLeft(l, " \t")
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		parts = append(parts, l)
	}
	return strings.Join(parts, " ")
}

func allWithin(lines []string, width int) bool {
	for _, l := range lines {
		if len(l) > width {
			return false
		}
	}
	return true
}

// breakAtCommas splits the outermost parenthesized group at its top-level
// commas: the opener stays on the first line, each argument moves to its own
// line one indent unit deeper, and the closer (plus any trailing text)
// returns to the base indent. A trailing comma in the source is preserved so
// one-element tuples keep their meaning.
func breakAtCommas(line string, info lineInfo, unit, width int) ([]string, bool) {
	if info.outerOpen < 0 || info.outerClose < 0 || len(info.depth1Commas) == 0 {
		return nil, false
	}
	base := violation.LeadingWhitespace(line)
	argIndent := base + strings.Repeat(" ", unit)

	var args []string
	start := info.outerOpen + 1
	for _, comma := range info.depth1Commas {
		args = append(args, strings.TrimSpace(line[start:comma]))
		start = comma + 1
	}
	last := strings.TrimSpace(line[start:info.outerClose])
	trailingComma := last == ""
	if !trailingComma {
		args = append(args, last)
	}
	if len(args) == 0 {
		return nil, false
	}

	out := []string{line[:info.outerOpen+1]}
	for i, arg := range args {
		sep := ","
		if i == len(args)-1 && !trailingComma {
			sep = ""
		}
		out = append(out, argIndent+arg+sep)
	}
	out = append(out, base+line[info.outerClose:])
	return out, true
}

// depth0 word operators, longest first so "and" is not matched inside a
// longer identifier by the space-delimited search.
var breakOperators = []string{" and ", " or ", " + ", " - "}

// breakAtOperators splits at binary operators sitting at bracket depth zero,
// using backslash continuation with each continuation line aligned to the
// first operand. It walks greedily: each emitted segment is the longest
// prefix that fits the width ceiling with its trailing backslash.
func breakAtOperators(line string, info lineInfo, unit, width int) ([]string, bool) {
	breaks := operatorBreaks(line, info)
	if len(breaks) == 0 {
		return nil, false
	}
	align := firstOperandColumn(line, info)
	indent := strings.Repeat(" ", align)
	if align+2 >= width {
		return nil, false
	}

	var out []string
	segStart := 0
	prefix := "" // indent applied from the second segment on
	for {
		rest := prefix + line[segStart:]
		if len(rest) <= width {
			out = append(out, rest)
			return out, true
		}
		// Longest break point that keeps this segment within width.
		best := -1
		for _, b := range breaks {
			if b <= segStart {
				continue
			}
			if len(prefix)+(b-segStart)+2 <= width {
				best = b
			}
		}
		if best < 0 {
			return nil, false
		}
		out = append(out, prefix+line[segStart:best]+" \\")
		segStart = best
		for segStart < len(line) && line[segStart] == ' ' {
			segStart++
		}
		prefix = indent
	}
}

// operatorBreaks returns the offsets just after each depth-0 binary operator
// (the position where a continuation line may start).
func operatorBreaks(line string, info lineInfo) []int {
	var out []int
	for _, op := range breakOperators {
		for from := 0; ; {
			i := strings.Index(line[from:], op)
			if i < 0 {
				break
			}
			at := from + i
			if info.depth0[at] {
				out = append(out, at+len(op)-1)
			}
			from = at + len(op)
		}
	}
	// Offsets must be sorted for the greedy walk.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// firstOperandColumn returns the column where the first operand begins:
// after a top-level "= " when present, otherwise after the leading indent.
func firstOperandColumn(line string, info lineInfo) int {
	for i := 0; i < len(line); i++ {
		if line[i] == '=' && info.depth0[i] {
			if i+1 < len(line) && line[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("<>!+-*/%&|^", rune(line[i-1])) {
				continue
			}
			j := i + 1
			for j < len(line) && line[j] == ' ' {
				j++
			}
			return j
		}
	}
	return len(violation.LeadingWhitespace(line))
}

// hoistString moves the longest string literal into a named local on a
// preceding line and replaces the literal with the name. f-strings are left
// alone: hoisting one is safe only when every interpolation is, and the
// deterministic tier does not reason about that.
func hoistString(line string, info lineInfo, unit, width int) ([]string, bool) {
	if len(info.strSpans) == 0 {
		return nil, false
	}
	best := [2]int{0, 0}
	for _, span := range info.strSpans {
		start := literalStart(line, span[0])
		if hasFStringPrefix(line[start:span[0]]) {
			continue
		}
		if span[1]-start > best[1]-best[0] {
			best = [2]int{start, span[1]}
		}
	}
	if best[1]-best[0] < 8 {
		return nil, false
	}
	literal := line[best[0]:best[1]]
	name := hoistName(line, info)
	indent := violation.LeadingWhitespace(line)
	hoisted := indent + name + " = " + literal
	replaced := line[:best[0]] + name + line[best[1]:]
	return []string{hoisted, replaced}, true
}

// literalStart walks backwards over a string prefix (r, b, u, f and case
// variants) so the prefix moves with the literal.
func literalStart(line string, quoteAt int) int {
	i := quoteAt
	for i > 0 {
		switch line[i-1] {
		case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
			i--
		default:
			return i
		}
	}
	return i
}

func hasFStringPrefix(prefix string) bool {
	return strings.ContainsAny(prefix, "fF")
}

// hoistName derives the hoisted variable name from the assignment target
// when the line is a simple assignment, otherwise uses a generic name.
func hoistName(line string, info lineInfo) string {
	trimmed := strings.TrimLeft(line, " \t")
	offset := len(line) - len(trimmed)
	end := strings.Index(trimmed, " ")
	if end > 0 {
		target := trimmed[:end]
		rest := trimmed[end:]
		if strings.HasPrefix(rest, " = ") && isIdentifier(target) && info.depth0[offset+end+1] {
			return target + "_str"
		}
	}
	return "text"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// statement keywords whose meaning changes (or breaks) when the tail is
// wrapped in parentheses.
var noWrapKeywords = map[string]bool{
	"assert": true, "import": true, "from": true, "global": true,
	"nonlocal": true, "del": true, "lambda": true, "pass": true,
	"break": true, "continue": true, "raise": true,
}

// parenWrap wraps the statement tail in parentheses for implicit
// continuation: "lhs = (" / packed continuation lines / ")". Applies to
// simple assignments, return/yield statements, and bare expressions; lines
// ending in ":" and keyword statements that parentheses would change are
// left alone.
func parenWrap(line string, info lineInfo, unit, width int) ([]string, bool) {
	if len(info.depth0Spaces) == 0 {
		return nil, false
	}
	if strings.HasSuffix(strings.TrimRight(line, " "), ":") {
		return nil, false
	}
	indent := violation.LeadingWhitespace(line)
	trimmed := strings.TrimLeft(line, " \t")
	word := trimmed
	if i := strings.IndexByte(trimmed, ' '); i > 0 {
		word = trimmed[:i]
	}
	if noWrapKeywords[word] {
		return nil, false
	}

	// The wrap site: after a top-level "=", after return/yield, or around
	// the whole expression.
	tailStart := firstOperandColumn(line, info)
	if tailStart == len(indent) && (word == "return" || word == "yield") {
		tailStart = len(indent) + len(word) + 1
	}
	tail := line[tailStart:]
	if strings.TrimSpace(tail) == "" {
		return nil, false
	}
	if tail[0] == '(' && info.outerOpen == tailStart && info.outerClose == len(strings.TrimRight(line, " "))-1 {
		// Already parenthesized end to end.
		return nil, false
	}

	head := line[:tailStart] + "("
	contIndent := indent + strings.Repeat(" ", unit)
	chunks, ok := packChunks(tail, breakOffsets(info, tailStart, len(line)), contIndent, width)
	if !ok {
		return nil, false
	}
	out := append([]string{head}, chunks...)
	out = append(out, indent+")")
	return out, true
}

// breakOffsets converts the depth-0 space positions inside [from,to) into
// offsets relative to from.
func breakOffsets(info lineInfo, from, to int) []int {
	var out []int
	for _, sp := range info.depth0Spaces {
		if sp > from && sp < to {
			out = append(out, sp-from)
		}
	}
	return out
}

// packChunks splits text at the given offsets into the fewest lines that all
// fit width after the indent prefix, packing greedily left to right.
func packChunks(text string, offsets []int, indent string, width int) ([]string, bool) {
	var out []string
	start := 0
	for start < len(text) {
		rest := text[start:]
		if len(indent)+len(rest) <= width {
			out = append(out, indent+strings.TrimLeft(rest, " "))
			break
		}
		best := -1
		for _, off := range offsets {
			if off <= start {
				continue
			}
			if len(indent)+(off-start) <= width {
				best = off
			}
		}
		if best < 0 {
			return nil, false
		}
		out = append(out, indent+strings.TrimLeft(text[start:best], " "))
		start = best + 1
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
