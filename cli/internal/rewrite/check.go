// Package rewrite implements the Tier 1 deterministic fixer: a fixed
// catalogue of mechanical rewrites for long lines, plus the parse-only
// structural check applied to every candidate before it is accepted. The
// package is purely CPU-bound and performs no I/O.
package rewrite

import "strings"

// bracket pairs recognized by the scanner.
var closerFor = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// lineInfo is the result of scanning one logical line of Python. Indexes are
// byte offsets into the scanned text.
type lineInfo struct {
	balanced     bool  // brackets balanced and all strings terminated
	commentAt    int   // index of a comment start outside strings, -1 if none
	outerOpen    int   // index of the first top-level opening bracket, -1
	outerClose   int   // index of its matching closer, -1
	depth1Commas []int // commas at depth 1 inside the outermost group
	depth0Spaces []int // spaces at depth 0 outside strings and comments
	strSpans     [][2]int
	// depth0[i] is true when the byte at i sits at bracket depth 0, outside
	// any string or comment. Used by the operator-break and paren-wrap rules
	// to locate legal break points.
	depth0 []bool
}

// scanLogical scans text as a single Python logical line. It tracks bracket
// depth, string state (single, double, and triple quotes, with backslash
// escapes), and comments. Newlines are legal only at bracket depth >= 1,
// inside a triple-quoted string, or after a backslash; scanLogical reports
// balanced=false otherwise, which is how CheckLogicalLine rejects a break
// placed where implicit continuation is not allowed.
func scanLogical(text string) lineInfo {
	info := lineInfo{commentAt: -1, outerOpen: -1, outerClose: -1, depth0: make([]bool, len(text))}
	var stack []int
	inStr := false
	var quote byte
	triple := false
	strStart := -1
	i := 0
	for i < len(text) {
		c := text[i]
		if !inStr && len(stack) == 0 && c != '\'' && c != '"' && c != '#' {
			info.depth0[i] = true
		}
		if inStr {
			switch {
			case c == '\\':
				i += 2
				continue
			case c == quote && triple && strings.HasPrefix(text[i:], strings.Repeat(string(quote), 3)):
				info.strSpans = append(info.strSpans, [2]int{strStart, i + 3})
				inStr, triple = false, false
				i += 3
				continue
			case c == quote && !triple:
				info.strSpans = append(info.strSpans, [2]int{strStart, i + 1})
				inStr = false
			case c == '\n' && !triple:
				// Single-quoted string broken across lines.
				return info
			}
			i++
			continue
		}
		switch c {
		case '#':
			// Comment runs to the end of the physical line.
			if info.commentAt < 0 {
				info.commentAt = i
			}
			j := strings.IndexByte(text[i:], '\n')
			if j < 0 {
				info.balanced = len(stack) == 0
				return info
			}
			i += j
			continue
		case '\'', '"':
			inStr, quote, strStart = true, c, i
			if strings.HasPrefix(text[i:], strings.Repeat(string(c), 3)) {
				triple = true
				i += 3
				continue
			}
		case '(', '[', '{':
			if len(stack) == 0 && info.outerOpen < 0 {
				info.outerOpen = i
			}
			stack = append(stack, i)
		case ')', ']', '}':
			if len(stack) == 0 {
				return info
			}
			open := stack[len(stack)-1]
			if closerFor[text[open]] != c {
				return info
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 && open == info.outerOpen {
				info.outerClose = i
			}
		case ',':
			if len(stack) == 1 && info.outerOpen >= 0 && stack[0] == info.outerOpen {
				info.depth1Commas = append(info.depth1Commas, i)
			}
		case ' ':
			if len(stack) == 0 && info.commentAt < 0 {
				info.depth0Spaces = append(info.depth0Spaces, i)
			}
		case '\n':
			if len(stack) == 0 && !(i > 0 && text[i-1] == '\\') {
				return info
			}
		}
		i++
	}
	info.balanced = len(stack) == 0 && !inStr
	return info
}

// CheckLogicalLine reports whether lines, joined with newlines, form a
// structurally valid Python logical line: balanced brackets, terminated
// strings, and every line break placed where continuation is legal. This is
// a parse-only check; it never executes the code.
func CheckLogicalLine(lines []string) bool {
	if len(lines) == 0 {
		return false
	}
	return scanLogical(strings.Join(lines, "\n")).balanced
}

// CheckStatement reports whether a candidate, spliced in place of the
// original line, still forms valid logical lines. Candidates produced by the
// catalogue are self-contained logical lines (the hoist rule emits two), so
// each logical group must pass CheckLogicalLine on its own.
func CheckStatement(candidate []string) bool {
	if len(candidate) == 0 {
		return false
	}
	// A hoisted assignment is its own logical line; detect it by a complete
	// first line followed by the rest.
	if len(candidate) > 1 && scanLogical(candidate[0]).balanced {
		return CheckLogicalLine(candidate[1:]) || CheckLogicalLine(candidate)
	}
	return CheckLogicalLine(candidate)
}
