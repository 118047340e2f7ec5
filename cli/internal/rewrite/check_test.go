package rewrite

import "testing"

func TestCheckLogicalLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  bool
	}{
		{"empty", nil, false},
		{"single_simple", []string{"x = 1"}, true},
		{"break_inside_parens", []string{"x = (", "    1,", ")"}, true},
		{"break_inside_brackets", []string{"xs = [", "    1,", "    2,", "]"}, true},
		{"break_at_depth_zero", []string{"x = 1 +", "2"}, false},
		{"backslash_continuation", []string{"x = 1 + \\", "    2"}, true},
		{"triple_quoted_string", []string{`x = """first`, `second"""`}, true},
		{"unterminated_string", []string{"x = 'abc"}, false},
		{"string_broken_across_lines", []string{"x = 'abc", "def'"}, false},
		{"unbalanced_open", []string{"x = compute(a,"}, false},
		{"unbalanced_close", []string{"x = a)"}, false},
		{"mismatched_pair", []string{"x = (]"}, false},
		{"bracket_inside_string", []string{`x = "(|["`}, true},
		{"comment_only", []string{"# just a note"}, true},
		{"trailing_comment", []string{"x = 1  # note"}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckLogicalLine(tt.lines); got != tt.want {
				t.Errorf("CheckLogicalLine(%q) = %v, want %v", tt.lines, got, tt.want)
			}
		})
	}
}

func TestCheckStatement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  bool
	}{
		{"empty", nil, false},
		{"single_line", []string{"x = f(1)"}, true},
		{"implicit_continuation", []string{"x = f(", "    1,", ")"}, true},
		{
			"hoisted_assignment_plus_statement",
			[]string{`text = "a long explanatory message"`, "raise ValueError(text)"},
			true,
		},
		{
			"hoisted_assignment_plus_continuation",
			[]string{`msg_str = "some long text"`, "log.warn(", "    msg_str,", ")"},
			true,
		},
		{"broken_tail", []string{"x = f(", "    1,"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckStatement(tt.lines); got != tt.want {
				t.Errorf("CheckStatement(%q) = %v, want %v", tt.lines, got, tt.want)
			}
		})
	}
}

func TestScanLogical_structure(t *testing.T) {
	t.Parallel()

	line := "result = compute(alpha, beta)  # call"
	info := scanLogical(line)
	if !info.balanced {
		t.Error("line should scan balanced")
	}
	if info.outerOpen != 16 {
		t.Errorf("outerOpen = %d, want 16", info.outerOpen)
	}
	if info.outerClose != 28 {
		t.Errorf("outerClose = %d, want 28", info.outerClose)
	}
	if len(info.depth1Commas) != 1 || info.depth1Commas[0] != 22 {
		t.Errorf("depth1Commas = %v, want [22]", info.depth1Commas)
	}
	if info.commentAt != 31 {
		t.Errorf("commentAt = %d, want 31", info.commentAt)
	}
}

func TestScanLogical_ignoresBracketsInStrings(t *testing.T) {
	t.Parallel()
	info := scanLogical(`x = "(unclosed"`)
	if !info.balanced {
		t.Error("brackets inside strings must not count")
	}
	if info.outerOpen != -1 {
		t.Errorf("outerOpen = %d, want -1", info.outerOpen)
	}
	if len(info.strSpans) != 1 {
		t.Fatalf("strSpans = %v, want one span", info.strSpans)
	}
	if info.strSpans[0] != [2]int{4, 15} {
		t.Errorf("strSpan = %v, want [4 15]", info.strSpans[0])
	}
}

func TestScanLogical_nestedCommasNotTopLevel(t *testing.T) {
	t.Parallel()
	info := scanLogical("f(g(a, b), c)")
	if len(info.depth1Commas) != 1 {
		t.Errorf("depth1Commas = %v, want only the comma before c", info.depth1Commas)
	}
}
