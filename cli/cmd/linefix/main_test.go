package main

import (
	"strings"
	"testing"

	"linefix/cli/internal/violation"
)

func TestParseViolations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "bare_array",
			input: `[{"violation_id":"a","file_path":"x.py","line_number":1,"original_line":"pass","rule_code":"E501"}]`,
			want:  1,
		},
		{
			name:  "wrapper_object",
			input: `{"violations":[{"violation_id":"a","rule_code":"E501"},{"violation_id":"b","rule_code":"E501"}]}`,
			want:  2,
		},
		{name: "empty_array", input: `[]`, want: 0},
		{name: "wrapper_without_key", input: `{"items":[]}`, want: 0},
		{name: "not_json", input: `violations: none`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseViolations([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseViolations: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()
	out := func(s violation.Status) violation.FixOutcome {
		return violation.FixOutcome{Status: s}
	}
	tests := []struct {
		name     string
		outcomes []violation.FixOutcome
		want     int
	}{
		{name: "empty", want: 0},
		{
			name: "all_fixed",
			outcomes: []violation.FixOutcome{
				out(violation.StatusFixedDeterministic), out(violation.StatusFixedGenerated),
			},
			want: 0,
		},
		{
			name:     "one_unfixable",
			outcomes: []violation.FixOutcome{out(violation.StatusFixedGenerated), out(violation.StatusUnfixable)},
			want:     1,
		},
		{
			name:     "errored_wins_over_unfixable",
			outcomes: []violation.FixOutcome{out(violation.StatusUnfixable), out(violation.StatusErrored)},
			want:     2,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCodeFor(tt.outcomes); got != tt.want {
				t.Errorf("exitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteOutcomesHuman(t *testing.T) {
	t.Parallel()
	outcomes := []violation.FixOutcome{
		{ViolationID: "aabbccddeeff00112233", Status: violation.StatusFixedDeterministic},
		{ViolationID: "short", Status: violation.StatusUnfixable, TerminalReason: "tier3 rejected"},
	}
	var sb strings.Builder
	if err := writeOutcomesHuman(&sb, outcomes); err != nil {
		t.Fatalf("writeOutcomesHuman: %v", err)
	}
	got := sb.String()
	if !strings.Contains(got, "aabbccddeeff  fixed-deterministic") {
		t.Errorf("truncated ID line missing:\n%s", got)
	}
	if !strings.Contains(got, "short  unfixable  (tier3 rejected)") {
		t.Errorf("reason line missing:\n%s", got)
	}
	if !strings.Contains(got, "1 of 2 fixed.") {
		t.Errorf("summary line missing:\n%s", got)
	}
}
